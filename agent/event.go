package agent

import "github.com/spetersoncode/stockagent/event"

// Event is the agent's progress event.
type Event = event.Event
