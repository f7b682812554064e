package store

import (
	"context"
	"encoding/json"
	"time"

	ai "github.com/spetersoncode/stockagent"
)

// Sessions keeps conversation history per session ID.
type Sessions struct {
	adapter Adapter
	ttl     time.Duration
	limit   int
}

// NewSessions stores histories on adapter for ttl, keeping at most limit
// turns per session (zero keeps all).
func NewSessions(adapter Adapter, ttl time.Duration, limit int) *Sessions {
	if adapter == nil {
		adapter = NewMemoryAdapter()
	}
	return &Sessions{adapter: adapter, ttl: ttl, limit: limit}
}

func sessionKey(id string) string {
	return "session:" + id
}

// Load returns the stored history for id, or nil when there is none.
func (s *Sessions) Load(ctx context.Context, id string) ([]ai.Message, error) {
	raw, ok, err := s.adapter.Get(ctx, sessionKey(id))
	if err != nil || !ok {
		return nil, err
	}
	var msgs []ai.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, &SerializationError{Key: sessionKey(id), Err: err}
	}
	return msgs, nil
}

// Save replaces the history for id. System turns are dropped since each run
// builds its own system prompt. Stored history always starts at a user
// question.
func (s *Sessions) Save(ctx context.Context, id string, msgs []ai.Message) error {
	kept := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != ai.RoleSystem {
			kept = append(kept, m)
		}
	}
	if s.limit > 0 && len(kept) > s.limit {
		kept = kept[len(kept)-s.limit:]
	}
	kept = fromFirstQuestion(kept)
	raw, err := json.Marshal(kept)
	if err != nil {
		return &SerializationError{Key: sessionKey(id), Err: err}
	}
	return s.adapter.Set(ctx, sessionKey(id), raw, s.ttl)
}

// Clear deletes the history for id.
func (s *Sessions) Clear(ctx context.Context, id string) error {
	return s.adapter.Delete(ctx, sessionKey(id))
}

// fromFirstQuestion drops leading turns up to the first user turn that is
// not a tool result.
func fromFirstQuestion(msgs []ai.Message) []ai.Message {
	for i, m := range msgs {
		if m.Role == ai.RoleUser && len(m.ToolResults) == 0 {
			return msgs[i:]
		}
	}
	return msgs[:0]
}
