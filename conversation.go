package stockagent

// Conversation is an ordered, immutable sequence of turns.
//
// Append never modifies the receiver: it returns a new Conversation, so a
// value handed to a provider or kept by a test stays exactly as it was.
// The zero value is an empty conversation.
type Conversation struct {
	turns []Message
}

// NewConversation creates a conversation holding copies of the given turns.
func NewConversation(turns ...Message) Conversation {
	return Conversation{}.Append(turns...)
}

// Append returns a new conversation with the turns added at the end.
func (c Conversation) Append(turns ...Message) Conversation {
	if len(turns) == 0 {
		return c
	}
	next := make([]Message, 0, len(c.turns)+len(turns))
	next = append(next, c.turns...)
	for _, t := range turns {
		next = append(next, cloneMessage(t))
	}
	return Conversation{turns: next}
}

// Turns returns a copy of the turns in order.
func (c Conversation) Turns() []Message {
	out := make([]Message, len(c.turns))
	for i, t := range c.turns {
		out[i] = cloneMessage(t)
	}
	return out
}

// Len returns the number of turns.
func (c Conversation) Len() int {
	return len(c.turns)
}

// Last returns the most recent turn.
func (c Conversation) Last() (Message, bool) {
	if len(c.turns) == 0 {
		return Message{}, false
	}
	return cloneMessage(c.turns[len(c.turns)-1]), true
}

// At returns the turn at index i.
func (c Conversation) At(i int) (Message, bool) {
	if i < 0 || i >= len(c.turns) {
		return Message{}, false
	}
	return cloneMessage(c.turns[i]), true
}

func cloneMessage(m Message) Message {
	if m.ToolCalls != nil {
		m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	if m.ToolResults != nil {
		m.ToolResults = append([]ToolResult(nil), m.ToolResults...)
	}
	return m
}
