package core

// State is the ordered, append-only conversation log of a run. It is a value
// type: Append returns a new State and never writes into storage reachable
// from the receiver, so a slice handed to a worker can not observe or alter
// later supervisor appends.
//
// Contract:
//   - Messages are never removed, reordered or mutated
//   - Version equals the number of messages and grows monotonically
//   - Messages and Last return copies
type State struct {
	msgs []Message
}

// NewState creates a State holding the given messages in order.
func NewState(msgs ...Message) State {
	return State{}.Append(msgs...)
}

// Append returns a new State with msgs added after the existing messages.
func (s State) Append(msgs ...Message) State {
	if len(msgs) == 0 {
		return s
	}
	next := make([]Message, len(s.msgs), len(s.msgs)+len(msgs))
	copy(next, s.msgs)
	for _, m := range msgs {
		next = append(next, m.clone())
	}
	return State{msgs: next}
}

// Messages returns a copy of the full ordered message sequence.
func (s State) Messages() []Message {
	out := make([]Message, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.clone()
	}
	return out
}

// Last returns a State holding at most the n most recent messages.
func (s State) Last(n int) State {
	if n <= 0 {
		return State{}
	}
	if n >= len(s.msgs) {
		return s
	}
	return State{msgs: s.msgs[len(s.msgs)-n : len(s.msgs) : len(s.msgs)]}
}

// Since returns the messages appended after the given version.
func (s State) Since(version int) []Message {
	if version < 0 {
		version = 0
	}
	if version >= len(s.msgs) {
		return nil
	}
	out := make([]Message, 0, len(s.msgs)-version)
	for _, m := range s.msgs[version:] {
		out = append(out, m.clone())
	}
	return out
}

// LastMessage returns the most recent message.
func (s State) LastMessage() (Message, bool) {
	if len(s.msgs) == 0 {
		return Message{}, false
	}
	return s.msgs[len(s.msgs)-1].clone(), true
}

// FirstByRole returns the earliest message with the given role.
func (s State) FirstByRole(role Role) (Message, bool) {
	for _, m := range s.msgs {
		if m.Role == role {
			return m.clone(), true
		}
	}
	return Message{}, false
}

// LastByRole returns the most recent message with the given role.
func (s State) LastByRole(role Role) (Message, bool) {
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if s.msgs[i].Role == role {
			return s.msgs[i].clone(), true
		}
	}
	return Message{}, false
}

// Len returns the number of messages.
func (s State) Len() int { return len(s.msgs) }

// Version identifies the state snapshot; it only ever increases.
func (s State) Version() int { return len(s.msgs) }
