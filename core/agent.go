package core

import "context"

// Agent is a named participant that can be handed a conversation slice and
// returns the resulting conversation. Workers and bare agents implement it.
//
// Implementations must:
//   - Treat the input State as read-only (State is a value type)
//   - Return a State whose last message is the agent's answer
//   - Respect ctx cancellation on blocking calls
//   - Hold no per-run mutable state so one instance can serve concurrent runs
type Agent interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, input State) (State, error)
}
