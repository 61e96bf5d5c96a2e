package agent

import "fmt"

// BaseAgent bundles the identity shared by agent implementations. Embed it
// and supply Invoke to satisfy core.Agent.
type BaseAgent struct {
	name        string // Routing name
	description string // Shown to the supervisor when listing workers
}

// NewBaseAgent constructs a BaseAgent with a generated description.
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// Name returns the routing name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a short description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }
