// Package core provides the foundational domain types shared by agentdesk's
// supervisor, workers and tools:
//
//   - Message and its closed set of Parts (text, function call, function response)
//   - State, the append-only conversation log owned by a single run
//   - Agent, the interface implemented by every worker
//   - ToolContext, the scoped surface handed to tool implementations
//   - Limiter, a step budget used for cycle and round guards
//
// Concrete agents, model providers and persistence live in other packages so
// that core stays dependency-light.
package core
