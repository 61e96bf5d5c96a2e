// Package model defines the provider-agnostic model abstraction used by the
// supervisor and its workers.
//
//   - Model hides streaming and non-streaming generation behind one call
//   - ToolDefinition and core.FunctionCall normalize tool calling across vendors
//   - ResponseSchema asks a provider for structured JSON output
//   - RetryModel adds a bounded cooldown retry around any Model
//   - MockModel scripts responses for tests
//
// Providers (gemini, openai, anthropic) live in subpackages so higher layers
// stay decoupled from vendor SDKs.
package model
