// Package logging provides a minimal logging interface and adapters for agentdesk.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that the supervisor, workers and tools use for observability. Arguments
// are key/value pairs in the log/slog convention. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "json"})
//	graph := supervisor.NewGraph(node, workers, func(o *supervisor.GraphOptions) { o.Logger = logger })
//
// Event names are dotted and lower-case ("supervisor.decision",
// "tool.call.error") so they can be filtered without parsing messages.
package logging
