package core

import (
	"context"

	"github.com/hupe1980/agentdesk/logging"
)

// ToolContext is the constrained surface handed to tool implementations. It
// exposes the call's context, correlation ids and a logger but no access to
// the shared conversation.
type ToolContext struct {
	ctx            context.Context
	runID          string
	functionCallID string
	agentName      string

	*loggerAdapter
}

// ToolContextOptions configures a ToolContext.
type ToolContextOptions struct {
	RunID     string
	AgentName string
	Logger    logging.Logger
}

// NewToolContext constructs a tool context for a single function call.
func NewToolContext(ctx context.Context, functionCallID string, optFns ...func(o *ToolContextOptions)) *ToolContext {
	opts := ToolContextOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &ToolContext{
		ctx:            ctx,
		runID:          opts.RunID,
		functionCallID: functionCallID,
		agentName:      opts.AgentName,
		loggerAdapter:  newLoggerAdapter(opts.Logger),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// RunID returns the orchestration run the call belongs to, if any.
func (tc *ToolContext) RunID() string { return tc.runID }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the name of the agent executing the tool.
func (tc *ToolContext) AgentName() string { return tc.agentName }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

type runIDKey struct{}

// ContextWithRunID returns a copy of ctx carrying the orchestration run id.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run id stored by ContextWithRunID, if any.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
