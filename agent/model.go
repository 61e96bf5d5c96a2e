package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/metrics"
	"github.com/hupe1980/agentdesk/model"
	"github.com/hupe1980/agentdesk/tool"
)

// DefaultMaxRounds bounds the model/tool exchanges of a single invocation.
const DefaultMaxRounds = 10

// ErrEmptyInput is returned when a worker is invoked without a task message.
var ErrEmptyInput = errors.New("agent: input state is empty")

// ModelAgentOptions configures a ModelAgent instance.
type ModelAgentOptions struct {
	Description string
	Instruction Instruction
	Tools       []tool.Tool
	// MaxRounds caps model calls per invocation. When reached, the agent
	// answers with a diagnostic listing the tool calls it made; calls
	// requested by the final model reply are listed but not run.
	MaxRounds int
	Logger    logging.Logger
	Metrics   *metrics.Metrics
	// Now is the clock used for the {{.now}} template variable.
	Now func() time.Time
}

// ModelAgent is a worker that pairs a language model with a fixed tool set.
//
// Given a state slice it prepends its instruction, calls the model, executes
// requested tools and feeds the results back until the model answers
// without tool calls or MaxRounds is reached. A ModelAgent holds no per-run
// state and may be shared by concurrent runs.
type ModelAgent struct {
	BaseAgent
	llm         model.Model
	instruction Instruction
	tools       *tool.Set
	maxRounds   int
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewModelAgent creates a worker bound to llm. Tool names must be unique.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) (*ModelAgent, error) {
	opts := ModelAgentOptions{
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a helpful assistant.", name)),
		MaxRounds:   DefaultMaxRounds,
		Logger:      logging.NoOpLogger{},
		Now:         time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if llm == nil {
		return nil, fmt.Errorf("agent %s: model is required", name)
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	tools, err := tool.NewSet(opts.Tools...)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}

	base := NewBaseAgent(name)
	if opts.Description != "" {
		base.SetDescription(opts.Description)
	}

	return &ModelAgent{
		BaseAgent:   base,
		llm:         llm,
		instruction: opts.Instruction,
		tools:       tools,
		maxRounds:   opts.MaxRounds,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		now:         opts.Now,
	}, nil
}

// Tools returns the names of the tools available to the agent.
func (a *ModelAgent) Tools() []string { return a.tools.Names() }

// Invoke runs the tool loop over input and returns input extended with the
// agent's private exchange. The last message of the result is the answer.
func (a *ModelAgent) Invoke(ctx context.Context, input core.State) (core.State, error) {
	if input.Len() == 0 {
		return core.State{}, ErrEmptyInput
	}

	instructions, err := a.instruction.Render(ctx, a.now(), map[string]any{"agent": a.Name()})
	if err != nil {
		return core.State{}, fmt.Errorf("agent %s: render instruction: %w", a.Name(), err)
	}

	logger := logging.With(a.logger, "agent", a.Name(), "run_id", core.RunIDFromContext(ctx))
	state := input
	defs := a.tools.Definitions()

	var executed, pending []string

	for round := 1; round <= a.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return core.State{}, err
		}

		resp, err := model.GenerateOnce(ctx, a.llm, model.Request{
			Instructions: instructions,
			Messages:     state.Messages(),
			Tools:        defs,
		})
		if err != nil {
			logger.Error("agent.model.error", "round", round, "error", err.Error())
			return core.State{}, fmt.Errorf("agent %s: model call failed: %w", a.Name(), err)
		}

		reply := resp.Message
		reply.Role = core.RoleAssistant
		reply.Name = a.Name()
		state = state.Append(reply)

		calls := reply.FunctionCalls()
		if len(calls) == 0 {
			logger.Debug("agent.invoke.complete", "rounds", round)
			return state, nil
		}

		// The model would never see results of the last round, so those
		// calls are reported instead of run.
		if round == a.maxRounds {
			for _, fc := range calls {
				pending = append(pending, describeCall(fc))
			}
			break
		}

		for _, fc := range calls {
			msg := a.executeCall(ctx, logger, fc)
			state = state.Append(msg)
			executed = append(executed, describeCall(fc)+" -> "+describeOutcome(msg))
		}
	}

	logger.Warn("agent.rounds.exhausted", "max_rounds", a.maxRounds, "executed", len(executed), "not_run", len(pending))

	diag := core.NewAssistantMessage(roundLimitReport(a.maxRounds, executed, pending))
	diag.Name = a.Name()

	return state.Append(diag), nil
}

const maxOutcomeLen = 400

// roundLimitReport tells the supervisor which side effects already happened
// so it does not repeat them.
func roundLimitReport(maxRounds int, executed, pending []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "I could not complete the task within %d tool rounds.", maxRounds)

	if len(executed) > 0 {
		sb.WriteString("\nTool calls already made:")
		for _, line := range executed {
			sb.WriteString("\n- " + line)
		}
	} else {
		sb.WriteString("\nNo tool calls were made.")
	}

	if len(pending) > 0 {
		sb.WriteString("\nRequested but not run:")
		for _, line := range pending {
			sb.WriteString("\n- " + line)
		}
	}

	return sb.String()
}

func describeCall(fc core.FunctionCall) string {
	args := fc.Arguments
	if args == "" || args == "null" {
		args = "{}"
	}
	return fmt.Sprintf("%s(%s)", fc.Name, args)
}

func describeOutcome(msg core.Message) string {
	for _, fr := range msg.FunctionResponses() {
		if fr.Error != "" {
			return "error: " + fr.Error
		}
		data, err := json.Marshal(fr.Response)
		if err != nil {
			return fmt.Sprintf("%v", fr.Response)
		}
		out := string(data)
		if len(out) > maxOutcomeLen {
			out = out[:maxOutcomeLen] + "..."
		}
		return out
	}
	return ""
}

// executeCall runs one function call and always yields a function response
// message. Unknown tools, bad arguments, tool errors and panics are all
// reported back to the model as the response's error.
func (a *ModelAgent) executeCall(ctx context.Context, logger logging.Logger, fc core.FunctionCall) core.Message {
	start := time.Now()

	result, err := a.callTool(ctx, logger, fc)

	a.metrics.ToolCall(fc.Name, err)
	logger.Info(
		"agent.function.executed",
		"function", fc.Name,
		"function_call_id", fc.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	return core.NewFunctionResponseMessage(fc.ID, fc.Name, result, err)
}

func (a *ModelAgent) callTool(ctx context.Context, logger logging.Logger, fc core.FunctionCall) (result any, err error) {
	t, ok := a.tools.Get(fc.Name)
	if !ok {
		return nil, tool.NewToolError(fc.Name, fmt.Sprintf("unknown tool %q", fc.Name), tool.CodeNotFound)
	}

	args := map[string]any{}
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
			return nil, tool.NewToolError(fc.Name, fmt.Sprintf("invalid JSON arguments: %v", err), tool.CodeValidation)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("agent.function.panic", "function", fc.Name, "recover", r, "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	toolCtx := core.NewToolContext(ctx, fc.ID, func(o *core.ToolContextOptions) {
		o.RunID = core.RunIDFromContext(ctx)
		o.AgentName = a.Name()
		o.Logger = logger
	})

	return t.Call(toolCtx, args)
}
