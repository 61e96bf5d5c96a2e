package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentdesk/agent"
	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/internal/util"
	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/metrics"
	"github.com/hupe1980/agentdesk/model"
)

// Terminal is the destination that ends a run.
const Terminal = "__end__"

// DefaultEnhancerName is the worker that receives the original request
// alongside the supervisor's rationale.
const DefaultEnhancerName = "enhancer"

// DefaultInstruction is used when no supervisor preamble is configured.
const DefaultInstruction = `You are a supervisor coordinating these workers: {{join ", " .workers}}.
Current time: {{.now}}.

Break the user's request into subtasks that one worker can complete on its own.
For each turn choose the next worker and put a self-contained, minimally scoped
task for that worker in "reason". Pass only the part of the request relevant to
that worker. Use the results other workers report before delegating again.
When everything is done, or you need more information from the user, choose
"__end__" and put the final message to the user in "reason".`

var (
	// ErrUnknownDestination is returned when the decision model names a
	// destination outside the allowed set. It is a contract violation.
	ErrUnknownDestination = errors.New("supervisor: unknown destination")

	// ErrMalformedDecision is returned when the decision is not valid JSON
	// or routes to a worker without a task.
	ErrMalformedDecision = errors.New("supervisor: malformed decision")
)

// Decision is the structured output of one supervisor turn. Reason is the
// worker task for non-terminal choices and the final answer otherwise.
type Decision struct {
	Next   string `json:"next" jsonschema:"required,description=The next worker or __end__ when the request is complete"`
	Reason string `json:"reason" jsonschema:"required,description=The task for the chosen worker or the final message to the user when next is __end__"`
}

// IsTerminal reports whether the decision ends the run.
func (d Decision) IsTerminal() bool { return d.Next == Terminal }

// NodeOptions configures a Node.
type NodeOptions struct {
	Instruction agent.Instruction
	// EnhancerName names the request-refinement worker. Empty disables
	// re-injection of the original request.
	EnhancerName string
	// Descriptions are rendered into the schema description of "next".
	Descriptions map[string]string
	Logger       logging.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Node asks a decision model for the next destination given the full state.
type Node struct {
	llm          model.Model
	workers      []string
	destinations map[string]bool
	schema       map[string]any
	instruction  agent.Instruction
	enhancer     string
	logger       logging.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewNode creates a decision node routing among workers and Terminal.
func NewNode(llm model.Model, workers []string, optFns ...func(o *NodeOptions)) (*Node, error) {
	opts := NodeOptions{
		Instruction:  agent.NewInstructionFromText(DefaultInstruction),
		EnhancerName: DefaultEnhancerName,
		Logger:       logging.NoOpLogger{},
		Now:          time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Instruction.IsZero() {
		opts.Instruction = agent.NewInstructionFromText(DefaultInstruction)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if llm == nil {
		return nil, fmt.Errorf("supervisor: model is required")
	}

	dests := make(map[string]bool, len(workers)+1)
	for _, w := range workers {
		if w == "" || w == Terminal {
			return nil, fmt.Errorf("supervisor: invalid worker name %q", w)
		}
		if dests[w] {
			return nil, fmt.Errorf("supervisor: duplicate worker name %q", w)
		}
		dests[w] = true
	}
	dests[Terminal] = true

	schema, err := decisionSchema(workers, opts.Descriptions)
	if err != nil {
		return nil, err
	}

	return &Node{
		llm:          llm,
		workers:      append([]string(nil), workers...),
		destinations: dests,
		schema:       schema,
		instruction:  opts.Instruction,
		enhancer:     opts.EnhancerName,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		now:          opts.Now,
	}, nil
}

// Destinations returns the allowed values of Decision.Next, workers first.
func (n *Node) Destinations() []string {
	return append(append([]string(nil), n.workers...), Terminal)
}

// Schema returns the JSON schema sent to the decision model.
func (n *Node) Schema() map[string]any { return n.schema }

// Decide asks the model for the next destination. The whole state is sent,
// preceded by the rendered supervisor instruction.
func (n *Node) Decide(ctx context.Context, state core.State) (Decision, error) {
	instructions, err := n.instruction.Render(ctx, n.now(), map[string]any{"workers": n.workers})
	if err != nil {
		return Decision{}, fmt.Errorf("supervisor: render instruction: %w", err)
	}

	resp, err := model.GenerateOnce(ctx, n.llm, model.Request{
		Instructions: instructions,
		Messages:     state.Messages(),
		ResponseSchema: &model.ResponseSchema{
			Name:        "route",
			Description: "Select the next worker or finish.",
			Schema:      n.schema,
		},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("supervisor: decision model failed: %w", err)
	}

	d, err := parseDecision(resp.Message.Text())
	if err != nil {
		return Decision{}, err
	}

	if !n.destinations[d.Next] {
		n.logger.Error("supervisor.decision.invalid", "next", d.Next, "allowed", n.Destinations())
		return Decision{}, fmt.Errorf("%w: %q (allowed: %s)", ErrUnknownDestination, d.Next, strings.Join(n.Destinations(), ", "))
	}

	// The reason becomes the worker's whole task.
	if d.Next != Terminal && strings.TrimSpace(d.Reason) == "" {
		n.logger.Error("supervisor.decision.invalid", "next", d.Next, "error", "empty reason")
		return Decision{}, fmt.Errorf("%w: empty reason for worker %q", ErrMalformedDecision, d.Next)
	}

	if n.enhancer != "" && d.Next == n.enhancer {
		d.Reason = withOriginalRequest(d.Reason, state)
	}

	n.metrics.Decision(d.Next)
	n.logger.Info("supervisor.decision", "run_id", core.RunIDFromContext(ctx), "next", d.Next, "state_version", state.Version())

	return d, nil
}

// withOriginalRequest appends the latest user message to reason unless the
// reason already quotes it. Earlier user turns of a resumed session are
// already answered.
func withOriginalRequest(reason string, state core.State) string {
	orig, ok := state.LastByRole(core.RoleUser)
	if !ok {
		return reason
	}
	text := strings.TrimSpace(orig.Text())
	if text == "" || strings.Contains(reason, text) {
		return reason
	}
	return fmt.Sprintf("%s\n\nOriginal user request:\n%s", reason, text)
}

func parseDecision(text string) (Decision, error) {
	text = strings.TrimSpace(text)
	// some providers wrap JSON output in a markdown fence
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}

	var d Decision
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}
	d.Next = strings.TrimSpace(d.Next)

	return d, nil
}

// decisionSchema reflects Decision and constrains "next" to the workers
// plus Terminal.
func decisionSchema(workers []string, descriptions map[string]string) (map[string]any, error) {
	schema, err := util.ReflectSchema[Decision]()
	if err != nil {
		return nil, fmt.Errorf("supervisor: decision schema: %w", err)
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("supervisor: decision schema has no properties")
	}
	next, ok := props["next"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("supervisor: decision schema has no next property")
	}

	enum := make([]any, 0, len(workers)+1)
	for _, w := range workers {
		enum = append(enum, w)
	}
	enum = append(enum, Terminal)
	next["enum"] = enum

	if len(descriptions) > 0 {
		var b strings.Builder
		b.WriteString("Select the next worker:")
		for _, w := range workers {
			if desc := descriptions[w]; desc != "" {
				fmt.Fprintf(&b, " '%s' (%s),", w, desc)
			} else {
				fmt.Fprintf(&b, " '%s',", w)
			}
		}
		fmt.Fprintf(&b, " or '%s' (request complete).", Terminal)
		next["description"] = b.String()
	}

	return schema, nil
}
