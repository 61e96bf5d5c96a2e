package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hupe1980/agentdesk/agent"
	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/model"
	"github.com/hupe1980/agentdesk/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingAgent is a scripted worker that records every input slice.
type recordingAgent struct {
	name   string
	answer func(input core.State) (string, error)
	inputs []core.State
}

func (a *recordingAgent) Name() string        { return a.name }
func (a *recordingAgent) Description() string { return "test worker " + a.name }

func (a *recordingAgent) Invoke(_ context.Context, input core.State) (core.State, error) {
	a.inputs = append(a.inputs, input)
	text, err := a.answer(input)
	if err != nil {
		return core.State{}, err
	}
	return input.Append(core.NewAssistantMessage(text)), nil
}

func echoWorker(name string) *recordingAgent {
	return &recordingAgent{name: name, answer: func(in core.State) (string, error) {
		last, _ := in.LastMessage()
		return name + " did: " + last.Text(), nil
	}}
}

func decide(next, reason string) map[string]string {
	return map[string]string{"next": next, "reason": reason}
}

func newGraph(t *testing.T, llm model.Model, workers []core.Agent, optFns ...func(o *GraphOptions)) *Graph {
	t.Helper()
	agents := agent.NewAgents(workers...)
	node, err := NewNode(llm, agents.Names())
	require.NoError(t, err)
	g, err := NewGraph(node, agents, optFns...)
	require.NoError(t, err)
	return g
}

// -------------------- Node Tests --------------------

func TestNode_SchemaEnum(t *testing.T) {
	node, err := NewNode(model.NewMockModel("m", "mock"), []string{"enhancer", "google_tasks"}, func(o *NodeOptions) {
		o.Descriptions = map[string]string{"google_tasks": "manages Google Tasks"}
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"enhancer", "google_tasks", Terminal}, node.Destinations())

	props := node.Schema()["properties"].(map[string]any)
	next := props["next"].(map[string]any)
	assert.Equal(t, []any{"enhancer", "google_tasks", Terminal}, next["enum"])
	assert.Contains(t, next["description"], "manages Google Tasks")
	assert.Contains(t, props, "reason")
}

func TestNode_InvalidWorkers(t *testing.T) {
	llm := model.NewMockModel("m", "mock")

	_, err := NewNode(llm, []string{"a", "a"})
	assert.Error(t, err)

	_, err = NewNode(llm, []string{Terminal})
	assert.Error(t, err)

	_, err = NewNode(nil, []string{"a"})
	assert.Error(t, err)
}

func TestNode_DecideSendsFullStateAndInstruction(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(decide("google_tasks", "list all task lists"))

	node, err := NewNode(llm, []string{"google_tasks"}, func(o *NodeOptions) {
		o.Instruction = agent.NewInstructionFromText("Route to: {{join \", \" .workers}}")
	})
	require.NoError(t, err)

	state := core.NewState(
		core.NewUserMessage("list my task lists"),
		core.NewAgentMessage("google_calendar", "earlier result"),
	)
	d, err := node.Decide(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, Decision{Next: "google_tasks", Reason: "list all task lists"}, d)

	req := llm.Requests()[0]
	assert.Equal(t, "Route to: google_tasks", req.Instructions)
	assert.Len(t, req.Messages, 2)
	require.NotNil(t, req.ResponseSchema)
	assert.Equal(t, "route", req.ResponseSchema.Name)
}

func TestNode_UnknownDestinationIsFatal(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(decide("google_drive", "x"))

	node, err := NewNode(llm, []string{"google_tasks"})
	require.NoError(t, err)

	_, err = node.Decide(context.Background(), core.NewState(core.NewUserMessage("hi")))
	assert.ErrorIs(t, err, ErrUnknownDestination)
}

func TestNode_MalformedDecision(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueText("I think google_tasks")

	node, err := NewNode(llm, []string{"google_tasks"})
	require.NoError(t, err)

	_, err = node.Decide(context.Background(), core.NewState(core.NewUserMessage("hi")))
	assert.ErrorIs(t, err, ErrMalformedDecision)
}

func TestNode_EmptyTaskIsMalformed(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(decide("google_tasks", "   "))
	llm.EnqueueJSON(decide(Terminal, ""))

	node, err := NewNode(llm, []string{"google_tasks"})
	require.NoError(t, err)

	state := core.NewState(core.NewUserMessage("hi"))

	_, err = node.Decide(context.Background(), state)
	assert.ErrorIs(t, err, ErrMalformedDecision)

	d, err := node.Decide(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, Terminal, d.Next)
}

func TestNode_FencedJSON(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueText("```json\n{\"next\": \"__end__\", \"reason\": \"done\"}\n```")

	node, err := NewNode(llm, nil)
	require.NoError(t, err)

	d, err := node.Decide(context.Background(), core.NewState(core.NewUserMessage("hi")))
	require.NoError(t, err)
	assert.True(t, d.IsTerminal())
	assert.Equal(t, "done", d.Reason)
}

func TestNode_EnhancerGetsOriginalRequest(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(decide("enhancer", "Refine the request into steps."))
	llm.EnqueueJSON(decide("google_tasks", "Create task 'Buy milk'."))

	node, err := NewNode(llm, []string{"enhancer", "google_tasks"})
	require.NoError(t, err)

	state := core.NewState(core.NewUserMessage("add buy milk to my list and block time tomorrow"))

	d, err := node.Decide(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(d.Reason, "Refine the request into steps."))
	assert.Contains(t, d.Reason, "add buy milk to my list and block time tomorrow")

	d, err = node.Decide(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "Create task 'Buy milk'.", d.Reason, "other workers get the filtered task only")
}

func TestNode_ModelErrorIsWrapped(t *testing.T) {
	boom := model.NewProviderError("gemini", 500, errors.New("internal"))
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueError(boom)

	node, err := NewNode(llm, nil)
	require.NoError(t, err)

	_, err = node.Decide(context.Background(), core.NewState(core.NewUserMessage("hi")))
	assert.ErrorIs(t, err, boom)
}

// -------------------- Graph Tests --------------------

func TestGraph_TerminatesOnFirstDecision(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(decide(Terminal, "Hello! How can I help?"))

	tasks := echoWorker("google_tasks")
	g := newGraph(t, llm, []core.Agent{tasks})

	res, err := g.Run(context.Background(), core.NewState(core.NewUserMessage("hi")))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Cycles)
	assert.Equal(t, 0, res.WorkerCalls)
	assert.Empty(t, tasks.inputs)
	assert.Equal(t, "Hello! How can I help?", res.Answer)
	assert.Equal(t, TerminationSupervisor, res.Reason)
	assert.NotEmpty(t, res.RunID)
}

func TestGraph_WorkerResultIsLabeledAndSeenBySupervisor(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(decide("google_calendar", "list today's events"))
	llm.Enqueue(func(req model.Request) (model.Response, error) {
		last := req.Messages[len(req.Messages)-1]
		if last.Role != core.RoleAgent || last.Name != "google_calendar" {
			return model.Response{}, fmt.Errorf("unexpected last message %+v", last)
		}
		return model.Response{Message: core.NewAssistantMessage(`{"next":"__end__","reason":"You have one event."}`)}, nil
	})

	g := newGraph(t, llm, []core.Agent{echoWorker("google_calendar")})

	res, err := g.Run(context.Background(), core.NewState(core.NewUserMessage("what's on today?")))
	require.NoError(t, err)
	assert.Equal(t, "You have one event.", res.Answer)

	msgs := res.State.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, Name, msgs[1].Name)
	assert.Equal(t, "google_calendar", msgs[2].Name)
	assert.Equal(t, "google_calendar did: list today's events", msgs[2].Text())
	assert.Equal(t, res.State.Messages()[1:], res.Messages)
}

func TestGraph_WorkersOnlySeeTheirTask(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(decide("google_tasks", "get task 'report'"))
	llm.EnqueueJSON(decide("google_calendar", "create event 'report' at 3pm"))
	llm.EnqueueJSON(decide(Terminal, "done"))

	tasks := echoWorker("google_tasks")
	cal := echoWorker("google_calendar")
	g := newGraph(t, llm, []core.Agent{tasks, cal})

	res, err := g.Run(context.Background(), core.NewState(core.NewUserMessage("put my report task on the calendar")))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Cycles)
	assert.Equal(t, 2, res.WorkerCalls)

	require.Len(t, tasks.inputs, 1)
	require.Equal(t, 1, tasks.inputs[0].Len())
	in, _ := tasks.inputs[0].LastMessage()
	assert.Equal(t, "get task 'report'", in.Text())

	require.Len(t, cal.inputs, 1)
	require.Equal(t, 1, cal.inputs[0].Len())
	in, _ = cal.inputs[0].LastMessage()
	assert.Equal(t, "create event 'report' at 3pm", in.Text())
	assert.NotContains(t, in.Text(), "google_tasks did")
}

func TestGraph_AppendOnly(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(decide("google_tasks", "a"))
	llm.EnqueueJSON(decide("google_tasks", "b"))
	llm.EnqueueJSON(decide(Terminal, "c"))

	input := core.NewState(core.NewUserMessage("go"))
	g := newGraph(t, llm, []core.Agent{echoWorker("google_tasks")})

	res, err := g.Run(context.Background(), input)
	require.NoError(t, err)

	// the supervisor's view of the state at each cycle
	var snapshots [][]core.Message
	for _, req := range llm.Requests() {
		snapshots = append(snapshots, req.Messages)
	}
	require.Len(t, snapshots, 3)
	for i := 1; i < len(snapshots); i++ {
		prev, cur := snapshots[i-1], snapshots[i]
		require.GreaterOrEqual(t, len(cur), len(prev))
		for j := range prev {
			assert.Equal(t, prev[j].ID, cur[j].ID)
			assert.Equal(t, prev[j].Text(), cur[j].Text())
		}
	}

	assert.Equal(t, 1, input.Len(), "caller's state is never mutated")
	assert.Equal(t, 6, res.State.Len())
}

func TestGraph_ScenarioListTaskLists(t *testing.T) {
	listCalls := 0
	listTool := tool.MustTypedTool("list_task_lists", "List all task lists", func(_ *core.ToolContext, _ struct{}) (any, error) {
		listCalls++
		return []map[string]string{{"id": "1", "title": "Groceries"}, {"id": "2", "title": "Work"}}, nil
	})

	workerLLM := model.NewMockModel("worker", "mock")
	workerLLM.EnqueueToolCall("call-1", "list_task_lists", map[string]any{})
	workerLLM.Enqueue(func(req model.Request) (model.Response, error) {
		fr := req.Messages[len(req.Messages)-1].FunctionResponses()[0]
		lists := fr.Response.([]map[string]string)
		return model.Response{Message: core.NewAssistantMessage(
			fmt.Sprintf("Found task lists: %s, %s", lists[0]["title"], lists[1]["title"]))}, nil
	})

	tasks, err := agent.NewModelAgent("google_tasks", workerLLM, func(o *agent.ModelAgentOptions) {
		o.Tools = []tool.Tool{listTool}
	})
	require.NoError(t, err)

	supLLM := model.NewMockModel("supervisor", "mock")
	supLLM.EnqueueJSON(decide("google_tasks", "list all task lists"))
	supLLM.Enqueue(func(req model.Request) (model.Response, error) {
		last := req.Messages[len(req.Messages)-1]
		return model.Response{Message: core.NewAssistantMessage(fmt.Sprintf(
			`{"next":"__end__","reason":"You have two task lists. %s"}`, last.Text()))}, nil
	})

	g := newGraph(t, supLLM, []core.Agent{tasks})

	res, err := g.Run(context.Background(), core.NewState(core.NewUserMessage("list my task lists")))
	require.NoError(t, err)

	assert.Equal(t, 1, listCalls)
	assert.Equal(t, 2, res.Cycles)
	assert.Equal(t, 1, res.WorkerCalls)
	assert.Contains(t, res.Answer, "Groceries")
	assert.Contains(t, res.Answer, "Work")

	workerReq := workerLLM.Requests()[0]
	require.Len(t, workerReq.Messages, 1)
	assert.Equal(t, "list all task lists", workerReq.Messages[0].Text())
}

func TestGraph_MaxCycles(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	for i := 0; i < 10; i++ {
		llm.EnqueueJSON(decide("google_tasks", "again"))
	}

	tasks := echoWorker("google_tasks")
	g := newGraph(t, llm, []core.Agent{tasks}, func(o *GraphOptions) { o.MaxCycles = 3 })

	res, err := g.Run(context.Background(), core.NewState(core.NewUserMessage("loop forever")))
	require.NoError(t, err)

	assert.Equal(t, TerminationMaxCycles, res.Reason)
	assert.Equal(t, 3, res.Cycles)
	assert.Equal(t, 3, llm.Calls())
	assert.Len(t, tasks.inputs, 3)
	assert.Contains(t, res.Answer, "3 supervisor cycles")

	last, _ := res.State.LastMessage()
	assert.Equal(t, Name, last.Name)
	assert.Equal(t, res.Answer, last.Text())
}

func TestGraph_WorkerErrorAbortsRun(t *testing.T) {
	boom := errors.New("model unavailable")
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(decide("google_tasks", "x"))

	failing := &recordingAgent{name: "google_tasks", answer: func(core.State) (string, error) { return "", boom }}
	g := newGraph(t, llm, []core.Agent{failing})

	res, err := g.Run(context.Background(), core.NewState(core.NewUserMessage("hi")))
	assert.ErrorIs(t, err, ErrWorkerFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, res.State.Len(), "state reached so far is returned")
}

func TestGraph_DecisionErrorAbortsRun(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(decide("nobody", "x"))

	g := newGraph(t, llm, []core.Agent{echoWorker("google_tasks")})

	_, err := g.Run(context.Background(), core.NewState(core.NewUserMessage("hi")))
	assert.ErrorIs(t, err, ErrUnknownDestination)
}

func TestGraph_Recorder(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(decide("google_tasks", "task"))
	llm.EnqueueJSON(decide(Terminal, "answer"))

	var recorded []core.Message
	var runIDs []string
	rec := RecorderFunc(func(_ context.Context, runID string, msgs ...core.Message) error {
		runIDs = append(runIDs, runID)
		recorded = append(recorded, msgs...)
		return errors.New("ignored")
	})

	g := newGraph(t, llm, []core.Agent{echoWorker("google_tasks")}, func(o *GraphOptions) {
		o.NewRunID = func() string { return "run-1" }
	})

	res, err := g.Run(context.Background(), core.NewState(core.NewUserMessage("hi")), func(o *RunOptions) {
		o.Recorder = rec
	})
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, res.Messages, recorded)
	for _, id := range runIDs {
		assert.Equal(t, "run-1", id)
	}
}

func TestGraph_CancelledContext(t *testing.T) {
	g := newGraph(t, model.NewMockModel("m", "mock"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Run(ctx, core.NewState(core.NewUserMessage("hi")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewGraph_MissingWorker(t *testing.T) {
	node, err := NewNode(model.NewMockModel("m", "mock"), []string{"google_tasks"})
	require.NoError(t, err)

	_, err = NewGraph(node, agent.NewAgents())
	assert.Error(t, err)
}
