package agentdesk

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/agentdesk/agent"
	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/metrics"
	"github.com/hupe1980/agentdesk/model"
	"github.com/hupe1980/agentdesk/session"
	"github.com/hupe1980/agentdesk/supervisor"
	"github.com/hupe1980/agentdesk/tool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const agentsYAML = `
- name: supervisor
  system_prompt: You route requests between the task and notes workers.
- name: google_tasks
  description: Manages task lists
  system_prompt: You manage task lists.
- name: notes
  system_prompt: You keep notes.
`

func taskTools() ([]tool.Tool, error) {
	return []tool.Tool{
		tool.MustTypedTool("list_task_lists", "List all task lists.", func(_ *core.ToolContext, _ struct{}) (any, error) {
			return []string{"Groceries", "Work"}, nil
		}),
	}, nil
}

func newDesk(t *testing.T, llm model.Model, optFns ...func(o *Options)) *Desk {
	t.Helper()

	fns := append([]func(o *Options){func(o *Options) {
		o.AgentsYAML = []byte(agentsYAML)
		o.Tools = map[string]ToolProvider{"google_tasks": taskTools}
	}}, optFns...)

	desk, err := New(llm, fns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = desk.Close() })

	return desk
}

func TestDesk_Workers(t *testing.T) {
	desk := newDesk(t, model.NewMockModel("m", "mock"))

	assert.Equal(t, []string{"google_tasks", "notes"}, desk.Workers().Names())

	w, ok := desk.Workers().Get("google_tasks")
	require.True(t, ok)
	assert.Equal(t, []string{"list_task_lists"}, w.(*agent.ModelAgent).Tools())

	def, ok := desk.Workers().Definition("supervisor")
	require.True(t, ok)
	assert.Contains(t, def.SystemPrompt, "You route requests")
}

func TestDesk_AskRoutesAndPersists(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(map[string]string{"next": "google_tasks", "reason": "list all task lists"})
	llm.EnqueueToolCall("c1", "list_task_lists", map[string]any{})
	llm.EnqueueText("Your lists are Groceries and Work.")
	llm.EnqueueJSON(map[string]string{"next": supervisor.Terminal, "reason": "You have two lists: Groceries and Work."})

	desk := newDesk(t, llm)
	ctx := context.Background()

	res, err := desk.Ask(ctx, "s1", "list my task lists")
	require.NoError(t, err)

	assert.Equal(t, "You have two lists: Groceries and Work.", res.Answer)
	assert.Equal(t, supervisor.TerminationSupervisor, res.Reason)
	assert.Equal(t, 2, res.Cycles)
	assert.Equal(t, 1, res.WorkerCalls)

	first := llm.Requests()[0]
	assert.Contains(t, first.Instructions, "You route requests between the task and notes workers.")
	assert.Contains(t, first.Instructions, "Available workers: google_tasks, notes.")

	worker := llm.Requests()[1]
	assert.Equal(t, "You manage task lists.", worker.Instructions)
	require.Len(t, worker.Messages, 1)
	assert.Equal(t, "list all task lists", worker.Messages[0].Text())

	msgs, err := desk.Store().Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t, "supervisor", msgs[1].Author())
	assert.Equal(t, "google_tasks", msgs[2].Author())
	assert.Equal(t, "Your lists are Groceries and Work.", msgs[2].Text())
	assert.Equal(t, res.Answer, msgs[3].Text())
}

func TestDesk_AskResumesSession(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(map[string]string{"next": supervisor.Terminal, "reason": "Hello!"})
	llm.EnqueueJSON(map[string]string{"next": supervisor.Terminal, "reason": "Still here."})

	store := session.NewInMemoryStore()
	desk := newDesk(t, llm, func(o *Options) { o.Store = store })
	ctx := context.Background()

	_, err := desk.Ask(ctx, "s1", "hi")
	require.NoError(t, err)
	res, err := desk.Ask(ctx, "s1", "are you there?")
	require.NoError(t, err)
	assert.Equal(t, "Still here.", res.Answer)

	second := llm.Requests()[1]
	require.Len(t, second.Messages, 3)
	assert.Equal(t, "hi", second.Messages[0].Text())
	assert.Equal(t, "Hello!", second.Messages[1].Text())
	assert.Equal(t, "are you there?", second.Messages[2].Text())

	assert.Len(t, res.Messages, 1, "result holds only this run's messages")

	msgs, _ := store.Messages(ctx, "s1")
	assert.Len(t, msgs, 4)
}

func TestDesk_AskValidatesInput(t *testing.T) {
	desk := newDesk(t, model.NewMockModel("m", "mock"))

	_, err := desk.Ask(context.Background(), "", "hi")
	assert.ErrorIs(t, err, session.ErrEmptySessionID)

	_, err = desk.Ask(context.Background(), "s1", "")
	assert.ErrorIs(t, err, agent.ErrEmptyInput)
}

func TestDesk_RetriesTransientModelErrors(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueError(model.NewProviderError("mock", 429, errors.New("quota")))
	llm.EnqueueError(model.NewProviderError("mock", 503, errors.New("unavailable")))
	llm.EnqueueJSON(map[string]string{"next": supervisor.Terminal, "reason": "done"})

	var waits []time.Duration
	m := metrics.New()
	desk := newDesk(t, llm, func(o *Options) {
		o.Metrics = m
		o.RetryCooldown = 30 * time.Second
		o.RetrySleep = func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}
	})

	res, err := desk.Ask(context.Background(), "s1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Answer)
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, waits)

	expected := `
# HELP agentdesk_model_retries_total Model calls retried after a transient failure.
# TYPE agentdesk_model_retries_total counter
agentdesk_model_retries_total{model="m"} 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "agentdesk_model_retries_total"))
}

func TestDesk_RetryBudgetExceeded(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	for i := 0; i < 3; i++ {
		llm.EnqueueError(model.NewProviderError("mock", 429, errors.New("quota")))
	}

	desk := newDesk(t, llm, func(o *Options) {
		o.RetryAttempts = 3
		o.RetrySleep = func(context.Context, time.Duration) error { return nil }
	})

	_, err := desk.Ask(context.Background(), "s1", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRetriesExhausted)
	assert.Equal(t, 3, llm.Calls())
}

func TestDesk_FailingToolProviderSkipsWorker(t *testing.T) {
	desk := newDesk(t, model.NewMockModel("m", "mock"), func(o *Options) {
		o.Tools = map[string]ToolProvider{
			"google_tasks": func() ([]tool.Tool, error) { return nil, errors.New("no credentials") },
		}
	})

	assert.Equal(t, []string{"notes"}, desk.Workers().Names())

	skipped := desk.Workers().Skipped()
	require.Len(t, skipped, 1)
	assert.Equal(t, "google_tasks", skipped[0].Name)
	assert.Contains(t, skipped[0].Reason, "no credentials")
}

func TestDesk_SessionLocksAreReleased(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(map[string]string{"next": supervisor.Terminal, "reason": "one"})
	llm.EnqueueJSON(map[string]string{"next": supervisor.Terminal, "reason": "two"})

	desk := newDesk(t, llm)
	ctx := context.Background()

	_, err := desk.Ask(ctx, "s1", "hi")
	require.NoError(t, err)
	_, err = desk.Ask(ctx, "s2", "hi")
	require.NoError(t, err)

	desk.locksMu.Lock()
	assert.Empty(t, desk.locks)
	desk.locksMu.Unlock()
}

func TestDesk_SessionLockSerializesWaiters(t *testing.T) {
	desk := newDesk(t, model.NewMockModel("m", "mock"))

	unlock := desk.lock("s1")

	acquired := make(chan func())
	go func() { acquired <- desk.lock("s1") }()

	require.Eventually(t, func() bool {
		desk.locksMu.Lock()
		defer desk.locksMu.Unlock()
		return desk.locks["s1"] != nil && desk.locks["s1"].refs == 2
	}, time.Second, time.Millisecond)

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held session lock")
	default:
	}

	unlock()
	unlockSecond := <-acquired

	desk.locksMu.Lock()
	assert.Len(t, desk.locks, 1, "entry kept while held")
	desk.locksMu.Unlock()

	unlockSecond()

	desk.locksMu.Lock()
	assert.Empty(t, desk.locks)
	desk.locksMu.Unlock()
}

func TestNew_BrokenSupervisorPromptIsSkipped(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueJSON(map[string]string{"next": supervisor.Terminal, "reason": "ok"})

	desk := newDesk(t, llm, func(o *Options) {
		o.AgentsYAML = []byte(`
- name: supervisor
  system_prompt: "Route with {{title .workers}}"
- name: notes
  system_prompt: You keep notes.
`)
	})

	skipped := desk.Workers().Skipped()
	require.Len(t, skipped, 1)
	assert.Equal(t, "supervisor", skipped[0].Name)
	assert.Contains(t, skipped[0].Reason, "invalid system_prompt template")

	_, err := desk.Ask(context.Background(), "s1", "hi")
	require.NoError(t, err)
	assert.NotContains(t, llm.Requests()[0].Instructions, "Route with")
}

func TestNew_NoWorkers(t *testing.T) {
	_, err := New(model.NewMockModel("m", "mock"), func(o *Options) {
		o.AgentsFile = "does-not-exist.yaml"
	})
	assert.ErrorIs(t, err, ErrNoWorkers)

	_, err = New(nil)
	assert.Error(t, err)
}
