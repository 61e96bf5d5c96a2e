package agent

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/model"
	"github.com/hupe1980/agentdesk/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const agentsYAML = `
- name: supervisor
  system_prompt: 'You route requests. Workers: {{join ", " .workers}}'
- name: enhancer
  system_prompt: You refine requests.
- name: google_tasks
  description: Manages Google Tasks
  system_prompt: You manage task lists.
- name: broken
- system_prompt: no name here
- name: google_calendar
  system_prompt: You manage calendars.
- name: google_tasks
  system_prompt: duplicate
- just a string
`

func TestRegistry_LoadDegradesGracefully(t *testing.T) {
	reg := NewRegistry(model.NewMockModel("m", "mock"))
	agents := reg.Load([]byte(agentsYAML), "agents.yaml")

	assert.Equal(t, []string{"enhancer", "google_tasks", "google_calendar"}, agents.Names())
	assert.Equal(t, 3, agents.Len())

	_, ok := agents.Get("supervisor")
	assert.False(t, ok, "supervisor is not a worker")

	def, ok := agents.Definition("supervisor")
	require.True(t, ok)
	assert.Contains(t, def.SystemPrompt, "You route requests")

	tasks, ok := agents.Get("google_tasks")
	require.True(t, ok)
	assert.Equal(t, "Manages Google Tasks", tasks.Description())

	skipped := agents.Skipped()
	require.Len(t, skipped, 4)
	assert.Equal(t, "broken", skipped[0].Name)
	assert.Contains(t, skipped[0].Reason, "system_prompt")
	assert.Contains(t, skipped[1].Reason, "name")
	assert.Contains(t, skipped[2].Reason, "duplicate")
	assert.Contains(t, skipped[3].Reason, "mapping")
}

func TestRegistry_SkipsBrokenPromptTemplates(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	reg := NewRegistry(llm)

	agents := reg.Load([]byte(`
- name: google_tasks
  system_prompt: "Reply using {{title}} placeholders"
- name: google_calendar
  system_prompt: "Today is {{.now}}. Open {{if .agent}}"
- name: notes
  system_prompt: "You are {{upper .agent}}."
`), "agents.yaml")

	assert.Equal(t, []string{"notes"}, agents.Names())

	skipped := agents.Skipped()
	require.Len(t, skipped, 2)
	assert.Equal(t, "google_tasks", skipped[0].Name)
	assert.Contains(t, skipped[0].Reason, "invalid system_prompt template")
	assert.Contains(t, skipped[0].Reason, `function "title" not defined`)
	assert.Equal(t, "google_calendar", skipped[1].Name)
	assert.Zero(t, llm.Calls())
}

func TestRegistry_FactoriesByName(t *testing.T) {
	reg := NewRegistry(model.NewMockModel("m", "mock"))

	n := 0
	reg.Register("google_tasks", ToolFactory([]tool.Tool{taskListsTool(&n)}))
	reg.Register("google_calendar", func(def Definition, _ model.Model) (core.Agent, error) {
		return nil, errors.New("no credentials")
	})

	agents := reg.Load([]byte(agentsYAML), "agents.yaml")

	assert.Equal(t, []string{"enhancer", "google_tasks"}, agents.Names())

	tasks, _ := agents.Get("google_tasks")
	ma, ok := tasks.(*ModelAgent)
	require.True(t, ok)
	assert.Equal(t, []string{"list_task_lists"}, ma.Tools())

	enhancer, _ := agents.Get("enhancer")
	assert.Empty(t, enhancer.(*ModelAgent).Tools())

	var reasons []string
	for _, d := range agents.Skipped() {
		reasons = append(reasons, d.Reason)
	}
	assert.Contains(t, reasons, "no credentials")
}

func TestRegistry_MalformedSource(t *testing.T) {
	reg := NewRegistry(model.NewMockModel("m", "mock"))

	agents := reg.Load([]byte("name: not-a-list"), "agents.yaml")
	assert.Zero(t, agents.Len())
	require.Len(t, agents.Skipped(), 1)
	assert.Equal(t, -1, agents.Skipped()[0].Index)

	agents = reg.Load([]byte("- [unclosed"), "agents.yaml")
	assert.Zero(t, agents.Len())
	assert.Contains(t, agents.Skipped()[0].Reason, "parse error")
}

func TestRegistry_LoadFile(t *testing.T) {
	reg := NewRegistry(model.NewMockModel("m", "mock"))

	missing := reg.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Zero(t, missing.Len())
	assert.Len(t, missing.Skipped(), 1)

	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(agentsYAML), 0o600))

	agents := reg.LoadFile(path)
	assert.Equal(t, 3, agents.Len())
	assert.Equal(t, path, agents.Skipped()[0].Source)
}

func TestNewAgents(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	a, err := NewModelAgent("a", llm)
	require.NoError(t, err)
	b, err := NewModelAgent("b", llm)
	require.NoError(t, err)

	agents := NewAgents(a, b, a)
	assert.Equal(t, []string{"a", "b"}, agents.Names())
	assert.Len(t, agents.List(), 2)

	var nilAgents *Agents
	assert.Zero(t, nilAgents.Len())
	assert.Nil(t, nilAgents.Names())
}
