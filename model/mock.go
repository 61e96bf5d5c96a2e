package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/agentdesk/core"
)

// MockStep produces the outcome of one scripted Generate call.
type MockStep func(req Request) (Response, error)

// MockModel is a lightweight in-memory Model useful for tests and examples.
//
// Scripted steps (Enqueue*) are consumed in FIFO order, one per Generate
// call. When the script is empty the model falls back to canned answers
// keyed by the text of the last message, then to an echo. Every request is
// recorded for later assertions.
type MockModel struct {
	info      Info
	mu        sync.Mutex
	responses map[string]string
	script    []MockStep
	requests  []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Enqueue appends a scripted step.
func (m *MockModel) Enqueue(steps ...MockStep) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, steps...)
	return m
}

// EnqueueText scripts a final text answer.
func (m *MockModel) EnqueueText(text string) *MockModel {
	return m.Enqueue(func(Request) (Response, error) {
		return Response{Message: core.NewAssistantMessage(text), FinishReason: "stop"}, nil
	})
}

// EnqueueJSON scripts a structured answer by marshalling v.
func (m *MockModel) EnqueueJSON(v any) *MockModel {
	return m.Enqueue(func(Request) (Response, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return Response{}, err
		}
		return Response{Message: core.NewAssistantMessage(string(data)), FinishReason: "stop"}, nil
	})
}

// EnqueueToolCall scripts a response requesting a single tool invocation.
func (m *MockModel) EnqueueToolCall(id, name string, args map[string]any) *MockModel {
	return m.Enqueue(func(Request) (Response, error) {
		data, err := json.Marshal(args)
		if err != nil {
			return Response{}, err
		}
		msg := core.NewMessage(core.RoleAssistant, core.FunctionCallPart{
			FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: string(data)},
		})
		return Response{Message: msg, FinishReason: "tool_calls"}, nil
	})
}

// EnqueueError scripts a failing call.
func (m *MockModel) EnqueueError(err error) *MockModel {
	return m.Enqueue(func(Request) (Response, error) { return Response{}, err })
}

// Requests returns a copy of every request received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate invocations.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Pending returns the number of scripted steps not yet consumed.
func (m *MockModel) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script)
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var step MockStep
	if len(m.script) > 0 {
		step = m.script[0]
		m.script = m.script[1:]
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}

		if step != nil {
			resp, err := step(req)
			if err != nil {
				errCh <- err
				return
			}
			respCh <- resp
			return
		}

		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		inputText := req.Messages[len(req.Messages)-1].Text()

		m.mu.Lock()
		full := m.responses[inputText]
		m.mu.Unlock()
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}

		respCh <- Response{Message: core.NewAssistantMessage(full), FinishReason: "stop"}
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
