// Package model defines the provider-agnostic language model interface used
// by workers (tool calling) and the supervisor (structured decisions), plus
// the retry middleware and a scriptable MockModel.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/agentdesk/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ResponseSchema asks the model for a single JSON value conforming to Schema
// instead of free text. Providers map it onto their structured output feature.
type ResponseSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema"`
}

// Request captures the normalized model input.
type Request struct {
	Instructions   string           `json:"instructions"` // System preamble
	Messages       []core.Message   `json:"messages"`
	Tools          []ToolDefinition `json:"tools,omitempty"`
	ResponseSchema *ResponseSchema  `json:"response_schema,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "gemini", "openai", "anthropic", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by agents and the supervisor.
//
// Generate returns a response channel and an error channel; both are closed
// when generation ends. Exactly one non-partial Response is sent on success.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrNoResponse is returned by GenerateOnce when the model closed its
// channels without a final response or error.
var ErrNoResponse = errors.New("model produced no final response")

// GenerateOnce drives m to completion and returns its final response. It is
// the blocking call used by the worker tool loop and the supervisor.
func GenerateOnce(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final    Response
		hasFinal bool
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !resp.Partial {
				final = resp
				hasFinal = true
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if !hasFinal {
		return Response{}, ErrNoResponse
	}

	return final, nil
}

// AttributedText renders the text of m for providers that only know the
// user/assistant roles. Messages from named participants are prefixed with
// the participant name so attribution survives the conversion.
func AttributedText(m core.Message) string {
	if m.Role == core.RoleAgent && m.Name != "" {
		return fmt.Sprintf("[%s] %s", m.Name, m.Text())
	}
	return m.Text()
}

// FunctionResponseText serializes a tool result for providers that expect a
// string payload. Errors are reported as {"error": "..."}.
func FunctionResponseText(fr core.FunctionResponse) string {
	if fr.Error != "" {
		data, _ := json.Marshal(map[string]string{"error": fr.Error})
		return string(data)
	}
	switch v := fr.Response.(type) {
	case nil:
		return "{}"
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
