package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the origin of a Message.
type Role string

const (
	// RoleUser marks input from the human user.
	RoleUser Role = "user"
	// RoleSystem marks an instruction preamble.
	RoleSystem Role = "system"
	// RoleAssistant marks output produced by a model.
	RoleAssistant Role = "assistant"
	// RoleTool marks tool results fed back to a model.
	RoleTool Role = "tool"
	// RoleAgent marks a message attributed to a named participant
	// (the supervisor or a worker) in the shared conversation.
	RoleAgent Role = "agent"
)

// Message is a single entry of a conversation. Once appended to a State it
// must be treated as immutable.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Name      string    `json:"name,omitempty"` // Originating participant for RoleAgent messages
	Parts     []Part    `json:"parts"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh ID and UTC timestamp.
func NewMessage(role Role, parts ...Part) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Parts:     parts,
		Timestamp: time.Now().UTC(),
	}
}

// NewUserMessage creates a user-authored text message.
func NewUserMessage(text string) Message {
	return NewMessage(RoleUser, TextPart{Text: text})
}

// NewSystemMessage creates an instruction preamble message.
func NewSystemMessage(text string) Message {
	return NewMessage(RoleSystem, TextPart{Text: text})
}

// NewAssistantMessage creates a model-authored text message.
func NewAssistantMessage(text string) Message {
	return NewMessage(RoleAssistant, TextPart{Text: text})
}

// NewAgentMessage creates a text message attributed to the named participant.
func NewAgentMessage(name, text string) Message {
	m := NewMessage(RoleAgent, TextPart{Text: text})
	m.Name = name
	return m
}

// NewFunctionResponseMessage records the result (or error) of a tool call.
// If err is non-nil its message is copied into the response Error field.
func NewFunctionResponseMessage(id, name string, result any, err error) Message {
	fr := FunctionResponse{ID: id, Name: name, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	return NewMessage(RoleTool, FunctionResponsePart{FunctionResponse: fr})
}

// Text concatenates all text parts of the message.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

// FunctionCalls returns the tool invocations requested by this message.
func (m Message) FunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, p := range m.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// FunctionResponses returns the tool results carried by this message.
func (m Message) FunctionResponses() []FunctionResponse {
	var resps []FunctionResponse
	for _, p := range m.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			resps = append(resps, fr.FunctionResponse)
		}
	}
	return resps
}

// Author returns the participant name, falling back to the role.
func (m Message) Author() string {
	if m.Name != "" {
		return m.Name
	}
	return string(m.Role)
}

// clone copies the parts slice so callers cannot mutate stored messages.
func (m Message) clone() Message {
	if m.Parts != nil {
		parts := make([]Part, len(m.Parts))
		copy(parts, m.Parts)
		m.Parts = parts
	}
	return m
}

// NewID generates a new unique identifier.
func NewID() string {
	return uuid.NewString()
}
