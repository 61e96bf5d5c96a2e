package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// wirePart is the tagged JSON form of a Part.
type wirePart struct {
	Type             string            `json:"type"`
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
}

type wireMessage struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Name      string     `json:"name,omitempty"`
	Parts     []wirePart `json:"parts"`
	Timestamp time.Time  `json:"timestamp"`
}

// MarshalJSON encodes the message with type-tagged parts.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{ID: m.ID, Role: m.Role, Name: m.Name, Timestamp: m.Timestamp, Parts: make([]wirePart, 0, len(m.Parts))}
	for _, p := range m.Parts {
		switch part := p.(type) {
		case TextPart:
			w.Parts = append(w.Parts, wirePart{Type: "text", Text: part.Text})
		case FunctionCallPart:
			fc := part.FunctionCall
			w.Parts = append(w.Parts, wirePart{Type: "function_call", FunctionCall: &fc})
		case FunctionResponsePart:
			fr := part.FunctionResponse
			w.Parts = append(w.Parts, wirePart{Type: "function_response", FunctionResponse: &fr})
		default:
			return nil, fmt.Errorf("core: unsupported part type %T", p)
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a message produced by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parts := make([]Part, 0, len(w.Parts))
	for i, wp := range w.Parts {
		switch wp.Type {
		case "text":
			parts = append(parts, TextPart{Text: wp.Text})
		case "function_call":
			if wp.FunctionCall == nil {
				return fmt.Errorf("core: part %d: missing function_call", i)
			}
			parts = append(parts, FunctionCallPart{FunctionCall: *wp.FunctionCall})
		case "function_response":
			if wp.FunctionResponse == nil {
				return fmt.Errorf("core: part %d: missing function_response", i)
			}
			parts = append(parts, FunctionResponsePart{FunctionResponse: *wp.FunctionResponse})
		default:
			return fmt.Errorf("core: part %d: unknown type %q", i, wp.Type)
		}
	}
	*m = Message{ID: w.ID, Role: w.Role, Name: w.Name, Parts: parts, Timestamp: w.Timestamp}
	return nil
}
