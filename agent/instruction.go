package agent

import (
	"context"
	"time"

	"github.com/hupe1980/agentdesk/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(ctx context.Context) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(ctx context.Context) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context) (string, error) { return f(ctx) }

// Instruction represents either a static instruction string or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether no instruction was configured.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(ctx context.Context) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx)
	}
	return i.text, nil
}

// Render resolves the instruction and expands template variables. The
// variable "now" is always available as an RFC 3339 timestamp.
func (i Instruction) Render(ctx context.Context, now time.Time, vars map[string]any) (string, error) {
	text, err := i.Resolve(ctx)
	if err != nil {
		return "", err
	}

	data := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		data[k] = v
	}
	if _, ok := data["now"]; !ok {
		data["now"] = now.Format(time.RFC3339)
	}

	return util.RenderTemplate(text, data)
}

// ValidateTemplate renders text once with placeholder values for every
// variable instructions may use (agent, now, workers), so broken templates
// are caught at load time rather than on the first Invoke.
func ValidateTemplate(text string) error {
	_, err := util.RenderTemplate(text, map[string]any{
		"agent":   "agent",
		"now":     time.Time{}.Format(time.RFC3339),
		"workers": []string{"worker"},
	})
	return err
}
