// Package gemini provides an implementation of model.Model backed by the
// Google Gemini API (google.golang.org/genai), including function calling
// and JSON schema constrained output.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/model"
	"google.golang.org/genai"
)

// Options configures the Gemini model adapter.
type Options struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int32
	APIKey          string
	// BaseURL overrides the API endpoint (proxies, tests).
	BaseURL string
}

// Model wraps the Gemini GenerateContent API behind the generic model.Model interface.
type Model struct {
	client *genai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:           "gemini-2.0-flash",
		Temperature:     0.5,
		MaxOutputTokens: 4096,
	}
}

// NewModel creates a Gemini model. Without an explicit APIKey the client
// falls back to GOOGLE_API_KEY / GEMINI_API_KEY.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient creates a Gemini model from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements model.Model with a single non-streaming call.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		genResp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, buildContents(req.Messages), m.buildConfig(req))
		if err != nil {
			errCh <- wrapError(err)
			return
		}

		resp, err := parseResponse(genResp)
		if err != nil {
			errCh <- err
			return
		}
		out <- resp
	}()

	return out, errCh
}

// buildConfig creates the generation config: system instruction, sampling,
// tools and, when requested, the JSON response schema.
func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(m.opts.Temperature)),
		MaxOutputTokens: m.opts.MaxOutputTokens,
	}

	var system []string
	if req.Instructions != "" {
		system = append(system, req.Instructions)
	}
	for _, msg := range req.Messages {
		if msg.Role == core.RoleSystem {
			system = append(system, msg.Text())
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
		}
	}

	if rs := req.ResponseSchema; rs != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toGenaiSchema(rs.Schema)
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  toGenaiSchema(t.Function.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return config
}

// buildContents converts agentdesk messages to genai contents. Named
// participants and tool results are sent as user turns.
func buildContents(msgs []core.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))

	for _, msg := range msgs {
		var parts []*genai.Part
		role := "user"

		switch msg.Role {
		case core.RoleSystem:
			continue // handled by buildConfig
		case core.RoleAssistant:
			role = "model"
			for _, p := range msg.Parts {
				switch part := p.(type) {
				case core.TextPart:
					if part.Text != "" {
						parts = append(parts, &genai.Part{Text: part.Text})
					}
				case core.FunctionCallPart:
					args := map[string]any{}
					if part.FunctionCall.Arguments != "" {
						_ = json.Unmarshal([]byte(part.FunctionCall.Arguments), &args)
					}
					parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
						ID:   part.FunctionCall.ID,
						Name: part.FunctionCall.Name,
						Args: args,
					}})
				}
			}
		case core.RoleTool:
			for _, fr := range msg.FunctionResponses() {
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       fr.ID,
					Name:     fr.Name,
					Response: responseMap(fr),
				}})
			}
		default:
			if text := model.AttributedText(msg); text != "" {
				parts = append(parts, &genai.Part{Text: text})
			}
		}

		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	return contents
}

// responseMap shapes a tool result as the object Gemini expects: "output"
// on success, "error" on failure.
func responseMap(fr core.FunctionResponse) map[string]any {
	if fr.Error != "" {
		return map[string]any{"error": fr.Error}
	}
	var decoded any
	if err := json.Unmarshal([]byte(model.FunctionResponseText(fr)), &decoded); err == nil {
		return map[string]any{"output": decoded}
	}
	return map[string]any{"output": model.FunctionResponseText(fr)}
}

// toGenaiSchema converts a JSON schema map to a Gemini schema.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	s := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	s.Required = stringList(schema["required"])
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	s.Enum = stringList(schema["enum"])

	return s
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		var out []string
		for _, e := range list {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// parseResponse converts the first candidate into a model.Response.
func parseResponse(genResp *genai.GenerateContentResponse) (model.Response, error) {
	if genResp == nil || len(genResp.Candidates) == 0 {
		return model.Response{}, fmt.Errorf("gemini: empty response")
	}

	candidate := genResp.Candidates[0]

	var parts []core.Part
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				parts = append(parts, core.TextPart{Text: part.Text})
			}
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return model.Response{}, fmt.Errorf("gemini: encode args for %s: %w", part.FunctionCall.Name, err)
				}
				id := part.FunctionCall.ID
				if id == "" {
					id = "call_" + core.NewID()
				}
				parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
					ID:        id,
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				}})
			}
		}
	}

	resp := model.Response{
		Message:      core.NewMessage(core.RoleAssistant, parts...),
		FinishReason: strings.ToLower(string(candidate.FinishReason)),
	}

	if genResp.UsageMetadata != nil {
		resp.Usage = &model.TokenUsage{
			PromptTokens:     int(genResp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(genResp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(genResp.UsageMetadata.TotalTokenCount),
		}
	}

	return resp, nil
}

// wrapError maps genai API errors onto model.ProviderError.
func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return model.NewProviderError("gemini", apiErr.Code, err)
	}
	return model.NewProviderError("gemini", 0, err)
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gemini",
		SupportsTools: true,
	}
}
