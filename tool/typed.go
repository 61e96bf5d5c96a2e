package tool

import (
	"fmt"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/internal/util"
	"github.com/mitchellh/mapstructure"
)

// NewTypedTool builds a FunctionTool whose schema is reflected from Args and
// whose arguments are decoded into Args before fn runs.
//
// Args fields use json tags for names and jsonschema tags for constraints:
//
//	type GetTaskArgs struct {
//	    TaskListID string `json:"task_list_id" jsonschema:"required,description=Task list identifier"`
//	    TaskID     string `json:"task_id" jsonschema:"required,description=Task identifier"`
//	}
//
// The schema is computed once, at construction.
func NewTypedTool[Args any](
	name, description string,
	fn func(toolCtx *core.ToolContext, args Args) (any, error),
) (*FunctionTool, error) {
	if name == "" {
		return nil, fmt.Errorf("tool name is required")
	}

	schema, err := util.ReflectSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", name, err)
	}

	return NewFunctionTool(name, description, schema, func(toolCtx *core.ToolContext, raw map[string]any) (any, error) {
		var args Args
		if err := decodeArgs(raw, &args); err != nil {
			return nil, &ToolError{
				Tool:    name,
				Message: fmt.Sprintf("invalid arguments: %v", err),
				Code:    CodeValidation,
			}
		}
		return fn(toolCtx, args)
	}), nil
}

// MustTypedTool is like NewTypedTool but panics on error. It is meant for
// package-level toolkit construction where Args is a fixed type.
func MustTypedTool[Args any](
	name, description string,
	fn func(toolCtx *core.ToolContext, args Args) (any, error),
) *FunctionTool {
	t, err := NewTypedTool(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}

// decodeArgs maps model supplied JSON arguments onto a typed struct. JSON
// numbers arrive as float64; weak typing converts them to ints.
func decodeArgs(raw map[string]any, target any) error {
	if raw == nil {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}

	return dec.Decode(raw)
}
