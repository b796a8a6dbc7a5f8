package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// ActionSetter is implemented by every argument type so a granular tool
// can fix the action its portmanteau dispatcher receives.
type ActionSetter interface {
	SetAction(action string)
}

// Spec is the static description of a tool.
type Spec struct {
	Name        string             `json:"name"`
	Category    string             `json:"category"`
	Description string             `json:"description"`
	Actions     []Action           `json:"actions"`
	InputSchema *jsonschema.Schema `json:"input_schema,omitempty"`
}

// Definition binds a Spec to its dispatcher.
type Definition[In any] struct {
	Name        string
	Category    string
	Description string
	Actions     []Action
	Handle      func(ctx context.Context, in In) Result
}

// Spec describes d, including the input schema derived from In.
func (d Definition[In]) Spec() Spec {
	return Spec{
		Name:        d.Name,
		Category:    d.Category,
		Description: d.Description,
		Actions:     d.Actions,
		InputSchema: SchemaFor[In](),
	}
}

// SchemaFor infers the input schema of an argument type. Argument types are
// static so a failure is a programming error.
func SchemaFor[In any]() *jsonschema.Schema {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		panic(fmt.Sprintf("tools: infer schema for %T: %v", *new(In), err))
	}
	return schema
}

// WithoutAction copies schema and drops the action property, for granular
// tools whose action is fixed.
func WithoutAction(schema *jsonschema.Schema) *jsonschema.Schema {
	out := schema.CloneSchemas()
	props := make(map[string]*jsonschema.Schema, len(out.Properties))
	for name, prop := range out.Properties {
		if name != "action" {
			props[name] = prop
		}
	}
	out.Properties = props
	req := out.Required[:0:0]
	for _, r := range out.Required {
		if r != "action" {
			req = append(req, r)
		}
	}
	out.Required = req
	return out
}

type invoker func(ctx context.Context, raw json.RawMessage, action string) Result

func invokerFor[In any, P interface {
	*In
	ActionSetter
}](d Definition[In]) invoker {
	return func(ctx context.Context, raw json.RawMessage, action string) Result {
		var in In
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &in); err != nil {
				return fail(action, vmerr.New(vmerr.CodeValidation, d.Name, "decode arguments: %v", err))
			}
		}
		if action != "" {
			P(&in).SetAction(action)
		}
		return d.Handle(ctx, in)
	}
}
