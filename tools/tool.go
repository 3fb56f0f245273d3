package tools

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentgate/pkg/llms"
	"github.com/invopop/jsonschema"
)

// ErrToolNotFound is returned when the model asks for a tool that is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ITool is a tool for the llm agent to interact with different applications.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the parameters definition of the function, to be used in the prompt.
	Parameters() any

	// Call executes the tool with the given JSON input and returns the result.
	Call(context.Context, string) (string, error)
}

// Find returns the tool with the given name.
func Find(list []ITool, name string) (ITool, error) {
	for _, t := range list {
		if t.Name() == name {
			return t, nil
		}
	}
	return nil, errors.Wrapf(ErrToolNotFound, "%q", name)
}

// Definitions converts the tools into function definitions for the model.
func Definitions(list ...ITool) ([]llms.Tool, error) {
	res := make([]llms.Tool, 0, len(list))
	for _, t := range list {
		schema, err := Schema(t.Parameters())
		if err != nil {
			return nil, errors.WithMessagef(err, "tool %q", t.Name())
		}
		res = append(res, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  schema,
			},
		})
	}
	return res, nil
}

// Schema returns the JSON schema of tool parameters.
// Parameters may be a schema, a JSON document, or any value that marshals
// into a JSON schema.
func Schema(params any) (*jsonschema.Schema, error) {
	switch v := params.(type) {
	case nil:
		return &jsonschema.Schema{Type: "object"}, nil
	case *jsonschema.Schema:
		return v, nil
	case json.RawMessage:
		return unmarshalSchema(v)
	case []byte:
		return unmarshalSchema(v)
	default:
		js, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "unable to marshal parameters")
		}
		return unmarshalSchema(js)
	}
}

func unmarshalSchema(js []byte) (*jsonschema.Schema, error) {
	schema := new(jsonschema.Schema)
	if err := json.Unmarshal(js, schema); err != nil {
		return nil, errors.Wrap(err, "invalid parameters schema")
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema, nil
}
