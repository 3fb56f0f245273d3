package tools

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct {
	name   string
	params any
}

func (t echoTool) Name() string        { return t.name }
func (t echoTool) Description() string { return "echoes input" }
func (t echoTool) Parameters() any     { return t.params }
func (t echoTool) Call(_ context.Context, in string) (string, error) {
	return in, nil
}

func TestFind(t *testing.T) {
	list := []ITool{echoTool{name: "a"}, echoTool{name: "b"}}
	tool, err := Find(list, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", tool.Name())

	_, err = Find(list, "c")
	assert.True(t, errors.Is(err, ErrToolNotFound))
	assert.EqualError(t, err, `"c": tool not found`)
}

func TestDefinitions(t *testing.T) {
	defs, err := Definitions(
		echoTool{name: "none"},
		echoTool{name: "map", params: map[string]any{
			"type":       "object",
			"properties": map[string]any{"code": map[string]any{"type": "string"}},
			"required":   []string{"code"},
		}},
		echoTool{name: "raw", params: []byte(`{"properties":{"q":{"type":"string"}}}`)},
		echoTool{name: "schema", params: &jsonschema.Schema{Type: "object", Description: "x"}},
	)
	require.NoError(t, err)
	require.Len(t, defs, 4)

	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "object", defs[0].Function.Parameters.Type)

	p := defs[1].Function.Parameters
	assert.Equal(t, []string{"code"}, p.Required)
	code, ok := p.Properties.Get("code")
	require.True(t, ok)
	assert.Equal(t, "string", code.Type)

	assert.Equal(t, "object", defs[2].Function.Parameters.Type)
	assert.Equal(t, "x", defs[3].Function.Parameters.Description)

	_, err = Definitions(echoTool{name: "bad", params: []byte("{")})
	assert.ErrorContains(t, err, `tool "bad": invalid parameters schema`)
}
