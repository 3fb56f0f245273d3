package llmutils_test

import (
	"testing"

	"github.com/effective-security/agentgate/pkg/llmutils"
	"github.com/stretchr/testify/assert"
)

func Test_CleanJSON(t *testing.T) {
	tcs := []struct {
		in  string
		exp string
	}{
		{"\n```json\n\n{\"code\": \"BR\"}\n\n```\n\n", `{"code": "BR"}`},
		{"Here you go:\n```json\n[{\"code\": \"BR\"}]\n```\n", `[{"code": "BR"}]`},
		{`{"query":"{ country(code: \"BR\") { name } }"} done`, `{"query":"{ country(code: \"BR\") { name } }"}`},
		{"no json here", "no json here"},
		{"", ""},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.exp, string(llmutils.CleanJSON([]byte(tc.in))), tc.in)
	}
}

func Test_TrimBackticks(t *testing.T) {
	expected := `{"name": "Brazil", "capital": "Brasília"}`

	assert.Equal(t, expected, llmutils.TrimBackticks("\n```json\n\n"+expected+"\n\n```\n\n"))
	assert.Equal(t, expected, llmutils.TrimBackticks(expected))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```\n\n"+expected+"\n\n```\n\n"))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```"+expected+"\n\n```\n\n"))
	assert.Equal(t, expected, llmutils.TrimBackticks("```graphql\n"+expected))
}

func Test_DecodeJSON(t *testing.T) {
	v, ok := llmutils.DecodeJSON("I used:\n```json\n{\"query\": \"{ countries { code } }\"}\n```")
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"query": "{ countries { code } }"}, v)

	v, ok = llmutils.DecodeJSON(`[1, 2]`)
	assert.True(t, ok)
	assert.Equal(t, []any{float64(1), float64(2)}, v)

	for _, in := range []string{"", "plain text", "{ countries { code } }", "```\n{broken\n```"} {
		_, ok = llmutils.DecodeJSON(in)
		assert.False(t, ok, in)
	}
}
