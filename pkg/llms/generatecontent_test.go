package llms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageGetContent(t *testing.T) {
	tcs := []struct {
		name string
		msg  Message
		exp  string
	}{
		{
			name: "text",
			msg:  MessageFromTextParts(RoleHuman, "hello", "world"),
			exp:  "hello\nworld\n",
		},
		{
			name: "tool_call",
			msg: MessageFromToolCalls(RoleAI, ToolCall{
				ID:           "1",
				Type:         "function",
				FunctionCall: &FunctionCall{Name: "country", Arguments: `{"code":"BR"}`},
			}),
			exp: `Tool Call: {"id":"1","type":"function","function":{"name":"country","arguments":"{\"code\":\"BR\"}"}}` + "\n",
		},
		{
			name: "tool_response",
			msg:  MessageFromToolResponse(RoleTool, ToolCallResponse{ToolCallID: "1", Name: "country", Content: "ok"}),
			exp:  `Response: {"tool_call_id":"1","name":"country","content":"ok"}` + "\n",
		},
		{
			name: "empty",
			msg:  Message{Role: RoleAI},
			exp:  "",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, tc.msg.GetContent())
		})
	}
}

func TestMessageToolCalls(t *testing.T) {
	call := ToolCall{ID: "x", FunctionCall: &FunctionCall{Name: "a", Arguments: "{}"}}
	msg := MessageFromParts(RoleAI, TextPart("thinking"), call)
	assert.Equal(t, []ToolCall{call}, msg.ToolCalls())
	assert.Empty(t, MessageFromTextParts(RoleAI, "x").ToolCalls())

	assert.Equal(t, "ToolCall: x (a), input: {}", call.String())
	assert.Equal(t, "ToolCall: y", ToolCall{ID: "y"}.String())
	assert.Equal(t, "ToolCallResponse: x (a), response size: 2", ToolCallResponse{ToolCallID: "x", Name: "a", Content: "ok"}.String())
}

func ptr(v float64) *float64 {
	return &v
}

func TestCallOptions(t *testing.T) {
	var o CallOptions
	for _, opt := range []CallOption{
		WithModel("m"),
		WithMaxTokens(10),
		WithTemperature(0.3),
		WithTopP(0.8),
		WithStopWords([]string{"stop"}),
		WithTools([]Tool{{Type: "function"}}),
	} {
		opt(&o)
	}
	assert.Equal(t, CallOptions{
		Model:       "m",
		MaxTokens:   10,
		Temperature: ptr(0.3),
		TopP:        ptr(0.8),
		StopWords:   []string{"stop"},
		Tools:       []Tool{{Type: "function"}},
	}, o)
}
