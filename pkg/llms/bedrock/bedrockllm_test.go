package bedrock

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/effective-security/agentgate/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateContent(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"message","role":"assistant","stop_reason":"end_turn",
			"content":[{"type":"text","text":"The capital of Brazil is Brasília."}],
			"usage":{"input_tokens":3,"output_tokens":7}}`))
	}))
	defer srv.Close()

	client := bedrockruntime.New(bedrockruntime.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		Credentials:  credentials.NewStaticCredentialsProvider("AKIDTEST", "secret", ""),
	})

	llm, err := New(context.Background(), WithClient(client), WithModel(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, llm.GetName())
	assert.Equal(t, llms.ProviderBedrock, llm.GetProviderType())

	res, err := llm.GenerateContent(context.Background(), []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "answer briefly"),
		llms.MessageFromTextParts(llms.RoleHuman, "What is the capital of Brazil?"),
	}, llms.WithTemperature(0.3), llms.WithTopP(0.8), llms.WithMaxTokens(512))
	require.NoError(t, err)
	require.Len(t, res.Choices, 1)
	assert.Equal(t, "The capital of Brazil is Brasília.", res.Choices[0].Content)
	assert.Equal(t, 10, res.Usage.TotalTokens)

	assert.True(t, strings.HasPrefix(gotPath, "/model/"), gotPath)
	assert.True(t, strings.HasSuffix(gotPath, "/invoke"), gotPath)
	assert.Equal(t, "answer briefly", gotBody["system"])
	assert.EqualValues(t, 512, gotBody["max_tokens"])
	assert.Equal(t, 0.8, gotBody["top_p"])
}

func TestProcessMessages(t *testing.T) {
	msgs, err := processMessages([]llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "hi"),
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
			ID:           "t1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: "country", Arguments: `{"code":"BR"}`},
		}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "t1", Name: "country", Content: "{}"}),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "tool_use", msgs[1].Type)
	assert.Equal(t, "country", msgs[1].ToolName)
	assert.Equal(t, "tool_result", msgs[2].Type)
	assert.Equal(t, "t1", msgs[2].ToolCallID)

	_, err = processMessages([]llms.Message{
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{ID: "t2"}),
	})
	assert.EqualError(t, err, "tool call t2 has no function")
}
