package assistants

import (
	"context"

	"github.com/effective-security/agentgate/pkg/llms"
	"github.com/effective-security/agentgate/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentgate", "assistants")

//go:generate mockgen -destination=../mocks/mockllms/llm_mock.gen.go -package mockllms github.com/effective-security/agentgate/pkg/llms Model
//go:generate mockgen -destination=../mocks/mocktools/tool_mock.gen.go -package mocktools github.com/effective-security/agentgate/tools ITool

// IAssistant is an agent that answers a prompt, possibly calling tools.
type IAssistant interface {
	// Name returns the name of the Assistant.
	Name() string
	// Description returns the description of the Assistant.
	Description() string
	// Call runs the agent loop for the input.
	Call(ctx context.Context, input string) (*llms.ContentResponse, error)
	// Messages returns a snapshot of the transcript.
	Messages() []llms.Message
}

// Callback receives agent and tool lifecycle events.
type Callback interface {
	OnAssistantStart(ctx context.Context, agent IAssistant, input string)
	OnAssistantEnd(ctx context.Context, agent IAssistant, input string, resp *llms.ContentResponse, messages []llms.Message)
	OnAssistantError(ctx context.Context, agent IAssistant, input string, err error, messages []llms.Message)
	OnAssistantLLMCallStart(ctx context.Context, agent IAssistant, llm llms.Model, payload []llms.Message)
	OnAssistantLLMCallEnd(ctx context.Context, agent IAssistant, llm llms.Model, resp *llms.ContentResponse)

	OnToolStart(ctx context.Context, tool tools.ITool, assistantName, input string)
	OnToolEnd(ctx context.Context, tool tools.ITool, assistantName, input string, output string)
	OnToolError(ctx context.Context, tool tools.ITool, assistantName, input string, err error)
	OnToolNotFound(ctx context.Context, agent IAssistant, tool string)
}
