package assistants

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentgate/chatmodel"
	"github.com/effective-security/agentgate/pkg/llms"
	"github.com/effective-security/agentgate/pkg/metricskey"
	"github.com/effective-security/agentgate/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

// Assistant runs the tool-calling loop against a model.
// The transcript accumulates across calls; it excludes the system prompt.
type Assistant struct {
	LLM llms.Model

	toolsByName map[string]tools.ITool
	toolsNames  []string
	tools       []tools.ITool
	llmToolDefs []llms.Tool

	cfg          *Config
	name         string
	description  string
	systemPrompt string

	lock     sync.Mutex
	messages []llms.Message
}

var _ IAssistant = (*Assistant)(nil)

// NewAssistant returns an Assistant
func NewAssistant(llmModel llms.Model, systemPrompt string, options ...Option) *Assistant {
	return &Assistant{
		cfg:          NewConfig(options...),
		LLM:          llmModel,
		systemPrompt: systemPrompt,
		name:         "Generic Assistant",
		description:  "An AI assistant that can perform various tasks.",
	}
}

// WithName sets the name of the Agent.
func (a *Assistant) WithName(name string) *Assistant {
	a.name = name
	return a
}

// WithDescription sets the description of the Agent.
func (a *Assistant) WithDescription(description string) *Assistant {
	a.description = description
	return a
}

// Name returns the name of the Agent.
func (a *Assistant) Name() string {
	return a.name
}

// Description returns the description of the Agent.
func (a *Assistant) Description() string {
	return a.description
}

// WithTools sets the tools available to the model.
func (a *Assistant) WithTools(list ...tools.ITool) (*Assistant, error) {
	defs, err := tools.Definitions(list...)
	if err != nil {
		return nil, err
	}
	a.tools = list
	a.llmToolDefs = defs
	a.toolsByName = make(map[string]tools.ITool, len(list))
	a.toolsNames = make([]string, 0, len(list))
	for _, t := range list {
		// use lowercase for the key
		a.toolsByName[strings.ToLower(t.Name())] = t
		a.toolsNames = append(a.toolsNames, t.Name())
	}
	return a, nil
}

// GetTools returns the tools available to the model.
func (a *Assistant) GetTools() []tools.ITool {
	return a.tools
}

// Messages returns a snapshot of the transcript.
func (a *Assistant) Messages() []llms.Message {
	a.lock.Lock()
	defer a.lock.Unlock()
	res := make([]llms.Message, len(a.messages))
	copy(res, a.messages)
	return res
}

func (a *Assistant) appendMessages(msgs ...llms.Message) {
	a.lock.Lock()
	a.messages = append(a.messages, msgs...)
	a.lock.Unlock()
}

// Call runs the agent loop for the input.
func (a *Assistant) Call(ctx context.Context, input string) (*llms.ContentResponse, error) {
	started := time.Now()
	defer metricskey.PerfAssistantCall.MeasureSince(started, a.Name())

	callback := a.cfg.CallbackHandler
	if callback != nil {
		callback.OnAssistantStart(ctx, a, input)
	}

	resp, err := a.run(ctx, input)
	if err != nil {
		metricskey.StatsAssistantCallsFailed.IncrCounter(1, a.Name())
		if callback != nil {
			callback.OnAssistantError(ctx, a, input, err, a.Messages())
		}
		return nil, err
	}
	metricskey.StatsAssistantCallsSucceeded.IncrCounter(1, a.Name())
	if callback != nil {
		callback.OnAssistantEnd(ctx, a, input, resp, a.Messages())
	}
	return resp, nil
}

func (a *Assistant) run(ctx context.Context, input string) (*llms.ContentResponse, error) {
	if input == "" {
		return nil, errors.Newf("assistant %s: empty input", a.name)
	}
	cfg := a.cfg
	assistantName := a.Name()
	modelName := a.LLM.GetName()

	a.appendMessages(llms.MessageFromTextParts(llms.RoleHuman, input))

	callOpts := cfg.GetCallOptions(a.llmToolDefs)
	toolsLimit := values.NumbersCoalesce(cfg.MaxToolCalls, DefaultMaxToolCalls)

	var totalToolExecuted int
	var resp *llms.ContentResponse
	var err error
	retryCount := 0
	for {
		messageHistory := a.history()
		if len(messageHistory) >= cfg.MaxMessages {
			return nil, errors.Newf("assistant %s: the messages count exceeded limit", assistantName)
		}

		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnAssistantLLMCallStart(ctx, a, a.LLM, messageHistory)
		}

		resp, err = a.LLM.GenerateContent(ctx, messageHistory, callOpts...)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to generate content from LLM")
		}

		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnAssistantLLMCallEnd(ctx, a, a.LLM, resp)
		}

		if resp.Usage != nil {
			metricskey.StatsLLMInputTokens.IncrCounter(float64(resp.Usage.InputTokens), assistantName, modelName)
			metricskey.StatsLLMOutputTokens.IncrCounter(float64(resp.Usage.OutputTokens), assistantName, modelName)
		}

		if len(resp.Choices) == 0 {
			retryCount++
			if retryCount >= DefaultMaxRetries {
				logger.ContextKV(ctx, xlog.ERROR,
					"assistant", assistantName,
					"status", "max_retries_exceeded",
					"input", slices.StringUpto(input, 64),
					"retry_count", retryCount,
				)
				return nil, errors.Newf("assistant %s: LLM returned empty response after %d retries", assistantName, retryCount)
			}
			logger.ContextKV(ctx, xlog.WARNING,
				"assistant", assistantName,
				"status", "retrying_empty_response",
				"retry_count", retryCount,
			)
			continue
		}

		var toolExecuted int
		toolExecuted, err = a.executeToolCalls(ctx, resp)
		if err != nil {
			return nil, err
		}
		if toolExecuted == 0 {
			break
		}
		totalToolExecuted += toolExecuted
		if totalToolExecuted >= toolsLimit {
			return nil, errors.Newf("assistant %s: the tool calls limit is exceeded", assistantName)
		}
	}

	var result strings.Builder
	for i, choice := range resp.Choices {
		if i > 0 {
			result.WriteString("\n\n")
		}
		result.WriteString(choice.Content)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"assistant", assistantName,
		"chat_id", chatmodel.GetChatID(ctx),
		"status", "response_analysis",
		"choices_count", len(resp.Choices),
		"tool_calls", totalToolExecuted,
	)

	a.appendMessages(llms.MessageFromTextParts(llms.RoleAI, result.String()))
	return resp, nil
}

// history returns the system prompt followed by the transcript.
func (a *Assistant) history() []llms.Message {
	msgs := a.Messages()
	if a.systemPrompt == "" {
		return msgs
	}
	return append([]llms.Message{llms.MessageFromTextParts(llms.RoleSystem, a.systemPrompt)}, msgs...)
}

type toolCallResult struct {
	toolCall llms.ToolCall
	response string
	err      error
}

// executeToolCalls runs the tool calls of the response concurrently and
// appends the calls and their responses, in order, to the transcript.
func (a *Assistant) executeToolCalls(ctx context.Context, resp *llms.ContentResponse) (int, error) {
	cfg := a.cfg
	var toolCalls []llms.ToolCall
	for _, choice := range resp.Choices {
		if len(choice.ToolCalls) == 0 {
			continue
		}
		parts := make([]llms.ContentPart, 0, len(choice.ToolCalls)+1)
		if choice.Content != "" {
			parts = append(parts, llms.TextPart(choice.Content))
		}
		for i, toolCall := range choice.ToolCalls {
			if toolCall.FunctionCall == nil {
				return 0, errors.Newf("assistant %s: tool call %q has no function", a.name, toolCall.ID)
			}
			if toolCall.ID == "" {
				toolCall.ID = fmt.Sprintf("%s_%d", toolCall.FunctionCall.Name, i)
			}
			toolCall.Type = values.StringsCoalesce(toolCall.Type, "function")
			toolCalls = append(toolCalls, toolCall)
			parts = append(parts, toolCall)

			logger.ContextKV(ctx, xlog.DEBUG,
				"assistant", a.name,
				"status", "tool_call_found",
				"tool_call_id", toolCall.ID,
				"tool_call_name", toolCall.FunctionCall.Name,
			)
		}
		a.appendMessages(llms.MessageFromParts(llms.RoleAI, parts...))
	}

	if len(toolCalls) == 0 {
		return 0, nil
	}

	results := make([]toolCallResult, len(toolCalls))
	var wg sync.WaitGroup
	wg.Add(len(toolCalls))
	for i, toolCall := range toolCalls {
		go func(index int, tc llms.ToolCall) {
			defer wg.Done()
			results[index] = a.callTool(ctx, cfg, tc)
		}(i, toolCall)
	}
	wg.Wait()

	for _, result := range results {
		content := result.response
		if result.err != nil {
			content = fmt.Sprintf("Tool call failed: %s", result.err.Error())
			logger.ContextKV(ctx, xlog.WARNING,
				"assistant", a.name,
				"status", "tool_call_failed",
				"tool", result.toolCall.FunctionCall.Name,
				"err", result.err.Error(),
			)
		}

		logger.ContextKV(ctx, xlog.DEBUG,
			"assistant", a.name,
			"status", "tool_call_response",
			"tool_call_id", result.toolCall.ID,
			"tool_name", result.toolCall.FunctionCall.Name,
			"content_length", len(content),
		)

		a.appendMessages(llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
			ToolCallID: result.toolCall.ID,
			Name:       result.toolCall.FunctionCall.Name,
			Content:    content,
		}))
	}

	return len(toolCalls), nil
}

func (a *Assistant) callTool(ctx context.Context, cfg *Config, tc llms.ToolCall) toolCallResult {
	toolName := tc.FunctionCall.Name
	toolArgs := tc.FunctionCall.Arguments

	tool := a.toolsByName[strings.ToLower(toolName)]
	if tool == nil {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, toolName)
		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnToolNotFound(ctx, a, toolName)
		}

		availableTools := strings.Join(a.toolsNames, ", ")
		logger.ContextKV(ctx, xlog.WARNING,
			"assistant", a.name,
			"status", "tool_not_found",
			"tool_name", toolName,
			"available_tools", availableTools,
		)
		return toolCallResult{
			toolCall: tc,
			response: fmt.Sprintf("Tool `%s` not found. Please check the tool name and try again with exact match. Available tools: %s", toolName, availableTools),
		}
	}

	if cfg.CallbackHandler != nil {
		cfg.CallbackHandler.OnToolStart(ctx, tool, a.Name(), toolArgs)
	}

	res, err := tool.Call(ctx, toolArgs)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, toolName)
		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnToolError(ctx, tool, a.Name(), toolArgs, err)
		}
		return toolCallResult{
			toolCall: tc,
			err:      errors.WithMessagef(err, "failed to call tool %s", toolName),
		}
	}
	metricskey.StatsToolCallsSucceeded.IncrCounter(1, toolName)

	if cfg.CallbackHandler != nil {
		cfg.CallbackHandler.OnToolEnd(ctx, tool, a.Name(), toolArgs, res)
	}
	return toolCallResult{toolCall: tc, response: res}
}
