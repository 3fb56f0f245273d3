// Package handler implements one invocation: token resolution, a scoped
// gateway session, the agent call and tool-usage detection.
package handler

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentgate/assistants"
	"github.com/effective-security/agentgate/callbacks"
	"github.com/effective-security/agentgate/chatmodel"
	"github.com/effective-security/agentgate/detector"
	"github.com/effective-security/agentgate/gateway"
	"github.com/effective-security/agentgate/identity"
	"github.com/effective-security/agentgate/pkg/llms"
	"github.com/effective-security/agentgate/stats"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentgate", "handler")

// Response prefixes
const (
	PrefixToolData = "[Model response using tool data] "
	PrefixModel    = "[Model response] "
)

// ErrNoPrompt is reported when the request has no prompt.
var ErrNoPrompt = errors.New("No prompt provided")

// Request of an invocation
type Request struct {
	Prompt    string `json:"prompt"`
	RequestID string `json:"requestId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	// InboundToken is the validated bearer token of the request, if any.
	// It is never serialized.
	InboundToken string `json:"-"`
}

// Response envelope
type Response struct {
	Response []string `json:"response"`
}

// TokenResolver resolves the outbound bearer token.
type TokenResolver interface {
	Resolve(ctx context.Context, inbound string) (*identity.BearerToken, error)
	Invalidate()
}

// SessionProvider opens scoped gateway sessions.
type SessionProvider interface {
	WithSession(ctx context.Context, token *identity.BearerToken, fn func(ctx context.Context, s *gateway.Session) error) error
}

// Handler processes invocations.
type Handler struct {
	model    llms.Model
	resolver TokenResolver
	gateway  SessionProvider
	stats    *stats.Aggregator

	name          string
	systemPrompt  string
	assistantOpts []assistants.Option
	scratchpad    *callbacks.Scratchpad
	callback      *callbacks.Fanout
}

// Option configures the Handler.
type Option func(*Handler)

// WithSystemPrompt sets the system prompt of the agent.
func WithSystemPrompt(prompt string) Option {
	return func(h *Handler) {
		h.systemPrompt = prompt
	}
}

// WithAssistantOptions sets options of the per-invocation agent.
func WithAssistantOptions(opts ...assistants.Option) Option {
	return func(h *Handler) {
		h.assistantOpts = append(h.assistantOpts, opts...)
	}
}

// WithCallback adds a callback to the agent.
func WithCallback(cb assistants.Callback) Option {
	return func(h *Handler) {
		h.callback.Add(cb)
	}
}

// New returns a Handler.
func New(model llms.Model, resolver TokenResolver, gw SessionProvider, agg *stats.Aggregator, opts ...Option) *Handler {
	h := &Handler{
		model:      model,
		resolver:   resolver,
		gateway:    gw,
		stats:      agg,
		name:       "agentgate",
		scratchpad: callbacks.NewScratchpad(),
	}
	h.callback = callbacks.NewFanout(h.scratchpad, callbacks.NewPackageLogger(logger))
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Stats returns the aggregator.
func (h *Handler) Stats() *stats.Aggregator {
	return h.stats
}

type outcome struct {
	text      string
	detection detector.Result
	run       *callbacks.RunStats
	initTime  time.Duration
	callTime  time.Duration
}

// MetadataRequestID is the chat metadata key holding the caller's requestId.
const MetadataRequestID = "request_id"

// Invoke handles one invocation. Failures are reported in the envelope.
func (h *Handler) Invoke(ctx context.Context, req Request) *Response {
	started := time.Now()
	n := h.stats.RecordInvocation()
	defer h.stats.FlushIfDue(ctx, n)

	chatCtx := newChatContext(req)
	ctx = chatmodel.WithChatContext(ctx, chatCtx)
	requestID := values.StringsCoalesce(req.RequestID, chatCtx.GetChatID())

	logger.ContextKV(ctx, xlog.INFO,
		"status", "invocation_start",
		"request_id", requestID,
		"session_id", chatCtx.GetSessionID(),
		"prompt", slices.StringUpto(req.Prompt, 200),
	)

	if req.Prompt == "" {
		h.stats.RecordError("empty_prompt")
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "empty_prompt",
			"request_id", requestID,
		)
		return errorResponse("Error: " + ErrNoPrompt.Error())
	}

	out, err := h.run(ctx, req)
	if err != nil {
		reason, msg := classify(err)
		h.stats.RecordError(reason)
		if errors.Is(err, gateway.ErrTokenRejected) {
			h.resolver.Invalidate()
		}
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "invocation_failed",
			"request_id", requestID,
			"reason", reason,
			"elapsed", time.Since(started).String(),
			"err", err.Error(),
		)
		return errorResponse(msg)
	}

	if out.detection.Used {
		h.stats.RecordToolCalls(max(out.detection.CallCount, 1))
	}
	total := h.stats.RecordResponseTime(started)

	if len(out.detection.Queries) > 0 {
		logger.ContextKV(ctx, xlog.INFO,
			"status", "graphql_queries",
			"request_id", requestID,
			"queries", out.detection.Queries,
		)
	}

	toolsCalled := out.detection.Tools
	if out.run != nil {
		for _, name := range out.run.ToolsCalled {
			if !containsString(toolsCalled, name) {
				toolsCalled = append(toolsCalled, name)
			}
		}
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "invocation_complete",
		"request_id", requestID,
		"total_time", total.String(),
		"agent_init_time", out.initTime.String(),
		"agent_call_time", out.callTime.String(),
		"tools_used", out.detection.Used,
		"tools_called", strings.Join(toolsCalled, ", "),
		"response_length", len(out.text),
		"response_preview", slices.StringUpto(out.text, 200),
	)

	prefix := PrefixModel
	if out.detection.Used {
		prefix = PrefixToolData
	}
	return &Response{Response: []string{prefix + out.text}}
}

func (h *Handler) run(ctx context.Context, req Request) (*outcome, error) {
	token, err := h.resolver.Resolve(ctx, req.InboundToken)
	if err != nil {
		return nil, err
	}

	out := new(outcome)
	var before, after []llms.Message

	h.scratchpad.StartRun(ctx)
	defer func() {
		out.run = h.scratchpad.EndRun(ctx)
	}()

	initStarted := time.Now()
	err = h.gateway.WithSession(ctx, token, func(ctx context.Context, s *gateway.Session) error {
		h.stats.RecordConnectionTime(s.ConnectionTime())

		descriptors, err := s.ListTools(ctx)
		if err != nil {
			return err
		}

		opts := append([]assistants.Option{assistants.WithCallback(h.callback)}, h.assistantOpts...)
		agent, err := assistants.NewAssistant(h.model, h.systemPrompt, opts...).
			WithName(h.name).
			WithTools(gateway.Tools(s, descriptors)...)
		if err != nil {
			return err
		}
		out.initTime = time.Since(initStarted)

		before = agent.Messages()
		callStarted := time.Now()
		resp, err := agent.Call(ctx, req.Prompt)
		out.callTime = time.Since(callStarted)
		if err != nil {
			return err
		}
		out.text = responseText(resp)
		after = agent.Messages()
		return nil
	})
	if err != nil {
		return nil, err
	}

	det, derr := detector.Detect(before, after)
	if derr != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "detection_fallback",
			"err", derr.Error(),
		)
		det = detector.DetectFromResponse(out.text)
	}
	out.detection = det
	return out, nil
}

// classify returns the metric reason and the message of the envelope.
func classify(err error) (string, string) {
	switch {
	case errors.Is(err, identity.ErrNoCredentialAvailable):
		return "no_credential", "Error: " + err.Error()
	case errors.Is(err, gateway.ErrTokenRejected):
		return "token_rejected", "Error: " + err.Error()
	case errors.Is(err, gateway.ErrGatewayUnreachable):
		return "gateway_unreachable", "Error: " + err.Error()
	case errors.Is(err, gateway.ErrToolDispatch):
		return "tool_dispatch", "Error: " + err.Error()
	case errors.Is(err, identity.ErrProvider):
		return "provider", "Error: " + err.Error()
	default:
		return "unexpected", "Unexpected error: " + err.Error()
	}
}

func responseText(resp *llms.ContentResponse) string {
	if resp == nil {
		return ""
	}
	parts := make([]string, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		if c.Content != "" {
			parts = append(parts, c.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// newChatContext keys the invocation on a generated ID. The caller's
// requestId is not unique across clients and is kept as metadata only.
func newChatContext(req Request) chatmodel.ChatContext {
	chatCtx := chatmodel.NewChatContext(chatmodel.NewChatID(), req.SessionID)
	if req.RequestID != "" {
		chatCtx.SetMetadata(MetadataRequestID, req.RequestID)
	}
	return chatCtx
}

func errorResponse(msg string) *Response {
	return &Response{Response: []string{msg}}
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
