package callbacks

import (
	"context"
	"sync"
	"time"

	"github.com/effective-security/agentgate/assistants"
	"github.com/effective-security/agentgate/chatmodel"
	"github.com/effective-security/agentgate/pkg/llms"
	"github.com/effective-security/agentgate/tools"
)

// TimeNowFn is used for run durations.
var TimeNowFn = time.Now

// RunStats is the summary of one invocation.
type RunStats struct {
	ChatID string

	Duration            time.Duration
	LLMCalls            uint32
	LLMInputTokens      uint64
	LLMOutputTokens     uint64
	ToolsCalls          uint32
	ToolsCallsSucceeded uint32
	ToolsCallsFailed    uint32
	ToolNotFound        uint32
	// ToolsCalled lists the called tools, in call order, without duplicates.
	ToolsCalled []string
}

// Scratchpad collects per-invocation stats keyed by the chat ID of the
// context.
type Scratchpad struct {
	runs map[string]*run
	lock sync.Mutex
}

// NewScratchpad returns a Scratchpad
func NewScratchpad() *Scratchpad {
	return &Scratchpad{
		runs: make(map[string]*run),
	}
}

// StartRun starts collecting stats for the chat in ctx.
func (l *Scratchpad) StartRun(ctx context.Context) {
	chatID := chatmodel.GetChatID(ctx)
	if chatID == "" {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	l.runs[chatID] = &run{
		stats:   RunStats{ChatID: chatID},
		started: TimeNowFn(),
	}
}

// EndRun stops collecting stats for the chat in ctx and returns them.
func (l *Scratchpad) EndRun(ctx context.Context) *RunStats {
	chatID := chatmodel.GetChatID(ctx)

	l.lock.Lock()
	r := l.runs[chatID]
	delete(l.runs, chatID)
	l.lock.Unlock()

	if r == nil {
		return nil
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	stats := r.stats
	stats.ToolsCalled = append([]string(nil), r.stats.ToolsCalled...)
	stats.Duration = TimeNowFn().Sub(r.started)
	return &stats
}

func (l *Scratchpad) update(ctx context.Context, fn func(s *RunStats)) {
	l.lock.Lock()
	r := l.runs[chatmodel.GetChatID(ctx)]
	l.lock.Unlock()
	if r == nil {
		return
	}
	r.lock.Lock()
	fn(&r.stats)
	r.lock.Unlock()
}

func (l *Scratchpad) OnAssistantStart(ctx context.Context, assistant assistants.IAssistant, input string) {
}

func (l *Scratchpad) OnAssistantEnd(ctx context.Context, assistant assistants.IAssistant, input string, resp *llms.ContentResponse, messages []llms.Message) {
}

func (l *Scratchpad) OnAssistantError(ctx context.Context, assistant assistants.IAssistant, input string, err error, messages []llms.Message) {
}

func (l *Scratchpad) OnAssistantLLMCallStart(ctx context.Context, agent assistants.IAssistant, llm llms.Model, payload []llms.Message) {
	l.update(ctx, func(s *RunStats) {
		s.LLMCalls++
	})
}

func (l *Scratchpad) OnAssistantLLMCallEnd(ctx context.Context, agent assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	if resp == nil || resp.Usage == nil {
		return
	}
	l.update(ctx, func(s *RunStats) {
		s.LLMInputTokens += uint64(resp.Usage.InputTokens)
		s.LLMOutputTokens += uint64(resp.Usage.OutputTokens)
	})
}

func (l *Scratchpad) OnToolStart(ctx context.Context, tool tools.ITool, assistantName, input string) {
	name := tool.Name()
	l.update(ctx, func(s *RunStats) {
		s.ToolsCalls++
		for _, n := range s.ToolsCalled {
			if n == name {
				return
			}
		}
		s.ToolsCalled = append(s.ToolsCalled, name)
	})
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, tool tools.ITool, assistantName, input string, output string) {
	l.update(ctx, func(s *RunStats) {
		s.ToolsCallsSucceeded++
	})
}

func (l *Scratchpad) OnToolError(ctx context.Context, tool tools.ITool, assistantName, input string, err error) {
	l.update(ctx, func(s *RunStats) {
		s.ToolsCallsFailed++
	})
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, agent assistants.IAssistant, tool string) {
	l.update(ctx, func(s *RunStats) {
		s.ToolNotFound++
	})
}

type run struct {
	started time.Time
	lock    sync.Mutex
	stats   RunStats
}
