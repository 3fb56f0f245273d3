// Package stats aggregates per-process invocation counters and logs them
// periodically.
package stats

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/effective-security/agentgate/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentgate", "stats")

// DefaultFlushEvery is the number of invocations between metric log lines.
const DefaultFlushEvery = 10

// Aggregator holds the process counters. Counters are never reset
// and never persisted.
type Aggregator struct {
	model      string
	flushEvery int64
	startedAt  time.Time

	invocations    atomic.Int64
	toolCalls      atomic.Int64
	errors         atomic.Int64
	tokenRefreshes atomic.Int64
	// durations in nanoseconds
	totalResponseTime atomic.Int64
	connectionTime    atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Invocations       int64   `json:"invocations"`
	ToolCalls         int64   `json:"tool_calls"`
	Errors            int64   `json:"errors"`
	TotalResponseTime float64 `json:"total_response_time"`
	ConnectionTime    float64 `json:"mcp_connection_time"`
	TokenRefreshCount int64   `json:"token_refresh_count"`

	AvgResponseTime float64 `json:"avg_response_time"`
	ToolUsageRate   float64 `json:"tool_usage_rate"`
	ErrorRate       float64 `json:"error_rate"`
	Uptime          string  `json:"uptime"`
}

// New returns an Aggregator; model tags the mirrored metrics.
// flushEvery <= 0 uses DefaultFlushEvery.
func New(model string, flushEvery int64) *Aggregator {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}
	return &Aggregator{
		model:      model,
		flushEvery: flushEvery,
		startedAt:  time.Now(),
	}
}

// RecordInvocation counts an invocation and returns the new total.
func (a *Aggregator) RecordInvocation() int64 {
	metricskey.StatsInvocations.IncrCounter(1, a.model)
	return a.invocations.Add(1)
}

// RecordToolCalls adds n detected tool calls.
func (a *Aggregator) RecordToolCalls(n int) {
	if n <= 0 {
		return
	}
	metricskey.StatsToolCalls.IncrCounter(float64(n), a.model)
	a.toolCalls.Add(int64(n))
}

// RecordError counts a failed invocation.
func (a *Aggregator) RecordError(reason string) {
	metricskey.StatsInvocationErrors.IncrCounter(1, reason)
	a.errors.Add(1)
}

// RecordResponseTime adds the duration of an invocation started at started.
func (a *Aggregator) RecordResponseTime(started time.Time) time.Duration {
	metricskey.PerfInvocation.MeasureSince(started, a.model)
	d := time.Since(started)
	a.totalResponseTime.Add(int64(d))
	return d
}

// RecordConnectionTime keeps the duration of the last gateway session open.
func (a *Aggregator) RecordConnectionTime(d time.Duration) {
	a.connectionTime.Store(int64(d))
}

// RecordTokenRefresh counts a successful token exchange.
func (a *Aggregator) RecordTokenRefresh() {
	a.tokenRefreshes.Add(1)
}

// Snapshot returns the current counters with derived rates.
func (a *Aggregator) Snapshot() Snapshot {
	s := Snapshot{
		Invocations:       a.invocations.Load(),
		ToolCalls:         a.toolCalls.Load(),
		Errors:            a.errors.Load(),
		TotalResponseTime: time.Duration(a.totalResponseTime.Load()).Seconds(),
		ConnectionTime:    time.Duration(a.connectionTime.Load()).Seconds(),
		TokenRefreshCount: a.tokenRefreshes.Load(),
		Uptime:            time.Since(a.startedAt).Round(time.Second).String(),
	}
	if s.Invocations > 0 {
		n := float64(s.Invocations)
		s.AvgResponseTime = round(s.TotalResponseTime / n)
		s.ToolUsageRate = round(float64(s.ToolCalls) / n * 100)
		s.ErrorRate = round(float64(s.Errors) / n * 100)
	}
	return s
}

// FlushIfDue logs the snapshot when n, the count returned by
// RecordInvocation, is a positive multiple of the flush interval, and
// reports whether it did.
func (a *Aggregator) FlushIfDue(ctx context.Context, n int64) bool {
	if n <= 0 || n%a.flushEvery != 0 {
		return false
	}
	a.Log(ctx)
	return true
}

// Log writes the snapshot to the logger.
func (a *Aggregator) Log(ctx context.Context) {
	s := a.Snapshot()
	if s.Invocations <= 0 {
		return
	}
	logger.ContextKV(ctx, xlog.INFO,
		"status", "observability_metrics",
		"invocations", s.Invocations,
		"tool_calls", s.ToolCalls,
		"tool_usage_rate", s.ToolUsageRate,
		"errors", s.Errors,
		"error_rate", s.ErrorRate,
		"avg_response_time", s.AvgResponseTime,
		"mcp_connection_time", s.ConnectionTime,
		"token_refresh_count", s.TokenRefreshCount,
	)
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
