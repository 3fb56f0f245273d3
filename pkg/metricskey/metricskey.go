package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsInvocations is base for counter metric for total invocations handled
	StatsInvocations = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_invocations",
		Help:         "stats_invocations provides total invocations handled",
		RequiredTags: []string{"model"},
	}

	StatsInvocationErrors = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_invocation_errors",
		Help:         "stats_invocation_errors provides total invocations that returned an error",
		RequiredTags: []string{"reason"},
	}

	StatsToolCalls = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls",
		Help:         "stats_tool_calls provides total tool calls detected in transcripts",
		RequiredTags: []string{"model"},
	}

	StatsTokenRefresh = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_token_refresh",
		Help:         "stats_token_refresh provides total successful client-credentials exchanges",
		RequiredTags: []string{"client"},
	}

	StatsAuthRejected = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_auth_rejected",
		Help:         "stats_auth_rejected provides total inbound requests rejected by token validation",
		RequiredTags: []string{"reason"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsAssistantCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_assistant_calls_succeeded",
		Help:         "stats_assistant_calls_succeeded provides total assistant calls succeeded",
		RequiredTags: []string{"agent"},
	}

	StatsAssistantCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_assistant_calls_failed",
		Help:         "stats_assistant_calls_failed provides total assistant calls failed",
		RequiredTags: []string{"agent"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfInvocation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_invocation",
		Help:         "perf_invocation provides duration of an invocation",
		RequiredTags: []string{"model"},
	}

	PerfAssistantCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_assistant_call",
		Help:         "perf_assistant_call provides duration of assistant call",
		RequiredTags: []string{"agent"},
	}

	PerfGatewayConnect = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_gateway_connect",
		Help:         "perf_gateway_connect provides duration of opening a gateway session",
		RequiredTags: []string{"host"},
	}

	PerfTokenExchange = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_token_exchange",
		Help:         "perf_token_exchange provides duration of client-credentials exchange",
		RequiredTags: []string{"client"},
	}

	PerfToolDispatch = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_dispatch",
		Help:         "perf_tool_dispatch provides duration of a gateway tool call",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfAssistantCall,
	&PerfGatewayConnect,
	&PerfInvocation,
	&PerfTokenExchange,
	&PerfToolDispatch,
	&StatsAssistantCallsFailed,
	&StatsAssistantCallsSucceeded,
	&StatsAuthRejected,
	&StatsInvocationErrors,
	&StatsInvocations,
	&StatsLLMInputTokens,
	&StatsLLMOutputTokens,
	&StatsTokenRefresh,
	&StatsToolCalls,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
}
