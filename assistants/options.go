package assistants

import (
	"github.com/effective-security/agentgate/pkg/llms"
)

// Defaults for the agent loop.
const (
	DefaultMaxToolCalls = 10
	DefaultMaxMessages  = 50
	DefaultMaxRetries   = 3
)

// Option is a function that can be used to modify the behavior of the Agent Config.
type Option func(*Config)

// Config is the agent configuration.
type Config struct {
	// MaxTokens is the maximum number of tokens to generate in an LLM call.
	MaxTokens int
	// Temperature is the temperature for sampling, between 0 and 1.
	// Nil leaves the model default.
	Temperature *float64
	// TopP is the cumulative probability for top-p sampling.
	TopP *float64
	// StopWords is a list of words to stop on.
	StopWords []string

	// CallbackHandler is the callback handler for the agent loop.
	CallbackHandler Callback

	// MaxToolCalls limits the tool calls of a single run.
	MaxToolCalls int
	// MaxMessages limits the size of the transcript sent to the model.
	MaxMessages int
}

// NewConfig returns the config with options applied.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		MaxToolCalls: DefaultMaxToolCalls,
		MaxMessages:  DefaultMaxMessages,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// GetCallOptions returns the LLM call options.
func (cfg *Config) GetCallOptions(tools []llms.Tool) []llms.CallOption {
	var opts []llms.CallOption
	if cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		opts = append(opts, llms.WithTopP(*cfg.TopP))
	}
	if len(cfg.StopWords) > 0 {
		opts = append(opts, llms.WithStopWords(cfg.StopWords))
	}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}
	return opts
}

// WithMaxTokens specifies the max number of tokens to generate.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
	}
}

// WithTemperature specifies the model temperature.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = &temperature
	}
}

// WithTopP specifies the top-p sampling.
func WithTopP(topP float64) Option {
	return func(o *Config) {
		o.TopP = &topP
	}
}

// WithStopWords specifies a list of words to stop generation on.
func WithStopWords(stopWords []string) Option {
	return func(o *Config) {
		o.StopWords = stopWords
	}
}

// WithCallback allows setting the callback handler.
func WithCallback(callbackHandler Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = callbackHandler
	}
}

// WithMaxToolCalls limits the tool calls of a single run.
func WithMaxToolCalls(n int) Option {
	return func(o *Config) {
		if n > 0 {
			o.MaxToolCalls = n
		}
	}
}

// WithMaxMessages limits the size of the transcript.
func WithMaxMessages(n int) Option {
	return func(o *Config) {
		if n > 0 {
			o.MaxMessages = n
		}
	}
}
