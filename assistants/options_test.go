package assistants_test

import (
	"testing"

	"github.com/effective-security/agentgate/assistants"
	"github.com/effective-security/agentgate/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callOptions(cfg *assistants.Config) llms.CallOptions {
	var o llms.CallOptions
	for _, opt := range cfg.GetCallOptions(nil) {
		opt(&o)
	}
	return o
}

func TestGetCallOptions(t *testing.T) {
	o := callOptions(assistants.NewConfig())
	assert.Nil(t, o.Temperature)
	assert.Nil(t, o.TopP)
	assert.Zero(t, o.MaxTokens)

	// zero is a valid setting and is sent as is
	o = callOptions(assistants.NewConfig(
		assistants.WithTemperature(0),
		assistants.WithTopP(0),
		assistants.WithMaxTokens(512),
	))
	require.NotNil(t, o.Temperature)
	assert.Equal(t, 0.0, *o.Temperature)
	require.NotNil(t, o.TopP)
	assert.Equal(t, 0.0, *o.TopP)
	assert.Equal(t, 512, o.MaxTokens)
}
