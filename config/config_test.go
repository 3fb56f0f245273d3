package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{EnvRegion, EnvGatewayURL, EnvModelID, EnvLocalValidation, EnvPort} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DefaultModelID, cfg.ModelID)
	assert.Empty(t, cfg.Region)
	assert.Empty(t, cfg.GatewayURL)
	assert.False(t, cfg.LocalValidation)
	assert.Equal(t, 0.3, cfg.GetTemperature())
	assert.Equal(t, 0.8, cfg.GetTopP())
	assert.Equal(t, DefaultMaxTokens, cfg.MaxTokens)
	assert.Equal(t, int64(10), cfg.FlushEvery)
	assert.Equal(t, 30*time.Second, cfg.ExchangeTimeout())
	assert.Equal(t, 60*time.Second, cfg.SessionTimeout())
	assert.Equal(t, filepath.Join(".", CognitoInfoFile), cfg.Path(CognitoInfoFile))
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "9090")
	t.Setenv(EnvRegion, "eu-west-1")
	t.Setenv(EnvModelID, "anthropic.claude-3-haiku-20240307-v1:0")
	t.Setenv(EnvGatewayURL, "https://gw.example.com/mcp")
	t.Setenv(EnvLocalValidation, "YES")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", cfg.ModelID)
	assert.Equal(t, "https://gw.example.com/mcp", cfg.GatewayURL)
	assert.True(t, cfg.LocalValidation)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTGATE_TEST_REGION", "ap-southeast-2")
	t.Setenv(EnvModelID, "from-env")

	dir := t.TempDir()
	file := filepath.Join(dir, "agentgate.yaml")
	err := os.WriteFile(file, []byte(`
addr: ":7070"
region: ${AGENTGATE_TEST_REGION}
model_id: from-file
workdir: /var/lib/agentgate
temperature: 0.5
session_timeout_seconds: 5
`), 0o600)
	require.NoError(t, err)

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, "ap-southeast-2", cfg.Region)
	// environment wins over the file
	assert.Equal(t, "from-env", cfg.ModelID)
	assert.Equal(t, 0.5, cfg.GetTemperature())
	assert.Equal(t, DefaultTopP, cfg.GetTopP())
	assert.Equal(t, 5*time.Second, cfg.SessionTimeout())
	assert.Equal(t, "/var/lib/agentgate/.gateway-info.json", cfg.Path(GatewayInfoFile))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Addr: ":8080", ModelID: "m", GatewayURL: "not a url"}
	assert.Error(t, cfg.Validate())

	cfg.GatewayURL = "https://gw.example.com/mcp"
	assert.NoError(t, cfg.Validate())

	cfg.Temperature = floatPtr(2)
	assert.Error(t, cfg.Validate())

	cfg.Temperature = floatPtr(0)
	cfg.TopP = floatPtr(-0.1)
	assert.Error(t, cfg.Validate())
}

func TestLoad_ZeroSampling(t *testing.T) {
	clearEnv(t)

	file := filepath.Join(t.TempDir(), "agentgate.yaml")
	err := os.WriteFile(file, []byte(`
temperature: 0
top_p: 0
`), 0o600)
	require.NoError(t, err)

	cfg, err := Load(file)
	require.NoError(t, err)
	require.NotNil(t, cfg.Temperature)
	require.NotNil(t, cfg.TopP)
	assert.Equal(t, 0.0, cfg.GetTemperature())
	assert.Equal(t, 0.0, cfg.GetTopP())

	// unset values get defaults
	var empty Config
	assert.Equal(t, DefaultTemperature, empty.GetTemperature())
	assert.Equal(t, DefaultTopP, empty.GetTopP())
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1", "yes", " Yes "} {
		assert.True(t, ParseBool(v), v)
	}
	for _, v := range []string{"", "false", "0", "no", "on", "t", "T", "y", "True1"} {
		assert.False(t, ParseBool(v), v)
	}
}
