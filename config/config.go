package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/go-playground/validator/v10"
)

// Environment variables read by the runtime.
const (
	EnvRegion          = "AWS_REGION"
	EnvGatewayURL      = "AGENTCORE_GATEWAY_URL"
	EnvModelID         = "BEDROCK_MODEL_ID"
	EnvLocalValidation = "JWT_LOCAL_VALIDATION"
	EnvPort            = "PORT"
)

// Config of the runtime
type Config struct {
	// Addr is the listen address, ":<PORT>" by default
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty" validate:"required"`
	// Region is the AWS region of the model and the identity provider
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// ModelID is the Bedrock model or inference profile ID
	ModelID string `json:"model_id,omitempty" yaml:"model_id,omitempty" validate:"required"`
	// GatewayURL overrides the tool gateway endpoint
	GatewayURL string `json:"gateway_url,omitempty" yaml:"gateway_url,omitempty" validate:"omitempty,url"`
	// LocalValidation enables inbound JWT validation in-process,
	// used when running outside of the managed runtime
	LocalValidation bool `json:"local_validation,omitempty" yaml:"local_validation,omitempty"`
	// WorkDir is where the .cognito-*.json and .gateway-info.json files live
	WorkDir string `json:"workdir,omitempty" yaml:"workdir,omitempty"`

	// Temperature and TopP are pointers so that an explicit 0 survives defaults
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"omitempty,gte=0,lte=1"`
	TopP        *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"gte=0"`

	// ExchangeTimeoutSeconds bounds the client-credentials exchange
	ExchangeTimeoutSeconds int `json:"exchange_timeout_seconds,omitempty" yaml:"exchange_timeout_seconds,omitempty" validate:"gte=0"`
	// SessionTimeoutSeconds bounds a gateway session
	SessionTimeoutSeconds int `json:"session_timeout_seconds,omitempty" yaml:"session_timeout_seconds,omitempty" validate:"gte=0"`
	// FlushEvery is the number of invocations between metric log lines
	FlushEvery int64 `json:"flush_every,omitempty" yaml:"flush_every,omitempty" validate:"gte=0"`
}

// Load returns the configuration: the optional file, then the environment,
// then defaults. An empty file name skips the file.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		err := configloader.UnmarshalAndExpand(file, cfg)
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to load config %s", file)
		}
	}

	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		return errors.WithMessage(err, "invalid config")
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvPort); v != "" {
		c.Addr = ":" + v
	}
	c.Region = values.StringsCoalesce(getenv(EnvRegion), c.Region)
	c.ModelID = values.StringsCoalesce(getenv(EnvModelID), c.ModelID)
	c.GatewayURL = values.StringsCoalesce(getenv(EnvGatewayURL), c.GatewayURL)
	if v := getenv(EnvLocalValidation); v != "" {
		c.LocalValidation = ParseBool(v)
	}
}

func (c *Config) applyDefaults() {
	c.Addr = values.StringsCoalesce(c.Addr, ":"+DefaultPort)
	c.ModelID = values.StringsCoalesce(c.ModelID, DefaultModelID)
	c.WorkDir = values.StringsCoalesce(c.WorkDir, ".")
	if c.Temperature == nil {
		c.Temperature = floatPtr(DefaultTemperature)
	}
	if c.TopP == nil {
		c.TopP = floatPtr(DefaultTopP)
	}
	c.MaxTokens = values.NumbersCoalesce(c.MaxTokens, DefaultMaxTokens)
	c.FlushEvery = values.NumbersCoalesce(c.FlushEvery, DefaultFlushEvery)
}

// GetTemperature returns the sampling temperature, or the default when unset.
func (c *Config) GetTemperature() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// GetTopP returns the top-p sampling value, or the default when unset.
func (c *Config) GetTopP() float64 {
	if c.TopP == nil {
		return DefaultTopP
	}
	return *c.TopP
}

func floatPtr(v float64) *float64 {
	return &v
}

// ExchangeTimeout returns the client-credentials exchange timeout.
func (c *Config) ExchangeTimeout() time.Duration {
	if c.ExchangeTimeoutSeconds > 0 {
		return time.Duration(c.ExchangeTimeoutSeconds) * time.Second
	}
	return DefaultExchangeTimeout
}

// SessionTimeout returns the gateway session timeout.
func (c *Config) SessionTimeout() time.Duration {
	if c.SessionTimeoutSeconds > 0 {
		return time.Duration(c.SessionTimeoutSeconds) * time.Second
	}
	return DefaultSessionTimeout
}

// Path returns the location of a configuration file in WorkDir.
func (c *Config) Path(name string) string {
	return filepath.Join(values.StringsCoalesce(c.WorkDir, "."), name)
}

// ParseBool accepts true, 1 and yes, case-insensitive.
// Anything else is false.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
