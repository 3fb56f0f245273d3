// Package config - defaults.go centralizes default values.
package config

import "time"

// =============================================================================
// SERVER
// =============================================================================

// DefaultPort is the port the runtime listens on when PORT is not set.
const DefaultPort = "8080"

// DefaultShutdownTimeout bounds the graceful shutdown of the HTTP server.
const DefaultShutdownTimeout = 10 * time.Second

// MaxRequestBodySize is the maximum accepted invocation body (1MB).
const MaxRequestBodySize = 1 << 20

// =============================================================================
// MODEL
// =============================================================================

// DefaultRegion is used when neither AWS_REGION nor .gateway-info.json name one.
const DefaultRegion = "us-east-1"

// DefaultModelID is the Bedrock inference profile for Claude 3.7 Sonnet.
const DefaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

// DefaultTemperature and DefaultTopP are the sampling parameters of the agent.
const (
	DefaultTemperature = 0.3
	DefaultTopP        = 0.8
)

// DefaultMaxTokens is the completion budget of a single model call.
const DefaultMaxTokens = 4096

// =============================================================================
// FILES
// =============================================================================

// Configuration files looked up in the working directory.
const (
	CognitoInfoFile  = ".cognito-info.json"
	CognitoTokenFile = ".cognito-token.json"
	GatewayInfoFile  = ".gateway-info.json"
)

// =============================================================================
// TIMEOUTS
// =============================================================================

// DefaultExchangeTimeout bounds a client-credentials exchange.
const DefaultExchangeTimeout = 30 * time.Second

// DefaultSessionTimeout bounds a gateway session.
const DefaultSessionTimeout = 60 * time.Second

// DefaultDiscoveryTimeout bounds discovery document and key set fetches.
const DefaultDiscoveryTimeout = 10 * time.Second

// =============================================================================
// METRICS
// =============================================================================

// DefaultFlushEvery is how many invocations pass between metric log lines.
const DefaultFlushEvery = 10
