package gateway

import (
	"encoding/json"
	"net/url"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

// DefaultURL is used when neither the environment nor .gateway-info.json
// name the gateway.
var DefaultURL = "https://countries-gateway.gateway.bedrock-agentcore.us-east-1.amazonaws.com/mcp"

// Endpoint of the tool gateway
type Endpoint struct {
	URL    string `json:"gatewayUrl,omitempty"`
	Region string `json:"region,omitempty"`
}

// Host returns the host of the endpoint, for metrics.
func (e *Endpoint) Host() string {
	u, err := url.Parse(e.URL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// EndpointResolver returns the gateway endpoint.
type EndpointResolver func() (*Endpoint, error)

// StaticEndpoint always returns e.
func StaticEndpoint(e Endpoint) EndpointResolver {
	return func() (*Endpoint, error) {
		if e.URL == "" {
			return nil, errors.Mark(errors.New("gateway URL is not configured"), ErrGatewayUnreachable)
		}
		return &e, nil
	}
}

// ResolveEndpoint resolves the endpoint in order: the override URL, the
// connection-info file, DefaultURL. The region is taken from the override,
// then from the file.
func ResolveEndpoint(overrideURL, region, infoFile string) (*Endpoint, error) {
	var info Endpoint
	if infoFile != "" {
		if b, err := os.ReadFile(infoFile); err == nil {
			if err = json.Unmarshal(b, &info); err != nil {
				logger.KV(xlog.WARNING,
					"status", "gateway_info_invalid",
					"file", infoFile,
					"err", err.Error(),
				)
			}
		}
	}

	ep := &Endpoint{
		URL:    values.StringsCoalesce(overrideURL, info.URL, DefaultURL),
		Region: values.StringsCoalesce(region, info.Region),
	}
	if ep.URL == "" {
		return nil, errors.Mark(errors.New("gateway URL is not configured"), ErrGatewayUnreachable)
	}
	return ep, nil
}

// NewEndpointResolver returns a resolver that calls ResolveEndpoint.
func NewEndpointResolver(overrideURL, region, infoFile string) EndpointResolver {
	return func() (*Endpoint, error) {
		return ResolveEndpoint(overrideURL, region, infoFile)
	}
}
