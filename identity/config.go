package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// Config is the content of .cognito-info.json
type Config struct {
	DiscoveryURL  string `json:"discoveryUrl,omitempty"`
	ClientID      string `json:"clientId,omitempty"`
	ClientSecret  string `json:"clientSecret,omitempty"`
	ScopeString   string `json:"scopeString,omitempty"`
	UserPoolID    string `json:"userPoolId,omitempty"`
	CognitoDomain string `json:"cognitoDomain,omitempty"`

	// TokenURL overrides the endpoint derived from CognitoDomain.
	TokenURL string `json:"tokenUrl,omitempty"`
}

// LoadConfig reads the identity configuration from file.
func LoadConfig(file string) (*Config, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cfg := new(Config)
	if err = json.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "unable to parse %s", file)
	}
	return cfg, nil
}

// AllowedClients returns the client IDs accepted on inbound tokens.
func (c *Config) AllowedClients() []string {
	if c == nil || c.ClientID == "" {
		return nil
	}
	return []string{c.ClientID}
}

// CanExchange reports whether a client-credentials exchange can be attempted.
func (c *Config) CanExchange() bool {
	return c != nil && c.ClientID != "" && (c.UserPoolID != "" || c.CognitoDomain != "" || c.TokenURL != "")
}

// GetTokenURL returns the OAuth2 token endpoint. When CognitoDomain is not
// set, it is derived from the user pool ID and region.
func (c *Config) GetTokenURL(region string) string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	domain := c.CognitoDomain
	if domain == "" {
		prefix := strings.ToLower(strings.ReplaceAll(c.UserPoolID, "_", "-"))
		domain = fmt.Sprintf("%s.auth.%s.amazoncognito.com", prefix, region)
	}
	return "https://" + domain + "/oauth2/token"
}
