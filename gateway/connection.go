package gateway

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentgate/identity"
	"github.com/effective-security/agentgate/pkg/metricskey"
	"github.com/effective-security/xlog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentgate", "gateway")

var (
	// ErrGatewayUnreachable is returned when the endpoint can not be resolved
	// or the session can not be opened.
	ErrGatewayUnreachable = errors.New("gateway unreachable")
	// ErrToolDispatch is returned when a remote tool call failed.
	ErrToolDispatch = errors.New("tool dispatch failed")
	// ErrTokenRejected marks failures where the gateway answered 401.
	ErrTokenRejected = errors.New("gateway rejected the token")
)

// DefaultSessionTimeout bounds a session, including tool listing and dispatch.
const DefaultSessionTimeout = 60 * time.Second

// Connection to the tool gateway
type Connection struct {
	resolveEndpoint EndpointResolver
	timeout         time.Duration
	transport       http.RoundTripper
	impl            *mcp.Implementation

	lock     sync.Mutex
	client   *mcp.Client
	endpoint *Endpoint
}

// Option configures the Connection.
type Option func(*Connection)

// WithSessionTimeout sets the session timeout.
func WithSessionTimeout(d time.Duration) Option {
	return func(c *Connection) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTransport sets the base HTTP transport.
func WithTransport(t http.RoundTripper) Option {
	return func(c *Connection) {
		c.transport = t
	}
}

// WithImplementation sets the client name and version reported to the gateway.
func WithImplementation(name, version string) Option {
	return func(c *Connection) {
		c.impl = &mcp.Implementation{Name: name, Version: version}
	}
}

// New returns a Connection. The MCP client is built on first use.
func New(resolver EndpointResolver, opts ...Option) *Connection {
	c := &Connection{
		resolveEndpoint: resolver,
		timeout:         DefaultSessionTimeout,
		transport:       http.DefaultTransport,
		impl:            &mcp.Implementation{Name: "agentgate", Version: "v0.1.0"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the resolved endpoint, or nil before first use.
func (c *Connection) Endpoint() *Endpoint {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.endpoint
}

func (c *Connection) getClient() (*mcp.Client, *Endpoint, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.client != nil {
		return c.client, c.endpoint, nil
	}

	ep, err := c.resolveEndpoint()
	if err != nil {
		return nil, nil, errors.Mark(errors.WithMessage(err, "unable to resolve gateway endpoint"), ErrGatewayUnreachable)
	}
	if ep == nil || ep.URL == "" {
		return nil, nil, errors.WithStack(ErrGatewayUnreachable)
	}

	c.client = mcp.NewClient(c.impl, nil)
	c.endpoint = ep
	logger.KV(xlog.INFO,
		"status", "gateway_client_created",
		"url", ep.URL,
		"region", ep.Region,
	)
	return c.client, c.endpoint, nil
}

// Open opens a session authenticated with token. The caller must Close it.
// A nil token is allowed: the call is attempted and the gateway may reject it.
func (c *Connection) Open(ctx context.Context, token *identity.BearerToken) (*Session, error) {
	client, ep, err := c.getClient()
	if err != nil {
		return nil, err
	}

	rt := &bearerTransport{base: c.transport}
	if token != nil && token.Value != "" {
		rt.token = token.Value
	} else {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "no_bearer_token",
			"url", ep.URL,
			"reason", "gateway may reject the request",
		)
	}

	started := time.Now()
	transport := &mcp.StreamableClientTransport{
		Endpoint:   ep.URL,
		HTTPClient: &http.Client{Transport: rt},
	}
	cs, err := client.Connect(ctx, transport, nil)
	if err != nil {
		err = errors.Mark(errors.Wrapf(err, "unable to connect to %s", ep.URL), ErrGatewayUnreachable)
		if rt.rejected.Load() {
			err = errors.Mark(err, ErrTokenRejected)
		}
		return nil, err
	}
	connectedIn := time.Since(started)
	metricskey.PerfGatewayConnect.MeasureSince(started, ep.Host())

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "session_opened",
		"url", ep.URL,
		"token", token.String(),
		"elapsed", connectedIn.String(),
	)

	return &Session{
		cs:          cs,
		transport:   rt,
		connectedIn: connectedIn,
	}, nil
}

// WithSession opens a session, calls fn and closes the session on every
// exit path of fn, including panics.
func (c *Connection) WithSession(ctx context.Context, token *identity.BearerToken, fn func(ctx context.Context, s *Session) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	s, err := c.Open(ctx, token)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			logger.ContextKV(ctx, xlog.DEBUG,
				"status", "session_close_failed",
				"err", cerr.Error(),
			)
		}
	}()

	return fn(ctx, s)
}

// bearerTransport sets the Authorization header on every request.
type bearerTransport struct {
	base     http.RoundTripper
	token    string
	rejected atomic.Bool
}

func (t *bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	clone := r.Clone(r.Context())
	if t.token != "" {
		clone.Header.Set("Authorization", "Bearer "+t.token)
	}
	resp, err := t.base.RoundTrip(clone)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		t.rejected.Store(true)
	}
	return resp, err
}
