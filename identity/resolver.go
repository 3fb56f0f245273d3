package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentgate/pkg/metricskey"
	"github.com/effective-security/xlog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentgate", "identity")

var (
	// ErrNoCredentialAvailable is returned when every step of the chain failed.
	ErrNoCredentialAvailable = errors.New("no credential available")
	// ErrProvider marks failures of the identity provider.
	ErrProvider = errors.New("identity provider error")
)

// DefaultExchangeTimeout bounds the client-credentials exchange.
const DefaultExchangeTimeout = 30 * time.Second

// TimeNowFn is used for AcquiredAt.
var TimeNowFn = time.Now

// RefreshRecorder is notified once per successful exchange.
type RefreshRecorder interface {
	RecordTokenRefresh()
}

// Resolver resolves the outbound bearer token.
type Resolver struct {
	cfg             *Config
	region          string
	tokenFile       string
	localValidation bool
	exchangeTimeout time.Duration
	httpClient      *http.Client
	recorder        RefreshRecorder

	cache TokenCache
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithLocalValidation accepts validated inbound tokens as the outbound token.
func WithLocalValidation(enabled bool) Option {
	return func(r *Resolver) {
		r.localValidation = enabled
	}
}

// WithTokenFile sets the location of .cognito-token.json
func WithTokenFile(file string) Option {
	return func(r *Resolver) {
		r.tokenFile = file
	}
}

// WithRegion sets the region used to derive the Cognito domain.
func WithRegion(region string) Option {
	return func(r *Resolver) {
		r.region = region
	}
}

// WithExchangeTimeout sets the timeout of the client-credentials exchange.
func WithExchangeTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.exchangeTimeout = d
		}
	}
}

// WithHTTPClient sets the client used for the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		r.httpClient = c
	}
}

// WithRefreshRecorder sets the recorder of successful exchanges.
func WithRefreshRecorder(rec RefreshRecorder) Option {
	return func(r *Resolver) {
		r.recorder = rec
	}
}

// NewResolver returns a Resolver. cfg may be nil, which disables the exchange.
func NewResolver(cfg *Config, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:             cfg,
		region:          "us-east-1",
		tokenFile:       ".cognito-token.json",
		exchangeTimeout: DefaultExchangeTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the token to present to the gateway. inbound is the
// already validated token of the current request, or empty.
func (r *Resolver) Resolve(ctx context.Context, inbound string) (*BearerToken, error) {
	if r.localValidation && inbound != "" {
		return &BearerToken{
			Value:      inbound,
			Source:     SourceInbound,
			AcquiredAt: TimeNowFn(),
		}, nil
	}

	if t := r.cache.Get(); t != nil {
		return t, nil
	}

	if t := r.readTokenFile(ctx); t != nil {
		return r.cache.SetIfEmpty(t), nil
	}

	if !r.cfg.CanExchange() {
		return nil, errors.WithStack(ErrNoCredentialAvailable)
	}

	t, err := r.exchange(ctx)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "token_exchange_failed",
			"client_id", r.cfg.ClientID,
			"err", err.Error(),
		)
		return nil, errors.Mark(errors.WithMessage(err, ErrNoCredentialAvailable.Error()), ErrNoCredentialAvailable)
	}
	return r.cache.SetIfEmpty(t), nil
}

// Invalidate drops the cached token, such as after the gateway
// rejected it.
func (r *Resolver) Invalidate() {
	r.cache.Clear()
}

func (r *Resolver) readTokenFile(ctx context.Context) *BearerToken {
	if r.tokenFile == "" {
		return nil
	}
	b, err := os.ReadFile(r.tokenFile)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "token_file_unreadable",
				"file", r.tokenFile,
				"err", err.Error(),
			)
		}
		return nil
	}

	var data struct {
		AccessToken string `json:"access_token"`
	}
	if err = json.Unmarshal(b, &data); err != nil || data.AccessToken == "" {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "token_file_invalid",
			"file", r.tokenFile,
		)
		return nil
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "token_loaded",
		"source", SourceCachedFile,
		"length", len(data.AccessToken),
		"fingerprint", Fingerprint(data.AccessToken),
	)
	return &BearerToken{
		Value:      data.AccessToken,
		Source:     SourceCachedFile,
		AcquiredAt: TimeNowFn(),
	}
}

func (r *Resolver) exchange(ctx context.Context) (*BearerToken, error) {
	started := time.Now()
	clientID := r.cfg.ClientID
	tokenURL := r.cfg.GetTokenURL(r.region)

	ctx, cancel := context.WithTimeout(ctx, r.exchangeTimeout)
	defer cancel()
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: r.cfg.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	tok, err := cc.Token(ctx)
	if err != nil && r.cfg.ScopeString != "" {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "token_exchange_retry_with_scope",
			"client_id", clientID,
			"err", err.Error(),
		)
		cc.Scopes = strings.Fields(r.cfg.ScopeString)
		tok, err = cc.Token(ctx)
	}
	metricskey.PerfTokenExchange.MeasureSince(started, clientID)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "token exchange at %s", tokenURL), ErrProvider)
	}

	metricskey.StatsTokenRefresh.IncrCounter(1, clientID)
	if r.recorder != nil {
		r.recorder.RecordTokenRefresh()
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "token_refreshed",
		"source", SourceDynamicExchange,
		"client_id", clientID,
		"length", len(tok.AccessToken),
		"fingerprint", Fingerprint(tok.AccessToken),
	)

	return &BearerToken{
		Value:      tok.AccessToken,
		Source:     SourceDynamicExchange,
		AcquiredAt: TimeNowFn(),
	}, nil
}
