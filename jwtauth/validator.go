package jwtauth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v4"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentgate", "jwtauth")

var (
	// ErrUnauthorized is returned when the Authorization header is missing or malformed.
	ErrUnauthorized = errors.New("missing or invalid authorization header")
	// ErrTokenExpired is returned for expired tokens.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrForbidden is returned when the client_id is not allowed.
	ErrForbidden = errors.New("token client_id not allowed")
	// ErrProvider is returned when the discovery document or key set
	// can not be retrieved.
	ErrProvider = errors.New("authentication provider error")

	errEmptyBearer = errors.Mark(errors.New("empty bearer token"), ErrUnauthorized)
	errUnknownKey  = errors.New("unknown key id")
)

const (
	// DefaultFetchTimeout bounds discovery and key set requests.
	DefaultFetchTimeout = 10 * time.Second
	// DefaultRefreshInterval is the minimum time between key set fetches.
	DefaultRefreshInterval = time.Minute
)

// Identity of an authenticated caller.
type Identity struct {
	ClientID string
	// Token is the raw bearer token
	Token  string
	Claims jwt.MapClaims
}

// Validator authenticates inbound bearer tokens.
type Validator struct {
	discoveryURL    string
	allowedClients  []string
	httpClient      *http.Client
	fetchTimeout    time.Duration
	refreshInterval time.Duration
	nowFn           func() time.Time

	uriLock sync.Mutex
	jwksURI string

	// fetchLock serializes key set fetches
	fetchLock sync.Mutex
	keysLock  sync.RWMutex
	keys      *jose.JSONWebKeySet
	fetchedAt time.Time
}

// Option configures the Validator.
type Option func(*Validator)

// WithHTTPClient sets the client used for discovery and key set requests.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Validator) {
		v.httpClient = c
	}
}

// WithRefreshInterval sets the minimum time between key set fetches.
func WithRefreshInterval(d time.Duration) Option {
	return func(v *Validator) {
		v.refreshInterval = d
	}
}

// WithFetchTimeout sets the timeout of discovery and key set requests.
func WithFetchTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.fetchTimeout = d
		}
	}
}

// New returns a Validator. It refuses to activate without a discovery URL
// or an allow-list.
func New(discoveryURL string, allowedClients []string, opts ...Option) (*Validator, error) {
	if discoveryURL == "" {
		return nil, errors.New("jwtauth: discovery URL is required")
	}
	if len(allowedClients) == 0 {
		return nil, errors.New("jwtauth: allowed clients are required")
	}
	v := &Validator{
		discoveryURL:    discoveryURL,
		allowedClients:  allowedClients,
		httpClient:      http.DefaultClient,
		fetchTimeout:    DefaultFetchTimeout,
		refreshInterval: DefaultRefreshInterval,
		nowFn:           time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Authenticate validates the value of the Authorization header.
func (v *Validator) Authenticate(ctx context.Context, authorization string) (*Identity, error) {
	if !strings.HasPrefix(authorization, "Bearer ") {
		return nil, errors.WithStack(ErrUnauthorized)
	}
	token := strings.TrimSpace(authorization[len("Bearer "):])
	if token == "" {
		return nil, errors.WithStack(errEmptyBearer)
	}

	var providerErr error
	keyfunc := func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := v.getKey(ctx, kid)
		if err != nil && !errors.Is(err, errUnknownKey) {
			providerErr = err
		}
		return key, err
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	_, err := parser.ParseWithClaims(token, claims, keyfunc)
	if providerErr != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "jwks_unavailable",
			"err", providerErr.Error(),
		)
		return nil, errors.Mark(errors.WithMessage(providerErr, "jwtauth"), ErrProvider)
	}
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, errors.WithStack(ErrTokenExpired)
		}
		return nil, errors.Mark(errors.WithMessage(err, ErrInvalidToken.Error()), ErrInvalidToken)
	}

	clientID, _ := claims["client_id"].(string)
	if clientID == "" || !slices.Contains(v.allowedClients, clientID) {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "client_not_allowed",
			"client_id", clientID,
		)
		return nil, errors.WithStack(ErrForbidden)
	}

	return &Identity{
		ClientID: clientID,
		Token:    token,
		Claims:   claims,
	}, nil
}

func (v *Validator) lookup(kid string) any {
	v.keysLock.RLock()
	defer v.keysLock.RUnlock()
	if v.keys == nil {
		return nil
	}
	for _, k := range v.keys.Key(kid) {
		if k.Use == "" || k.Use == "sig" {
			return k.Key
		}
	}
	return nil
}

func (v *Validator) getKey(ctx context.Context, kid string) (any, error) {
	if key := v.lookup(kid); key != nil {
		return key, nil
	}
	if err := v.refresh(ctx); err != nil {
		return nil, err
	}
	if key := v.lookup(kid); key != nil {
		return key, nil
	}
	return nil, errors.Wrapf(errUnknownKey, "kid %q", kid)
}

// refresh fetches the key set, at most once per refresh interval.
func (v *Validator) refresh(ctx context.Context) error {
	v.fetchLock.Lock()
	defer v.fetchLock.Unlock()

	v.keysLock.RLock()
	fresh := v.keys != nil && v.nowFn().Sub(v.fetchedAt) < v.refreshInterval
	v.keysLock.RUnlock()
	if fresh {
		return nil
	}

	uri, err := v.resolveJWKSURI(ctx)
	if err != nil {
		return err
	}

	keys := new(jose.JSONWebKeySet)
	if err = v.fetchJSON(ctx, uri, keys); err != nil {
		return errors.WithMessage(err, "unable to fetch key set")
	}

	v.keysLock.Lock()
	v.keys = keys
	v.fetchedAt = v.nowFn()
	v.keysLock.Unlock()

	logger.ContextKV(ctx, xlog.INFO,
		"status", "jwks_refreshed",
		"keys", len(keys.Keys),
	)
	return nil
}

// resolveJWKSURI reads jwks_uri from the discovery document once per process.
func (v *Validator) resolveJWKSURI(ctx context.Context) (string, error) {
	v.uriLock.Lock()
	defer v.uriLock.Unlock()
	if v.jwksURI != "" {
		return v.jwksURI, nil
	}

	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := v.fetchJSON(ctx, v.discoveryURL, &doc); err != nil {
		return "", errors.WithMessage(err, "unable to fetch discovery document")
	}
	if doc.JWKSURI == "" {
		return "", errors.New("no jwks_uri in discovery document")
	}
	v.jwksURI = doc.JWKSURI
	return v.jwksURI, nil
}

func (v *Validator) fetchJSON(ctx context.Context, url string, result any) error {
	ctx, cancel := context.WithTimeout(ctx, v.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.WithStack(err)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("GET %s: status %d", url, resp.StatusCode)
	}
	if err = json.Unmarshal(body, result); err != nil {
		return errors.Wrapf(err, "unable to decode %s", url)
	}
	return nil
}
