package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentgate/identity"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const graphqlTool = "countries-graphql-target___executeGraphQLQuery"

type queryArgs struct {
	Query string `json:"query" jsonschema:"GraphQL query"`
}

type fakeGateway struct {
	srv *httptest.Server

	lock    sync.Mutex
	headers []string
}

func (f *fakeGateway) authHeaders() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.headers...)
}

func newFakeGateway(t *testing.T) *fakeGateway {
	server := mcp.NewServer(&mcp.Implementation{Name: "countries", Version: "v1.0.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        graphqlTool,
		Description: "Executes a GraphQL query against the countries API",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in queryArgs) (*mcp.CallToolResult, any, error) {
		if !strings.Contains(in.Query, "country") {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: "unsupported query"}},
			}, nil, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: `{"data":{"country":{"code":"BR","name":"Brazil","capital":"Brasília","currency":"BRL"}}}`}},
		}, nil, nil
	})
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ping",
		Description: "Ping",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in struct{}) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "pong"}}}, nil, nil
	})

	f := &fakeGateway{}
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		f.lock.Lock()
		f.headers = append(f.headers, auth)
		f.lock.Unlock()
		if auth == "Bearer revoked" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func token(v string) *identity.BearerToken {
	return &identity.BearerToken{Value: v, Source: identity.SourceDynamicExchange}
}

func TestWithSession(t *testing.T) {
	gw := newFakeGateway(t)
	conn := New(StaticEndpoint(Endpoint{URL: gw.srv.URL, Region: "us-east-1"}))
	ctx := context.Background()

	var session *Session
	var output string
	err := conn.WithSession(ctx, token("abc"), func(ctx context.Context, s *Session) error {
		session = s
		list, err := s.ListTools(ctx)
		if err != nil {
			return err
		}
		require.Len(t, list, 2)

		tl := Tools(s, list)
		require.Len(t, tl, 2)
		var gql *remoteTool
		for _, x := range tl {
			if x.Name() == graphqlTool {
				gql = x.(*remoteTool)
			}
		}
		require.NotNil(t, gql)
		assert.NotEmpty(t, gql.Description())
		assert.NotNil(t, gql.Parameters())

		output, err = gql.Call(ctx, `{"query":"{ country(code: \"BR\") { name capital currency } }"}`)
		return err
	})
	require.NoError(t, err)
	assert.Contains(t, output, "Brasília")
	require.NotNil(t, session)
	assert.True(t, session.Closed())
	assert.Positive(t, session.ConnectionTime())

	headers := gw.authHeaders()
	require.NotEmpty(t, headers)
	for _, h := range headers {
		assert.Equal(t, "Bearer abc", h)
	}

	assert.Equal(t, gw.srv.URL, conn.Endpoint().URL)
}

func TestWithSession_ClosedOnDispatchFailure(t *testing.T) {
	gw := newFakeGateway(t)
	conn := New(StaticEndpoint(Endpoint{URL: gw.srv.URL}))

	var session *Session
	err := conn.WithSession(context.Background(), token("abc"), func(ctx context.Context, s *Session) error {
		session = s
		_, err := s.Dispatch(ctx, graphqlTool, `{"query":"{ continents { name } }"}`)
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolDispatch))
	assert.Contains(t, err.Error(), "unsupported query")
	require.NotNil(t, session)
	assert.True(t, session.Closed())

	// dispatch on a closed session fails
	_, err = session.Dispatch(context.Background(), "ping", "")
	assert.True(t, errors.Is(err, ErrToolDispatch))
	_, err = session.ListTools(context.Background())
	assert.Error(t, err)
	assert.NoError(t, session.Close())
}

func TestWithSession_ClosedOnPanic(t *testing.T) {
	gw := newFakeGateway(t)
	conn := New(StaticEndpoint(Endpoint{URL: gw.srv.URL}))

	var session *Session
	assert.Panics(t, func() {
		_ = conn.WithSession(context.Background(), token("abc"), func(ctx context.Context, s *Session) error {
			session = s
			panic("boom")
		})
	})
	require.NotNil(t, session)
	assert.True(t, session.Closed())
}

func TestDispatch_Errors(t *testing.T) {
	gw := newFakeGateway(t)
	conn := New(StaticEndpoint(Endpoint{URL: gw.srv.URL}))

	err := conn.WithSession(context.Background(), token("abc"), func(ctx context.Context, s *Session) error {
		out, err := s.Dispatch(ctx, "ping", "")
		require.NoError(t, err)
		assert.Equal(t, "pong", out)

		_, err = s.Dispatch(ctx, "ping", "{not json")
		assert.True(t, errors.Is(err, ErrToolDispatch))

		_, err = s.Dispatch(ctx, "no_such_tool", "{}")
		assert.True(t, errors.Is(err, ErrToolDispatch))
		return nil
	})
	require.NoError(t, err)
}

func TestOpen_NoToken(t *testing.T) {
	gw := newFakeGateway(t)
	conn := New(StaticEndpoint(Endpoint{URL: gw.srv.URL}))

	// attempted without the header
	err := conn.WithSession(context.Background(), nil, func(ctx context.Context, s *Session) error {
		_, err := s.ListTools(ctx)
		return err
	})
	require.NoError(t, err)
	for _, h := range gw.authHeaders() {
		assert.Empty(t, h)
	}
}

func TestOpen_Rejected(t *testing.T) {
	gw := newFakeGateway(t)
	conn := New(StaticEndpoint(Endpoint{URL: gw.srv.URL}))

	called := false
	err := conn.WithSession(context.Background(), token("revoked"), func(ctx context.Context, s *Session) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, errors.Is(err, ErrGatewayUnreachable))
	assert.True(t, errors.Is(err, ErrTokenRejected))
}

func TestOpen_Unreachable(t *testing.T) {
	conn := New(StaticEndpoint(Endpoint{}))
	_, err := conn.Open(context.Background(), token("abc"))
	assert.True(t, errors.Is(err, ErrGatewayUnreachable))
	assert.Nil(t, conn.Endpoint())

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	conn = New(StaticEndpoint(Endpoint{URL: url}))
	_, err = conn.Open(context.Background(), token("abc"))
	assert.True(t, errors.Is(err, ErrGatewayUnreachable))
	assert.False(t, errors.Is(err, ErrTokenRejected))
}

func TestClientBuiltOnce(t *testing.T) {
	gw := newFakeGateway(t)
	calls := 0
	conn := New(func() (*Endpoint, error) {
		calls++
		return &Endpoint{URL: gw.srv.URL}, nil
	})
	for i := 0; i < 3; i++ {
		err := conn.WithSession(context.Background(), token("abc"), func(ctx context.Context, s *Session) error {
			_, err := s.ListTools(ctx)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}

func TestResolveEndpoint(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".gateway-info.json")
	js, err := json.Marshal(Endpoint{URL: "https://from-file.example.com/mcp", Region: "eu-west-1"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, js, 0o600))

	ep, err := ResolveEndpoint("https://override.example.com/mcp", "", file)
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.com/mcp", ep.URL)
	assert.Equal(t, "eu-west-1", ep.Region)
	assert.Equal(t, "override.example.com", ep.Host())

	ep, err = NewEndpointResolver("", "us-west-2", file)()
	require.NoError(t, err)
	assert.Equal(t, "https://from-file.example.com/mcp", ep.URL)
	assert.Equal(t, "us-west-2", ep.Region)

	ep, err = ResolveEndpoint("", "", filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, ep.URL)

	require.NoError(t, os.WriteFile(file, []byte("{"), 0o600))
	ep, err = ResolveEndpoint("", "", file)
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, ep.URL)

	saved := DefaultURL
	DefaultURL = ""
	defer func() { DefaultURL = saved }()
	_, err = ResolveEndpoint("", "", "")
	assert.True(t, errors.Is(err, ErrGatewayUnreachable))

	assert.Equal(t, "unknown", (&Endpoint{URL: "::"}).Host())
}
