package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/effective-security/agentgate/config"
	"github.com/effective-security/agentgate/handler"
	"github.com/effective-security/agentgate/jwtauth"
	"github.com/effective-security/agentgate/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	lock sync.Mutex
	reqs []handler.Request
	agg  *stats.Aggregator
}

func (f *fakeInvoker) Invoke(_ context.Context, req handler.Request) *handler.Response {
	f.lock.Lock()
	f.reqs = append(f.reqs, req)
	f.lock.Unlock()
	f.agg.RecordInvocation()
	return &handler.Response{Response: []string{handler.PrefixModel + "echo: " + req.Prompt}}
}

func (f *fakeInvoker) Stats() *stats.Aggregator {
	return f.agg
}

func (f *fakeInvoker) last() handler.Request {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.reqs[len(f.reqs)-1]
}

func newTestServer() (*Server, *fakeInvoker) {
	inv := &fakeInvoker{agg: stats.New("test-model", 10)}
	return New(&config.Config{Addr: "127.0.0.1:0"}, inv, nil), inv
}

func TestInvocations(t *testing.T) {
	s, inv := newTestServer()
	h := s.Handler()

	r := httptest.NewRequest(http.MethodPost, "/invocations", strings.NewReader(`{"prompt":"hello","requestId":"r1"}`))
	r.Header.Set(SessionIDHeader, "sess-1")
	r.Header.Set("Authorization", "Bearer inbound-token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var resp handler.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"[Model response] echo: hello"}, resp.Response)

	req := inv.last()
	assert.Equal(t, "hello", req.Prompt)
	assert.Equal(t, "r1", req.RequestID)
	assert.Equal(t, "sess-1", req.SessionID)
	assert.Equal(t, "inbound-token", req.InboundToken)

	// request id generated, session id from the body
	r = httptest.NewRequest(http.MethodPost, "/invocations", strings.NewReader(`{"prompt":"x","sessionId":"s2"}`))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	req = inv.last()
	assert.NotEmpty(t, req.RequestID)
	assert.Equal(t, "s2", req.SessionID)
	assert.Empty(t, req.InboundToken)
}

func TestInvocations_BadBody(t *testing.T) {
	s, inv := newTestServer()
	h := s.Handler()

	for _, body := range []string{"", "{", strings.Repeat("a", config.MaxRequestBodySize+1)} {
		r := httptest.NewRequest(http.MethodPost, "/invocations", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	assert.Empty(t, inv.reqs)

	r := httptest.NewRequest(http.MethodGet, "/invocations", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPing(t *testing.T) {
	s, _ := newTestServer()
	h := s.Handler()
	for _, path := range []string{"/ping", "/"} {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"Healthy"}`, w.Body.String())
	}
}

func TestStats(t *testing.T) {
	s, inv := newTestServer()
	h := s.Handler()
	inv.agg.RecordInvocation()

	r := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)

	r = httptest.NewRequest(http.MethodGet, "/stats", nil)
	r.RemoteAddr = "127.0.0.1:40000"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	var snap stats.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.EqualValues(t, 1, snap.Invocations)
}

func TestIsLoopback(t *testing.T) {
	assert.True(t, isLoopback("127.0.0.1:80"))
	assert.True(t, isLoopback("[::1]:80"))
	assert.True(t, isLoopback("::1"))
	assert.False(t, isLoopback("10.0.0.1:80"))
	assert.False(t, isLoopback("bogus"))
}

func TestServe(t *testing.T) {
	s, _ := newTestServer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx)
	}()

	select {
	case <-s.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/ping")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestLogStartupInfo(t *testing.T) {
	LogStartupInfo(&config.Config{ModelID: config.DefaultModelID, WorkDir: t.TempDir()})
	LogStartupInfo(&config.Config{ModelID: config.DefaultModelID, LocalValidation: true})
}

func TestInboundToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/invocations", nil)
	assert.Empty(t, inboundToken(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, inboundToken(r))

	r.Header.Set("Authorization", "Bearer raw")
	assert.Equal(t, "raw", inboundToken(r))

	r = r.WithContext(jwtauth.WithIdentity(r.Context(), &jwtauth.Identity{ClientID: "c1", Token: "validated"}))
	assert.Equal(t, "validated", inboundToken(r))
}
