// Package server exposes the runtime contract over HTTP:
// POST /invocations, GET /ping and the loopback-only GET /stats.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentgate/config"
	"github.com/effective-security/agentgate/handler"
	"github.com/effective-security/agentgate/jwtauth"
	"github.com/effective-security/agentgate/stats"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentgate", "server")

// SessionIDHeader carries the runtime session id.
const SessionIDHeader = "X-Amzn-Bedrock-AgentCore-Runtime-Session-Id"

// Invoker handles invocations.
type Invoker interface {
	Invoke(ctx context.Context, req handler.Request) *handler.Response
	Stats() *stats.Aggregator
}

// Server serves the runtime endpoints.
type Server struct {
	address         string
	invoker         Invoker
	auth            *jwtauth.Validator
	shutdownTimeout time.Duration

	ready chan struct{}
	addr  net.Addr
}

// New returns a Server. auth is nil when inbound tokens are validated
// by the managed runtime.
func New(cfg *config.Config, invoker Invoker, auth *jwtauth.Validator) *Server {
	return &Server{
		address:         values.StringsCoalesce(cfg.Addr, ":"+config.DefaultPort),
		invoker:         invoker,
		auth:            auth,
		shutdownTimeout: config.DefaultShutdownTimeout,
		ready:           make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, valid after Ready is closed.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Handler returns the routes, behind the JWT middleware in local mode.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invocations", s.handleInvocations)
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /{$}", s.handlePing)
	mux.HandleFunc("GET /stats", s.handleStats)

	if s.auth != nil {
		return s.auth.Middleware(mux)
	}
	return mux
}

// Serve blocks until ctx is cancelled, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %s", s.address)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.KV(xlog.NOTICE,
		"status", "listening",
		"address", s.addr.String(),
		"local_auth", s.auth != nil,
	)

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		logger.KV(xlog.NOTICE, "status", "shutting_down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	logger.KV(xlog.NOTICE, "status", "stopped")
	return nil
}

type invocationRequest struct {
	Prompt    string `json:"prompt"`
	RequestID string `json:"requestId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)

	var body invocationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.ContextKV(r.Context(), xlog.WARNING,
			"status", "invalid_body",
			"err", err.Error(),
		)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req := handler.Request{
		Prompt:       body.Prompt,
		RequestID:    values.StringsCoalesce(body.RequestID, uuid.NewString()),
		SessionID:    values.StringsCoalesce(r.Header.Get(SessionIDHeader), body.SessionID),
		InboundToken: inboundToken(r),
	}

	resp := s.invoker.Invoke(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

// inboundToken returns the token validated by the middleware, or the raw
// bearer header when validation is done upstream.
func inboundToken(r *http.Request) string {
	if id := jwtauth.FromContext(r.Context()); id != nil {
		return id.Token
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Healthy"})
}

// handleStats is restricted to loopback callers.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}
	writeJSON(w, http.StatusOK, s.invoker.Stats().Snapshot())
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
