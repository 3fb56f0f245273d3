package jwtauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	issuer := newFakeIssuer(t)
	priv := issuer.addKey(t, "k1")

	v, err := New(issuer.discoveryURL(), []string{"client1"})
	require.NoError(t, err)

	var seen *Identity
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	do := func(path, auth string) *httptest.ResponseRecorder {
		seen = nil
		req := httptest.NewRequest(http.MethodPost, path, nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}
	errorOf := func(w *httptest.ResponseRecorder) string {
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body["error"]
	}

	for _, path := range []string{"/ping", "/ping/", "/"} {
		w := do(path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Nil(t, seen)
	}

	w := do("/invocations", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "Missing or invalid Authorization header", errorOf(w))

	w = do("/invocations", "Bearer x.y.z")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid token", errorOf(w))

	w = do("/invocations", "Bearer "+sign(t, priv, "k1", validClaims("client2")))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "Token client_id not allowed", errorOf(w))

	token := sign(t, priv, "k1", validClaims("client1"))
	w = do("/invocations", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, seen)
	assert.Equal(t, token, seen.Token)

	// the identity does not outlive its request
	w = do("/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, seen)
}

func TestRejection(t *testing.T) {
	tcs := []struct {
		err    error
		status int
		msg    string
	}{
		{errors.WithStack(ErrTokenExpired), http.StatusUnauthorized, "Token expired"},
		{errors.WithStack(ErrInvalidToken), http.StatusUnauthorized, "Invalid token"},
		{errors.WithStack(ErrForbidden), http.StatusForbidden, "Token client_id not allowed"},
		{errors.WithStack(errEmptyBearer), http.StatusUnauthorized, "Empty Bearer token"},
		{errors.WithStack(ErrUnauthorized), http.StatusUnauthorized, "Missing or invalid Authorization header"},
		{errors.New("boom"), http.StatusInternalServerError, "Authentication error"},
	}
	for _, tc := range tcs {
		status, _, msg := Rejection(tc.err)
		assert.Equal(t, tc.status, status, tc.msg)
		assert.Equal(t, tc.msg, msg)
	}
}
