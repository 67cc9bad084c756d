package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/twitterauth/internal/cache"
	"github.com/dropDatabas3/twitterauth/internal/rate"
	"github.com/dropDatabas3/twitterauth/internal/strategy"
	"github.com/dropDatabas3/twitterauth/internal/ticket"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "rid-1")
	WriteError(w, ErrBadRequest.WithDetail("ticket required"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	e := decodeErr(t, w)
	assert.Equal(t, "bad_request", e.Code)
	assert.Equal(t, "ticket required", e.Detail)
	assert.Equal(t, "rid-1", e.RequestID)
	assert.Empty(t, ErrBadRequest.Detail)

	w = httptest.NewRecorder()
	WriteError(w, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", decodeErr(t, w).Code)
}

func TestWithRequestID(t *testing.T) {
	h := WithRequestID(ok)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

func TestWithRecover(t *testing.T) {
	h := WithRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("kaboom") }))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type stubLimiter struct {
	res  rate.Result
	err  error
	keys []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (rate.Result, error) {
	s.keys = append(s.keys, key)
	return s.res, s.err
}

func TestWithRateLimit(t *testing.T) {
	l := &stubLimiter{res: rate.Result{Allowed: false, RetryAfter: 1500 * time.Millisecond, WindowTTL: time.Minute}}
	h := WithClientIP(true)(WithRateLimit(l, "/auth/twitter")(ok))

	r := httptest.NewRequest("GET", "/auth/twitter", nil)
	r.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeErr(t, w).Code)
	assert.Equal(t, []string{"9.9.9.9|/auth/twitter"}, l.keys)

	// unguarded path
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/auth/twitter/callback", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, l.keys, 1)

	// limiter errors fail open
	l.err = errors.New("redis down")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/auth/twitter", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	l.err = nil
	l.res = rate.Result{Allowed: true, Remaining: 3}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/auth/twitter", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Remaining"))
}

func TestWithClientIP(t *testing.T) {
	l := &stubLimiter{res: rate.Result{Allowed: true}}
	r := httptest.NewRequest("GET", "/auth/twitter", nil)
	r.RemoteAddr = "203.0.113.7:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	WithClientIP(false)(WithRateLimit(l, "/auth/twitter")(ok)).ServeHTTP(httptest.NewRecorder(), r)
	WithClientIP(true)(WithRateLimit(l, "/auth/twitter")(ok)).ServeHTTP(httptest.NewRecorder(), r)

	r.Header.Set("X-Forwarded-For", " ")
	WithClientIP(true)(WithRateLimit(l, "/auth/twitter")(ok)).ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, []string{
		"203.0.113.7|/auth/twitter",
		"1.2.3.4|/auth/twitter",
		"203.0.113.7|/auth/twitter",
	}, l.keys)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/", normalizePath(""))
	assert.Equal(t, "/auth/twitter/callback", normalizePath("/auth/twitter/callback?oauth_token=x"))
	assert.Equal(t, "/users/:param", normalizePath("/users/12345"))
	assert.Equal(t, "/s/:param", normalizePath("/s/3f2b8c1e-1111-4a4a-9b9b-0123456789ab"))
}

func TestFailureHandler(t *testing.T) {
	cases := map[string]int{
		"access_denied":       http.StatusUnauthorized,
		"session_expired":     http.StatusUnauthorized,
		"timeout":             http.StatusBadGateway,
		"service_unavailable": http.StatusBadGateway,
		"":                    http.StatusInternalServerError,
	}
	for msg, status := range cases {
		w := httptest.NewRecorder()
		failureHandler(w, httptest.NewRequest("GET", "/auth/failure?strategy=twitter&message="+msg, nil))
		assert.Equal(t, status, w.Code, msg)
		assert.Equal(t, "twitter", decodeErr(t, w).Detail)
	}
}

func newTestIssuer(t *testing.T) *ticket.Issuer {
	t.Helper()
	i, err := ticket.NewIssuer("test", time.Minute, bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	return i
}

func TestSuccessAndVerify(t *testing.T) {
	issuer := newTestIssuer(t)
	hash := &strategy.AuthHash{
		Provider:    "twitter",
		UID:         "42",
		Info:        strategy.Identity{Nickname: "foo", Email: "foo@example.com"},
		Credentials: strategy.Credentials{Token: "at", Secret: "as"},
		Extra:       map[string]any{"raw_info": map[string]any{"id": "42"}},
	}

	w := httptest.NewRecorder()
	SuccessHandler(issuer, "")(w, httptest.NewRequest("GET", "/auth/twitter/callback", nil), hash)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"as"`)
	var resp successResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "42", resp.Auth.UID)

	verify := verifyTicketHandler(issuer, cache.NewMemory("test", time.Minute))

	w = httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/auth/ticket/verify", strings.NewReader("ticket="+resp.Ticket))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	verify(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sub":"twitter:42"`)

	// replay del mismo ticket
	w = httptest.NewRecorder()
	r = httptest.NewRequest("POST", "/auth/ticket/verify", strings.NewReader(`{"ticket":"`+resp.Ticket+`"}`))
	r.Header.Set("Content-Type", "application/json")
	verify(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	e := decodeErr(t, w)
	assert.Equal(t, "invalid_ticket", e.Code)
	assert.Equal(t, "ticket already used", e.Detail)

	w = httptest.NewRecorder()
	r = httptest.NewRequest("POST", "/auth/ticket/verify", strings.NewReader(`{"ticket":"nope"}`))
	r.Header.Set("Content-Type", "application/json")
	verify(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_ticket", decodeErr(t, w).Code)

	w = httptest.NewRecorder()
	verify(w, httptest.NewRequest("POST", "/auth/ticket/verify", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuccessRedirect(t *testing.T) {
	w := httptest.NewRecorder()
	SuccessHandler(newTestIssuer(t), "https://app.example.com/done")(w,
		httptest.NewRequest("GET", "/auth/twitter/callback", nil),
		&strategy.AuthHash{Provider: "twitter", UID: "42"})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "https://app.example.com/done?ticket="))
}

type brokenCache struct{ cache.Client }

func (brokenCache) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestVerifyTicket_StoreDown(t *testing.T) {
	issuer := newTestIssuer(t)
	tok, _, err := issuer.Issue(&strategy.AuthHash{Provider: "twitter", UID: "42"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/auth/ticket/verify", strings.NewReader("ticket="+tok))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	verifyTicketHandler(issuer, brokenCache{})(w, r)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "service_unavailable", decodeErr(t, w).Code)
}
