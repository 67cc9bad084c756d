package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/twitterauth/internal/config"
)

// fakeTwitter serves the OAuth 1.0a endpoints and /2/users/me.
func fakeTwitter(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var profileCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/request_token", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Authorization"), "oauth_callback=")
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = io.WriteString(w, "oauth_token=rt&oauth_token_secret=rs&oauth_callback_confirmed=true")
	})
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Authorization"), `oauth_verifier="v"`)
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = io.WriteString(w, "oauth_token=at&oauth_token_secret=as&user_id=12345&screen_name=foo")
	})
	mux.HandleFunc("/2/users/me", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&profileCalls, 1)
		assert.Contains(t, r.Header.Get("Authorization"), `oauth_token="at"`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"id":"12345","username":"foo","name":"Foo Bar","location":"Buenos Aires","description":"hi","profile_image_url":"https://pbs.twimg.com/profile_images/1/me_normal.jpg","url":"https://foo.dev"}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &profileCalls
}

func baseConfig(site string) *config.Config {
	cfg := config.Default()
	cfg.Session.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Twitter.ClientID = "ck"
	cfg.Twitter.ClientSecret = "cs"
	cfg.Twitter.ClientOptions.Site = site
	cfg.Metrics.Enabled = false
	return cfg
}

func startApp(t *testing.T, cfg *config.Config, opts Options) (*httptest.Server, *http.Client) {
	t.Helper()
	c, err := Build(context.Background(), cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	srv := httptest.NewServer(c.Handler)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return srv, client
}

func get(t *testing.T, client *http.Client, u string) *http.Response {
	t.Helper()
	resp, err := client.Get(u)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func runLogin(t *testing.T, appURL string, client *http.Client) map[string]any {
	t.Helper()
	resp := get(t, client, appURL+"/auth/twitter")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/oauth/authenticate", loc.Path)
	assert.Equal(t, "rt", loc.Query().Get("oauth_token"))

	resp = get(t, client, appURL+"/auth/twitter/callback?oauth_token=rt&oauth_verifier=v")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestLoginFlow_CookieSessions(t *testing.T) {
	tw, calls := fakeTwitter(t)
	srv, client := startApp(t, baseConfig(tw.URL), Options{})

	body := runLogin(t, srv.URL, client)
	auth := body["auth"].(map[string]any)
	assert.Equal(t, "twitter", auth["provider"])
	assert.Equal(t, "12345", auth["uid"])
	info := auth["info"].(map[string]any)
	assert.Equal(t, "foo", info["nickname"])
	assert.Equal(t, "Foo Bar", info["name"])
	assert.Equal(t, "https://pbs.twimg.com/profile_images/1/me_normal.jpg", info["image"])
	assert.Equal(t, "https://twitter.com/foo", info["urls"].(map[string]any)["Twitter"])
	assert.NotContains(t, auth, "credentials")
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))

	tok := body["ticket"].(string)
	resp, err := client.Post(srv.URL+"/auth/ticket/verify", "application/json", strings.NewReader(`{"ticket":"`+tok+`"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var claims map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&claims))
	assert.Equal(t, "twitter:12345", claims["sub"])
	assert.Equal(t, "foo", claims["nickname"])

	// the ticket is single use
	replay, err := client.Post(srv.URL+"/auth/ticket/verify", "application/json", strings.NewReader(`{"ticket":"`+tok+`"}`))
	require.NoError(t, err)
	defer replay.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, replay.StatusCode)

	// the request token is single use
	resp2 := get(t, client, srv.URL+"/auth/twitter/callback?oauth_token=rt&oauth_verifier=v")
	require.Equal(t, http.StatusFound, resp2.StatusCode)
	assert.Equal(t, "/auth/failure?message=session_expired&strategy=twitter", resp2.Header.Get("Location"))
}

func TestLoginFlow_Denied(t *testing.T) {
	tw, calls := fakeTwitter(t)
	srv, client := startApp(t, baseConfig(tw.URL), Options{})

	require.Equal(t, http.StatusFound, get(t, client, srv.URL+"/auth/twitter").StatusCode)
	resp := get(t, client, srv.URL+"/auth/twitter/callback?denied=rt")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc := resp.Header.Get("Location")
	assert.Equal(t, "/auth/failure?message=access_denied&strategy=twitter", loc)
	assert.EqualValues(t, 0, atomic.LoadInt32(calls))

	resp = get(t, client, srv.URL+loc)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var e map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "access_denied", e["code"])
	assert.Equal(t, "twitter", e["detail"])
}

func TestLoginFlow_SuccessRedirect(t *testing.T) {
	tw, _ := fakeTwitter(t)
	cfg := baseConfig(tw.URL)
	cfg.Auth.SuccessRedirect = "https://app.example.com/welcome?from=login"
	srv, client := startApp(t, cfg, Options{})

	require.Equal(t, http.StatusFound, get(t, client, srv.URL+"/auth/twitter").StatusCode)
	resp := get(t, client, srv.URL+"/auth/twitter/callback?oauth_token=rt&oauth_verifier=v")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", loc.Host)
	assert.Equal(t, "login", loc.Query().Get("from"))
	assert.NotEmpty(t, loc.Query().Get("ticket"))
}

func TestLoginFlow_RedisSessionsAndRateLimit(t *testing.T) {
	tw, _ := fakeTwitter(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := baseConfig(tw.URL)
	cfg.Cache.Kind = "redis"
	cfg.Session.Store = "cache"
	cfg.Rate.Enabled = true
	cfg.Rate.Limit = 1
	srv, client := startApp(t, cfg, Options{Redis: rdb})

	body := runLogin(t, srv.URL, client)
	assert.Equal(t, "12345", body["auth"].(map[string]any)["uid"])

	var sessionKeys int
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "twitterauth:session:") {
			sessionKeys++
		}
	}
	assert.Equal(t, 1, sessionKeys)

	resp := get(t, client, srv.URL+"/auth/twitter")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	var e map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "rate_limited", e["code"])
}

func TestHealthStrategiesAndMetrics(t *testing.T) {
	tw, _ := fakeTwitter(t)
	cfg := baseConfig(tw.URL)
	cfg.Metrics.Enabled = true
	srv, client := startApp(t, cfg, Options{Registry: prometheus.NewRegistry()})

	resp := get(t, client, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp = get(t, client, srv.URL+"/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, client, srv.URL+"/auth/strategies")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var s map[string][]map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	assert.Equal(t, []map[string]string{{"name": "twitter", "request_url": "/auth/twitter"}}, s["strategies"])

	runLogin(t, srv.URL, client)

	resp = get(t, client, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `auth_phase_total{phase="callback",result="success",strategy="twitter"}`)
	assert.Contains(t, string(b), "http_requests_total")

	resp = get(t, client, srv.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBuild_UnknownSessionStore(t *testing.T) {
	cfg := baseConfig("http://127.0.0.1:1")
	cfg.Session.Store = "file"
	_, err := Build(context.Background(), cfg, Options{})
	require.Error(t, err)
}
