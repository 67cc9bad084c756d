// Package oauth1 performs the OAuth 1.0a handshake for strategies on top of
// github.com/dghubble/oauth1. Endpoints are rebuilt from ClientOptions on
// every call, so options changed during the request phase take effect.
package oauth1

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/dropDatabas3/twitterauth/internal/strategy"
)

// ClientOptions locate a provider's OAuth 1.0a endpoints.
type ClientOptions struct {
	Site             string `yaml:"site"`
	RequestTokenPath string `yaml:"request_token_path"`
	AuthorizePath    string `yaml:"authorize_path"`
	AccessTokenPath  string `yaml:"access_token_path"`
}

// Endpoint resolves the paths against Site.
func (co ClientOptions) Endpoint() oauth1.Endpoint {
	site := strings.TrimRight(co.Site, "/")
	return oauth1.Endpoint{
		RequestTokenURL: site + co.RequestTokenPath,
		AuthorizeURL:    site + co.AuthorizePath,
		AccessTokenURL:  site + co.AccessTokenPath,
	}
}

// RequestToken is the temporary credential pair.
type RequestToken struct {
	Token  string
	Secret string
}

// AccessToken is the token credential pair.
type AccessToken struct {
	Token  string
	Secret string
}

// Consumer is the OAuth 1.0a client a strategy delegates to.
type Consumer interface {
	// RequestToken obtains temporary credentials. params are sent on the
	// request-token URL (and signed), e.g. x_auth_access_type.
	RequestToken(ctx context.Context, co ClientOptions, callbackURL string, params url.Values) (RequestToken, error)

	// AuthorizeURL is the user-facing authorization URL for token with params appended.
	AuthorizeURL(co ClientOptions, token string, params url.Values) (string, error)

	AccessToken(ctx context.Context, co ClientOptions, rt RequestToken, verifier string) (AccessToken, error)

	// Client returns an HTTP client signing requests with at.
	Client(ctx context.Context, co ClientOptions, at AccessToken) *http.Client
}

// DefaultTimeout bounds a single token exchange with the provider.
const DefaultTimeout = 10 * time.Second

type consumer struct {
	key     string
	secret  string
	timeout time.Duration
	base    http.RoundTripper
}

// ConsumerOption tunes NewConsumer.
type ConsumerOption func(*consumer)

// WithTimeout caps each token exchange. Non-positive values keep DefaultTimeout.
func WithTimeout(d time.Duration) ConsumerOption {
	return func(c *consumer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTransport replaces http.DefaultTransport for token exchanges.
func WithTransport(rt http.RoundTripper) ConsumerOption {
	return func(c *consumer) {
		if rt != nil {
			c.base = rt
		}
	}
}

// NewConsumer returns the dghubble/oauth1 backed Consumer.
func NewConsumer(key, secret string, opts ...ConsumerOption) Consumer {
	c := &consumer{key: key, secret: secret, timeout: DefaultTimeout, base: http.DefaultTransport}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// config builds the dghubble config for one call. Token exchanges go
// through a client bound to ctx so cancellation and deadlines reach the wire.
func (c *consumer) config(ctx context.Context, co ClientOptions, callbackURL string) *oauth1.Config {
	return &oauth1.Config{
		ConsumerKey:    c.key,
		ConsumerSecret: c.secret,
		CallbackURL:    callbackURL,
		Endpoint:       co.Endpoint(),
		HTTPClient: &http.Client{
			Timeout:   c.timeout,
			Transport: ctxTransport{ctx: ctx, base: c.base},
		},
	}
}

// ctxTransport attaches ctx to requests issued by oauth1.Config, whose
// RequestToken and AccessToken build requests without one.
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

func (c *consumer) RequestToken(ctx context.Context, co ClientOptions, callbackURL string, params url.Values) (RequestToken, error) {
	if err := ctx.Err(); err != nil {
		return RequestToken{}, err
	}
	cfg := c.config(ctx, co, callbackURL)
	if len(params) > 0 {
		u, err := withQuery(cfg.Endpoint.RequestTokenURL, params)
		if err != nil {
			return RequestToken{}, err
		}
		cfg.Endpoint.RequestTokenURL = u
	}
	token, secret, err := cfg.RequestToken()
	if err != nil {
		return RequestToken{}, fmt.Errorf("request token: %w", err)
	}
	return RequestToken{Token: token, Secret: secret}, nil
}

func (c *consumer) AuthorizeURL(co ClientOptions, token string, params url.Values) (string, error) {
	u, err := c.config(context.Background(), co, "").AuthorizationURL(token)
	if err != nil {
		return "", fmt.Errorf("authorize url: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *consumer) AccessToken(ctx context.Context, co ClientOptions, rt RequestToken, verifier string) (AccessToken, error) {
	if err := ctx.Err(); err != nil {
		return AccessToken{}, err
	}
	token, secret, err := c.config(ctx, co, "").AccessToken(rt.Token, rt.Secret, verifier)
	if err != nil {
		return AccessToken{}, fmt.Errorf("access token: %w", err)
	}
	return AccessToken{Token: token, Secret: secret}, nil
}

func (c *consumer) Client(ctx context.Context, co ClientOptions, at AccessToken) *http.Client {
	return c.config(ctx, co, "").Client(ctx, oauth1.NewToken(at.Token, at.Secret))
}

func withQuery(raw string, params url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Classify maps a handshake error to a strategy failure. Timeouts and
// transport errors are distinguished; anything else gets fallback.
func Classify(err error, fallback string) *strategy.Failure {
	if strategy.IsTimeout(err) {
		return strategy.Fail(strategy.FailTimeout, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return strategy.Fail(strategy.FailServiceUnavailable, err)
	}
	return strategy.Fail(fallback, err)
}
