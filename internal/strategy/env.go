package strategy

import (
	"net/http"
	"strings"
)

// Env is what the host provides to a strategy for one attempt.
type Env interface {
	Params() Params
	Session() Session

	// DefaultCallbackURL is the absolute URL for callbackPath on this host.
	DefaultCallbackURL(callbackPath string) string
}

// HTTPEnv is the Env for an incoming HTTP request.
type HTTPEnv struct {
	req        *http.Request
	session    Session
	fullHost   string
	trustProxy bool
	params     Params
}

// NewHTTPEnv builds an Env for r. fullHost (scheme://host) overrides what is
// derived from the request. X-Forwarded-Proto and X-Forwarded-Host are only
// read when trustProxy is set.
func NewHTTPEnv(r *http.Request, s Session, fullHost string, trustProxy bool) *HTTPEnv {
	return &HTTPEnv{req: r, session: s, fullHost: strings.TrimRight(fullHost, "/"), trustProxy: trustProxy}
}

func (e *HTTPEnv) Params() Params {
	if e.params == nil {
		if err := e.req.ParseForm(); err != nil {
			e.params = ParamsFromValues(e.req.URL.Query())
		} else {
			e.params = ParamsFromValues(e.req.Form)
		}
	}
	return e.params
}

func (e *HTTPEnv) Session() Session { return e.session }

func (e *HTTPEnv) DefaultCallbackURL(callbackPath string) string {
	return e.FullHost() + callbackPath
}

// FullHost returns scheme://host for the current request.
func (e *HTTPEnv) FullHost() string {
	if e.fullHost != "" {
		return e.fullHost
	}
	scheme := "http"
	if e.req.TLS != nil {
		scheme = "https"
	}
	host := e.req.Host
	if !e.trustProxy {
		return scheme + "://" + host
	}
	if p := firstForwarded(e.req.Header.Get("X-Forwarded-Proto")); p != "" {
		scheme = p
	}
	if h := firstForwarded(e.req.Header.Get("X-Forwarded-Host")); h != "" {
		host = h
	}
	return scheme + "://" + host
}

func firstForwarded(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}
