package strategy

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/dropDatabas3/twitterauth/internal/observability/logger"
	"github.com/gorilla/sessions"
)

// Middleware mounts strategies in front of an application handler.
//
// For a strategy named "twitter" and PathPrefix "/auth":
//
//	GET|POST /auth/twitter      request phase, redirect to the provider
//	<strategy.CallbackPath()>   callback phase, OnSuccess or failure redirect
type Middleware struct {
	PathPrefix  string // default "/auth"
	FailurePath string // default PathPrefix + "/failure"
	FullHost    string // optional scheme://host override
	TrustProxy  bool   // read X-Forwarded-Proto/Host when FullHost is empty
	SessionName string
	Store       sessions.Store

	OnSuccess func(w http.ResponseWriter, r *http.Request, hash *AuthHash)

	// OnPhase is called after every phase with result "success" or a failure key.
	OnPhase func(strategy, phase, result string)

	names     []string
	factories map[string]Factory
}

// Register adds a strategy under name.
func (m *Middleware) Register(name string, f Factory) {
	if m.factories == nil {
		m.factories = make(map[string]Factory)
	}
	if _, ok := m.factories[name]; !ok {
		m.names = append(m.names, name)
	}
	m.factories[name] = f
}

// Strategies returns the registered strategy names in registration order.
func (m *Middleware) Strategies() []string {
	return append([]string(nil), m.names...)
}

// Prefix is PathPrefix without a trailing slash, "/auth" when unset.
func (m *Middleware) Prefix() string {
	if m.PathPrefix == "" {
		return "/auth"
	}
	return strings.TrimRight(m.PathPrefix, "/")
}

// FailureEndpoint is where failed phases redirect to.
func (m *Middleware) FailureEndpoint() string {
	if m.FailurePath == "" {
		return m.Prefix() + "/failure"
	}
	return m.FailurePath
}

// RequestPath is the request-phase path for name.
func (m *Middleware) RequestPath(name string) string {
	return m.Prefix() + "/" + name
}

// Handler wraps next.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.names) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		log := logger.From(r.Context()).With(logger.Layer("middleware"))
		sess, err := m.Store.Get(r, m.SessionName)
		if err != nil {
			// a stale or tampered cookie still yields a usable empty session
			log.Debug("session load failed", logger.Err(err))
		}
		if sess == nil {
			sess = sessions.NewSession(m.Store, m.SessionName)
		}
		s := GorillaSession{S: sess}

		for _, name := range m.names {
			if r.URL.Path == m.RequestPath(name) && (r.Method == http.MethodGet || r.Method == http.MethodPost) {
				env := NewHTTPEnv(r, s, m.FullHost, m.TrustProxy)
				if b, err := json.Marshal(env.Params()); err == nil {
					s.Set(ParamsSessionKey, string(b))
				}
				m.request(w, r, sess, name, m.factories[name](env))
				return
			}

			st := m.factories[name](NewHTTPEnv(r, s, m.FullHost, m.TrustProxy))
			if r.URL.Path == st.CallbackPath() {
				m.callback(w, r, sess, st)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) request(w http.ResponseWriter, r *http.Request, sess *sessions.Session, name string, st Strategy) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Strategy(name), logger.Phase(PhaseRequest))

	redirect, err := st.RequestPhase(ctx)
	if err != nil {
		m.fail(w, r, name, PhaseRequest, err)
		return
	}
	if err := sess.Save(r, w); err != nil {
		m.fail(w, r, name, PhaseRequest, err)
		return
	}
	m.observe(name, PhaseRequest, "success")
	log.Debug("redirecting to provider")

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (m *Middleware) callback(w http.ResponseWriter, r *http.Request, sess *sessions.Session, st Strategy) {
	ctx := r.Context()
	name := st.Name()
	log := logger.From(ctx).With(logger.Strategy(name), logger.Phase(PhaseCallback))

	hash, err := st.CallbackPhase(ctx)
	delete(sess.Values, ParamsSessionKey)
	if saveErr := sess.Save(r, w); saveErr != nil {
		log.Warn("session save failed", logger.Err(saveErr))
	}
	if err != nil {
		m.fail(w, r, name, PhaseCallback, err)
		return
	}
	m.observe(name, PhaseCallback, "success")
	log.Info("authenticated", logger.UID(hash.UID), logger.Nickname(hash.Info.Nickname))

	if m.OnSuccess == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	m.OnSuccess(w, r, hash)
}

func (m *Middleware) fail(w http.ResponseWriter, r *http.Request, name, phase string, err error) {
	f := AsFailure(err)
	m.observe(name, phase, f.Type)
	logger.From(r.Context()).Warn("authentication failed",
		logger.Strategy(name),
		logger.Phase(phase),
		logger.Failure(f.Type),
		logger.Err(err),
	)

	q := url.Values{}
	q.Set("message", f.Type)
	q.Set("strategy", name)
	http.Redirect(w, r, m.FailureEndpoint()+"?"+q.Encode(), http.StatusFound)
}

func (m *Middleware) observe(name, phase, result string) {
	if m.OnPhase != nil {
		m.OnPhase(name, phase, result)
	}
}
