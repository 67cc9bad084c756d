package strategy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dropDatabas3/twitterauth/internal/cache"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

// CacheStore is a gorilla sessions.Store that keeps values in a cache.Client.
// The cookie only carries the signed session id. Only string keys and values
// are persisted.
type CacheStore struct {
	Cache   cache.Client
	Codecs  []securecookie.Codec
	Options *sessions.Options
}

// NewCacheStore builds a CacheStore. keyPairs follow securecookie.CodecsFromPairs.
func NewCacheStore(c cache.Client, keyPairs ...[]byte) *CacheStore {
	s := &CacheStore{
		Cache:  c,
		Codecs: securecookie.CodecsFromPairs(keyPairs...),
		Options: &sessions.Options{
			Path:     "/",
			MaxAge:   86400,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
	}
	s.MaxAge(s.Options.MaxAge)
	return s
}

// MaxAge sets the cookie and codec max age.
func (s *CacheStore) MaxAge(age int) {
	s.Options.MaxAge = age
	for _, c := range s.Codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(age)
		}
	}
}

func (s *CacheStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

func (s *CacheStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &session.ID, s.Codecs...); err != nil {
		session.ID = ""
		return session, err
	}

	raw, err := s.Cache.Get(r.Context(), s.key(session.ID))
	if cache.IsNotFound(err) {
		return session, nil
	}
	if err != nil {
		return session, fmt.Errorf("session load: %w", err)
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return session, fmt.Errorf("session decode: %w", err)
	}
	for k, v := range values {
		session.Values[k] = v
	}
	session.IsNew = false
	return session, nil
}

func (s *CacheStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.Cache.Delete(r.Context(), s.key(session.ID)); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}

	values := make(map[string]string, len(session.Values))
	for k, v := range session.Values {
		ks, kok := k.(string)
		vs, vok := v.(string)
		if kok && vok {
			values[ks] = vs
		}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return err
	}
	ttl := time.Duration(session.Options.MaxAge) * time.Second
	if err := s.Cache.Set(r.Context(), s.key(session.ID), string(b), ttl); err != nil {
		return fmt.Errorf("session store: %w", err)
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

func (s *CacheStore) key(id string) string {
	return "session:" + id
}
