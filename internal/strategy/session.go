package strategy

import "github.com/gorilla/sessions"

// Session is the per-user key/value store strategies keep handshake state in.
type Session interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// MapSession is an in-memory Session.
type MapSession map[string]string

func (m MapSession) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m MapSession) Set(key, value string) { m[key] = value }
func (m MapSession) Delete(key string)     { delete(m, key) }

// GorillaSession adapts a gorilla session. Non-string values are ignored.
type GorillaSession struct {
	S *sessions.Session
}

func (g GorillaSession) Get(key string) (string, bool) {
	v, ok := g.S.Values[key].(string)
	return v, ok
}

func (g GorillaSession) Set(key, value string) { g.S.Values[key] = value }
func (g GorillaSession) Delete(key string)     { delete(g.S.Values, key) }
