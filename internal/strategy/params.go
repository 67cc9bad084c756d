package strategy

import (
	"net/url"
	"strings"
)

// Params are the request parameters seen by a strategy. Only the first
// value of a repeated key is kept.
type Params map[string]string

// ParamsFromValues flattens url.Values.
func ParamsFromValues(v url.Values) Params {
	p := make(Params, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			p[k] = vals[0]
		}
	}
	return p
}

func (p Params) Get(key string) string {
	return p[key]
}

func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Truthy reports whether key is present with a value that does not read as false.
func (p Params) Truthy(key string) bool {
	v, ok := p[key]
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "f", "false", "no", "off":
		return false
	}
	return true
}
