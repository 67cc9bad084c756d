// Package strategy is the host side of third-party login: it dispatches the
// request and callback phases to pluggable strategies and hands the resulting
// AuthHash to the application.
//
// Strategies never reach into the HTTP request directly. They receive an Env
// (params, session, default callback URL) at construction time, one instance
// per authentication attempt.
package strategy

import "context"

// Phase names.
const (
	PhaseRequest  = "request"
	PhaseCallback = "callback"
)

// ParamsSessionKey holds the request-phase params (JSON) so the callback
// phase can see what the attempt started with.
const ParamsSessionKey = "auth.params"

// Strategy is one provider login flow.
type Strategy interface {
	Name() string

	// RequestPhase prepares the attempt and returns the provider URL the
	// user agent must be redirected to.
	RequestPhase(ctx context.Context) (string, error)

	// CallbackPhase completes the attempt once the provider redirects back.
	CallbackPhase(ctx context.Context) (*AuthHash, error)

	// CallbackPath is the local path the provider redirects back to.
	CallbackPath() string
}

// Factory builds a fresh Strategy for one attempt.
type Factory func(env Env) Strategy

// Identity is the provider-independent user shape.
type Identity struct {
	Nickname    string            `json:"nickname,omitempty"`
	Name        string            `json:"name,omitempty"`
	Email       string            `json:"email,omitempty"`
	Location    string            `json:"location,omitempty"`
	Description string            `json:"description,omitempty"`
	Image       string            `json:"image,omitempty"`
	URLs        map[string]string `json:"urls,omitempty"`
}

// Credentials are the provider tokens obtained in the callback phase.
type Credentials struct {
	Token  string `json:"token"`
	Secret string `json:"-"`
}

// AuthHash is what a successful callback phase yields.
type AuthHash struct {
	Provider    string         `json:"provider"`
	UID         string         `json:"uid"`
	Info        Identity       `json:"info"`
	Credentials Credentials    `json:"credentials"`
	Extra       map[string]any `json:"extra"`
}
