// Package twitter implements "Sign in with Twitter" over OAuth 1.0a.
//
// The strategy only decides which authorize endpoint to use, where the
// callback lands and how the Twitter profile maps onto strategy.Identity.
// The handshake itself is delegated to an oauth1.Consumer.
package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/dropDatabas3/twitterauth/internal/strategy"
	"github.com/dropDatabas3/twitterauth/internal/strategy/oauth1"
)

// Deps are the collaborators of a Strategy. Nil fields get the real
// implementations built from Options.
type Deps struct {
	Consumer oauth1.Consumer
	Profiles ProfileFetcher
}

// Strategy handles one Twitter authentication attempt.
type Strategy struct {
	opts     Options
	env      strategy.Env
	consumer oauth1.Consumer
	profiles ProfileFetcher

	access *oauth1.AccessToken
	raw    RawProfile
}

var _ strategy.Strategy = (*Strategy)(nil)

// New builds a strategy for one attempt. opts is copied; changes made during
// the request phase stay with this instance.
func New(env strategy.Env, opts Options, deps Deps) *Strategy {
	opts = opts.WithDefaults()
	if deps.Consumer == nil {
		deps.Consumer = oauth1.NewConsumer(opts.ClientID, opts.ClientSecret)
	}
	if deps.Profiles == nil {
		deps.Profiles = NewAPIProfileFetcher(opts.ClientOptions.Site, opts.ProfilePath)
	}
	return &Strategy{
		opts:     opts,
		env:      env,
		consumer: deps.Consumer,
		profiles: deps.Profiles,
	}
}

// NewFactory returns a strategy.Factory sharing opts and deps.
func NewFactory(opts Options, deps Deps) strategy.Factory {
	opts = opts.WithDefaults()
	if deps.Consumer == nil {
		deps.Consumer = oauth1.NewConsumer(opts.ClientID, opts.ClientSecret)
	}
	return func(env strategy.Env) strategy.Strategy {
		return New(env, opts, deps)
	}
}

func (s *Strategy) Name() string { return s.opts.Name }

// Options returns the current options, including request-phase changes.
func (s *Strategy) Options() Options { return s.opts }

// AuthorizeEndpoint is /oauth/authorize when use_authorize is configured or
// requested with use_authorize=true, /oauth/authenticate otherwise.
func (s *Strategy) AuthorizeEndpoint() string {
	if s.opts.UseAuthorize || s.env.Params().Get("use_authorize") == "true" {
		return AuthorizePath
	}
	return AuthenticatePath
}

// RequestPhase copies the supported request params into the options, picks
// the authorize endpoint and asks the consumer for a request token.
func (s *Strategy) RequestPhase(ctx context.Context) (string, error) {
	params := s.env.Params()

	if params.Truthy("force_login") {
		forceLogin := true
		s.opts.AuthorizeParams.ForceLogin = &forceLogin
	}
	if v := params.Get("lang"); v != "" {
		s.opts.AuthorizeParams.Lang = v
	}
	if v := params.Get("screen_name"); v != "" {
		s.opts.AuthorizeParams.ScreenName = v
	}
	if v := params.Get("x_auth_access_type"); v != "" {
		s.opts.RequestParams.XAuthAccessType = v
	}
	s.opts.ClientOptions.AuthorizePath = s.AuthorizeEndpoint()

	rt, err := s.consumer.RequestToken(ctx, s.opts.ClientOptions, s.CallbackURL(), s.opts.RequestParams.Values())
	if err != nil {
		return "", oauth1.Classify(err, strategy.FailServiceUnavailable)
	}
	oauth1.StoreRequestToken(s.env.Session(), s.opts.Name, rt)

	redirect, err := s.consumer.AuthorizeURL(s.opts.ClientOptions, rt.Token, s.opts.AuthorizeParams.Values())
	if err != nil {
		return "", strategy.Fail(strategy.FailUnknown, err)
	}
	return redirect, nil
}

// CallbackURL is the callback_url request param when given, the host default otherwise.
func (s *Strategy) CallbackURL() string {
	if cb := s.env.Params().Get("callback_url"); cb != "" {
		return cb
	}
	return s.env.DefaultCallbackURL(s.CallbackPath())
}

// CallbackPath is the path of an explicit callback URL (request params, then
// the params saved when the attempt started), or <prefix>/twitter/callback.
func (s *Strategy) CallbackPath() string {
	if s.opts.CallbackPath != "" {
		return s.opts.CallbackPath
	}
	if p := urlPath(s.env.Params().Get("callback_url")); p != "" {
		return p
	}
	if raw, ok := s.env.Session().Get(strategy.ParamsSessionKey); ok {
		var saved map[string]string
		if json.Unmarshal([]byte(raw), &saved) == nil {
			if p := urlPath(saved["callback_url"]); p != "" {
				return p
			}
		}
	}
	return s.opts.PathPrefix + "/" + s.opts.Name + "/callback"
}

// CallbackPhase exchanges the verifier for an access token and loads the profile.
func (s *Strategy) CallbackPhase(ctx context.Context) (*strategy.AuthHash, error) {
	params := s.env.Params()
	if params.Has("denied") {
		return nil, strategy.Fail(strategy.FailAccessDenied, errors.New("user denied authorization"))
	}

	rt, ok := oauth1.TakeRequestToken(s.env.Session(), s.opts.Name)
	if !ok {
		return nil, strategy.Fail(strategy.FailSessionExpired, errors.New("request token not found in session"))
	}
	if tok := params.Get("oauth_token"); tok != "" && tok != rt.Token {
		return nil, strategy.Fail(strategy.FailInvalidCredentials, errors.New("oauth_token does not match the request token"))
	}

	at, err := s.consumer.AccessToken(ctx, s.opts.ClientOptions, rt, params.Get("oauth_verifier"))
	if err != nil {
		return nil, oauth1.Classify(err, strategy.FailInvalidCredentials)
	}
	s.access = &at

	if _, err := s.RawInfo(ctx); err != nil {
		return nil, oauth1.Classify(err, strategy.FailServiceUnavailable)
	}

	return &strategy.AuthHash{
		Provider:    s.opts.Name,
		UID:         s.UID(),
		Info:        s.Info(),
		Credentials: s.Credentials(),
		Extra:       s.Extra(),
	}, nil
}

// RawInfo fetches the profile once per attempt.
func (s *Strategy) RawInfo(ctx context.Context) (RawProfile, error) {
	if s.raw != nil {
		return s.raw, nil
	}
	if s.access == nil {
		return nil, errors.New("twitter: no access token")
	}
	client := s.consumer.Client(ctx, s.opts.ClientOptions, *s.access)
	raw, err := s.profiles.FetchProfile(ctx, client)
	if err != nil {
		return nil, err
	}
	s.raw = raw
	return raw, nil
}

// UID is the Twitter user id.
func (s *Strategy) UID() string { return s.raw.String("id") }

// Info is the normalized identity of the fetched profile.
func (s *Strategy) Info() strategy.Identity {
	info := NormalizeIdentity(s.raw)
	info.Image = imageURL(s.raw, s.opts.ImageSize, s.opts.SecureImageURL)
	return info
}

// Extra holds raw_info unless SkipInfo is set.
func (s *Strategy) Extra() map[string]any {
	return ExtraInfo(s.raw, s.opts.SkipInfo)
}

// Credentials are the access token pair, empty before the callback phase.
func (s *Strategy) Credentials() strategy.Credentials {
	if s.access == nil {
		return strategy.Credentials{}
	}
	return strategy.Credentials{Token: s.access.Token, Secret: s.access.Secret}
}

func urlPath(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}
