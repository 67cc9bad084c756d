package twitter

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/dropDatabas3/twitterauth/internal/strategy/oauth1"
)

const (
	Name = "twitter"

	DefaultSite       = "https://api.twitter.com"
	AuthenticatePath  = "/oauth/authenticate"
	AuthorizePath     = "/oauth/authorize"
	RequestTokenPath  = "/oauth/request_token"
	AccessTokenPath   = "/oauth/access_token"
	DefaultPathPrefix = "/auth"

	// DefaultProfilePath is the authenticated user lookup (API v2).
	DefaultProfilePath = "/2/users/me?user.fields=description,location,url,profile_image_url,confirmed_email"

	// ProfileURLBase prefixes the username in Identity.URLs["Twitter"].
	ProfileURLBase = "https://twitter.com/"
)

// AuthorizeParams are appended to the authorize URL.
type AuthorizeParams struct {
	ForceLogin *bool  `yaml:"force_login"` // nil: not sent
	Lang       string `yaml:"lang"`
	ScreenName string `yaml:"screen_name"`
}

func (p AuthorizeParams) Values() url.Values {
	v := url.Values{}
	if p.ForceLogin != nil {
		v.Set("force_login", strconv.FormatBool(*p.ForceLogin))
	}
	if p.Lang != "" {
		v.Set("lang", p.Lang)
	}
	if p.ScreenName != "" {
		v.Set("screen_name", p.ScreenName)
	}
	return v
}

// RequestParams are sent on the request-token call.
type RequestParams struct {
	XAuthAccessType string `yaml:"x_auth_access_type"` // "read" | "write"
}

func (p RequestParams) Values() url.Values {
	v := url.Values{}
	if p.XAuthAccessType != "" {
		v.Set("x_auth_access_type", p.XAuthAccessType)
	}
	return v
}

// Options configure the Twitter strategy. Zero fields take the defaults of
// DefaultOptions when the strategy is built.
type Options struct {
	Name         string `yaml:"name"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// SkipInfo leaves raw_info out of Extra.
	SkipInfo bool `yaml:"skip_info"`

	// UseAuthorize sends users to /oauth/authorize, which always asks for
	// consent, instead of /oauth/authenticate.
	UseAuthorize bool `yaml:"use_authorize"`

	ImageSize      string `yaml:"image_size"` // "mini" | "bigger" | "original"
	SecureImageURL bool   `yaml:"secure_image_url"`

	// CallbackPath fixes the callback path regardless of callback_url params.
	CallbackPath string `yaml:"callback_path"`
	PathPrefix   string `yaml:"path_prefix"`
	ProfilePath  string `yaml:"profile_path"`

	AuthorizeParams AuthorizeParams      `yaml:"authorize_params"`
	RequestParams   RequestParams        `yaml:"request_params"`
	ClientOptions   oauth1.ClientOptions `yaml:"client_options"`
}

// DefaultOptions returns the Twitter defaults.
func DefaultOptions() Options {
	return Options{
		Name:        Name,
		PathPrefix:  DefaultPathPrefix,
		ProfilePath: DefaultProfilePath,
		ClientOptions: oauth1.ClientOptions{
			Site:             DefaultSite,
			RequestTokenPath: RequestTokenPath,
			AuthorizePath:    AuthenticatePath,
			AccessTokenPath:  AccessTokenPath,
		},
	}
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Name == "" {
		o.Name = d.Name
	}
	if o.PathPrefix == "" {
		o.PathPrefix = d.PathPrefix
	}
	o.PathPrefix = strings.TrimRight(o.PathPrefix, "/")
	if o.ProfilePath == "" {
		o.ProfilePath = d.ProfilePath
	}
	co := &o.ClientOptions
	if co.Site == "" {
		co.Site = d.ClientOptions.Site
	}
	if co.RequestTokenPath == "" {
		co.RequestTokenPath = d.ClientOptions.RequestTokenPath
	}
	if co.AuthorizePath == "" {
		co.AuthorizePath = d.ClientOptions.AuthorizePath
	}
	if co.AccessTokenPath == "" {
		co.AccessTokenPath = d.ClientOptions.AccessTokenPath
	}
	return o
}
