package oauth1

import "github.com/dropDatabas3/twitterauth/internal/strategy"

func sessionKey(name, field string) string {
	return "oauth." + name + "." + field
}

// StoreRequestToken keeps rt in the session under the strategy name.
func StoreRequestToken(s strategy.Session, name string, rt RequestToken) {
	s.Set(sessionKey(name, "request_token"), rt.Token)
	s.Set(sessionKey(name, "request_secret"), rt.Secret)
}

// TakeRequestToken returns and removes the stored request token.
func TakeRequestToken(s strategy.Session, name string) (RequestToken, bool) {
	token, ok := s.Get(sessionKey(name, "request_token"))
	if !ok || token == "" {
		return RequestToken{}, false
	}
	secret, _ := s.Get(sessionKey(name, "request_secret"))
	s.Delete(sessionKey(name, "request_token"))
	s.Delete(sessionKey(name, "request_secret"))
	return RequestToken{Token: token, Secret: secret}, true
}
