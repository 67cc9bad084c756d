package util

import "strings"

// MaskSecret deja ver sólo los últimos 4 caracteres ("" queda "").
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}

// MaskEmail: "john.doe@example.com" => "j…@e….com". Sin @ se trata como secreto corto.
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	i := strings.IndexByte(s, '@')
	if i <= 0 {
		if s == "" {
			return ""
		}
		return "***"
	}
	user, dom := s[:i], s[i+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	parts := strings.Split(dom, ".")
	if len(parts[0]) > 1 {
		parts[0] = parts[0][:1] + "…"
	}
	return user + "@" + strings.Join(parts, ".")
}
