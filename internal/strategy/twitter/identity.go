package twitter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dropDatabas3/twitterauth/internal/strategy"
)

// RawProfile is the user payload as returned by the Twitter API.
type RawProfile map[string]any

// String returns the field as a string, "" when absent or null.
func (p RawProfile) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// NormalizeIdentity maps a raw profile onto the common identity.
func NormalizeIdentity(raw RawProfile) strategy.Identity {
	username := raw.String("username")
	return strategy.Identity{
		Nickname:    username,
		Name:        raw.String("name"),
		Email:       raw.String("email"),
		Location:    raw.String("location"),
		Description: raw.String("description"),
		Image:       raw.String("profile_image_url"),
		URLs: map[string]string{
			"Website": raw.String("url"),
			"Twitter": ProfileURLBase + username,
		},
	}
}

// ExtraInfo carries the raw profile under "raw_info". With skipInfo the
// result is empty: the key is absent, not nil.
func ExtraInfo(raw RawProfile, skipInfo bool) map[string]any {
	if skipInfo {
		return map[string]any{}
	}
	return map[string]any{"raw_info": raw}
}

// imageURL resizes a profile image URL ("..._normal.jpg").
func imageURL(raw RawProfile, size string, secure bool) string {
	u := raw.String("profile_image_url")
	if secure {
		if https := raw.String("profile_image_url_https"); https != "" {
			u = https
		} else {
			u = strings.Replace(u, "http://", "https://", 1)
		}
	}
	switch size {
	case "mini":
		return strings.Replace(u, "_normal", "_mini", 1)
	case "bigger":
		return strings.Replace(u, "_normal", "_bigger", 1)
	case "original":
		return strings.Replace(strings.Replace(u, "_normal", "", 1), "http://", "https://", 1)
	}
	return u
}
