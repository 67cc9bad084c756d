package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxProfileBytes = 1 << 20

// ProfileFetcher loads the authenticated user's raw profile with a client
// that signs requests with the user's access token.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, client *http.Client) (RawProfile, error)
}

// APIProfileFetcher reads the profile from the Twitter API.
type APIProfileFetcher struct {
	URL string
}

// NewAPIProfileFetcher builds a fetcher for site + path.
func NewAPIProfileFetcher(site, path string) *APIProfileFetcher {
	return &APIProfileFetcher{URL: strings.TrimRight(site, "/") + path}
}

// FetchProfile GETs the profile. A v2 envelope ({"data": {...}}) is
// unwrapped and confirmed_email is exposed as email when email is missing.
func (f *APIProfileFetcher) FetchProfile(ctx context.Context, client *http.Client) (RawProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitter api error: status %d", resp.StatusCode)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	raw := RawProfile(payload)
	if data, ok := payload["data"].(map[string]any); ok {
		raw = RawProfile(data)
	}
	if _, ok := raw["email"]; !ok {
		if email, ok := raw["confirmed_email"]; ok {
			raw["email"] = email
		}
	}
	return raw, nil
}
