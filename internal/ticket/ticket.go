// Package ticket emite y valida el ticket de login que recibe la app después
// de un callback exitoso. Es un JWT EdDSA de vida corta.
package ticket

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/twitterauth/internal/cache"
	"github.com/dropDatabas3/twitterauth/internal/strategy"
)

var (
	ErrInvalid       = errors.New("invalid_ticket")
	ErrExpired       = errors.New("ticket_expired")
	ErrInvalidIssuer = errors.New("invalid_issuer")
	ErrReplayed      = errors.New("ticket_replayed")
)

const leeway = 30 * time.Second

// Claims del ticket. Subject = "<provider>:<uid>".
type Claims struct {
	Nickname string `json:"nickname,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	jwtv5.RegisteredClaims
}

// Issuer firma tickets con una clave ed25519 fija.
type Issuer struct {
	Iss string
	TTL time.Duration

	kid  string
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	now  func() time.Time
}

// NewIssuer arma el issuer a partir de un seed de 32 bytes.
func NewIssuer(iss string, ttl time.Duration, seed []byte) (*Issuer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ticket: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	sum := sha256.Sum256(pub)
	return &Issuer{
		Iss:  iss,
		TTL:  ttl,
		kid:  base64.RawURLEncoding.EncodeToString(sum[:8]),
		priv: priv,
		pub:  pub,
		now:  time.Now,
	}, nil
}

// KID devuelve el key id que va en el header.
func (i *Issuer) KID() string { return i.kid }

// Issue firma un ticket para hash y devuelve el token y su expiración.
func (i *Issuer) Issue(hash *strategy.AuthHash) (string, time.Time, error) {
	if hash == nil || hash.UID == "" {
		return "", time.Time{}, errors.New("ticket: uid required")
	}
	now := i.now().UTC()
	exp := now.Add(i.TTL)

	claims := Claims{
		Nickname: hash.Info.Nickname,
		Name:     hash.Info.Name,
		Email:    hash.Info.Email,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.Iss,
			Subject:   hash.Provider + ":" + hash.UID,
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.kid
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.priv)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse valida firma, issuer y expiración (tolerancia de 30s).
func (i *Issuer) Parse(token string) (*Claims, error) {
	var c Claims
	_, err := jwtv5.ParseWithClaims(token, &c,
		func(t *jwtv5.Token) (any, error) {
			if kid, _ := t.Header["kid"].(string); kid != "" && kid != i.kid {
				return nil, errors.New("unknown kid")
			}
			return i.pub, nil
		},
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithIssuer(i.Iss),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithLeeway(leeway),
		jwtv5.WithTimeFunc(i.now),
	)
	switch {
	case err == nil:
		return &c, nil
	case errors.Is(err, jwtv5.ErrTokenExpired):
		return nil, ErrExpired
	case errors.Is(err, jwtv5.ErrTokenInvalidIssuer):
		return nil, ErrInvalidIssuer
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
}

// Redeem valida token y lo consume: el jti queda marcado en seen hasta que el
// ticket expira, y un segundo Redeem del mismo ticket devuelve ErrReplayed.
func (i *Issuer) Redeem(ctx context.Context, seen cache.Client, token string) (*Claims, error) {
	c, err := i.Parse(token)
	if err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalid)
	}
	ttl := c.ExpiresAt.Sub(i.now()) + leeway
	if ttl < time.Second {
		ttl = time.Second
	}
	first, err := seen.SetNX(ctx, "ticket:jti:"+c.ID, c.Subject, ttl)
	if err != nil {
		return nil, fmt.Errorf("ticket: redeem: %w", err)
	}
	if !first {
		return nil, ErrReplayed
	}
	return c, nil
}
