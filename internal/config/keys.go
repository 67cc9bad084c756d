package config

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Keys derivadas de Session.Secret. Cada propósito usa su propio info string,
// así rotar el secreto invalida cookies y tickets a la vez.
type Keys struct {
	SessionHash  []byte // 32 bytes, HMAC de securecookie
	SessionBlock []byte // 32 bytes, AES-256 de securecookie
	TicketSeed   []byte // 32 bytes, seed ed25519 para los tickets
}

const keysSalt = "twitterauth/v1"

// DeriveKeys expande secret con HKDF-SHA256. Con secret vacío genera uno
// aleatorio (sólo sirve para dev: las sesiones no sobreviven un reinicio).
func DeriveKeys(secret string) (Keys, error) {
	ikm := []byte(secret)
	if len(ikm) == 0 {
		ikm = make([]byte, 32)
		if _, err := rand.Read(ikm); err != nil {
			return Keys{}, err
		}
	}
	var k Keys
	for _, p := range []struct {
		info string
		dst  *[]byte
	}{
		{"session-hash", &k.SessionHash},
		{"session-block", &k.SessionBlock},
		{"ticket-ed25519", &k.TicketSeed},
	} {
		buf := make([]byte, 32)
		r := hkdf.New(sha256.New, ikm, []byte(keysSalt), []byte(p.info))
		if _, err := io.ReadFull(r, buf); err != nil {
			return Keys{}, errors.Join(errors.New("config: derive "+p.info), err)
		}
		*p.dst = buf
	}
	return k, nil
}
