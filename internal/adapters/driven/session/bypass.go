package session

import (
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BypassTokenTTL bounds how long a cache-bypass cookie suppresses the forced
// reload for a principal. Long enough to survive the redirect round trip,
// short enough that a stale cookie cannot mask a later identity change.
const BypassTokenTTL = 60 * time.Second

// BypassCodec mints and verifies the short-lived token carried by the
// cache-bypass cookie. Tokens are HS256 JWTs keyed by a digest of the
// session signing key and bound to a single authname, so a cookie minted
// for one principal never suppresses the reload for another.
type BypassCodec struct {
	key []byte
	ttl time.Duration
}

// NewBypassCodec derives a bypass codec from the RSA session signing key.
func NewBypassCodec(privateKey *rsa.PrivateKey) *BypassCodec {
	sum := sha256.Sum256(privateKey.D.Bytes())
	return &BypassCodec{key: sum[:], ttl: BypassTokenTTL}
}

// Mint creates a bypass token for an authname.
func (c *BypassCodec) Mint(authname string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   authname,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.key)
}

// Valid reports whether token is a live bypass token for authname.
func (c *BypassCodec) Valid(token, authname string) bool {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.key, nil
	})
	if err != nil || !parsed.Valid {
		return false
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	return ok && claims.Subject == authname
}
