package export

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	manifestIssuer = "benson/export"
	manifestKDF    = "benson-export-manifest"
)

var ErrEmptySecret = errors.New("export: signing secret must not be empty")

// ManifestClaims bind an export object to the chain it was cut from.
type ManifestClaims struct {
	jwt.RegisteredClaims
	Object      string `json:"object"`
	EventCount  int    `json:"event_count"`
	HeadHash    string `json:"head_hash"`
	ContentHash string `json:"content_hash"`
}

// ManifestSigner issues and checks HS256 manifests. The HMAC key is derived
// from the configured secret with HKDF-SHA256.
type ManifestSigner struct {
	key   []byte
	clock func() time.Time
}

func NewManifestSigner(secret []byte) (*ManifestSigner, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	r := hkdf.New(sha256.New, secret, []byte(manifestKDF), []byte("HS256"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("HKDF derivation failed: %w", err)
	}
	return &ManifestSigner{key: key, clock: time.Now}, nil
}

// Sign fills the registered claims and returns the compact token.
func (s *ManifestSigner) Sign(c ManifestClaims) (string, error) {
	now := s.clock().UTC()
	c.Issuer = manifestIssuer
	c.Subject = c.Object
	c.IssuedAt = jwt.NewNumericDate(now)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("export: sign manifest: %w", err)
	}
	return signed, nil
}

// Verify parses a manifest token and checks its signature.
func (s *ManifestSigner) Verify(tokenString string) (*ManifestClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ManifestClaims{}, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(manifestIssuer))
	if err != nil {
		return nil, fmt.Errorf("export: verify manifest: %w", err)
	}
	if claims, ok := token.Claims.(*ManifestClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenSignatureInvalid
}
