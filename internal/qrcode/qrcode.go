// Package qrcode issues the signed tokens printed on elevator stickers and renders them as PNG.
package qrcode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goqrcode "github.com/skip2/go-qrcode"
)

const issuer = "liftsuite"

var ErrInvalidToken = errors.New("invalid qr token")

type Claims struct {
	jwt.RegisteredClaims
}

// Signer signs and verifies QR tokens with HMAC-SHA256.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSigner returns a signer. A zero ttl issues tokens without expiry; stickers are revoked by
// rotating the code instead.
func NewSigner(key string, ttl time.Duration) (*Signer, error) {
	if len(strings.TrimSpace(key)) < 16 {
		return nil, errors.New("QR_SIGNING_KEY must be at least 16 characters")
	}
	return &Signer{key: []byte(key), ttl: ttl, now: time.Now}, nil
}

func (s *Signer) Sign(elevatorID, codeID string) (string, error) {
	now := s.now().UTC()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:   issuer,
		Subject:  elevatorID,
		ID:       codeID,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign qr token: %w", err)
	}
	return token, nil
}

// Verify checks signature, issuer and expiry and returns the elevator id and code id.
func (s *Signer) Verify(token string) (elevatorID, codeID string, err error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return "", "", ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.ID, nil
}

// URL is the public landing address encoded in the sticker.
func URL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/qr/" + token
}

// PNG renders content as a square QR image of size pixels with medium error correction.
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = 512
	}
	return goqrcode.Encode(content, goqrcode.Medium, size)
}
