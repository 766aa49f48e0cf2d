// Package auth issues and verifies RS256 access tokens and carries the
// authenticated principal through request contexts.
package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/account/entity"
)

var ErrInvalidToken = errors.New("invalid token")

type Config struct {
	Issuer string
	TTL    time.Duration
}

// ConfigFromEnv reads AUTH_ISSUER and TOKEN_TTL_MINUTES.
func ConfigFromEnv() Config {
	cfg := Config{Issuer: os.Getenv("AUTH_ISSUER"), TTL: 60 * time.Minute}
	if cfg.Issuer == "" {
		cfg.Issuer = "library-api"
	}
	if v, err := strconv.Atoi(os.Getenv("TOKEN_TTL_MINUTES")); err == nil && v > 0 {
		cfg.TTL = time.Duration(v) * time.Minute
	}
	return cfg
}

// Claims is the access token payload.
type Claims struct {
	Username string   `json:"preferred_username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenService manages the signing key and token issuance.
type TokenService struct {
	key    *rsa.PrivateKey
	kid    string
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService generates a fresh signing key. Tokens do not survive a restart.
func NewTokenService(cfg Config) (*TokenService, error) {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	// kid is base64 of the first bytes of SHA256 over the modulus
	h := sha256.Sum256(k.PublicKey.N.Bytes())
	kid := base64.RawURLEncoding.EncodeToString(h[:8])
	return &TokenService{key: k, kid: kid, issuer: cfg.Issuer, ttl: cfg.TTL, now: time.Now}, nil
}

func (s *TokenService) TTL() time.Duration { return s.ttl }

// IssueAccessToken signs a token for the given account view.
func (s *TokenService) IssueAccessToken(v entity.MinimalAuthView) (string, error) {
	now := s.now()
	claims := Claims{
		Username: v.Username,
		Roles:    v.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(v.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	return tok.SignedString(s.key)
}

// Verify parses and validates a token and returns its principal.
func (s *TokenService) Verify(token string) (Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return &s.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Username == "" {
		return Principal{}, fmt.Errorf("%w: missing username", ErrInvalidToken)
	}
	return Principal{Username: claims.Username, Roles: claims.Roles}, nil
}

// JWKS returns a minimal JWKS containing the public key.
func (s *TokenService) JWKS() map[string]any {
	pub := s.key.PublicKey
	jwk := map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": s.kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		// minimal big-endian exponent bytes
		"e": base64.RawURLEncoding.EncodeToString(new(big.Int).SetInt64(int64(pub.E)).Bytes()),
	}
	return map[string]any{"keys": []any{jwk}}
}
