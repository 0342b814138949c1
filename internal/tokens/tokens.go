// Package tokens issues and verifies HS256 operator tokens for the
// administrative routes.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gogotex/gogotex/backend/notary-service/pkg/middleware"
)

// OperatorRole grants slashing, deactivation, audits and cache reconciliation.
const OperatorRole = "notary-operator"

const minSecretLen = 32

type Issuer struct {
	secret []byte
	issuer string
}

func NewIssuer(secret, issuer string) (*Issuer, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("operator secret must be at least %d bytes", minSecretLen)
	}
	return &Issuer{secret: []byte(secret), issuer: issuer}, nil
}

// Issue signs a token for subject carrying the operator role.
func (i *Issuer) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   i.issuer,
		"sub":   subject,
		"roles": []string{OperatorRole},
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

type mapToken jwt.MapClaims

func (t mapToken) Claims(v interface{}) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Verify implements middleware.Verifier. Only HS256 tokens from this issuer
// with an expiry are accepted.
func (i *Issuer) Verify(_ context.Context, raw string) (middleware.Token, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(i.issuer))
	if err != nil {
		return nil, err
	}
	if exp, err := claims.GetExpirationTime(); err != nil || exp == nil {
		return nil, errors.New("token has no expiry")
	}
	return mapToken(claims), nil
}
