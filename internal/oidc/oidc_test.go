package oidc

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestInsecureVerifierReadsClaims(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":          "ops-2",
		"realm_access": map[string]interface{}{"roles": []string{"notary-operator"}},
	}).SignedString([]byte("whatever"))
	require.NoError(t, err)

	tok, err := NewInsecureVerifier().Verify(context.Background(), raw)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "ops-2", claims["sub"])

	_, err = NewInsecureVerifier().Verify(context.Background(), "not-a-token")
	require.Error(t, err)
}

func TestNewVerifierGivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewVerifier(ctx, "http://127.0.0.1:1/realms/none", "notary", 2, time.Millisecond)
	require.Error(t, err)
}
