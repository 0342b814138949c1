package tokens

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/gogotex/gogotex/backend/notary-service/pkg/middleware"
)

const secret = "operator-secret-32-bytes-long-enough"

func newIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := NewIssuer(secret, "notaryd")
	require.NoError(t, err)
	return iss
}

func TestNewIssuerRejectsShortSecret(t *testing.T) {
	_, err := NewIssuer("short", "notaryd")
	require.Error(t, err)
}

func TestIssueAndVerify(t *testing.T) {
	iss := newIssuer(t)
	raw, err := iss.Issue("ops-1", time.Minute)
	require.NoError(t, err)

	tok, err := iss.Verify(context.Background(), raw)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "ops-1", claims["sub"])
	require.True(t, middleware.HasRole(claims, OperatorRole))
}

func TestVerifyRejectsExpired(t *testing.T) {
	iss := newIssuer(t)
	raw, err := iss.Issue("ops-1", -time.Minute)
	require.NoError(t, err)
	_, err = iss.Verify(context.Background(), raw)
	require.Error(t, err)
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	iss := newIssuer(t)

	other, err := NewIssuer("a-completely-different-secret-value", "notaryd")
	require.NoError(t, err)
	raw, err := other.Issue("ops-1", time.Minute)
	require.NoError(t, err)
	_, err = iss.Verify(context.Background(), raw)
	require.Error(t, err, "wrong secret")

	elsewhere, err := NewIssuer(secret, "someone-else")
	require.NoError(t, err)
	raw, err = elsewhere.Issue("ops-1", time.Minute)
	require.NoError(t, err)
	_, err = iss.Verify(context.Background(), raw)
	require.Error(t, err, "wrong issuer")

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iss": "notaryd", "sub": "x"}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = iss.Verify(context.Background(), noExp)
	require.Error(t, err, "missing expiry")

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"iss": "notaryd", "sub": "x", "exp": time.Now().Add(time.Hour).Unix()}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Verify(context.Background(), unsigned)
	require.Error(t, err, "alg none")
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	iss := newIssuer(t)
	raw, err := iss.Issue("ops-1", time.Minute)
	require.NoError(t, err)
	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	parts[2] = strings.Repeat("A", len(parts[2]))
	_, err = iss.Verify(context.Background(), strings.Join(parts, "."))
	require.Error(t, err)
}
