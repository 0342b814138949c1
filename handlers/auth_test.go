package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/gogotex/gogotex/backend/notary-service/internal/tokens"
)

func issuer(t *testing.T) *tokens.Issuer {
	t.Helper()
	iss, err := tokens.NewIssuer("handlers-test-secret-0123456789abcdef", "notaryd")
	require.NoError(t, err)
	return iss
}

func get(g *gin.Engine, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func TestMeReportsOperator(t *testing.T) {
	iss := issuer(t)
	g := gin.New()
	RegisterAuthRoutes(g, iss, nil)

	require.Equal(t, http.StatusUnauthorized, get(g, "/api/v1/me", "").Code)

	raw, err := iss.Issue("ops-1", time.Minute)
	require.NoError(t, err)
	w := get(g, "/api/v1/me", raw)
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, "ops-1", got["subject"])
	require.Equal(t, true, got["operator"])
}

func TestMeWithoutVerifier(t *testing.T) {
	g := gin.New()
	RegisterAuthRoutes(g, nil, nil)
	w := get(g, "/api/v1/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "not configured")
}

func TestOperatorOnly(t *testing.T) {
	require.Nil(t, OperatorOnly(nil))

	iss := issuer(t)
	g := gin.New()
	g.GET("/ops", OperatorOnly(iss), func(c *gin.Context) { c.Status(http.StatusOK) })

	raw, err := iss.Issue("ops-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, get(g, "/ops", raw).Code)
	require.Equal(t, http.StatusUnauthorized, get(g, "/ops", "garbage").Code)

	reader, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "notaryd", "sub": "reader", "exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("handlers-test-secret-0123456789abcdef"))
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, get(g, "/ops", reader).Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	iss := issuer(t)
	store := tokens.NewMemoryRevocations()
	ver := tokens.RevocableVerifier{Verifier: iss, Store: store}
	g := gin.New()
	RegisterAuthRoutes(g, ver, store)

	raw, err := iss.Issue("ops-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, get(g, "/api/v1/me", raw).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/logout", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	require.Equal(t, http.StatusUnauthorized, get(g, "/api/v1/me", raw).Code)
	other, err := iss.Issue("ops-1", 2*time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, get(g, "/api/v1/me", other).Code)
}
