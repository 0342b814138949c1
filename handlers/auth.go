package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/tokens"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/middleware"
)

// RegisterAuthRoutes mounts GET /api/v1/me, which echoes the caller's verified
// claims and whether they may use operator routes. Without a verifier the
// route reports that auth is not configured. When rev is set, POST
// /api/v1/logout revokes the caller's token until it expires.
func RegisterAuthRoutes(r gin.IRouter, ver middleware.Verifier, rev tokens.Revocations) {
	api := r.Group("/api/v1")
	if ver == nil {
		api.GET("/me", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "operator auth not configured"})
		})
		return
	}
	api.GET("/me", middleware.AuthMiddleware(ver), func(c *gin.Context) {
		claims, _ := c.Get(middleware.ClaimsKey)
		cm, _ := claims.(map[string]interface{})
		c.JSON(http.StatusOK, gin.H{
			"subject":  middleware.Subject(c),
			"operator": middleware.HasRole(cm, tokens.OperatorRole),
			"claims":   claims,
		})
	})

	if rev == nil {
		return
	}
	api.POST("/logout", middleware.AuthMiddleware(ver), func(c *gin.Context) {
		claims, _ := c.Get(middleware.ClaimsKey)
		cm, _ := claims.(map[string]interface{})
		until, ok := tokens.Expiry(cm)
		if !ok {
			until = time.Now().Add(24 * time.Hour)
		}
		if err := rev.Revoke(c.Request.Context(), c.GetString(middleware.TokenKey), until); err != nil {
			middleware.WriteError(c, apperr.Upstream("revoke token", err))
			return
		}
		logger.Audit("token_revoked", map[string]string{"subject": middleware.Subject(c)})
		c.Status(http.StatusNoContent)
	})
}

// OperatorOnly chains token verification and the operator role check.
func OperatorOnly(ver middleware.Verifier) gin.HandlerFunc {
	if ver == nil {
		return nil
	}
	auth := middleware.AuthMiddleware(ver)
	role := middleware.RequireRole(tokens.OperatorRole)
	return func(c *gin.Context) {
		auth(c)
		if c.IsAborted() {
			return
		}
		role(c)
	}
}
