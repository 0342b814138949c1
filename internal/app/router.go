package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gogotex/gogotex/backend/notary-service/handlers"
	dochandler "github.com/gogotex/gogotex/backend/notary-service/internal/document/handler"
	notaryhandler "github.com/gogotex/gogotex/backend/notary-service/internal/notary/handler"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/middleware"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/readiness"
)

func cors(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, "+middleware.NotaryHeader)
	h.Set("Access-Control-Expose-Headers", "Content-Length, X-Content-Address, Retry-After")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusOK)
		return
	}
	c.Next()
}

// Router builds the HTTP surface. Metrics collectors are registered by the
// caller so tests can build several routers in one process.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), gin.Logger(), cors)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		ready, deps := a.Readiness()
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
			if st, _ := a.Ledger.Gate().State(); st == readiness.StateDegraded {
				status = "degraded"
			}
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(a.started).Round(time.Second).String()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)
	handlers.RegisterAuthRoutes(r, a.Verifier, a.Revocations)

	api := r.Group("/api")
	if rl := a.Config.RateLimit; rl.Enabled {
		if a.Redis != nil {
			api.Use(middleware.RedisRateLimitMiddleware(a.Redis, rl.RPS, rl.Burst, rl.Window))
		} else {
			api.Use(middleware.RateLimitMiddleware(rl.RPS, rl.Burst))
		}
	}

	operator := handlers.OperatorOnly(a.Verifier)
	dochandler.RegisterDocumentRoutes(api, a.Documents, operator)
	notaryhandler.RegisterNotaryRoutes(api, a.Notaries, operator)
	return r
}
