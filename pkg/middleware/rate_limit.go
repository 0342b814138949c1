package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/gogotex/gogotex/backend/notary-service/pkg/metrics"
)

// NotaryHeader lets a notary client identify itself on routes without an
// :address path parameter.
const NotaryHeader = "X-Notary-Address"

// RequestKey picks the rate-limit bucket: the notary address acting on the
// request, then the verified subject, then the client IP.
func RequestKey(c *gin.Context) string {
	if addr := c.Param("address"); addr != "" {
		return "notary:" + addr
	}
	if addr := c.GetHeader(NotaryHeader); addr != "" {
		return "notary:" + addr
	}
	if sub := Subject(c); sub != "" {
		return "sub:" + sub
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

type limiterStore struct {
	rps   float64
	burst int
	m     sync.Map // key -> *rate.Limiter
}

func (s *limiterStore) get(key string) *rate.Limiter {
	if v, ok := s.m.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := s.m.LoadOrStore(key, rate.NewLimiter(rate.Limit(s.rps), s.burst))
	return v.(*rate.Limiter)
}

// RateLimitMiddleware enforces an in-process token bucket per RequestKey.
// rps is the refill rate, burst the bucket size.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	store := &limiterStore{rps: rps, burst: burst}
	return func(c *gin.Context) {
		if !store.get(RequestKey(c)).Allow() {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
