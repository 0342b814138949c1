package tokens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/middleware"
)

// ErrRevoked is returned for tokens that were revoked before they expired.
var ErrRevoked = errors.New("token revoked")

// Revocations remembers revoked tokens until they would have expired anyway.
type Revocations interface {
	Revoke(ctx context.Context, raw string, until time.Time) error
	Revoked(ctx context.Context, raw string) (bool, error)
}

func digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RedisRevocations stores a digest of each revoked token under
// "<prefix><sha256>" with a TTL ending at the token's expiry.
type RedisRevocations struct {
	client *redis.Client
	prefix string
}

// NewRedisRevocations creates a Redis-backed list. Prefix may be empty.
func NewRedisRevocations(client *redis.Client, prefix string) *RedisRevocations {
	if prefix == "" {
		prefix = "revoked:operator:"
	}
	return &RedisRevocations{client: client, prefix: prefix}
}

func (r *RedisRevocations) Revoke(ctx context.Context, raw string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+digest(raw), "1", ttl).Err()
}

func (r *RedisRevocations) Revoked(ctx context.Context, raw string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+digest(raw)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevocations is the in-process list used when Redis is not configured.
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{entries: map[string]time.Time{}, now: time.Now}
}

func (m *MemoryRevocations) Revoke(_ context.Context, raw string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, k)
		}
	}
	if until.After(now) {
		m.entries[digest(raw)] = until
	}
	return nil
}

func (m *MemoryRevocations) Revoked(_ context.Context, raw string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[digest(raw)]
	return ok && exp.After(m.now()), nil
}

// RevocableVerifier rejects tokens present in Store before asking Verifier.
// A failed lookup rejects the token.
type RevocableVerifier struct {
	Verifier middleware.Verifier
	Store    Revocations
}

func (v RevocableVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	revoked, err := v.Store.Revoked(ctx, raw)
	if err != nil {
		logger.Warnf("tokens: revocation lookup failed: %v", err)
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}
	return v.Verifier.Verify(ctx, raw)
}

// Expiry reads the exp claim of a verified token's claims.
func Expiry(claims map[string]interface{}) (time.Time, bool) {
	switch exp := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0), true
	case json.Number:
		n, err := exp.Int64()
		return time.Unix(n, 0), err == nil
	}
	return time.Time{}, false
}
