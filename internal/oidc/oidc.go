// Package oidc verifies operator tokens issued by the identity provider.
package oidc

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/middleware"
)

// Verifier wraps the discovered provider's ID token verifier.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers issuer, retrying while the provider is still starting.
func NewVerifier(ctx context.Context, issuer, clientID string, attempts int, backoff time.Duration) (*Verifier, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		provider, err := oidc.NewProvider(ctx, issuer)
		if err == nil {
			return &Verifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
		}
		lastErr = err
		logger.Warnf("oidc: discovery of %s failed (attempt %d/%d): %v", issuer, i, attempts, err)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("failed to discover OIDC provider: %w", lastErr)
}

func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}
