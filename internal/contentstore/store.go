// Package contentstore puts and gets document bytes by content address across
// an ordered list of mirrors. Each mirror attempt runs under its own timeout
// and the first success wins.
package contentstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/fingerprint"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/metrics"
)

const DefaultMirrorTimeout = 10 * time.Second

// ErrReadOnly is returned by mirrors that only serve reads.
var ErrReadOnly = errors.New("mirror is read-only")

// Mirror is one blob endpoint. Get and Has report a missing object with
// apperr.ErrContentNotFound.
type Mirror interface {
	Name() string
	Put(ctx context.Context, b []byte) (string, error)
	Get(ctx context.Context, addr string) ([]byte, error)
	Has(ctx context.Context, addr string) (bool, error)
}

type Store struct {
	mirrors []Mirror
	timeout time.Duration
}

func New(timeout time.Duration, mirrors ...Mirror) (*Store, error) {
	if len(mirrors) == 0 {
		return nil, errors.New("content store needs at least one mirror")
	}
	seen := make(map[string]bool, len(mirrors))
	for _, m := range mirrors {
		if m == nil {
			return nil, errors.New("mirror is nil")
		}
		if seen[m.Name()] {
			return nil, fmt.Errorf("duplicate mirror %q", m.Name())
		}
		seen[m.Name()] = true
	}
	if timeout <= 0 {
		timeout = DefaultMirrorTimeout
	}
	return &Store{mirrors: mirrors, timeout: timeout}, nil
}

func (s *Store) Mirrors() []string {
	names := make([]string, len(s.mirrors))
	for i, m := range s.mirrors {
		names[i] = m.Name()
	}
	return names
}

// Put stores b on the first writable mirror that accepts it and returns the
// address that mirror assigned.
func (s *Store) Put(ctx context.Context, b []byte) (string, error) {
	var last error
	for _, m := range s.mirrors {
		mctx, cancel := context.WithTimeout(ctx, s.timeout)
		addr, err := m.Put(mctx, b)
		cancel()
		if errors.Is(err, ErrReadOnly) {
			continue
		}
		if err == nil {
			metrics.MirrorAttempts.WithLabelValues(m.Name(), "put", "ok").Inc()
			return addr, nil
		}
		metrics.MirrorAttempts.WithLabelValues(m.Name(), "put", "error").Inc()
		logger.Warnf("contentstore: put on %s failed: %v", m.Name(), err)
		last = err
	}
	if last == nil {
		last = errors.New("no writable mirror configured")
	}
	return "", apperr.Upstream("content put", last)
}

// Get returns the bytes from the first mirror that has them.
func (s *Store) Get(ctx context.Context, addr string) ([]byte, error) {
	if err := fingerprint.Validate(addr); err != nil {
		return nil, err
	}
	var last error
	for _, m := range s.mirrors {
		mctx, cancel := context.WithTimeout(ctx, s.timeout)
		b, err := m.Get(mctx, addr)
		cancel()
		switch {
		case err == nil:
			metrics.MirrorAttempts.WithLabelValues(m.Name(), "get", "ok").Inc()
			return b, nil
		case errors.Is(err, apperr.ErrContentNotFound):
			metrics.MirrorAttempts.WithLabelValues(m.Name(), "get", "miss").Inc()
		default:
			metrics.MirrorAttempts.WithLabelValues(m.Name(), "get", "error").Inc()
			logger.Warnf("contentstore: get %s on %s failed: %v", addr, m.Name(), err)
			last = err
		}
	}
	if last != nil {
		return nil, apperr.Upstream("content get", last)
	}
	return nil, apperr.Wrap(apperr.ErrContentNotFound, "%s", addr)
}

// Available reports whether any mirror holds addr. It only errors when no
// mirror could answer at all.
func (s *Store) Available(ctx context.Context, addr string) (bool, error) {
	if err := fingerprint.Validate(addr); err != nil {
		return false, err
	}
	var last error
	answered := false
	for _, m := range s.mirrors {
		mctx, cancel := context.WithTimeout(ctx, s.timeout)
		ok, err := m.Has(mctx, addr)
		cancel()
		if err != nil && !errors.Is(err, apperr.ErrContentNotFound) {
			metrics.MirrorAttempts.WithLabelValues(m.Name(), "has", "error").Inc()
			last = err
			continue
		}
		answered = true
		if ok {
			metrics.MirrorAttempts.WithLabelValues(m.Name(), "has", "ok").Inc()
			return true, nil
		}
		metrics.MirrorAttempts.WithLabelValues(m.Name(), "has", "miss").Inc()
	}
	if !answered && last != nil {
		return false, apperr.Upstream("content availability", last)
	}
	return false, nil
}
