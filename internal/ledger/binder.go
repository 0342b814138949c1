package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
)

// Binder resolves the contract address the gateway talks to.
type Binder interface {
	Name() string
	Resolve(ctx context.Context) (string, error)
}

// StaticBinder returns a configured address.
type StaticBinder struct{ Address string }

func (b StaticBinder) Name() string { return "configured" }

func (b StaticBinder) Resolve(context.Context) (string, error) {
	if strings.TrimSpace(b.Address) == "" {
		return "", fmt.Errorf("no contract address configured")
	}
	return strings.TrimSpace(b.Address), nil
}

// FileBinder reads the address a deployment step wrote to disk, either as the
// bare address or as a JSON object with an "address" field.
type FileBinder struct{ Path string }

func (b FileBinder) Name() string { return "file" }

func (b FileBinder) Resolve(context.Context) (string, error) {
	if b.Path == "" {
		return "", fmt.Errorf("no contract address file configured")
	}
	raw, err := os.ReadFile(b.Path)
	if err != nil {
		return "", fmt.Errorf("read contract address file: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "{") {
		var doc struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return "", fmt.Errorf("parse contract address file: %w", err)
		}
		text = strings.TrimSpace(doc.Address)
	}
	if text == "" {
		return "", fmt.Errorf("contract address file %s is empty", b.Path)
	}
	return text, nil
}

// Dialer builds a gateway for a resolved contract address.
type Dialer func(ctx context.Context, contract string) (Gateway, error)

// BootstrapOptions control the startup loop.
type BootstrapOptions struct {
	Attempts int
	Backoff  time.Duration
	// Degrade resolves the gate as degraded instead of failed when binding
	// gives up, for a process that keeps serving from its cache.
	Degrade bool
}

// Bootstrap tries every binder in order, up to Attempts rounds with a fixed
// Backoff between rounds. A gateway is accepted once it answers the
// required-stake query. The client's gate is resolved either way, so callers
// waiting on it never hang.
func Bootstrap(ctx context.Context, c *Client, binders []Binder, dial Dialer, opts BootstrapOptions) error {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 5 * time.Second
	}
	if len(binders) == 0 {
		err := fmt.Errorf("no ledger binders configured")
		c.gate.MarkFailed(err.Error())
		return err
	}

	var last error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		for _, b := range binders {
			gw, err := bindOnce(ctx, b, dial)
			if err == nil {
				c.Attach(gw)
				logger.Infof("ledger: bound via %s binder on attempt %d", b.Name(), attempt)
				return nil
			}
			last = fmt.Errorf("%s binder: %w", b.Name(), err)
			logger.Warnf("ledger: attempt %d/%d: %v", attempt, opts.Attempts, last)
		}
		if attempt == opts.Attempts {
			break
		}
		t := time.NewTimer(opts.Backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			c.gate.MarkFailed(ctx.Err().Error())
			return ctx.Err()
		case <-t.C:
		}
	}
	if opts.Degrade {
		c.gate.MarkDegraded(last.Error())
		logger.Errorf("ledger: giving up after %d attempts, serving from cache only: %v", opts.Attempts, last)
		return last
	}
	c.gate.MarkFailed(last.Error())
	logger.Errorf("ledger: giving up after %d attempts: %v", opts.Attempts, last)
	return last
}

func bindOnce(ctx context.Context, b Binder, dial Dialer) (Gateway, error) {
	addr, err := b.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	gw, err := dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	var stake json.RawMessage
	if err := gw.Query(ctx, MethodRequiredStake, nil, &stake); err != nil {
		return nil, fmt.Errorf("probe %s: %w", addr, err)
	}
	return gw, nil
}
