package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/models"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/metrics"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/readiness"
)

// Options tune the typed client.
type Options struct {
	CallTimeout  time.Duration
	ReadAttempts int
	ReadBackoff  time.Duration
	// Operator is the From identity used for coordinator-initiated calls (slashing).
	Operator string
}

// Client is the typed ledger surface used by the engines. Until a gateway is
// attached every call fails with ErrLedgerNotReady, or ErrLedgerUnavailable
// once startup gave up.
type Client struct {
	opts Options
	gate *readiness.Gate

	mu sync.RWMutex
	gw Gateway

	reads singleflight.Group

	paramsMu sync.Mutex
	stake    *models.Amount
	slashPct *int64
}

func NewClient(gate *readiness.Gate, opts Options) *Client {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.ReadAttempts <= 0 {
		opts.ReadAttempts = 3
	}
	if opts.ReadBackoff <= 0 {
		opts.ReadBackoff = 200 * time.Millisecond
	}
	if opts.Operator == "" {
		opts.Operator = "coordinator"
	}
	if gate == nil {
		gate = readiness.NewGate("ledger")
	}
	return &Client{opts: opts, gate: gate}
}

// NewReadyClient attaches gw immediately.
func NewReadyClient(gw Gateway, opts Options) *Client {
	c := NewClient(nil, opts)
	c.Attach(gw)
	return c
}

// Attach binds the gateway and marks the ledger ready.
func (c *Client) Attach(gw Gateway) {
	c.mu.Lock()
	c.gw = gw
	c.mu.Unlock()
	c.gate.MarkReady()
}

func (c *Client) Gate() *readiness.Gate { return c.gate }

func (c *Client) gateway() (Gateway, error) {
	c.mu.RLock()
	gw := c.gw
	c.mu.RUnlock()
	if gw != nil {
		return gw, nil
	}
	state, reason := c.gate.State()
	if state == readiness.StateFailed || state == readiness.StateDegraded {
		return nil, apperr.Wrap(apperr.ErrLedgerUnavailable, "%s", reason)
	}
	return nil, apperr.ErrLedgerNotReady
}

// submit sends a mutation exactly once.
func (c *Client) submit(ctx context.Context, req Request) (*Receipt, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	rc, err := gw.Call(ctx, req)
	metrics.LedgerLatency.WithLabelValues("call").Observe(time.Since(start).Seconds())
	if err == nil && (rc == nil || !rc.Success) {
		tx := ""
		if rc != nil {
			tx = rc.TxHash
		}
		err = apperr.Upstream(req.Method, errors.New("transaction failed "+tx))
	}
	metrics.LedgerCalls.WithLabelValues("call", req.Method, outcome(err)).Inc()
	if err != nil {
		logger.Warnf("ledger: %s from %s failed: %v", req.Method, req.From, err)
		return nil, apperr.Upstream(req.Method, err)
	}
	logger.Debugf("ledger: %s from %s accepted tx=%s height=%d", req.Method, req.From, rc.TxHash, rc.Height)
	return rc, nil
}

// query reads with bounded retries on upstream failures. Identical concurrent
// reads share one round trip.
func (c *Client) query(caller context.Context, method string, args []string, decode func(gw Gateway, ctx context.Context) (interface{}, error)) (interface{}, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	key := method + "\x00" + strings.Join(args, "\x00")
	// the shared read outlives any one caller; each attempt is bounded by
	// CallTimeout and every caller stops waiting on its own ctx
	ctx := context.WithoutCancel(caller)
	ch := c.reads.DoChan(key, func() (interface{}, error) {
		var last error
		for attempt := 1; attempt <= c.opts.ReadAttempts; attempt++ {
			if attempt > 1 {
				t := time.NewTimer(c.opts.ReadBackoff * time.Duration(1<<(attempt-2)))
				select {
				case <-ctx.Done():
					t.Stop()
					return nil, apperr.Upstream(method, ctx.Err())
				case <-t.C:
				}
			}
			actx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
			start := time.Now()
			v, err := decode(gw, actx)
			cancel()
			metrics.LedgerLatency.WithLabelValues("query").Observe(time.Since(start).Seconds())
			metrics.LedgerCalls.WithLabelValues("query", method, outcome(err)).Inc()
			if err == nil {
				return v, nil
			}
			last = apperr.Upstream(method, err)
			if !apperr.Retryable(last) {
				return nil, last
			}
			logger.Debugf("ledger: query %s attempt %d failed: %v", method, attempt, err)
		}
		return nil, last
	})
	select {
	case <-caller.Done():
		return nil, apperr.Upstream(method, caller.Err())
	case r := <-ch:
		return r.Val, r.Err
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.KindOf(err).String()
}

// RequiredStake is fetched once and cached for the process lifetime.
func (c *Client) RequiredStake(ctx context.Context) (models.Amount, error) {
	c.paramsMu.Lock()
	if c.stake != nil {
		s := *c.stake
		c.paramsMu.Unlock()
		return s, nil
	}
	c.paramsMu.Unlock()

	v, err := c.query(ctx, MethodRequiredStake, nil, func(gw Gateway, ctx context.Context) (interface{}, error) {
		var a models.Amount
		err := gw.Query(ctx, MethodRequiredStake, nil, &a)
		return a, err
	})
	if err != nil {
		return models.Amount{}, err
	}
	a := v.(models.Amount)
	c.paramsMu.Lock()
	c.stake = &a
	c.paramsMu.Unlock()
	return a, nil
}

func (c *Client) SlashPercentage(ctx context.Context) (int64, error) {
	c.paramsMu.Lock()
	if c.slashPct != nil {
		p := *c.slashPct
		c.paramsMu.Unlock()
		return p, nil
	}
	c.paramsMu.Unlock()

	v, err := c.query(ctx, MethodSlashPercentage, nil, func(gw Gateway, ctx context.Context) (interface{}, error) {
		var s string
		if err := gw.Query(ctx, MethodSlashPercentage, nil, &s); err != nil {
			return nil, err
		}
		p, err := strconv.ParseInt(s, 10, 64)
		if err != nil || p < 0 || p > 100 {
			return nil, apperr.Wrap(apperr.ErrInvalidInput, "ledger slash percentage %q", s)
		}
		return p, nil
	})
	if err != nil {
		return 0, err
	}
	p := v.(int64)
	c.paramsMu.Lock()
	c.slashPct = &p
	c.paramsMu.Unlock()
	return p, nil
}

// Document returns the ledger record or ErrDocumentNotFound.
func (c *Client) Document(ctx context.Context, cid string) (*DocumentRecord, error) {
	v, err := c.query(ctx, MethodDocument, []string{cid}, func(gw Gateway, ctx context.Context) (interface{}, error) {
		var d DocumentRecord
		err := gw.Query(ctx, MethodDocument, []string{cid}, &d)
		return &d, err
	})
	if err != nil {
		return nil, err
	}
	d := *v.(*DocumentRecord)
	d.Notaries = append([]string(nil), d.Notaries...)
	if !d.Exists {
		return nil, apperr.Wrap(apperr.ErrDocumentNotFound, "ledger has no document %s", cid)
	}
	return &d, nil
}

// Notary returns the ledger record or ErrNotaryNotFound.
func (c *Client) Notary(ctx context.Context, addr string) (*NotaryRecord, error) {
	v, err := c.query(ctx, MethodNotary, []string{addr}, func(gw Gateway, ctx context.Context) (interface{}, error) {
		var n NotaryRecord
		err := gw.Query(ctx, MethodNotary, []string{addr}, &n)
		return &n, err
	})
	if err != nil {
		return nil, err
	}
	n := *v.(*NotaryRecord)
	if !n.Registered {
		return nil, apperr.Wrap(apperr.ErrNotaryNotFound, "ledger has no notary %s", addr)
	}
	return &n, nil
}

func (c *Client) UserDocuments(ctx context.Context, owner string) ([]string, error) {
	v, err := c.query(ctx, MethodUserDocuments, []string{owner}, func(gw Gateway, ctx context.Context) (interface{}, error) {
		var ids []string
		err := gw.Query(ctx, MethodUserDocuments, []string{owner}, &ids)
		return ids, err
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}

func (c *Client) RegisterNotary(ctx context.Context, addr, name string, stake models.Amount) (*Receipt, error) {
	return c.submit(ctx, Request{Method: MethodRegisterNotary, Args: []string{name}, From: addr, Value: stake.String()})
}

func (c *Client) RegisterDocument(ctx context.Context, owner, cid, name string) (*Receipt, error) {
	return c.submit(ctx, Request{Method: MethodRegisterDocument, Args: []string{cid, name}, From: owner})
}

func (c *Client) NotarizeDocument(ctx context.Context, notary, cid string) (*Receipt, error) {
	return c.submit(ctx, Request{Method: MethodNotarizeDocument, Args: []string{cid}, From: notary})
}

func (c *Client) SlashNotary(ctx context.Context, notary, cid string) (*Receipt, error) {
	return c.submit(ctx, Request{Method: MethodSlashNotary, Args: []string{notary, cid}, From: c.opts.Operator})
}

func (c *Client) WithdrawStake(ctx context.Context, notary string) (*Receipt, error) {
	return c.submit(ctx, Request{Method: MethodWithdrawStake, From: notary})
}

func (c *Client) AddStake(ctx context.Context, notary string, amount models.Amount) (*Receipt, error) {
	return c.submit(ctx, Request{Method: MethodAddStake, From: notary, Value: amount.String()})
}

func (c *Client) DeactivateNotary(ctx context.Context, notary string) (*Receipt, error) {
	return c.submit(ctx, Request{Method: MethodDeactivateNotary, From: notary})
}
