// Package app wires configuration into a running notary coordinator.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/gogotex/gogotex/backend/notary-service/internal/config"
	"github.com/gogotex/gogotex/backend/notary-service/internal/contentstore"
	"github.com/gogotex/gogotex/backend/notary-service/internal/database"
	"github.com/gogotex/gogotex/backend/notary-service/internal/document/attempts"
	docrepo "github.com/gogotex/gogotex/backend/notary-service/internal/document/repository"
	docsvc "github.com/gogotex/gogotex/backend/notary-service/internal/document/service"
	"github.com/gogotex/gogotex/backend/notary-service/internal/ledger"
	"github.com/gogotex/gogotex/backend/notary-service/internal/monitor"
	notaryrepo "github.com/gogotex/gogotex/backend/notary-service/internal/notary/repository"
	notarysvc "github.com/gogotex/gogotex/backend/notary-service/internal/notary/service"
	"github.com/gogotex/gogotex/backend/notary-service/internal/oidc"
	"github.com/gogotex/gogotex/backend/notary-service/internal/reconcile"
	"github.com/gogotex/gogotex/backend/notary-service/internal/tokens"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/middleware"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/readiness"
)

// App holds the wired components. Fields are nil when a backing store is not
// configured and its in-process replacement is in use.
type App struct {
	Config      *config.Config
	Ledger      *ledger.Client
	Simulator   *ledger.Simulator
	Store       *contentstore.Store
	Reconciler  *reconcile.Reconciler
	Notaries    *notarysvc.Service
	Documents   *docsvc.Service
	Monitor     *monitor.Monitor
	Verifier    middleware.Verifier
	Issuer      *tokens.Issuer
	Revocations tokens.Revocations

	Mongo *mongo.Client
	Redis *redis.Client

	backends map[string]string
	started  time.Time
}

// New connects the configured backends. Mongo and Redis failures fall back to
// in-process stores with a warning; the ledger is bound later by StartLedger.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, backends: map[string]string{}, started: time.Now()}

	a.connectRedis(ctx)
	if err := a.connectMongo(ctx); err != nil {
		return nil, err
	}

	store, err := a.contentStore()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Store = store

	lopts := ledger.Options{CallTimeout: cfg.Ledger.CallTimeout, Operator: cfg.Ledger.Operator}
	if cfg.Ledger.Dev {
		a.Simulator = ledger.NewSimulator()
		a.Ledger = ledger.NewReadyClient(a.Simulator, lopts)
		a.backends["ledger"] = "simulated"
		logger.Warnf("app: LEDGER_DEV enabled, using the in-process simulated ledger")
	} else {
		a.Ledger = ledger.NewClient(readiness.NewGate("ledger"), lopts)
		a.backends["ledger"] = cfg.Ledger.Endpoint
	}

	a.Reconciler = reconcile.New(cfg.Coordination.ReconcileBase, cfg.Coordination.ReconcileCap)

	var (
		nrepo   notaryrepo.Repository = notaryrepo.NewMemoryRepo()
		drepo   docrepo.Repository    = docrepo.NewMemoryRepo()
		tracker attempts.Tracker      = attempts.NewMemoryTracker(cfg.Coordination.NotarizationWindow)
	)
	if a.Mongo != nil {
		db := a.Mongo.Database(cfg.MongoDB.Database)
		nrepo = notaryrepo.NewMongoRepo(db)
		drepo = docrepo.NewMongoRepo(db.Collection("documents"))
	}
	if a.Redis != nil {
		tracker = attempts.NewRedisTracker(a.Redis, "", cfg.Coordination.NotarizationWindow)
		a.backends["attempts"] = "redis"
	} else {
		a.backends["attempts"] = "memory"
	}

	a.Notaries = notarysvc.New(a.Ledger, nrepo, a.Reconciler)
	a.Documents = docsvc.New(a.Ledger, a.Store, a.Notaries, drepo, tracker, a.Reconciler, docsvc.Options{
		Quorum:           cfg.Coordination.Quorum,
		StaleAfter:       cfg.Coordination.VerifyStaleAfter,
		CheckTimeout:     cfg.Coordination.VerifyCheckTimeout,
		BatchParallelism: cfg.Coordination.BatchParallelism,
	})
	a.Notaries.SetDocumentResolver(a.Documents)
	a.Monitor = monitor.New(a.Documents, a.Notaries, monitor.Options{
		IntegrityInterval: cfg.Monitor.IntegrityInterval,
		NotaryInterval:    cfg.Monitor.NotaryInterval,
		ReputationFloor:   cfg.Monitor.ReputationFloor,
		Ledger:            a.Ledger.Gate(),
	})

	if err := a.setupAuth(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) connectRedis(ctx context.Context) {
	rc := a.Config.Redis
	if rc.Host == "" {
		return
	}
	client := redis.NewClient(&redis.Options{Addr: rc.Addr(), Password: rc.Password, DB: rc.DB})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		logger.Warnf("app: redis %s unreachable, using in-process attempt window and rate limiter: %v", rc.Addr(), err)
		_ = client.Close()
		return
	}
	a.Redis = client
	logger.Infof("app: connected to Redis at %s", rc.Addr())
}

func (a *App) connectMongo(ctx context.Context) error {
	mc := a.Config.MongoDB
	if mc.URI == "" {
		a.backends["cache"] = "memory"
		return nil
	}
	timeout := mc.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client, err := database.ConnectMongoRetry(ctx, mc.URI, timeout, mc.Attempts)
	if err != nil {
		logger.Warnf("app: %v; using memory-backed cache", err)
		a.backends["cache"] = "memory"
		return nil
	}
	a.Mongo = client
	a.backends["cache"] = "mongo"
	return nil
}

func (a *App) contentStore() (*contentstore.Store, error) {
	cc := a.Config.Content
	var mirrors []contentstore.Mirror
	if mc := a.Config.MinIO; mc.Endpoint != "" {
		m, err := contentstore.NewMinIOMirror(&contentstore.MinIOConfig{
			Endpoint:  mc.Endpoint,
			AccessKey: mc.AccessKey,
			SecretKey: mc.SecretKey,
			UseSSL:    mc.UseSSL,
			Bucket:    mc.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("content store: %w", err)
		}
		mirrors = append(mirrors, m)
	}
	for i, base := range cc.Gateways {
		api := ""
		if i == 0 {
			api = cc.APIURL
		}
		mirrors = append(mirrors, contentstore.NewGatewayMirror(mirrorName(base, i), base, api, cc.MirrorTimeout))
	}
	if len(mirrors) == 0 {
		logger.Warnf("app: no content mirrors configured, content lives in process memory")
		mirrors = append(mirrors, contentstore.NewMemoryMirror("memory"))
	}
	store, err := contentstore.New(cc.MirrorTimeout, mirrors...)
	if err != nil {
		return nil, err
	}
	a.backends["content"] = fmt.Sprint(store.Mirrors())
	return store, nil
}

func mirrorName(base string, i int) string {
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		return u.Host
	}
	return fmt.Sprintf("gateway-%d", i)
}

func (a *App) setupAuth(ctx context.Context) error {
	var vs middleware.AnyVerifier
	if secret := a.Config.Operator.Secret; secret != "" {
		iss, err := tokens.NewIssuer(secret, a.Config.Operator.Issuer)
		if err != nil {
			return err
		}
		a.Issuer = iss
		vs = append(vs, iss)
	}
	kc := a.Config.Keycloak
	switch {
	case kc.Issuer() != "" && kc.ClientID != "":
		v, err := oidc.NewVerifier(ctx, kc.Issuer(), kc.ClientID, 3, 2*time.Second)
		if err != nil {
			logger.Warnf("app: OIDC verifier unavailable: %v", err)
		} else {
			vs = append(vs, v)
		}
	case kc.AllowInsecure:
		logger.Warnf("app: OIDC_ALLOW_INSECURE set, operator token signatures are NOT checked")
		vs = append(vs, oidc.NewInsecureVerifier())
	}
	if len(vs) == 0 {
		return nil
	}
	if a.Redis != nil {
		a.Revocations = tokens.NewRedisRevocations(a.Redis, "")
	} else {
		a.Revocations = tokens.NewMemoryRevocations()
	}
	a.Verifier = tokens.RevocableVerifier{Verifier: vs, Store: a.Revocations}
	return nil
}

// StartLedger binds the ledger gateway in the background. It returns at once;
// readiness is reported through the client's gate.
func (a *App) StartLedger(ctx context.Context) {
	if a.Simulator != nil {
		return
	}
	go func() {
		_ = a.BindLedger(ctx)
	}()
}

// BindLedger runs the startup loop in the caller's goroutine.
func (a *App) BindLedger(ctx context.Context) error {
	if a.Simulator != nil {
		return nil
	}
	lc := a.Config.Ledger
	var binders []ledger.Binder
	for _, name := range lc.Binders {
		switch name {
		case "configured":
			if lc.ContractAddress != "" {
				binders = append(binders, ledger.StaticBinder{Address: lc.ContractAddress})
			}
		case "file":
			if lc.AddressFile != "" {
				binders = append(binders, ledger.FileBinder{Path: lc.AddressFile})
			}
		}
	}
	dial := func(_ context.Context, contract string) (ledger.Gateway, error) {
		if lc.Endpoint == "" {
			return nil, errors.New("ledger endpoint not configured")
		}
		return ledger.NewRPCGateway(lc.Endpoint, contract, lc.CallTimeout), nil
	}
	opts := ledger.BootstrapOptions{Attempts: lc.Attempts, Backoff: lc.Backoff, Degrade: lc.CacheOnly && a.cacheUp(ctx)}
	return ledger.Bootstrap(ctx, a.Ledger, binders, dial, opts)
}

// cacheUp reports whether the document and notary cache answers.
func (a *App) cacheUp(ctx context.Context) bool {
	if a.Mongo == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Mongo.Ping(ctx, nil); err != nil {
		logger.Warnf("app: cache unreachable, no cache-only fallback: %v", err)
		return false
	}
	return true
}

// Readiness reports whether the service can answer trust-gated requests and
// which backends are in use.
func (a *App) Readiness() (bool, map[string]interface{}) {
	state, reason := a.Ledger.Gate().State()
	ledgerDep := map[string]interface{}{"state": string(state), "backend": a.backends["ledger"]}
	if reason != "" {
		ledgerDep["reason"] = reason
	}
	deps := map[string]interface{}{
		"ledger":    ledgerDep,
		"cache":     a.backends["cache"],
		"attempts":  a.backends["attempts"],
		"content":   a.backends["content"],
		"reconcile": map[string]int{"pending": a.Reconciler.Pending()},
		"operator":  a.Verifier != nil,
	}
	if a.Monitor != nil {
		integrity, notaries := a.Monitor.Last()
		deps["monitor"] = map[string]interface{}{"integrity": integrity, "notaries": notaries}
	}
	return state == readiness.StateReady, deps
}

// Close stops background retries and disconnects backends.
func (a *App) Close(ctx context.Context) {
	if a.Reconciler != nil {
		if left := a.Reconciler.Close(); len(left) > 0 {
			logger.Warnf("app: %d cache writes still pending at shutdown", len(left))
		}
	}
	if a.Mongo != nil {
		_ = a.Mongo.Disconnect(ctx)
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
}
