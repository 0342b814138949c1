package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LEDGER_DEV", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "5010", cfg.Server.Port)
	require.Empty(t, cfg.MongoDB.URI)
	require.Equal(t, 1, cfg.Coordination.Quorum)
	require.Equal(t, 24*time.Hour, cfg.Coordination.NotarizationWindow)
	require.Equal(t, time.Second, cfg.Coordination.ReconcileBase)
	require.Equal(t, 30*time.Second, cfg.Coordination.ReconcileCap)
	require.Equal(t, 60*time.Second, cfg.Ledger.CallTimeout)
	require.Equal(t, 3, cfg.Ledger.Attempts)
	require.Equal(t, 5*time.Second, cfg.Ledger.Backoff)
	require.Equal(t, []string{"configured", "file"}, cfg.Ledger.Binders)
	require.Equal(t, 5*time.Minute, cfg.Monitor.IntegrityInterval)
	require.Equal(t, 10*time.Minute, cfg.Monitor.NotaryInterval)
	require.Equal(t, 10*time.Second, cfg.Content.MirrorTimeout)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LEDGER_DEV", "false")
	t.Setenv("LEDGER_ENDPOINT", "http://ledger:26657")
	t.Setenv("LEDGER_CONTRACT_ADDRESS", "0xc0ffee")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("CONTENT_GATEWAYS", "https://gateway.pinata.cloud, https://ipfs.io ,")
	t.Setenv("QUORUM_SIZE", "2")
	t.Setenv("NOTARIZATION_WINDOW", "12h")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.Equal(t, []string{"https://gateway.pinata.cloud", "https://ipfs.io"}, cfg.Content.Gateways)
	require.Equal(t, 2, cfg.Coordination.Quorum)
	require.Equal(t, 12*time.Hour, cfg.Coordination.NotarizationWindow)
	require.Equal(t, "0xc0ffee", cfg.Ledger.ContractAddress)
}

func TestLoadConfigRequiresLedger(t *testing.T) {
	t.Setenv("LEDGER_DEV", "false")
	t.Setenv("LEDGER_ENDPOINT", "")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "LEDGER_ENDPOINT")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{
		Ledger:       LedgerConfig{Dev: true, Attempts: 1, Binders: []string{"guess"}},
		Coordination: CoordinationConfig{Quorum: 0, NotarizationWindow: time.Hour, ReconcileBase: time.Minute, ReconcileCap: time.Second},
		Operator:     OperatorConfig{Secret: "short"},
	}
	err := cfg.Validate()
	require.ErrorContains(t, err, "unknown binder")
	require.ErrorContains(t, err, "QUORUM_SIZE")
	require.ErrorContains(t, err, "RECONCILE_BASE")
	require.ErrorContains(t, err, "OPERATOR_JWT_SECRET")
}

func TestKeycloakIssuer(t *testing.T) {
	require.Equal(t, "http://kc:8080/realms/gogotex", KeycloakConfig{URL: "http://kc:8080/", Realm: "gogotex"}.Issuer())
	require.Empty(t, KeycloakConfig{}.Issuer())
}
