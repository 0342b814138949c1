package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration. Every backing store is optional;
// an empty address selects the in-process implementation.
type Config struct {
	Server       ServerConfig
	MongoDB      MongoDBConfig
	Redis        RedisConfig
	MinIO        MinIOConfig
	Content      ContentConfig
	Ledger       LedgerConfig
	Coordination CoordinationConfig
	Monitor      MonitorConfig
	RateLimit    RateLimitConfig
	Keycloak     KeycloakConfig
	Operator     OperatorConfig
	LogLevel     string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
	Attempts int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ContentConfig lists the HTTP gateways tried after MinIO, in order.
type ContentConfig struct {
	Gateways      []string
	APIURL        string
	MirrorTimeout time.Duration
}

type LedgerConfig struct {
	Dev             bool
	Endpoint        string
	ContractAddress string
	AddressFile     string
	Binders         []string
	Attempts        int
	Backoff         time.Duration
	CallTimeout     time.Duration
	Operator        string
	// CacheOnly keeps the service up on its cache when the ledger cannot be bound.
	CacheOnly bool
}

type CoordinationConfig struct {
	Quorum             int
	NotarizationWindow time.Duration
	ReconcileBase      time.Duration
	ReconcileCap       time.Duration
	VerifyStaleAfter   time.Duration
	VerifyCheckTimeout time.Duration
	BatchParallelism   int
}

type MonitorConfig struct {
	Enabled           bool
	IntegrityInterval time.Duration
	NotaryInterval    time.Duration
	ReputationFloor   float64
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	Window  time.Duration
}

type KeycloakConfig struct {
	URL           string
	Realm         string
	ClientID      string
	AllowInsecure bool
}

// Issuer is the realm URL tokens must come from.
func (k KeycloakConfig) Issuer() string {
	if k.URL == "" || k.Realm == "" {
		return ""
	}
	return strings.TrimRight(k.URL, "/") + "/realms/" + k.Realm
}

type OperatorConfig struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

func setDefaults() {
	viper.SetDefault("SERVER_PORT", "5010")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("MONGODB_DATABASE", "notary")
	viper.SetDefault("MONGODB_TIMEOUT", "10s")
	viper.SetDefault("MONGODB_CONNECT_ATTEMPTS", 5)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("MINIO_BUCKET", "notary-documents")

	viper.SetDefault("CONTENT_MIRROR_TIMEOUT", "10s")

	viper.SetDefault("LEDGER_BINDERS", "configured,file")
	viper.SetDefault("LEDGER_ATTEMPTS", 3)
	viper.SetDefault("LEDGER_BACKOFF", "5s")
	viper.SetDefault("LEDGER_TIMEOUT", "60s")
	viper.SetDefault("LEDGER_OPERATOR", "coordinator")

	viper.SetDefault("QUORUM_SIZE", 1)
	viper.SetDefault("NOTARIZATION_WINDOW", "24h")
	viper.SetDefault("RECONCILE_BASE", "1s")
	viper.SetDefault("RECONCILE_CAP", "30s")
	viper.SetDefault("VERIFY_STALE_AFTER", "24h")
	viper.SetDefault("VERIFY_CHECK_TIMEOUT", "30s")
	viper.SetDefault("VERIFY_BATCH_PARALLELISM", 4)

	viper.SetDefault("MONITOR_ENABLED", true)
	viper.SetDefault("MONITOR_INTEGRITY_INTERVAL", "5m")
	viper.SetDefault("MONITOR_NOTARY_INTERVAL", "10m")
	viper.SetDefault("MONITOR_REPUTATION_FLOOR", 90.0)

	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_RPS", 5.0)
	viper.SetDefault("RATE_LIMIT_BURST", 10)
	viper.SetDefault("RATE_LIMIT_WINDOW", "1m")

	viper.SetDefault("OPERATOR_JWT_ISSUER", "notaryd")
	viper.SetDefault("OPERATOR_TOKEN_TTL", "1h")
}

// LoadConfig loads configuration from the environment and an optional .env file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()
	setDefaults()

	cfg := &Config{
		LogLevel: viper.GetString("LOG_LEVEL"),
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  viper.GetDuration("MONGODB_TIMEOUT"),
			Attempts: viper.GetInt("MONGODB_CONNECT_ATTEMPTS"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: viper.GetString("MINIO_SECRET_KEY"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
		},
		Content: ContentConfig{
			Gateways:      splitList(viper.GetString("CONTENT_GATEWAYS")),
			APIURL:        viper.GetString("CONTENT_API_URL"),
			MirrorTimeout: viper.GetDuration("CONTENT_MIRROR_TIMEOUT"),
		},
		Ledger: LedgerConfig{
			Dev:             viper.GetBool("LEDGER_DEV"),
			Endpoint:        viper.GetString("LEDGER_ENDPOINT"),
			ContractAddress: viper.GetString("LEDGER_CONTRACT_ADDRESS"),
			AddressFile:     viper.GetString("LEDGER_ADDRESS_FILE"),
			Binders:         splitList(viper.GetString("LEDGER_BINDERS")),
			Attempts:        viper.GetInt("LEDGER_ATTEMPTS"),
			Backoff:         viper.GetDuration("LEDGER_BACKOFF"),
			CallTimeout:     viper.GetDuration("LEDGER_TIMEOUT"),
			Operator:        viper.GetString("LEDGER_OPERATOR"),
			CacheOnly:       viper.GetBool("LEDGER_CACHE_ONLY"),
		},
		Coordination: CoordinationConfig{
			Quorum:             viper.GetInt("QUORUM_SIZE"),
			NotarizationWindow: viper.GetDuration("NOTARIZATION_WINDOW"),
			ReconcileBase:      viper.GetDuration("RECONCILE_BASE"),
			ReconcileCap:       viper.GetDuration("RECONCILE_CAP"),
			VerifyStaleAfter:   viper.GetDuration("VERIFY_STALE_AFTER"),
			VerifyCheckTimeout: viper.GetDuration("VERIFY_CHECK_TIMEOUT"),
			BatchParallelism:   viper.GetInt("VERIFY_BATCH_PARALLELISM"),
		},
		Monitor: MonitorConfig{
			Enabled:           viper.GetBool("MONITOR_ENABLED"),
			IntegrityInterval: viper.GetDuration("MONITOR_INTEGRITY_INTERVAL"),
			NotaryInterval:    viper.GetDuration("MONITOR_NOTARY_INTERVAL"),
			ReputationFloor:   viper.GetFloat64("MONITOR_REPUTATION_FLOOR"),
		},
		RateLimit: RateLimitConfig{
			Enabled: viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:     viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:   viper.GetInt("RATE_LIMIT_BURST"),
			Window:  viper.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Keycloak: KeycloakConfig{
			URL:           viper.GetString("KEYCLOAK_URL"),
			Realm:         viper.GetString("KEYCLOAK_REALM"),
			ClientID:      viper.GetString("KEYCLOAK_CLIENT_ID"),
			AllowInsecure: viper.GetBool("OIDC_ALLOW_INSECURE"),
		},
		Operator: OperatorConfig{
			Secret:   viper.GetString("OPERATOR_JWT_SECRET"),
			Issuer:   viper.GetString("OPERATOR_JWT_ISSUER"),
			TokenTTL: viper.GetDuration("OPERATOR_TOKEN_TTL"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if !c.Ledger.Dev && c.Ledger.Endpoint == "" {
		errs = append(errs, errors.New("LEDGER_ENDPOINT is required unless LEDGER_DEV=true"))
	}
	if !c.Ledger.Dev && c.Ledger.ContractAddress == "" && c.Ledger.AddressFile == "" {
		errs = append(errs, errors.New("one of LEDGER_CONTRACT_ADDRESS or LEDGER_ADDRESS_FILE is required"))
	}
	for _, b := range c.Ledger.Binders {
		if b != "configured" && b != "file" {
			errs = append(errs, fmt.Errorf("LEDGER_BINDERS: unknown binder %q", b))
		}
	}
	if c.Ledger.Attempts < 1 {
		errs = append(errs, errors.New("LEDGER_ATTEMPTS must be at least 1"))
	}
	if c.Coordination.Quorum < 1 {
		errs = append(errs, errors.New("QUORUM_SIZE must be at least 1"))
	}
	if c.Coordination.NotarizationWindow <= 0 {
		errs = append(errs, errors.New("NOTARIZATION_WINDOW must be positive"))
	}
	if c.Coordination.ReconcileBase <= 0 || c.Coordination.ReconcileCap < c.Coordination.ReconcileBase {
		errs = append(errs, errors.New("RECONCILE_BASE must be positive and not above RECONCILE_CAP"))
	}
	if c.Operator.Secret != "" && len(c.Operator.Secret) < 32 {
		errs = append(errs, errors.New("OPERATOR_JWT_SECRET must be at least 32 bytes"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
