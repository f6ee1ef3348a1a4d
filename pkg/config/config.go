package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Webhook   WebhookConfig
	Publisher PublisherConfig
	Stream    StreamConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Webhook.validate(cfg.App); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PROOFPULSE_APP_ENV" required:"true"`
	Port         string `envconfig:"PROOFPULSE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PROOFPULSE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PROOFPULSE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PROOFPULSE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PROOFPULSE_DB_DSN"`
	Driver string `envconfig:"PROOFPULSE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PROOFPULSE_DB_HOST"`
	LegacyPort     int    `envconfig:"PROOFPULSE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PROOFPULSE_DB_USER"`
	LegacyPassword string `envconfig:"PROOFPULSE_DB_PASSWORD"`
	LegacyName     string `envconfig:"PROOFPULSE_DB_NAME"`
	LegacySSLMode  string `envconfig:"PROOFPULSE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PROOFPULSE_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"PROOFPULSE_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"PROOFPULSE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PROOFPULSE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PROOFPULSE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PROOFPULSE_REDIS_ADDR"`
	Password     string        `envconfig:"PROOFPULSE_REDIS_PASSWORD"`
	DB           int           `envconfig:"PROOFPULSE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PROOFPULSE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PROOFPULSE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PROOFPULSE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PROOFPULSE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PROOFPULSE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PROOFPULSE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"PROOFPULSE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PROOFPULSE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EventsTopic        string `envconfig:"PROOFPULSE_PUBSUB_EVENTS_TOPIC" default:"pp-commerce-events"`
	EventsSubscription string `envconfig:"PROOFPULSE_PUBSUB_EVENTS_SUBSCRIPTION" required:"true"`
}

// WebhookConfig holds per-provider signing secrets plus the ingestion
// idempotency TTL. The dev fallback secret is refused in production.
type WebhookConfig struct {
	ShopifySecret     string        `envconfig:"PROOFPULSE_WEBHOOK_SHOPIFY_SECRET"`
	WooCommerceSecret string        `envconfig:"PROOFPULSE_WEBHOOK_WOOCOMMERCE_SECRET"`
	GenericSecret     string        `envconfig:"PROOFPULSE_WEBHOOK_GENERIC_SECRET"`
	DevFallbackSecret string        `envconfig:"PROOFPULSE_WEBHOOK_DEV_FALLBACK_SECRET" default:"dev-webhook-secret"`
	IdempotencyTTL    time.Duration `envconfig:"PROOFPULSE_WEBHOOK_IDEMPOTENCY_TTL" default:"24h"`
}

func (w WebhookConfig) validate(app AppConfig) error {
	if !app.IsProd() {
		return nil
	}
	missing := []string{}
	if strings.TrimSpace(w.ShopifySecret) == "" {
		missing = append(missing, "PROOFPULSE_WEBHOOK_SHOPIFY_SECRET")
	}
	if strings.TrimSpace(w.WooCommerceSecret) == "" {
		missing = append(missing, "PROOFPULSE_WEBHOOK_WOOCOMMERCE_SECRET")
	}
	if strings.TrimSpace(w.GenericSecret) == "" {
		missing = append(missing, "PROOFPULSE_WEBHOOK_GENERIC_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("production requires %s", strings.Join(missing, ", "))
	}
	return nil
}

type PublisherConfig struct {
	MaxAttempts    int           `envconfig:"PROOFPULSE_PUBLISH_MAX_ATTEMPTS" default:"5"`
	InitialBackoff time.Duration `envconfig:"PROOFPULSE_PUBLISH_INITIAL_BACKOFF" default:"100ms"`
	MaximumBackoff time.Duration `envconfig:"PROOFPULSE_PUBLISH_MAX_BACKOFF" default:"5s"`
	PublishTimeout time.Duration `envconfig:"PROOFPULSE_PUBLISH_TIMEOUT" default:"15s"`
}

type StreamConfig struct {
	KeepAliveInterval time.Duration `envconfig:"PROOFPULSE_STREAM_KEEPALIVE_INTERVAL" default:"30s"`
	SiteIDMinLength   int           `envconfig:"PROOFPULSE_STREAM_SITE_ID_MIN_LENGTH" default:"3"`
	ShutdownGrace     time.Duration `envconfig:"PROOFPULSE_STREAM_SHUTDOWN_GRACE" default:"10s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
