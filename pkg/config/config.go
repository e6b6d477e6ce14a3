package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	OpsAuth      OpsAuthConfig
	FeatureFlags FeatureFlagsConfig
	Webhook      WebhookConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Cron         CronConfig
	Calendar     CalendarConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PRACTIVA_APP_ENV" required:"true"`
	Port         string `envconfig:"PRACTIVA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PRACTIVA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PRACTIVA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PRACTIVA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PRACTIVA_DB_DSN"`
	Driver string `envconfig:"PRACTIVA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PRACTIVA_DB_HOST"`
	LegacyPort     int    `envconfig:"PRACTIVA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PRACTIVA_DB_USER"`
	LegacyPassword string `envconfig:"PRACTIVA_DB_PASSWORD"`
	LegacyName     string `envconfig:"PRACTIVA_DB_NAME"`
	LegacySSLMode  string `envconfig:"PRACTIVA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PRACTIVA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PRACTIVA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PRACTIVA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PRACTIVA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PRACTIVA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PRACTIVA_REDIS_ADDR"`
	Password     string        `envconfig:"PRACTIVA_REDIS_PASSWORD"`
	DB           int           `envconfig:"PRACTIVA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PRACTIVA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PRACTIVA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PRACTIVA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PRACTIVA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PRACTIVA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// OpsAuthConfig secures the operational API that reads the webhook ledger.
type OpsAuthConfig struct {
	Secret   string `envconfig:"PRACTIVA_OPS_JWT_SECRET" required:"true"`
	Issuer   string `envconfig:"PRACTIVA_OPS_JWT_ISSUER" default:"practiva"`
	Audience string `envconfig:"PRACTIVA_OPS_JWT_AUDIENCE" default:"practiva-ops"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PRACTIVA_AUTO_MIGRATE" default:"false"`
}

// WebhookConfig drives the payment-processor webhook pipeline.
type WebhookConfig struct {
	SigningSecret   string        `envconfig:"PRACTIVA_PAYMENTS_SIGNING_SECRET" required:"true"`
	IdempotencyTTL  time.Duration `envconfig:"PRACTIVA_PAYMENTS_IDEMPOTENCY_TTL" default:"720h"`
	LedgerRetention time.Duration `envconfig:"PRACTIVA_PAYMENTS_LEDGER_RETENTION" default:"2160h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"PRACTIVA_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"PRACTIVA_PUBSUB_NOTIFICATION_TOPIC" default:"pv-notification-events"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"PRACTIVA_CRON_INTERVAL" default:"1h"`
	EscalationBatchSize int           `envconfig:"PRACTIVA_CRON_ESCALATION_BATCH_SIZE" default:"250"`
}

// CalendarConfig configures the external calendar token refresher.
type CalendarConfig struct {
	TokenURL      string        `envconfig:"PRACTIVA_CALENDAR_TOKEN_URL"`
	ClientID      string        `envconfig:"PRACTIVA_CALENDAR_CLIENT_ID"`
	ClientSecret  string        `envconfig:"PRACTIVA_CALENDAR_CLIENT_SECRET"`
	RefreshWindow time.Duration `envconfig:"PRACTIVA_CALENDAR_REFRESH_WINDOW" default:"1h"`
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
