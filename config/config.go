// Package config handles loading and managing application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "ARCANO"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Config holds all configuration for the application.
type Config struct {
	// Server configuration
	App AppConfig

	// Persistence
	DB    DBConfig
	Redis RedisConfig

	// Mercado Pago credentials and checkout settings
	MercadoPago MercadoPagoConfig

	// Content generator endpoint
	LLM LLMConfig

	// Security settings
	Auth AuthConfig

	// Payment orchestration behaviour
	Payment PaymentConfig
}

// AppConfig holds HTTP server configuration.
type AppConfig struct {
	Env          string `envconfig:"ARCANO_APP_ENV" default:"dev"`
	Port         string `envconfig:"ARCANO_PORT" default:"8080"`
	GinMode      string `envconfig:"ARCANO_GIN_MODE" default:"debug"` // "debug", "release", or "test"
	LogLevel     string `envconfig:"ARCANO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ARCANO_LOG_WARN_STACK" default:"false"`
	// PublicURL is the browser-facing origin used for checkout back URLs.
	PublicURL string `envconfig:"ARCANO_PUBLIC_URL" default:"http://localhost:3000"`
	// APIURL is where Mercado Pago delivers notifications. Defaults to PublicURL.
	APIURL      string   `envconfig:"ARCANO_API_URL"`
	CORSOrigins []string `envconfig:"ARCANO_CORS_ORIGINS" default:"*"`
	AutoMigrate bool     `envconfig:"ARCANO_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// DBConfig holds the relational store connection settings.
type DBConfig struct {
	DSN             string        `envconfig:"ARCANO_DB_DSN" required:"true"`
	MaxOpenConns    int           `envconfig:"ARCANO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ARCANO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ARCANO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ARCANO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig is optional; an empty URL disables webhook de-duplication.
type RedisConfig struct {
	URL            string        `envconfig:"ARCANO_REDIS_URL"`
	PoolSize       int           `envconfig:"ARCANO_REDIS_POOL_SIZE" default:"10"`
	DialTimeout    time.Duration `envconfig:"ARCANO_REDIS_DIAL_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"ARCANO_REDIS_IDEMPOTENCY_TTL" default:"72h"`
}

// Enabled reports whether a Redis connection was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

// MercadoPagoConfig holds the gateway credentials. The access token is not
// required at boot: preference creation fails with a configuration error
// instead, so the free consultations keep working without it.
type MercadoPagoConfig struct {
	AccessToken         string `envconfig:"ARCANO_MP_ACCESS_TOKEN"`
	WebhookSecret       string `envconfig:"ARCANO_MP_WEBHOOK_SECRET"`
	CurrencyID          string `envconfig:"ARCANO_MP_CURRENCY" default:"BRL"`
	StatementDescriptor string `envconfig:"ARCANO_MP_STATEMENT_DESCRIPTOR" default:"CONSULTAS ESOTERIC"`
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL    string        `envconfig:"ARCANO_LLM_BASE_URL" default:"https://api.openai.com"`
	APIKey     string        `envconfig:"ARCANO_LLM_API_KEY"`
	Model      string        `envconfig:"ARCANO_LLM_MODEL" default:"gpt-4o-mini"`
	Timeout    time.Duration `envconfig:"ARCANO_LLM_TIMEOUT" default:"90s"`
	MaxRetries uint64        `envconfig:"ARCANO_LLM_MAX_RETRIES" default:"2"`
}

// AuthConfig holds the shared secret used to verify bearer tokens.
type AuthConfig struct {
	JWTSecret string `envconfig:"ARCANO_JWT_SECRET"`
}

// PaymentConfig tunes the orchestrator and the status poll endpoint.
type PaymentConfig struct {
	AutoFinalize   bool          `envconfig:"ARCANO_PAYMENT_AUTO_FINALIZE" default:"false"`
	PollRatePerSec float64       `envconfig:"ARCANO_PAYMENT_POLL_RATE" default:"2"`
	PollBurst      int           `envconfig:"ARCANO_PAYMENT_POLL_BURST" default:"5"`
	GatewayTimeout time.Duration `envconfig:"ARCANO_PAYMENT_GATEWAY_TIMEOUT" default:"15s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.App.PublicURL = strings.TrimRight(cfg.App.PublicURL, "/")
	cfg.App.APIURL = strings.TrimRight(cfg.App.APIURL, "/")
	if cfg.App.APIURL == "" {
		cfg.App.APIURL = cfg.App.PublicURL
	}
	cfg.LLM.BaseURL = strings.TrimRight(cfg.LLM.BaseURL, "/")
	return &cfg, nil
}

// ClientConfig configures the checkout CLI, which talks to a running API
// instead of the database.
type ClientConfig struct {
	BaseURL     string        `envconfig:"ARCANO_CLIENT_BASE_URL" default:"http://localhost:8080"`
	Token       string        `envconfig:"ARCANO_CLIENT_TOKEN"`
	SessionFile string        `envconfig:"ARCANO_CLIENT_SESSION_FILE" default:".arcano/session.json"`
	Timeout     time.Duration `envconfig:"ARCANO_CLIENT_TIMEOUT" default:"120s"`
	// PollInterval and WaitTimeout bound the return-URL confirmation.
	PollInterval time.Duration `envconfig:"ARCANO_CLIENT_POLL_INTERVAL" default:"2s"`
	WaitTimeout  time.Duration `envconfig:"ARCANO_CLIENT_WAIT_TIMEOUT" default:"5m"`
	LogLevel     string        `envconfig:"ARCANO_LOG_LEVEL" default:"info"`
}

// LoadClient reads the checkout CLI settings. No database settings are needed.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("parsing client config: ARCANO_CLIENT_BASE_URL is empty")
	}
	return &cfg, nil
}
