package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Chapa     ChapaConfig     `mapstructure:"chapa"`
	App       AppConfig       `mapstructure:"app"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ChapaConfig configures the payment gateway client and webhook verification.
type ChapaConfig struct {
	SecretKey      string        `mapstructure:"secret_key"`     // Bearer token: CHASECK-xxxxx
	WebhookSecret  string        `mapstructure:"webhook_secret"` // HMAC key for Chapa-Signature
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

type AppConfig struct {
	PublicURL string `mapstructure:"public_url"`
}

// WebhookURL is the callback URL handed to the gateway on initiation.
func (a AppConfig) WebhookURL() string {
	return strings.TrimRight(a.PublicURL, "/") + "/api/webhooks/chapa"
}

// ReturnURL is where the customer lands after checkout.
func (a AppConfig) ReturnURL(orderID string) string {
	return fmt.Sprintf("%s/orders/%s/success", strings.TrimRight(a.PublicURL, "/"), orderID)
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	Expiry    time.Duration `mapstructure:"expiry"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"` // empty = tracing export disabled
	SentryDSN    string `mapstructure:"sentry_dsn"`    // empty = log-only reporting
	Environment  string `mapstructure:"environment"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: SFP_ (StoreFront Payments).
// Nested keys use underscore: SFP_DATABASE_HOST, SFP_CHAPA_SECRET_KEY, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "storefront")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("chapa.secret_key", "")
	v.SetDefault("chapa.webhook_secret", "")
	v.SetDefault("chapa.base_url", "https://api.chapa.co/v1")
	v.SetDefault("chapa.timeout", "15s")
	v.SetDefault("chapa.max_attempts", 3)
	v.SetDefault("chapa.retry_base_delay", "1s")
	v.SetDefault("app.public_url", "http://localhost:3000")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "storefront-payments")
	v.SetDefault("auth.expiry", "12h")
	v.SetDefault("telemetry.service_name", "storefront-payments")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.sentry_dsn", "")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// SFP_CHAPA_SECRET_KEY -> chapa.secret_key
	v.SetEnvPrefix("SFP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
