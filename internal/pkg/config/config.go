package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/env"
	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/paytiko"
)

// Config is the process-wide settings value built once at startup.
type Config struct {
	AppHost string
	AppPort string
	AppEnv  string

	PublicDomain       string
	OperatorKeyHash    string
	MonitorUser        string
	MonitorPassword    string
	RateLimitPerMinute int

	Paytiko  paytiko.Config
	Database DatabaseConfig
	Cache    CacheConfig
	Archive  ArchiveConfig
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type CacheConfig struct {
	Host     string
	Port     string
	Password string
}

// Addr returns host:port for the redis client.
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type ArchiveConfig struct {
	Enabled         bool
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string
}

// Load reads the environment. env.SetupEnvFile should run first when a .env
// file is expected.
func Load() (*Config, error) {
	cfg := &Config{
		AppHost:            env.GetEnv("APP_HOST", "localhost"),
		AppPort:            env.GetEnv("APP_PORT", "4000"),
		AppEnv:             env.GetEnv("APP_ENV", "prod"),
		PublicDomain:       strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"),
		OperatorKeyHash:    env.GetEnv("PAYTIKO_OPERATOR_API_KEY_HASH", ""),
		MonitorUser:        env.GetEnv("MONITOR_USER", "admin"),
		MonitorPassword:    env.GetEnv("MONITOR_PASSWORD", ""),
		RateLimitPerMinute: 120,
		Paytiko:            loadPaytiko(),
		Database:           LoadDatabase(),
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},
		Archive: ArchiveConfig{
			Enabled:         env.GetBool("S3_ARCHIVE_ENABLED", false),
			AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
			Region:          env.GetEnv("S3_REGION", "us-east-1"),
			BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
			EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		},
	}

	if n, err := strconv.Atoi(env.GetEnv("RATE_LIMIT_PER_MINUTE", "")); err == nil && n > 0 {
		cfg.RateLimitPerMinute = n
	}

	p := &cfg.Paytiko
	if p.WebhookURL == "" && cfg.PublicDomain != "" {
		p.WebhookURL = cfg.PublicDomain + "/api/webhooks/paytiko"
	}
	if p.SuccessRedirectURL == "" && cfg.PublicDomain != "" {
		p.SuccessRedirectURL = cfg.PublicDomain + "/payment/success"
	}
	if p.FailedRedirectURL == "" && cfg.PublicDomain != "" {
		p.FailedRedirectURL = cfg.PublicDomain + "/payment/failed"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the process cannot start without.
func (c *Config) Validate() error {
	if err := c.Paytiko.Validate(); err != nil {
		return err
	}
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Archive.Enabled {
		if c.Archive.AccessKeyID == "" || c.Archive.SecretAccessKey == "" {
			return fmt.Errorf("S3 credentials are required when S3_ARCHIVE_ENABLED is set")
		}
		if c.Archive.BucketName == "" {
			return fmt.Errorf("S3_BUCKET_NAME is required when S3_ARCHIVE_ENABLED is set")
		}
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

func loadPaytiko() paytiko.Config {
	def := paytiko.DefaultConfig()
	return paytiko.Config{
		MerchantSecretKey:  env.GetEnv("PAYTIKO_MERCHANT_SECRET_KEY", ""),
		CoreURL:            env.GetEnv("PAYTIKO_CORE_URL", def.CoreURL),
		DefaultCurrency:    env.GetEnv("PAYTIKO_DEFAULT_CURRENCY", def.DefaultCurrency),
		WebhookURL:         env.GetEnv("PAYTIKO_WEBHOOK_URL", ""),
		SuccessRedirectURL: env.GetEnv("PAYTIKO_SUCCESS_REDIRECT_URL", ""),
		FailedRedirectURL:  env.GetEnv("PAYTIKO_FAILED_REDIRECT_URL", ""),
		VerifySignature:    env.GetBool("PAYTIKO_VERIFY_WEBHOOK_SIGNATURE", def.VerifySignature),
		SignatureTolerance: env.GetSeconds("PAYTIKO_WEBHOOK_TOLERANCE", def.SignatureTolerance),
		HTTPTimeout:        env.GetSeconds("PAYTIKO_HTTP_TIMEOUT", def.HTTPTimeout),
		HTTPConnectTimeout: env.GetSeconds("PAYTIKO_HTTP_CONNECT_TIMEOUT", def.HTTPConnectTimeout),
		HTTPVerifyTLS:      env.GetBool("PAYTIKO_HTTP_VERIFY_SSL", def.HTTPVerifyTLS),
		LoggingEnabled:     env.GetBool("PAYTIKO_LOGGING_ENABLED", def.LoggingEnabled),
		LogLevel:           strings.ToLower(env.GetEnv("PAYTIKO_LOG_LEVEL", def.LogLevel)),
	}
}

// LoadDatabase reads only the database settings, for tools like the
// migration runner that do not need the gateway secret.
func LoadDatabase() DatabaseConfig {
	driver := strings.ToLower(env.GetEnv("DB_DRIVER", "mysql"))
	return DatabaseConfig{
		Driver:   driver,
		Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:     env.GetEnv("DB_PORT", defaultPort(driver)),
		User:     env.GetEnv("DB_USER", ""),
		Password: env.GetEnv("DB_PASSWORD", ""),
		Name:     env.GetEnv("DB_NAME", ""),
	}
}

func defaultPort(driver string) string {
	if driver == "postgres" {
		return "5432"
	}
	return "3306"
}
