// Package config loads the service configuration from the environment, an
// optional .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrMissingStripeKey = errors.New("STRIPE_SECRET_KEY is required")

type Config struct {
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	CookieSecure       bool
	LogLevel           string

	CartStoreURL     string
	CartStoreTimeout time.Duration
	PublishableKey   string

	StripeSecretKey  string
	StripeAPIURL     string
	StripeMaxRetries int64
	ExpressMethods   []string

	// RedisAddr empty keeps checkout flags in process memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// DBHost empty disables the attempt ledger.
	DBHost        string
	DBPort        int
	DBUser        string
	DBPassword    string
	DBName        string
	MigrationsDir string

	// KafkaBrokers empty disables the outbox publisher and the cart events consumer.
	KafkaBrokers  []string
	ConsumerGroup string

	QuietPeriod  time.Duration
	TaxWindow    time.Duration
	AbandonAfter time.Duration

	// PageIdleTimeout unmounts checkout pages nobody has touched for this long.
	PageIdleTimeout time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", "8080")
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("max_request_body_size", 1<<20) // 1MB
	v.SetDefault("cookie_secure", true)
	v.SetDefault("log_level", "info")

	v.SetDefault("cart_store_url", "http://localhost:9000")
	v.SetDefault("cart_store_timeout", 10*time.Second)
	v.SetDefault("publishable_key", "")

	v.SetDefault("stripe_secret_key", "")
	v.SetDefault("stripe_api_url", "")
	v.SetDefault("stripe_max_retries", 2)
	v.SetDefault("express_methods", "apple_pay,google_pay,ideal,bancontact")

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("db_host", "")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "checkout")
	v.SetDefault("db_password", "")
	v.SetDefault("db_name", "checkout")
	v.SetDefault("migrations_dir", "./internal/repository/migrations")

	v.SetDefault("kafka_brokers", "")
	v.SetDefault("consumer_group", "")

	v.SetDefault("quiet_period", 500*time.Millisecond)
	v.SetDefault("tax_window", 10*time.Second)
	v.SetDefault("abandon_after", 30*time.Minute)
	v.SetDefault("page_idle_timeout", 30*time.Minute)
}

// Load reads envFile (when present) into the process environment, then resolves
// every key from the environment, configFile (when given) and the defaults.
func Load(envFile, configFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	return &Config{
		HTTPPort:           v.GetString("http_port"),
		RequestTimeout:     v.GetDuration("request_timeout"),
		ShutdownTimeout:    v.GetDuration("shutdown_timeout"),
		MaxRequestBodySize: v.GetInt64("max_request_body_size"),
		CookieSecure:       v.GetBool("cookie_secure"),
		LogLevel:           v.GetString("log_level"),

		CartStoreURL:     strings.TrimRight(v.GetString("cart_store_url"), "/"),
		CartStoreTimeout: v.GetDuration("cart_store_timeout"),
		PublishableKey:   v.GetString("publishable_key"),

		StripeSecretKey:  v.GetString("stripe_secret_key"),
		StripeAPIURL:     v.GetString("stripe_api_url"),
		StripeMaxRetries: v.GetInt64("stripe_max_retries"),
		ExpressMethods:   splitList(v.GetString("express_methods")),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		DBHost:        v.GetString("db_host"),
		DBPort:        v.GetInt("db_port"),
		DBUser:        v.GetString("db_user"),
		DBPassword:    v.GetString("db_password"),
		DBName:        v.GetString("db_name"),
		MigrationsDir: v.GetString("migrations_dir"),

		KafkaBrokers:  splitList(v.GetString("kafka_brokers")),
		ConsumerGroup: v.GetString("consumer_group"),

		QuietPeriod:  v.GetDuration("quiet_period"),
		TaxWindow:    v.GetDuration("tax_window"),
		AbandonAfter: v.GetDuration("abandon_after"),

		PageIdleTimeout: v.GetDuration("page_idle_timeout"),
	}, nil
}

// Validate checks what serving traffic needs. Migrations only need the database.
func (c *Config) Validate() error {
	if c.StripeSecretKey == "" {
		return ErrMissingStripeKey
	}
	if c.CartStoreURL == "" {
		return errors.New("CART_STORE_URL is required")
	}
	return nil
}

func (c *Config) LedgerEnabled() bool {
	return c.DBHost != ""
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
