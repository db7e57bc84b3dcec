package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Queue     QueueConfig
	Auth      AuthConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Ingestion IngestionConfig
	Relay     RelayConfig
	Logging   LoggingConfig
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimit    RateLimitConfig
}

// RateLimitConfig limits the credential endpoints per client IP
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// DatabaseConfig holds database specific configuration
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	RetryDelay      time.Duration
	AutoMigrate     bool
}

// DSN builds the postgres:// connection url understood by pgx and lib/pq
func (d DatabaseConfig) DSN() string {
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, d.Port),
		Path:   "/" + d.DBName,
	}
	if d.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return dsn.String()
}

// QueueConfig holds message broker configuration
type QueueConfig struct {
	Driver     string
	AckTimeout time.Duration
	RetryDelay time.Duration
	RabbitMQ   RabbitMQConfig
	Kafka      KafkaConfig
}

// RabbitMQConfig holds AMQP connection settings
type RabbitMQConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	VHost    string
}

// URL returns the amqp connection url
func (r RabbitMQConfig) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(r.User, r.Password),
		Host:   net.JoinHostPort(r.Host, r.Port),
	}
	// An empty path selects the default vhost "/"
	if vhost := r.VHost; vhost != "" && vhost != "/" {
		u.Path = "/" + vhost
		u.RawPath = "/" + url.PathEscape(vhost)
	}
	return u.String()
}

// KafkaConfig holds Kafka specific configuration
type KafkaConfig struct {
	Brokers     string
	ClientID    string
	GroupID     string
	IdleTimeout time.Duration
}

// BrokerList splits the comma separated broker list
func (k KafkaConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// AuthConfig holds authentication specific configuration
type AuthConfig struct {
	TokenSecret      string
	TokenExpiryDays  int
	InternalCacheTTL time.Duration
	Kubernetes       KubernetesConfig
}

// TokenExpiry returns the lifetime of issued access tokens
func (a AuthConfig) TokenExpiry() time.Duration {
	return time.Duration(a.TokenExpiryDays) * 24 * time.Hour
}

// KubernetesConfig locates the API server used for token reviews
type KubernetesConfig struct {
	Host      string
	TokenPath string
	CAPath    string
}

// RedisConfig holds Redis specific configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	CacheTTL time.Duration
	Prefix   string
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// LLMConfig holds the chat model settings
type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// IngestionConfig holds the pollers' settings
type IngestionConfig struct {
	Symbols          []string
	TickerRetryDelay time.Duration
	TwelveData       TwelveDataConfig
	Finnhub          FinnhubConfig
}

// TwelveDataConfig configures the quote poller
type TwelveDataConfig struct {
	APIKey     string
	BaseURL    string
	Interval   string
	BatchSize  int
	BatchDelay time.Duration
	Schedule   string
}

// FinnhubConfig configures the profile poller
type FinnhubConfig struct {
	APIKey   string
	BaseURL  string
	Delay    time.Duration
	Schedule string
}

// RelayConfig configures the queue to storage relay
type RelayConfig struct {
	Queue    string
	Interval time.Duration
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// legacyEnv maps config keys to the environment names used by the deployment manifests
var legacyEnv = map[string]string{
	"database.user":               "DATABASE_USER",
	"database.host":               "DATABASE_HOST",
	"database.port":               "DATABASE_PORT",
	"database.dbname":             "DATABASE_NAME",
	"queue.rabbitmq.host":         "RABBITMQ_HOST",
	"queue.rabbitmq.port":         "RABBITMQ_PORT",
	"queue.rabbitmq.user":         "RABBITMQ_USER",
	"auth.tokenExpiryDays":        "API_TOKEN_EXPIRY_DAYS",
	"llm.model":                   "GPT_MODEL",
	"server.port":                 "DB_SERVER_PORT",
	"redis.host":                  "REDIS_HOST",
	"redis.port":                  "REDIS_PORT",
	"logging.level":               "LOG_LEVEL",
	"auth.kubernetes.host":        "KUBERNETES_SERVICE_HOST",
	"ingestion.twelvedata.apiKey": "TWELVEDATA_API_KEY",
	"ingestion.finnhub.apiKey":    "FINNHUB_API_KEY",
}

// LoadConfig loads the configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	// A missing .env is the normal case outside local development
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file when present
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	// Read from environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveSecrets(&cfg)

	return &cfg, nil
}

// Validate checks the settings the API server cannot run without
func (c *Config) Validate() error {
	if c.Auth.TokenSecret == "" {
		return errors.New("auth token secret is not set (API_TOKEN_SECRET or API_TOKEN_SECRET_FILE)")
	}
	if c.Auth.TokenExpiryDays <= 0 {
		return fmt.Errorf("invalid token expiry: %d days", c.Auth.TokenExpiryDays)
	}
	switch c.Queue.Driver {
	case "rabbitmq", "kafka":
	default:
		return fmt.Errorf("unknown queue driver %q", c.Queue.Driver)
	}
	return nil
}

// ResolveSecret returns the value of the environment variable name, or the
// trimmed content of the file named by name_FILE, or fallback.
func ResolveSecret(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	if file := os.Getenv(name + "_FILE"); file != "" {
		if content, err := os.ReadFile(file); err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func resolveSecrets(cfg *Config) {
	cfg.Database.Password = ResolveSecret("DATABASE_PASSWORD", cfg.Database.Password)
	cfg.Queue.RabbitMQ.Password = ResolveSecret("RABBITMQ_PASSWORD", cfg.Queue.RabbitMQ.Password)
	cfg.Auth.TokenSecret = ResolveSecret("API_TOKEN_SECRET", cfg.Auth.TokenSecret)
	cfg.LLM.APIKey = ResolveSecret("OPENAI_API_KEY", cfg.LLM.APIKey)
	cfg.Redis.Password = ResolveSecret("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Ingestion.TwelveData.APIKey = ResolveSecret("TWELVEDATA_API_KEY", cfg.Ingestion.TwelveData.APIKey)
	cfg.Ingestion.Finnhub.APIKey = ResolveSecret("FINNHUB_API_KEY", cfg.Ingestion.Finnhub.APIKey)
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "120s")
	v.SetDefault("server.idleTimeout", "120s")
	v.SetDefault("server.rateLimit.requestsPerMinute", 30)
	v.SetDefault("server.rateLimit.burst", 10)

	// Database defaults
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "stocks")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", "30m")
	v.SetDefault("database.retryDelay", "10s")
	v.SetDefault("database.autoMigrate", true)

	// Queue defaults
	v.SetDefault("queue.driver", "rabbitmq")
	v.SetDefault("queue.ackTimeout", "5s")
	v.SetDefault("queue.retryDelay", "10s")
	v.SetDefault("queue.rabbitmq.host", "localhost")
	v.SetDefault("queue.rabbitmq.port", "5672")
	v.SetDefault("queue.rabbitmq.user", "guest")
	v.SetDefault("queue.rabbitmq.password", "guest")
	v.SetDefault("queue.rabbitmq.vhost", "")
	v.SetDefault("queue.kafka.brokers", "localhost:9092")
	v.SetDefault("queue.kafka.clientID", "market-insights")
	v.SetDefault("queue.kafka.groupID", "market-insights-relay")
	v.SetDefault("queue.kafka.idleTimeout", "2s")

	// Auth defaults
	v.SetDefault("auth.tokenSecret", "")
	v.SetDefault("auth.tokenExpiryDays", 365)
	v.SetDefault("auth.internalCacheTTL", "10m")
	v.SetDefault("auth.kubernetes.host", "kubernetes.default.svc")
	v.SetDefault("auth.kubernetes.tokenPath", "/var/run/secrets/kubernetes.io/serviceaccount/token")
	v.SetDefault("auth.kubernetes.caPath", "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt")

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cacheTTL", "3600s")
	v.SetDefault("redis.prefix", "market-insights")

	// LLM defaults
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.timeout", "90s")

	// Ingestion defaults
	v.SetDefault("ingestion.symbols", []string{})
	v.SetDefault("ingestion.tickerRetryDelay", "10s")
	v.SetDefault("ingestion.twelvedata.apiKey", "")
	v.SetDefault("ingestion.twelvedata.baseURL", "https://api.twelvedata.com")
	v.SetDefault("ingestion.twelvedata.interval", "1h")
	v.SetDefault("ingestion.twelvedata.batchSize", 8)
	v.SetDefault("ingestion.twelvedata.batchDelay", "60s")
	v.SetDefault("ingestion.twelvedata.schedule", "@every 1h")
	v.SetDefault("ingestion.finnhub.apiKey", "")
	v.SetDefault("ingestion.finnhub.baseURL", "https://finnhub.io/api/v1")
	v.SetDefault("ingestion.finnhub.delay", "1s")
	v.SetDefault("ingestion.finnhub.schedule", "@daily")

	// Relay defaults
	v.SetDefault("relay.queue", "ohlc")
	v.SetDefault("relay.interval", "120s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
