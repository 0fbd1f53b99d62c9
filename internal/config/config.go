// Package config loads aggregator settings from the environment, following
// the same flat env-var-with-defaults convention used throughout the stack.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full set of environment-tunable aggregator settings.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Broker   BrokerConfig
	Worker   WorkerConfig
	Batch    BatchConfig
	Kafka    KafkaConfig
	CORS     CORSConfig
	Logging  LoggingConfig
	Version  string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	PoolMinSize     int
	PoolMaxSize     int
	ConnMaxLifetime time.Duration
}

type BrokerConfig struct {
	URL                string
	MaxConnections     int
	EventQueueName     string
	ProcessingQueue    string
	DeadLetterQueue    string
}

type WorkerConfig struct {
	Count                  int
	Mode                   bool
	MaxRetries             int
	RetryDelaySeconds      float64
	RetryBackoffMultiplier float64
	DequeueTimeout         time.Duration
}

type BatchConfig struct {
	Size           int
	TimeoutSeconds float64
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	ClientID   string
	AuditTopic string
}

type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, falling back to the same
// defaults as the original aggregator.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Database:        getEnv("DB_NAME", "logaggregator"),
			User:            getEnv("DB_USER", "aggregator_user"),
			Password:        getEnv("DB_PASSWORD", "aggregator_pass"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			PoolMinSize:     getEnvInt("DB_POOL_MIN_SIZE", 5),
			PoolMaxSize:     getEnvInt("DB_POOL_MAX_SIZE", 20),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Broker: BrokerConfig{
			URL:             getEnv("BROKER_URL", "redis://localhost:6379/0"),
			MaxConnections:  getEnvInt("REDIS_MAX_CONNECTIONS", 50),
			EventQueueName:  getEnv("EVENT_QUEUE_NAME", "event_queue"),
			ProcessingQueue: getEnv("PROCESSING_QUEUE_NAME", "processing_queue"),
			DeadLetterQueue: getEnv("DEAD_LETTER_QUEUE_NAME", "dead_letter_queue"),
		},
		Worker: WorkerConfig{
			Count:                  getEnvInt("WORKER_COUNT", 4),
			Mode:                   getEnvBool("WORKER_MODE", false),
			MaxRetries:             getEnvInt("MAX_RETRIES", 3),
			RetryDelaySeconds:      getEnvFloat("RETRY_DELAY_SECONDS", 1.0),
			RetryBackoffMultiplier: getEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2.0),
			DequeueTimeout:         1 * time.Second,
		},
		Batch: BatchConfig{
			Size:           getEnvInt("BATCH_SIZE", 100),
			TimeoutSeconds: getEnvFloat("BATCH_TIMEOUT_SECONDS", 5.0),
		},
		Kafka: KafkaConfig{
			Enabled:    getEnvBool("KAFKA_ENABLED", false),
			Brokers:    getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			ClientID:   getEnv("KAFKA_CLIENT_ID", "log-aggregator"),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "audit.decisions"),
		},
		CORS: CORSConfig{
			AllowOrigins:     getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowMethods:     getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
			AllowHeaders:     getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Accept"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Version: getEnv("APP_VERSION", "1.0.0"),
	}
}

// ConnectionString builds a libpq-style connection string when DATABASE_URL
// is not set directly.
func (d DatabaseConfig) ConnectionString() string {
	if d.URL != "" {
		return d.URL
	}
	return "host=" + d.Host +
		" port=" + strconv.Itoa(d.Port) +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Database +
		" sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultVal bool) bool {
	return getEnvBool(name, defaultVal)
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsSlice(name string, defaultVal []string) []string {
	valStr := getEnv(name, "")
	if valStr == "" {
		return defaultVal
	}
	return strings.Split(valStr, ",")
}
