package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	LockBackendNone  = "none"
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"iris-api"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	ShutdownTimeoutSeconds        int      `env:"HTTP_SERVER_SHUTDOWN_TIMEOUT_SECONDS" env-default:"15"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Contact store backend (postgres or memory)
	StoreDriver string `env:"STORE_DRIVER" env-default:"postgres"`

	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:"localhost"`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"iris"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SQL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Contacts fetched per traversal query
	TraversalBatchSize int `env:"TRAVERSAL_BATCH_SIZE" env-default:"500"`

	// Cluster lock backend (none, local or redis)
	LockBackend string `env:"LOCK_BACKEND" env-default:"local"`
	// Lifetime of a redis lock key
	LockTTL time.Duration `env:"LOCK_TTL" env-default:"10s"`
	// How long an acquire waits before giving up
	LockWait time.Duration `env:"LOCK_WAIT" env-default:"5s"`
	// Lock attempts per Identify, spent on lock timeouts and on clusters that grew meanwhile
	LockMaxAttempts int `env:"LOCK_MAX_ATTEMPTS" env-default:"3"`

	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`

	// Publish cluster change events
	KafkaEnabled bool `env:"KAFKA_ENABLED" env-default:"false"`
	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Kafka topic for cluster change events
	KafkaOutputTopic string `env:"KAFKA_OUTPUT_TOPIC" env-default:"iris-contact-clusters"`
	KafkaBatchSize   int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	// Flush interval in milliseconds
	KafkaBatchTimeoutMs int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"10"`
	KafkaRequiredAcks   int    `env:"KAFKA_REQUIRED_ACKS" env-default:"-1"`
	KafkaCompression    string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Project clusters into neo4j
	GraphEnabled    bool   `env:"GRAPH_ENABLED" env-default:"false"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:"neo4j"`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`

	// Tracing exporter (none, console or otlp)
	TracingExporter string `env:"TRACING_EXPORTER" env-default:"none"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}

// Load reads env files and then the process environment. Without files it
// reads ./.env when present; files named explicitly must exist.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.LockBackend {
	case LockBackendNone, LockBackendLocal, LockBackendRedis:
	default:
		return fmt.Errorf("unsupported LOCK_BACKEND %q", c.LockBackend)
	}

	if c.TraversalBatchSize <= 0 {
		return fmt.Errorf("TRAVERSAL_BATCH_SIZE must be positive")
	}
	return nil
}

// DatabaseDSN builds a lib/pq key/value connection string.
func (c *Config) DatabaseDSN() string {
	parts := []string{
		"host=" + c.DatabaseHost,
		"port=" + c.DatabasePort,
		"dbname=" + c.DatabaseName,
		"sslmode=" + c.DatabaseSSLMode,
	}
	if c.DatabaseUserName != "" {
		parts = append(parts, "user="+c.DatabaseUserName)
	}
	if c.DatabasePassword != "" {
		parts = append(parts, "password="+quoteDSNValue(c.DatabasePassword))
	}
	return strings.Join(parts, " ")
}

// KafkaBrokerList splits KAFKA_BROKERS on commas.
func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func quoteDSNValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
