// Package config defines all configuration structures for the ThreatCanvas
// platform.  No I/O or parsing logic lives here — only plain data types and
// validation.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
)

// Version is the platform release version, stamped at build time via
// -ldflags "-X github.com/turtacn/ThreatCanvas/internal/config.Version=...".
var Version = "dev"

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// URL renders the connection string consumed by pgxpool and golang-migrate.
func (c DatabaseConfig) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.DBName,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisConfig holds Redis connection parameters for the read cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds the merge-event producer/consumer parameters.
type KafkaConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Brokers         []string `mapstructure:"brokers"`
	GroupID         string   `mapstructure:"group_id"`
	ProducerRetries int      `mapstructure:"producer_retries"`
	BatchTimeoutMS  int      `mapstructure:"batch_timeout_ms"`
}

// OpenSearchConfig holds the threat-index cluster connection parameters.
type OpenSearchConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	IndexPrefix        string   `mapstructure:"index_prefix"`
}

// MinIOConfig holds report-artifact object-storage parameters.
type MinIOConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// AssistantConfig holds LLM provider parameters for the chat assistant.
// Provider credentials are injected here rather than read from ambient
// process state by the services that use them.
type AssistantConfig struct {
	DefaultProvider string        `mapstructure:"default_provider"` // "openai" | "ollama"
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`

	OpenAI struct {
		APIKey string `mapstructure:"api_key"`
		Model  string `mapstructure:"model"`
	} `mapstructure:"openai"`

	Ollama struct {
		// BaseURL points at Ollama's OpenAI-compatible endpoint,
		// e.g. "http://localhost:11434/v1".
		BaseURL string `mapstructure:"base_url"`
		Model   string `mapstructure:"model"`
	} `mapstructure:"ollama"`
}

// RAGConfig tunes retrieval ingestion.
type RAGConfig struct {
	// ChunkSize caps one retrieval chunk, in runes.
	ChunkSize int `mapstructure:"chunk_size"`
}

// AuthConfig holds the API-key identity settings for the HTTP boundary.
type AuthConfig struct {
	// APIKeys maps key → actor name.  The actor name is recorded as
	// merged_by on merge operations.
	APIKeys map[string]string `mapstructure:"api_keys"`
	// AllowAnonymous permits unauthenticated requests, recorded as "system".
	AllowAnonymous bool `mapstructure:"allow_anonymous"`
}

// Config is the root configuration object.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Kafka      KafkaConfig       `mapstructure:"kafka"`
	OpenSearch OpenSearchConfig  `mapstructure:"opensearch"`
	MinIO      MinIOConfig       `mapstructure:"minio"`
	Assistant  AssistantConfig   `mapstructure:"assistant"`
	RAG        RAGConfig         `mapstructure:"rag"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Log        logging.LogConfig `mapstructure:"log"`
}

// Validate checks cross-field consistency.  Defaults must already have been
// applied (see ApplyDefaults).
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug|release|test, got %q", c.Server.Mode)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port out of range: %d", c.Database.Port)
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database.db_name is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.OpenSearch.Enabled && len(c.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("opensearch.addresses is required when opensearch is enabled")
	}
	if c.MinIO.Enabled && c.MinIO.Endpoint == "" {
		return fmt.Errorf("minio.endpoint is required when minio is enabled")
	}
	switch c.Assistant.DefaultProvider {
	case "", "openai", "ollama":
	default:
		return fmt.Errorf("assistant.default_provider must be openai|ollama, got %q", c.Assistant.DefaultProvider)
	}
	return nil
}
