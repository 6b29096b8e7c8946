package config

import "time"

// ApplyDefaults fills unset fields with platform defaults.  It never
// overwrites a value the operator has set explicitly.
func ApplyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.User == "" {
		c.Database.User = "threatcanvas"
	}
	if c.Database.DBName == "" {
		c.Database.DBName = "threatcanvas"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 25
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 2
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Database.ConnMaxIdleTime == 0 {
		c.Database.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.Database.MigrationPath == "" {
		c.Database.MigrationPath = "migrations"
	}

	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.DefaultTTL == 0 {
		c.Redis.DefaultTTL = 5 * time.Minute
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "threatcanvas"
	}

	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "threatcanvas-worker"
	}
	if c.Kafka.ProducerRetries == 0 {
		c.Kafka.ProducerRetries = 3
	}
	if c.Kafka.BatchTimeoutMS == 0 {
		c.Kafka.BatchTimeoutMS = 100
	}

	if c.OpenSearch.IndexPrefix == "" {
		c.OpenSearch.IndexPrefix = "threatcanvas"
	}

	if c.MinIO.Bucket == "" {
		c.MinIO.Bucket = "threatcanvas-reports"
	}
	if c.MinIO.PresignExpiry == 0 {
		c.MinIO.PresignExpiry = 24 * time.Hour
	}

	if c.Assistant.DefaultProvider == "" {
		c.Assistant.DefaultProvider = "openai"
	}
	if c.Assistant.RequestTimeout == 0 {
		c.Assistant.RequestTimeout = 60 * time.Second
	}
	if c.Assistant.OpenAI.Model == "" {
		c.Assistant.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Assistant.Ollama.BaseURL == "" {
		c.Assistant.Ollama.BaseURL = "http://localhost:11434/v1"
	}
	if c.Assistant.Ollama.Model == "" {
		c.Assistant.Ollama.Model = "llama3"
	}

	if c.RAG.ChunkSize <= 0 {
		c.RAG.ChunkSize = 1200
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// NewDefaultConfig returns a Config populated entirely with defaults.
// Used by entrypoints when no config file is present.
func NewDefaultConfig() *Config {
	c := &Config{}
	ApplyDefaults(c)
	return c
}
