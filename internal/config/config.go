package config

import "time"

// Config holds all application configuration.
type Config struct {
	Embeddings Embeddings `mapstructure:"embeddings"`
	Fetcher    Fetcher    `mapstructure:"fetcher"`
	Chunker    Chunker    `mapstructure:"chunker"`
	Index      Index      `mapstructure:"index"`
	Archive    Archive    `mapstructure:"archive"`
	MCP        MCP        `mapstructure:"mcp"`
	Sources    []Source   `mapstructure:"sources"`
}

// Embeddings holds embedding provider configuration.
type Embeddings struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// Fetcher holds source acquisition configuration.
type Fetcher struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	MaxDepth  int           `mapstructure:"max_depth"`
	Delay     time.Duration `mapstructure:"delay"`
}

// Chunker holds text chunking configuration.
type Chunker struct {
	Size      int `mapstructure:"size"`
	Overlap   int `mapstructure:"overlap"`
	MinLength int `mapstructure:"min_length"`
}

// Index holds vector index persistence configuration.
type Index struct {
	DataDir string `mapstructure:"data_dir"`
}

// Archive holds optional S3/MinIO raw-document archive configuration.
type Archive struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// MCP holds MCP server configuration.
type MCP struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Source defines a policy document source to ingest.
type Source struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Embeddings: Embeddings{
			BaseURL:     "http://localhost:11434/v1",
			Model:       "nomic-embed-text",
			Timeout:     30 * time.Second,
			Concurrency: 15,
			MaxRetries:  3,
			RetryDelay:  1 * time.Second,
		},
		Fetcher: Fetcher{
			Timeout:   30 * time.Second,
			UserAgent: "policy-rag/1.0",
			MaxDepth:  1, // fetch the configured page only, no crawl
			Delay:     500 * time.Millisecond,
		},
		Chunker: Chunker{
			Size:      1000,
			Overlap:   100,
			MinLength: 50,
		},
		Index: Index{
			DataDir: "./data",
		},
		Archive: Archive{
			Enabled:         false, // requires an S3/MinIO endpoint
			Endpoint:        "localhost:9002",
			Bucket:          "policy-rag",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			UseSSL:          false,
		},
		MCP: MCP{
			Name:    "policy-rag",
			Version: "1.0.0",
		},
	}
}
