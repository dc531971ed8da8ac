package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tripwell/policy-rag/internal/config"
	"github.com/tripwell/policy-rag/internal/embeddings"
	"github.com/tripwell/policy-rag/internal/fetcher"
	"github.com/tripwell/policy-rag/internal/retriever"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "policy-rag",
	Short: "policy-rag: travel policy retrieval over a local vector index",
	Long: `policy-rag fetches travel policy documents, chunks them, embeds the
chunks through an OpenAI-compatible provider, and serves similarity
retrieval from a persistent local vector index.

Commands:
  ingest  Build or refresh the index from configured sources
  query   Retrieve the chunks most similar to a query
  add     Fetch and index a single new source URL
  status  Show index status
  reset   Delete the persisted index and metadata
  serve   Start the MCP server for retrieval tools`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func initConfig() {
	cfg = config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/policy-rag")
		viper.AddConfigPath(".")
	}

	// Environment variable overrides
	// POLICYRAG_EMBEDDINGS_BASE_URL -> embeddings.base_url
	viper.SetEnvPrefix("POLICYRAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Explicitly bind nested env vars
	viper.BindEnv("embeddings.base_url", "POLICYRAG_EMBEDDINGS_BASE_URL")
	viper.BindEnv("embeddings.api_key", "POLICYRAG_EMBEDDINGS_API_KEY")
	viper.BindEnv("embeddings.model", "POLICYRAG_EMBEDDINGS_MODEL")
	viper.BindEnv("embeddings.concurrency", "POLICYRAG_EMBEDDINGS_CONCURRENCY")
	viper.BindEnv("fetcher.max_depth", "POLICYRAG_FETCHER_MAX_DEPTH")
	viper.BindEnv("fetcher.delay", "POLICYRAG_FETCHER_DELAY")
	viper.BindEnv("chunker.size", "POLICYRAG_CHUNKER_SIZE")
	viper.BindEnv("chunker.overlap", "POLICYRAG_CHUNKER_OVERLAP")
	viper.BindEnv("index.data_dir", "POLICYRAG_INDEX_DATA_DIR")
	viper.BindEnv("archive.enabled", "POLICYRAG_ARCHIVE_ENABLED")
	viper.BindEnv("archive.endpoint", "POLICYRAG_ARCHIVE_ENDPOINT")
	viper.BindEnv("archive.bucket", "POLICYRAG_ARCHIVE_BUCKET")
	viper.BindEnv("archive.access_key_id", "POLICYRAG_ARCHIVE_ACCESS_KEY_ID")
	viper.BindEnv("archive.secret_access_key", "POLICYRAG_ARCHIVE_SECRET_ACCESS_KEY")
	viper.BindEnv("mcp.name", "POLICYRAG_MCP_NAME")
	viper.BindEnv("mcp.version", "POLICYRAG_MCP_VERSION")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("config file error", "error", err)
		}
		// No config file - use defaults + env vars
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Warn("failed to parse config", "error", err)
	}
}

// retrieverConfig assembles the retriever configuration from the loaded
// application config.
func retrieverConfig(cfg config.Config) retriever.Config {
	urls := make([]string, 0, len(cfg.Sources))
	for _, source := range cfg.Sources {
		if source.URL != "" {
			urls = append(urls, source.URL)
		}
	}

	return retriever.Config{
		DataDir: cfg.Index.DataDir,
		Sources: urls,
		Embeddings: embeddings.Config{
			BaseURL:     cfg.Embeddings.BaseURL,
			APIKey:      cfg.Embeddings.APIKey,
			Model:       cfg.Embeddings.Model,
			Timeout:     cfg.Embeddings.Timeout,
			Concurrency: cfg.Embeddings.Concurrency,
			MaxRetries:  cfg.Embeddings.MaxRetries,
			RetryDelay:  cfg.Embeddings.RetryDelay,
		},
		Fetcher: fetcher.Config{
			Timeout:   cfg.Fetcher.Timeout,
			UserAgent: cfg.Fetcher.UserAgent,
			MaxDepth:  cfg.Fetcher.MaxDepth,
			Delay:     cfg.Fetcher.Delay,
		},
		Chunker: retriever.ChunkerConfig{
			Size:      cfg.Chunker.Size,
			Overlap:   cfg.Chunker.Overlap,
			MinLength: cfg.Chunker.MinLength,
		},
		Archive: retriever.ArchiveConfig{
			Enabled:         cfg.Archive.Enabled,
			Endpoint:        cfg.Archive.Endpoint,
			Bucket:          cfg.Archive.Bucket,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			UseSSL:          cfg.Archive.UseSSL,
		},
	}
}
