package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/adapter"
	"github.com/m-mizutani/kioku/pkg/repository"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// config holds configuration values
type config struct {
	configPath string
	logLevel   string

	// Repository
	dsn       string
	dimension int64

	// Adapters
	geminiProject  string
	geminiLocation string

	// Server
	addr string
}

// fileConfig mirrors the optional YAML configuration file. Values from
// the file fill in whatever the flags and environment left empty.
type fileConfig struct {
	DSN            string `yaml:"dsn"`
	Dimension      int64  `yaml:"dimension"`
	GeminiProject  string `yaml:"gemini_project"`
	GeminiLocation string `yaml:"gemini_location"`
	Addr           string `yaml:"addr"`
	LogLevel       string `yaml:"log_level"`
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML configuration file",
			Sources:     cli.EnvVars("KIOKU_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("KIOKU_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "dsn",
			Aliases:     []string{"d"},
			Usage:       "PostgreSQL DSN; omit to use the in-process volatile store",
			Sources:     cli.EnvVars("KIOKU_DATABASE_DSN"),
			Destination: &cfg.dsn,
		},
		&cli.IntFlag{
			Name:        "dimension",
			Usage:       "Embedding vector dimension",
			Value:       768,
			Sources:     cli.EnvVars("KIOKU_EMBEDDING_DIMENSION"),
			Destination: &cfg.dimension,
		},
	}
}

// embeddingFlags returns flags for the embedding provider with destination config
func embeddingFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
	}
}

// load applies the YAML configuration file, if any, and sets up logging
func (cfg *config) load(ctx context.Context) (context.Context, error) {
	if cfg.configPath != "" {
		raw, err := os.ReadFile(cfg.configPath)
		if err != nil {
			return ctx, goerr.Wrap(err, "failed to read config file", goerr.V("path", cfg.configPath))
		}

		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return ctx, goerr.Wrap(err, "failed to parse config file", goerr.V("path", cfg.configPath))
		}

		if cfg.dsn == "" {
			cfg.dsn = fc.DSN
		}
		if fc.Dimension > 0 && cfg.dimension == 768 {
			cfg.dimension = fc.Dimension
		}
		if cfg.geminiProject == "" {
			cfg.geminiProject = fc.GeminiProject
		}
		if cfg.geminiLocation == "" || cfg.geminiLocation == "us-central1" {
			if fc.GeminiLocation != "" {
				cfg.geminiLocation = fc.GeminiLocation
			}
		}
		if cfg.addr == "" {
			cfg.addr = fc.Addr
		}
		if fc.LogLevel != "" {
			cfg.logLevel = fc.LogLevel
		}
	}

	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// newRepository creates a repository instance. An empty DSN yields the
// in-process volatile store.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.dsn == "" {
		logging.From(ctx).Warn("no DSN configured, using volatile in-process store")
		return repository.NewMemory(), nil
	}
	if cfg.dimension <= 0 {
		return nil, goerr.New("dimension must be positive", goerr.V("dimension", cfg.dimension))
	}

	repo, err := repository.NewPostgres(ctx, cfg.dsn, int(cfg.dimension))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newPostgres creates the durable repository, requiring a DSN
func (cfg *config) newPostgres(ctx context.Context) (*repository.Postgres, error) {
	if cfg.dsn == "" {
		return nil, goerr.New("dsn is required")
	}
	if cfg.dimension <= 0 {
		return nil, goerr.New("dimension must be positive", goerr.V("dimension", cfg.dimension))
	}

	repo, err := repository.NewPostgres(ctx, cfg.dsn, int(cfg.dimension))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newEmbedder creates a new Gemini embedder instance
func (cfg *config) newEmbedder(ctx context.Context) (adapter.Embedder, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	embedder, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, int(cfg.dimension))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedder")
	}
	return embedder, nil
}
