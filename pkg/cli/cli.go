package cli

import (
	"context"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/controller/server"
	"github.com/m-mizutani/kioku/pkg/service/mcp"
	"github.com/m-mizutani/kioku/pkg/usecase/conversation"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "kioku",
		Usage: "Semantic memory and conversation store",
		Commands: []*cli.Command{
			serveCommand(),
			mcpCommand(),
			migrateCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

func serveCommand() *cli.Command {
	var cfg config
	flags := append(globalFlags(&cfg), embeddingFlags(&cfg)...)
	flags = append(flags, &cli.StringFlag{
		Name:        "addr",
		Usage:       "HTTP listen address",
		Value:       "localhost:8080",
		Sources:     cli.EnvVars("KIOKU_ADDR"),
		Destination: &cfg.addr,
	})

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API server",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.load(ctx)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			embedder, err := cfg.newEmbedder(ctx)
			if err != nil {
				return err
			}

			handler := server.New(
				memory.New(repo, embedder),
				conversation.New(repo, embedder),
			)

			logging.From(ctx).Info("starting HTTP server", "addr", cfg.addr)
			if err := http.ListenAndServe(cfg.addr, handler); err != nil {
				return goerr.Wrap(err, "failed to run HTTP server")
			}
			return nil
		},
	}
}

func mcpCommand() *cli.Command {
	var cfg config
	flags := append(globalFlags(&cfg), embeddingFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.load(ctx)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			embedder, err := cfg.newEmbedder(ctx)
			if err != nil {
				return err
			}

			svc := mcp.New(
				memory.New(repo, embedder),
				conversation.New(repo, embedder),
			)
			return svc.Run(ctx)
		},
	}
}

func migrateCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.load(ctx)
			if err != nil {
				return err
			}

			repo, err := cfg.newPostgres(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.Migrate(ctx); err != nil {
				return err
			}

			logging.From(ctx).Info("schema applied", "dimension", cfg.dimension)
			return nil
		},
	}
}
