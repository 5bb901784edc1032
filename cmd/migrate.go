package cmd

import (
	"context"
	"fmt"

	"github.com/FiditeNemini/artcraft-sub020/internal/config"
	"github.com/FiditeNemini/artcraft-sub020/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v3"
)

func migrateCmd() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "PostgreSQL connection string",
			Sources: cli.EnvVars("AC_DATABASE_URL"),
		},
	}

	connect := func(ctx context.Context, cmd *cli.Command) (*pgxpool.Pool, error) {
		cfg, err := config.Load(cmd.String("config"))
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if v := cmd.String("database-url"); v != "" {
			cfg.Database.URL = v
		}
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("database URL is required (set AC_DATABASE_URL or --database-url)")
		}
		return database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Flags: flags,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					pool, err := connect(ctx, cmd)
					if err != nil {
						return err
					}
					defer pool.Close()
					return database.Migrate(ctx, pool)
				},
			},
			{
				Name:  "down",
				Usage: "Roll back the last migration",
				Flags: flags,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					pool, err := connect(ctx, cmd)
					if err != nil {
						return err
					}
					defer pool.Close()
					return database.MigrateDown(ctx, pool)
				},
			},
		},
	}
}
