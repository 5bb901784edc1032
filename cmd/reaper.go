package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/FiditeNemini/artcraft-sub020/internal/config"
	"github.com/FiditeNemini/artcraft-sub020/internal/database"
	"github.com/FiditeNemini/artcraft-sub020/internal/event"
	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
	"github.com/FiditeNemini/artcraft-sub020/internal/reaper"
	"github.com/urfave/cli/v3"
)

func reaperCmd() *cli.Command {
	return &cli.Command{
		Name:  "reaper",
		Usage: "Run the claim-lease reaper (recovers jobs abandoned by crashed workers)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "PostgreSQL connection string",
				Sources: cli.EnvVars("AC_DATABASE_URL"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if v := cmd.String("database-url"); v != "" {
				cfg.Database.URL = v
			}
			if v := cmd.String("log-level"); v != "" {
				cfg.Logging.Level = v
			}
			applyLogLevel(cfg.Logging.Level)

			if cfg.Database.URL == "" {
				return fmt.Errorf("database URL is required (set AC_DATABASE_URL or --database-url)")
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			r := reaper.New(
				jobs.NewPGStore(pool),
				event.NewBus(),
				cfg.Reaper.Interval(),
				cfg.Reaper.LeaseTimeout(),
			)
			err = r.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}
