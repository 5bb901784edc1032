package cmd

import (
	"context"
	"fmt"

	"github.com/FiditeNemini/artcraft-sub020/internal/config"
	"github.com/FiditeNemini/artcraft-sub020/internal/worker"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

func workerCmd() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run as inference worker (claims and executes jobs from the shared queue)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "PostgreSQL connection string",
				Sources: cli.EnvVars("AC_DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "worker-id",
				Usage:   "Stable identity for claim lease accounting (default: hostname-pid)",
				Sources: cli.EnvVars("AC_WORKER_ID"),
			},
			&cli.StringSliceFlag{
				Name:    "job-type",
				Usage:   "Job type this worker serves (repeatable; overrides config)",
				Sources: cli.EnvVars("AC_WORKER_JOB_TYPES"),
			},
			&cli.StringSliceFlag{
				Name:    "routing-tag",
				Usage:   "Routing tag this worker answers (repeatable; overrides config)",
				Sources: cli.EnvVars("AC_WORKER_ROUTING_TAGS"),
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
			if v := cmd.String("worker-id"); v != "" {
				cfg.Worker.ID = v
			}
			if v := cmd.StringSlice("job-type"); len(v) > 0 {
				cfg.Worker.EnabledJobTypes = v
			}
			if v := cmd.StringSlice("routing-tag"); len(v) > 0 {
				cfg.Worker.RoutingTags = v
			}
			if v := cmd.String("log-level"); v != "" {
				cfg.Logging.Level = v
			}
			applyLogLevel(cfg.Logging.Level)

			log.Info().
				Str("worker_id", cfg.Worker.ID).
				Strs("job_types", cfg.Worker.EnabledJobTypes).
				Strs("routing_tags", cfg.Worker.RoutingTags).
				Msg("starting worker")

			return worker.Run(ctx, cfg)
		},
	}
}
