package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/FiditeNemini/artcraft-sub020/internal/config"
	"github.com/FiditeNemini/artcraft-sub020/internal/database"
	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

// enqueueCmd inserts a job row through the same store API the enqueue
// service uses. Operator tool for smoke-testing a deployment.
func enqueueCmd() *cli.Command {
	return &cli.Command{
		Name:  "enqueue",
		Usage: "Insert a job into the queue (operator smoke test)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "PostgreSQL connection string",
				Sources: cli.EnvVars("AC_DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "type",
				Usage:    "Job type (e.g. text_to_speech)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "args",
				Usage: "JSON payload for the job type",
				Value: "{}",
			},
			&cli.IntFlag{
				Name:  "priority",
				Usage: "Claim ordering priority (higher first)",
			},
			&cli.StringFlag{
				Name:  "routing-tag",
				Usage: "Restrict the job to workers answering this tag",
			},
			&cli.IntFlag{
				Name:  "max-attempts",
				Usage: "Retry ceiling (default: worker.max_attempts from config)",
			},
			&cli.StringFlag{
				Name:  "session-token",
				Usage: "Tie the job to a client session (keepalive enforced)",
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
			if cfg.Database.URL == "" {
				return fmt.Errorf("database URL is required (set AC_DATABASE_URL or --database-url)")
			}

			envelope, err := json.Marshal(map[string]json.RawMessage{
				"type":    json.RawMessage(fmt.Sprintf("%q", cmd.String("type"))),
				"payload": json.RawMessage(cmd.String("args")),
			})
			if err != nil {
				return fmt.Errorf("build args envelope: %w", err)
			}
			var args jobs.Args
			if err := json.Unmarshal(envelope, &args); err != nil {
				return fmt.Errorf("parse args: %w", err)
			}

			maxAttempts := int(cmd.Int("max-attempts"))
			if maxAttempts <= 0 {
				maxAttempts = cfg.Worker.MaxAttempts
			}

			pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			store := jobs.NewPGStore(pool)
			j, err := store.Enqueue(ctx, jobs.NewJob{
				JobType:      jobs.JobType(cmd.String("type")),
				Args:         args,
				Priority:     int(cmd.Int("priority")),
				RoutingTag:   cmd.String("routing-tag"),
				MaxAttempts:  maxAttempts,
				SessionToken: cmd.String("session-token"),
			})
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}

			log.Info().
				Str("token", j.Token).
				Str("job_type", string(j.JobType)).
				Int("priority", j.Priority).
				Msg("job enqueued")
			fmt.Println(j.Token)
			return nil
		},
	}
}
