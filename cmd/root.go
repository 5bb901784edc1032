package cmd

import (
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func applyLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func App() *cli.Command {
	return &cli.Command{
		Name:    "artcraft",
		Version: version,
		Usage:   "GPU inference job fleet: claim, dispatch, and recover long-running generation jobs from a shared queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML config file",
				Sources: cli.EnvVars("ARTCRAFT_CONFIG_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("ARTCRAFT_LOGGING_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			workerCmd(),
			reaperCmd(),
			migrateCmd(),
			enqueueCmd(),
		},
	}
}
