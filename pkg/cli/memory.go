package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func memoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Inspect and maintain the conversation memory store",
		Commands: []*cli.Command{
			memoryStatsCommand(),
			memoryCleanupCommand(),
		},
	}
}

func memoryStatsCommand() *cli.Command {
	var cfg config

	flags := []cli.Flag{}
	flags = append(flags, modelFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)
	flags = append(flags, loggingFlags(&cfg)...)

	return &cli.Command{
		Name:  "stats",
		Usage: "Show memory store statistics",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			modelClient, err := cfg.newModel()
			if err != nil {
				return err
			}

			mem, err := cfg.newMemory(ctx, modelClient)
			if err != nil {
				return err
			}

			stats, err := mem.Stats(ctx)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "Records: %d\n", stats.Total)
			if !stats.LastUpdated.IsZero() {
				fmt.Fprintf(w, "Last updated: %s\n", stats.LastUpdated.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func memoryCleanupCommand() *cli.Command {
	var (
		cfg  config
		days int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "days",
			Usage:       "Delete records older than this many days",
			Value:       30,
			Sources:     cli.EnvVars("MEMORY_RETENTION_DAYS"),
			Destination: &days,
		},
	}
	flags = append(flags, modelFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)
	flags = append(flags, loggingFlags(&cfg)...)

	return &cli.Command{
		Name:  "cleanup",
		Usage: "Delete old conversation records",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			modelClient, err := cfg.newModel()
			if err != nil {
				return err
			}

			mem, err := cfg.newMemory(ctx, modelClient)
			if err != nil {
				return err
			}

			removed, err := mem.Cleanup(ctx, int(days))
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Removed %d records older than %d days\n", removed, days)
			return nil
		},
	}
}
