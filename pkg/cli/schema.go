package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func schemaCommand() *cli.Command {
	var (
		cfg     config
		refresh bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "refresh",
			Usage:       "Force a refresh instead of serving the cached snapshot",
			Destination: &refresh,
		},
	}
	flags = append(flags, engineFlags(&cfg)...)
	flags = append(flags, loggingFlags(&cfg)...)

	return &cli.Command{
		Name:  "schema",
		Usage: "Show the cached warehouse schema",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			engine, err := cfg.newEngine()
			if err != nil {
				return err
			}

			cache := cfg.newSchemaCache(engine)
			snapshot := cache.Get(ctx, refresh)

			w := c.Root().Writer
			if snapshot.Empty() {
				fmt.Fprintln(w, "No schema information available.")
				return nil
			}

			fmt.Fprint(w, cache.FormatForPrompt(ctx))
			fmt.Fprintf(w, "%d tables, snapshot built at %s\n",
				snapshot.TableCount(), snapshot.BuiltAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}
