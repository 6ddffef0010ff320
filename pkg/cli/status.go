package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func statusCommand() *cli.Command {
	var cfg config

	flags := []cli.Flag{}
	flags = append(flags, engineFlags(&cfg)...)
	flags = append(flags, modelFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)
	flags = append(flags, loggingFlags(&cfg)...)

	return &cli.Command{
		Name:  "status",
		Usage: "Probe the Trino, Ollama and Qdrant endpoints",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			w := c.Root().Writer

			probeEngine(ctx, w, &cfg)
			probeModel(ctx, w, &cfg)
			probeMemory(ctx, w, &cfg)
			return nil
		},
	}
}

func probeEngine(ctx context.Context, w io.Writer, cfg *config) {
	engine, err := cfg.newEngine()
	if err == nil {
		err = engine.Ping(ctx)
	}
	report(w, "trino", cfg.trinoServer, err)
}

func probeModel(ctx context.Context, w io.Writer, cfg *config) {
	modelClient, err := cfg.newModel()
	if err == nil && !modelClient.IsAvailable(ctx) {
		err = goerr.New("endpoint did not respond")
	}
	report(w, "ollama", cfg.ollamaURL, err)
}

func probeMemory(ctx context.Context, w io.Writer, cfg *config) {
	modelClient, err := cfg.newModel()
	if err == nil {
		var total int
		if mem, memErr := cfg.newMemory(ctx, modelClient); memErr != nil {
			err = memErr
		} else if stats, statsErr := mem.Stats(ctx); statsErr != nil {
			err = statsErr
		} else {
			total = stats.Total
			fmt.Fprintf(w, "qdrant  OK    %s:%d (%d records)\n", cfg.qdrantHost, cfg.qdrantPort, total)
			return
		}
	}
	report(w, "qdrant", fmt.Sprintf("%s:%d", cfg.qdrantHost, cfg.qdrantPort), err)
}

func report(w io.Writer, name, target string, err error) {
	if err != nil {
		fmt.Fprintf(w, "%-7s FAIL  %s (%s)\n", name, target, err)
		return
	}
	fmt.Fprintf(w, "%-7s OK    %s\n", name, target)
}
