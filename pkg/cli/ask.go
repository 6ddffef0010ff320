package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/model"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/usecase/ask"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var cfg config

	flags := []cli.Flag{}
	flags = append(flags, engineFlags(&cfg)...)
	flags = append(flags, modelFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)
	flags = append(flags, pipelineFlags(&cfg)...)
	flags = append(flags, loggingFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a question with a generated SQL query",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.Join(c.Args().Slice(), " ")
			if question == "" {
				return goerr.New("question is required")
			}

			ctx = cfg.setupLogger(ctx)

			uc, err := cfg.newAskUseCase(ctx)
			if err != nil {
				return err
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			sp.Suffix = " thinking..."
			sp.Start()
			out, err := uc.Ask(ctx, cfg.identity(), question)
			sp.Stop()
			if err != nil {
				return err
			}

			printOutput(c.Root().Writer, out)
			return nil
		},
	}
}

// newAskUseCase wires every dependency of the single-shot pipeline.
func (cfg *config) newAskUseCase(ctx context.Context) (*ask.UseCase, error) {
	engine, err := cfg.newEngine()
	if err != nil {
		return nil, err
	}

	modelClient, err := cfg.newModel()
	if err != nil {
		return nil, err
	}

	memory, err := cfg.newMemory(ctx, modelClient)
	if err != nil {
		return nil, err
	}

	cache := cfg.newSchemaCache(engine)

	generator, err := cfg.newGenerator(modelClient, engine, memory, cache)
	if err != nil {
		return nil, err
	}

	authz, err := cfg.newPolicy(ctx)
	if err != nil {
		return nil, err
	}

	return ask.New(engine, generator, cfg.newAnalyzer(modelClient, memory, cache), authz), nil
}

func printOutput(w io.Writer, out *ask.Output) {
	fmt.Fprintf(w, "Query:\n%s\n\n", out.Query)

	if out.Results != nil {
		printResults(w, out.Results)
		fmt.Fprintf(w, "%d rows in %s\n\n", out.Stats.Rows, out.Stats.Duration.Round(time.Millisecond))
	}

	if out.Analysis != "" {
		fmt.Fprintf(w, "Analysis:\n%s\n", out.Analysis)
	}
}

func printResults(w io.Writer, results *model.QueryResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(results.Columns, "\t"))

	for _, row := range results.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}
