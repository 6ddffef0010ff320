package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/usecase/analyze"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var cfg config

	flags := []cli.Flag{}
	flags = append(flags, engineFlags(&cfg)...)
	flags = append(flags, modelFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)
	flags = append(flags, pipelineFlags(&cfg)...)
	flags = append(flags, loggingFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive analysis with clarifying questions",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			deps, err := cfg.newChatDeps(ctx)
			if err != nil {
				return err
			}

			rl, err := readline.New("> ")
			if err != nil {
				return err
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintln(w, "Ask a question. Type 'exit' to quit.")

			return runChat(ctx, w, rl, deps)
		},
	}
}

type chatDeps struct {
	newSession func() *analyze.Session
}

func (cfg *config) newChatDeps(ctx context.Context) (*chatDeps, error) {
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

	analyzer := cfg.newAnalyzer(modelClient, memory, cache)

	authz, err := cfg.newPolicy(ctx)
	if err != nil {
		return nil, err
	}
	identity := cfg.identity()

	return &chatDeps{
		newSession: func() *analyze.Session {
			return analyze.NewSession(modelClient, engine, cache, generator, analyzer, authz, identity)
		},
	}, nil
}

// runChat loops over sessions: each completed question starts a fresh
// clarification session for the next one.
func runChat(ctx context.Context, w io.Writer, rl *readline.Instance, deps *chatDeps) error {
	var session *analyze.Session

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}

		sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		sp.Start()

		var turn *analyze.Turn
		if session == nil {
			session = deps.newSession()
			turn, err = session.Start(ctx, input)
		} else {
			turn, err = session.Continue(ctx, input)
		}
		sp.Stop()

		if err != nil {
			return err
		}

		switch turn.Status {
		case analyze.StatusQuestions:
			if turn.Message != "" {
				fmt.Fprintln(w, turn.Message)
			}
			for _, q := range turn.Questions {
				fmt.Fprintf(w, "  - %s\n", q)
			}

		case analyze.StatusComplete:
			fmt.Fprintf(w, "\nQuery:\n%s\n\n", turn.Query)
			if turn.Results != nil {
				printResults(w, turn.Results)
				fmt.Fprintln(w)
			}
			if turn.Analysis != "" {
				fmt.Fprintf(w, "Analysis:\n%s\n\n", turn.Analysis)
			}
			session = nil
		}
	}
}
