package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "ai-analytics-agent",
		Usage: "Natural language analytics over a Trino warehouse",
		Commands: []*cli.Command{
			askCommand(),
			chatCommand(),
			schemaCommand(),
			memoryCommand(),
			statusCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
