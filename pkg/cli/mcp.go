package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
)

type askParams struct {
	Question string `json:"question" jsonschema:"The natural language question to answer with SQL"`
}

func mcpCommand() *cli.Command {
	var cfg config

	flags := []cli.Flag{}
	flags = append(flags, engineFlags(&cfg)...)
	flags = append(flags, modelFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)
	flags = append(flags, pipelineFlags(&cfg)...)
	flags = append(flags, loggingFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the ask pipeline as an MCP tool over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			uc, err := cfg.newAskUseCase(ctx)
			if err != nil {
				return err
			}

			server := mcp.NewServer(&mcp.Implementation{
				Name:    "ai-analytics-agent",
				Version: "1.0.0",
			}, nil)

			mcp.AddTool(server, &mcp.Tool{
				Name:        "ask",
				Description: "Answer a natural language question by generating and running SQL against the warehouse",
			}, func(ctx context.Context, req *mcp.CallToolRequest, params *askParams) (*mcp.CallToolResult, any, error) {
				if params.Question == "" {
					return nil, nil, fmt.Errorf("question is required")
				}

				out, err := uc.Ask(ctx, cfg.identity(), params.Question)
				if err != nil {
					return nil, nil, err
				}

				var text strings.Builder
				fmt.Fprintf(&text, "Query:\n%s\n", out.Query)
				if out.Results != nil {
					text.WriteString("\nResults:\n")
					printResults(&text, out.Results)
				}
				if out.Analysis != "" {
					fmt.Fprintf(&text, "\nAnalysis:\n%s\n", out.Analysis)
				}

				return &mcp.CallToolResult{
					Content: []mcp.Content{
						&mcp.TextContent{Text: text.String()},
					},
				}, nil, nil
			})

			return server.Run(ctx, &mcp.StdioTransport{})
		},
	}
}
