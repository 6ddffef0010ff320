package cli

import (
	"context"
	"os"
	"os/user"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/adapter"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/model"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/policy"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/repository"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/service/schema"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/usecase/analyze"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/usecase/generate"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Trino
	trinoServer  string
	trinoCatalog string
	trinoSchema  string

	// Ollama
	ollamaURL       string
	generativeModel string
	embeddingModel  string

	// Qdrant
	qdrantHost       string
	qdrantPort       int64
	qdrantCollection string
	vectorSize       int64

	// Pipeline
	schemaTTL time.Duration
	rulesPath string
	policyDir string
	role      string

	logLevel string
}

// engineFlags returns flags for the Trino connection with destination config
func engineFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "trino-server",
			Usage:       "Trino coordinator URL",
			Value:       "http://trino@localhost:8080",
			Sources:     cli.EnvVars("TRINO_SERVER"),
			Destination: &cfg.trinoServer,
		},
		&cli.StringFlag{
			Name:        "trino-catalog",
			Usage:       "Default Trino catalog",
			Sources:     cli.EnvVars("TRINO_CATALOG"),
			Destination: &cfg.trinoCatalog,
		},
		&cli.StringFlag{
			Name:        "trino-schema",
			Usage:       "Default Trino schema",
			Sources:     cli.EnvVars("TRINO_SCHEMA"),
			Destination: &cfg.trinoSchema,
		},
		&cli.DurationFlag{
			Name:        "schema-ttl",
			Usage:       "Schema cache time-to-live",
			Value:       time.Hour,
			Sources:     cli.EnvVars("SCHEMA_CACHE_TTL"),
			Destination: &cfg.schemaTTL,
		},
	}
}

// modelFlags returns flags for the Ollama endpoint with destination config
func modelFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "ollama-url",
			Usage:       "Ollama endpoint URL",
			Value:       "http://localhost:11434",
			Sources:     cli.EnvVars("OLLAMA_URL"),
			Destination: &cfg.ollamaURL,
		},
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Generative model name",
			Value:       "mistral",
			Sources:     cli.EnvVars("OLLAMA_MODEL"),
			Destination: &cfg.generativeModel,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name",
			Value:       "nomic-embed-text",
			Sources:     cli.EnvVars("OLLAMA_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
	}
}

// memoryFlags returns flags for the Qdrant connection with destination config
func memoryFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "qdrant-host",
			Usage:       "Qdrant host",
			Value:       "localhost",
			Sources:     cli.EnvVars("QDRANT_HOST"),
			Destination: &cfg.qdrantHost,
		},
		&cli.IntFlag{
			Name:        "qdrant-port",
			Usage:       "Qdrant gRPC port",
			Value:       6334,
			Sources:     cli.EnvVars("QDRANT_PORT"),
			Destination: &cfg.qdrantPort,
		},
		&cli.StringFlag{
			Name:        "collection",
			Usage:       "Qdrant collection for conversation memory",
			Value:       "conversations",
			Sources:     cli.EnvVars("QDRANT_COLLECTION"),
			Destination: &cfg.qdrantCollection,
		},
		&cli.IntFlag{
			Name:        "vector-size",
			Usage:       "Embedding vector dimension",
			Value:       768,
			Sources:     cli.EnvVars("EMBEDDING_VECTOR_SIZE"),
			Destination: &cfg.vectorSize,
		},
	}
}

// pipelineFlags returns flags shared by the question answering commands
func pipelineFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "rules",
			Usage:       "Path to a YAML file with SQL generation constraints",
			Sources:     cli.EnvVars("SQL_RULES_FILE"),
			Destination: &cfg.rulesPath,
		},
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "Directory with Rego authorization policies",
			Sources:     cli.EnvVars("POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "role",
			Usage:       "Role used for the permission check",
			Value:       "analyst",
			Sources:     cli.EnvVars("AGENT_ROLE"),
			Destination: &cfg.role,
		},
	}
}

// loggingFlags returns flags for log output with destination config
func loggingFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// setupLogger installs the configured logger as default and binds it to
// the command context.
func (cfg *config) setupLogger(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newEngine creates a new Trino query engine client
func (cfg *config) newEngine() (adapter.QueryEngine, error) {
	if cfg.trinoServer == "" {
		return nil, goerr.New("trino-server is required")
	}
	return adapter.NewTrino(cfg.trinoServer, cfg.trinoCatalog, cfg.trinoSchema)
}

// newModel creates a new Ollama model client
func (cfg *config) newModel() (adapter.ModelClient, error) {
	if cfg.ollamaURL == "" {
		return nil, goerr.New("ollama-url is required")
	}
	return adapter.NewOllama(cfg.ollamaURL,
		adapter.WithGenerativeModel(cfg.generativeModel),
		adapter.WithEmbeddingModel(cfg.embeddingModel),
	)
}

// newMemory creates a new Qdrant memory store backed by the model client
// for embeddings
func (cfg *config) newMemory(ctx context.Context, embedder repository.Embedder) (repository.Memory, error) {
	mem, err := repository.NewQdrant(ctx, repository.QdrantConfig{
		Host:       cfg.qdrantHost,
		Port:       int(cfg.qdrantPort),
		Collection: cfg.qdrantCollection,
		VectorSize: uint64(cfg.vectorSize),
		Embedder:   embedder,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create memory store")
	}
	return mem, nil
}

// newSchemaCache creates a schema catalog cache over the engine
func (cfg *config) newSchemaCache(engine adapter.QueryEngine) *schema.Cache {
	return schema.New(engine, schema.WithTTL(cfg.schemaTTL))
}

// newGenerator wires the full generation pipeline
func (cfg *config) newGenerator(modelClient adapter.ModelClient, engine adapter.QueryEngine, memory repository.Memory, cache *schema.Cache) (*generate.Generator, error) {
	opts := []generate.Option{}
	if cfg.rulesPath != "" {
		rules, err := generate.LoadRules(cfg.rulesPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, generate.WithRules(rules))
	}
	return generate.New(modelClient, engine, memory, cache, opts...), nil
}

// newAnalyzer creates a result analyzer
func (cfg *config) newAnalyzer(modelClient adapter.ModelClient, memory repository.Memory, cache *schema.Cache) *analyze.Analyzer {
	return analyze.New(modelClient, memory, cache)
}

// newPolicy loads the authorization policy
func (cfg *config) newPolicy(ctx context.Context) (*policy.Policy, error) {
	return policy.New(ctx, cfg.policyDir)
}

// identity resolves the caller identity from the OS user and the
// configured role. Credential verification happens outside this process.
func (cfg *config) identity() model.Identity {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return model.Identity{Username: username, Role: cfg.role}
}
