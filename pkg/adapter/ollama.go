package adapter

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/ollama/ollama/api"
)

// ModelClient is an interface for the generative model endpoint.
type ModelClient interface {
	// Generate sends a prompt and returns the full generated text
	Generate(ctx context.Context, prompt string) (string, error)

	// Embed returns a dense vector representation of the text
	Embed(ctx context.Context, text string) ([]float32, error)

	// IsAvailable probes the endpoint; used as a cheap precondition
	// before issuing an expensive generation call
	IsAvailable(ctx context.Context) bool
}

type ollamaClient struct {
	client          *api.Client
	generativeModel string
	embeddingModel  string
	generateTimeout time.Duration
}

// OllamaOption is a functional option for the Ollama client.
type OllamaOption func(*ollamaClient)

// WithGenerativeModel overrides the model used for text generation.
func WithGenerativeModel(model string) OllamaOption {
	return func(o *ollamaClient) {
		o.generativeModel = model
	}
}

// WithEmbeddingModel overrides the model used for embeddings.
func WithEmbeddingModel(model string) OllamaOption {
	return func(o *ollamaClient) {
		o.embeddingModel = model
	}
}

// WithGenerateTimeout bounds a single generation round. Long analytical
// prompts may legitimately take a while, so the default is 2 minutes.
func WithGenerateTimeout(d time.Duration) OllamaOption {
	return func(o *ollamaClient) {
		o.generateTimeout = d
	}
}

// NewOllama creates a model client for an Ollama server at baseURL
// (e.g. "http://localhost:11434").
func NewOllama(baseURL string, opts ...OllamaOption) (ModelClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid ollama URL", goerr.V("url", baseURL))
	}

	o := &ollamaClient{
		client:          api.NewClient(u, http.DefaultClient),
		generativeModel: "mistral",
		embeddingModel:  "nomic-embed-text",
		generateTimeout: 2 * time.Minute,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

func (o *ollamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.generateTimeout)
	defer cancel()

	stream := false
	req := &api.GenerateRequest{
		Model:  o.generativeModel,
		Prompt: prompt,
		Stream: &stream,
	}

	var out strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", goerr.Wrap(err, "model generation failed", goerr.V("model", o.generativeModel))
	}

	return out.String(), nil
}

func (o *ollamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.embeddingModel,
		Input: text,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "embedding failed", goerr.V("model", o.embeddingModel))
	}

	if len(resp.Embeddings) == 0 {
		return nil, goerr.New("embedding response is empty")
	}

	return resp.Embeddings[0], nil
}

func (o *ollamaClient) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return o.client.Heartbeat(ctx) == nil
}
