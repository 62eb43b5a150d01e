package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"tejas.dev/portfolio-api/internal/logger"
)

const (
	DefaultGeminiModel = "text-embedding-004"

	// geminiBatchLimit is the maximum number of requests accepted by one
	// BatchEmbedContents call.
	geminiBatchLimit = 100
)

// GeminiConfig configures the Gemini embedder.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// RequestsPerMinute paces batch calls. Zero means 60.
	RequestsPerMinute int
}

// Gemini embeds text with the Gemini embedding API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini embedder: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Gemini{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), max(1, cfg.RequestsPerMinute/10)),
	}, nil
}

func (g *Gemini) Model() string { return g.model }

func (g *Gemini) Close() {
	if g.client == nil {
		return
	}
	if err := g.client.Close(); err != nil {
		logger.Warn("Error closing GenAI embedding client", "error", err)
	}
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, g, text)
}

// EmbedBatch embeds texts in order, splitting them into API-sized batches.
func (g *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.model)
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := min(start+geminiBatchLimit, len(texts))

		if err := g.limiter.Wait(ctx); err != nil {
			return nil, serviceError("gemini", err)
		}

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		callCtx, cancel := withTimeout(ctx, g.timeout)
		res, err := em.BatchEmbedContents(callCtx, batch)
		cancel()
		if err != nil {
			return nil, serviceError("gemini", fmt.Errorf("batch embedding request failed: %w", err))
		}
		if res == nil || len(res.Embeddings) != end-start {
			return nil, serviceError("gemini", fmt.Errorf("expected %d embeddings", end-start))
		}

		for _, e := range res.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, serviceError("gemini", errors.New("no embedding data received"))
			}
			vectors = append(vectors, e.Values)
		}
	}
	return vectors, nil
}
