package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tejas.dev/portfolio-api/internal/chunker"
	"tejas.dev/portfolio-api/internal/config"
	"tejas.dev/portfolio-api/internal/core"
	"tejas.dev/portfolio-api/internal/embedding"
	"tejas.dev/portfolio-api/internal/index"
	"tejas.dev/portfolio-api/internal/ingest"
	"tejas.dev/portfolio-api/internal/logger"
	"tejas.dev/portfolio-api/internal/store"
)

// app holds the wired services shared by every command.
type app struct {
	cfg      *config.Config
	store    *store.SQLiteStore
	embedder embedding.Embedder
	indexer  *core.IndexService
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL, store.WithAnalyticsSalt(cfg.AnalyticsSalt))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.store = dbStore
	a.closers = append(a.closers, func() { dbStore.Close() })

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.embedder = embedder
	if c, ok := embedder.(interface{ Close() }); ok {
		a.closers = append(a.closers, c.Close)
	}

	ch := chunker.New(chunker.WithSize(cfg.ChunkSize), chunker.WithOverlap(cfg.ChunkOverlap))
	a.indexer = core.NewIndexService(cfg.DataDir, ingest.NewLoader(), ch, embedder, index.NewLive(), dbStore)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newEmbedder(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	switch cfg.EmbeddingsProvider {
	case config.ProviderGemini:
		return embedding.NewGemini(ctx, embedding.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.EmbeddingModel,
			Timeout: cfg.EmbeddingTimeout,
		})
	case config.ProviderOpenAI:
		return embedding.NewOpenAI(embedding.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.EmbeddingModel,
			Timeout: cfg.EmbeddingTimeout,
		})
	case config.ProviderLocal:
		return embedding.NewHashing(0), nil
	default:
		return nil, fmt.Errorf("unsupported embeddings provider %q", cfg.EmbeddingsProvider)
	}
}

func (a *app) newCompleter(ctx context.Context) (core.Completer, error) {
	cfg := a.cfg
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		completer, err := core.NewGeminiCompleter(ctx, core.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.ChatModel,
			Timeout: cfg.CompletionTimeout,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, completer.Close)
		return completer, nil
	case config.ProviderOpenRouter:
		return core.NewOpenRouterCompleter(core.OpenRouterConfig{
			APIKey:         cfg.OpenRouterAPIKey,
			BaseURL:        cfg.OpenRouterBaseURL,
			Model:          cfg.ChatModel,
			FallbackModels: cfg.OpenRouterFallbackModels,
			SiteURL:        cfg.OpenRouterSiteURL,
			AppName:        cfg.OpenRouterAppName,
			Timeout:        cfg.CompletionTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}

// newRedis connects the optional rate limit backend. Failing to connect
// disables rate limiting rather than the server.
func (a *app) newRedis(ctx context.Context) *redis.Client {
	if !a.cfg.RateLimitEnabled() {
		return nil
	}
	rdb, err := config.NewRedisClient(ctx, a.cfg)
	if err != nil {
		logger.Warn("Redis unavailable, chat rate limiting disabled", "error", err)
		return nil
	}
	a.closers = append(a.closers, func() { rdb.Close() })
	logger.Info("Chat rate limiting enabled", "requests", a.cfg.RateLimitRequests, "window", a.cfg.RateLimitWindow)
	return rdb
}

// warmIndex serves the persisted snapshot when possible, then rebuilds when
// configured to. A failed rebuild leaves whatever was restored in place.
func (a *app) warmIndex(ctx context.Context) {
	restored, err := a.indexer.Restore(ctx)
	if err != nil {
		logger.Warn("Failed to restore index snapshot", "error", err)
	}
	if restored && !a.cfg.ReindexOnStart {
		return
	}
	if _, err := a.indexer.Reindex(ctx); err != nil {
		logger.Error("Initial reindex failed, serving without fresh index", "error", err, "restored", restored)
	}
}
