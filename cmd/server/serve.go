package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tejas.dev/portfolio-api/internal/api"
	"tejas.dev/portfolio-api/internal/core"
	"tejas.dev/portfolio-api/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := appConfig

	if err := cfg.ValidateCompletion(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	completer, err := a.newCompleter(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize completer: %w", err)
	}
	rdb := a.newRedis(ctx)

	a.warmIndex(ctx)

	live := a.indexer.Live()
	chatService := core.NewChatService(
		core.NewRetriever(live, a.embedder),
		core.NewComposer(cfg.OwnerName, cfg.HistoryTurns),
		completer,
		core.NewSessions(),
		a.store,
		cfg.TopK,
	)

	apiHandler := api.NewAPIHandler(chatService, a.indexer, a.store, cfg.ResumePath)
	router := api.NewRouter(apiHandler, api.RouterConfig{
		CORSOrigins:     cfg.CORSOrigins,
		AdminToken:      cfg.AdminToken,
		Redis:           rdb,
		RateLimit:       cfg.RateLimitRequests,
		RateLimitWindow: cfg.RateLimitWindow,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", serverAddr, "llm_provider", cfg.LLMProvider, "embeddings_provider", cfg.EmbeddingsProvider, "indexed_chunks", live.Current().Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
		return nil
	case <-quit:
	}
	logger.Info("Shutting down server...")

	// Give active connections time to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exiting gracefully")
	return nil
}
