package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"tejas.dev/portfolio-api/internal/domain"
	"tejas.dev/portfolio-api/internal/logger"
)

const (
	DefaultGeminiChatModel   = "gemini-1.5-flash-latest"
	DefaultCompletionTimeout = 30 * time.Second

	completionTemperature = float32(0.2)
	completionMaxTokens   = int32(512)
)

// GeminiConfig configures GeminiCompleter.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// RequestsPerMinute paces completion calls. Zero means 15, the free tier.
	RequestsPerMinute int
}

// GeminiCompleter generates answers with the Gemini API behind a circuit
// breaker and a client-side rate limiter.
type GeminiCompleter struct {
	client      *genai.Client
	model       string
	timeout     time.Duration
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

func NewGeminiCompleter(ctx context.Context, cfg GeminiConfig) (*GeminiCompleter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini completer: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiChatModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCompletionTimeout
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 15
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiCompleter{
		client:      client,
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		breaker:     newBreaker("GeminiAPI"),
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)*0.9/60.0), max(1, cfg.RequestsPerMinute/10)),
	}, nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

func (g *GeminiCompleter) Model() string { return g.model }

func (g *GeminiCompleter) Close() {
	if g.client == nil {
		return
	}
	if err := g.client.Close(); err != nil {
		logger.Warn("Error closing GenAI client", "error", err)
	} else {
		logger.Info("GenAI client closed")
	}
}

func (g *GeminiCompleter) Complete(ctx context.Context, prompt Prompt) (*Completion, error) {
	ctx, span := otel.Tracer("gemini-client").Start(ctx, "gemini.generate_content")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", g.model),
		attribute.Int("gemini.context_chunks", len(prompt.Sources)),
		attribute.Int("gemini.prompt_chars", len(prompt.System)+len(prompt.Body)),
	)

	if err := g.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, completionError("gemini", err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		model := g.client.GenerativeModel(g.model)
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.System)}}
		model.ResponseMIMEType = "application/json"
		model.SetTemperature(completionTemperature)
		model.SetMaxOutputTokens(completionMaxTokens)

		resp, err := model.GenerateContent(callCtx, genai.Text(prompt.Body))
		if err != nil {
			return nil, fmt.Errorf("gemini request failed: %w", err)
		}
		text := responseText(resp)
		if text == "" {
			return nil, errors.New("gemini response was empty or had no text parts")
		}
		return text, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, completionError("gemini", err)
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return &Completion{Text: result.(string), Model: g.model}, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}

func completionError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrCompletionService, provider, err)
}
