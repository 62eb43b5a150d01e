package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	oaioption "github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tejas.dev/portfolio-api/internal/logger"
)

const (
	DefaultOpenRouterBaseURL   = "https://openrouter.ai/api/v1"
	DefaultOpenRouterChatModel = "openai/gpt-oss-20b:free"
)

// OpenRouterConfig configures OpenRouterCompleter.
type OpenRouterConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	FallbackModels []string
	SiteURL        string
	AppName        string
	Timeout        time.Duration
}

// OpenRouterCompleter calls an OpenAI-compatible chat completions endpoint,
// trying each candidate model in order until one answers.
type OpenRouterCompleter struct {
	client     openai.Client
	candidates []string
	timeout    time.Duration
}

func NewOpenRouterCompleter(cfg OpenRouterConfig) (*OpenRouterCompleter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter completer: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenRouterChatModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCompletionTimeout
	}

	opts := []oaioption.RequestOption{
		oaioption.WithAPIKey(cfg.APIKey),
		oaioption.WithBaseURL(cfg.BaseURL),
		oaioption.WithMaxRetries(0),
	}
	if cfg.SiteURL != "" {
		opts = append(opts, oaioption.WithHeader("HTTP-Referer", cfg.SiteURL))
	}
	if cfg.AppName != "" {
		opts = append(opts, oaioption.WithHeader("X-Title", cfg.AppName))
	}

	return &OpenRouterCompleter{
		client:     openai.NewClient(opts...),
		candidates: candidateModels(cfg.Model, cfg.FallbackModels),
		timeout:    cfg.Timeout,
	}, nil
}

// candidateModels returns the primary model followed by the fallbacks, with
// blanks and duplicates removed.
func candidateModels(primary string, fallbacks []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range append([]string{primary}, fallbacks...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func (o *OpenRouterCompleter) Model() string { return o.candidates[0] }

func (o *OpenRouterCompleter) Complete(ctx context.Context, prompt Prompt) (*Completion, error) {
	ctx, span := otel.Tracer("openrouter-client").Start(ctx, "openrouter.chat_completion")
	defer span.End()
	span.SetAttributes(
		attribute.StringSlice("openrouter.candidates", o.candidates),
		attribute.Int("openrouter.context_chunks", len(prompt.Sources)),
	)

	var failures []string
	for i, model := range o.candidates {
		text, err := o.completeWith(ctx, model, prompt)
		if err == nil {
			span.SetAttributes(attribute.String("openrouter.model", model), attribute.Int("openrouter.attempts", i+1))
			return &Completion{Text: text, Model: model}, nil
		}

		failures = append(failures, fmt.Sprintf("%s: %v", model, err))
		if !shouldTryNextModel(err) || ctx.Err() != nil {
			break
		}
		logger.Warn("Completion model failed, trying next candidate", "model", model, "error", err)
	}

	err := errors.New(strings.Join(failures, "; "))
	span.RecordError(err)
	span.SetStatus(codes.Error, "all candidate models failed")
	return nil, completionError("openrouter", err)
}

var errEmptyChoice = errors.New("missing choices or empty content")

func (o *OpenRouterCompleter) completeWith(ctx context.Context, model string, prompt Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.Body),
		},
		Temperature: openai.Float(float64(completionTemperature)),
		MaxTokens:   openai.Int(int64(completionMaxTokens)),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyChoice
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errEmptyChoice
	}
	return content, nil
}

// shouldTryNextModel reports whether a failure is specific to the model or
// provider capacity. Client errors such as a bad API key fail every model.
func shouldTryNextModel(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError ||
			apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusNotFound
	}
	// Transport failures and empty choices.
	return true
}
