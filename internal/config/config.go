package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tejas.dev/portfolio-api/internal/logger"
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderLocal      = "local"

	defaultGeminiChatModel      = "gemini-1.5-flash-latest"
	defaultOpenRouterChatModel  = "openai/gpt-oss-20b:free"
	defaultGeminiEmbeddingModel = "text-embedding-004"
	defaultOpenAIEmbeddingModel = "text-embedding-3-small"
)

type Config struct {
	HTTPPort    string
	LogLevel    string
	OwnerName   string
	DatabaseURL string
	DataDir     string
	ResumePath  string
	CORSOrigins []string

	LLMProvider              string
	ChatModel                string
	GeminiAPIKey             string
	OpenRouterAPIKey         string
	OpenRouterBaseURL        string
	OpenRouterFallbackModels []string
	OpenRouterSiteURL        string
	OpenRouterAppName        string

	EmbeddingsProvider string
	EmbeddingModel     string
	OpenAIAPIKey       string
	OpenAIBaseURL      string

	ChunkSize         int
	ChunkOverlap      int
	TopK              int
	HistoryTurns      int
	EmbeddingTimeout  time.Duration
	CompletionTimeout time.Duration
	ReindexOnStart    bool

	AdminToken        string
	RedisURL          string
	RedisPassword     string
	RedisDB           int
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AnalyticsSalt     string
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		OwnerName:   getEnv("OWNER_NAME", "Tejas"),
		DatabaseURL: getEnv("DATABASE_URL", "portfolio.db"),
		DataDir:     getEnv("DATA_DIR", "data"),
		ResumePath:  getEnv("RESUME_PATH", ""),
		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),

		LLMProvider:              strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
		ChatModel:                getEnv("CHAT_MODEL", ""),
		GeminiAPIKey:             getEnv("GEMINI_API_KEY", ""),
		OpenRouterAPIKey:         getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL:        getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterFallbackModels: getEnvAsList("OPENROUTER_FALLBACK_MODELS", nil),
		OpenRouterSiteURL:        getEnv("OPENROUTER_SITE_URL", ""),
		OpenRouterAppName:        getEnv("OPENROUTER_APP_NAME", "portfolio-api"),

		EmbeddingsProvider: strings.ToLower(getEnv("EMBEDDINGS_PROVIDER", ProviderGemini)),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		ChunkSize:         getEnvAsInt("CHUNK_SIZE", 800),
		ChunkOverlap:      getEnvAsInt("CHUNK_OVERLAP", 100),
		TopK:              getEnvAsInt("TOP_K", 3),
		HistoryTurns:      getEnvAsInt("HISTORY_TURNS", 5),
		EmbeddingTimeout:  getEnvAsDuration("EMBEDDING_TIMEOUT", 20*time.Second),
		CompletionTimeout: getEnvAsDuration("COMPLETION_TIMEOUT", 30*time.Second),
		ReindexOnStart:    getEnvAsBool("REINDEX_ON_START", true),

		AdminToken:        getEnv("ADMIN_TOKEN", ""),
		RedisURL:          getEnv("REDIS_URL", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvAsInt("REDIS_DB", 0),
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 20),
		RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		AnalyticsSalt:     getEnv("ANALYTICS_SALT", ""),
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ResumePath == "" {
		c.ResumePath = filepath.Join(c.DataDir, "resume.pdf")
	}
	if c.ChatModel == "" {
		if c.LLMProvider == ProviderOpenRouter {
			c.ChatModel = defaultOpenRouterChatModel
		} else {
			c.ChatModel = defaultGeminiChatModel
		}
	}
	if c.EmbeddingModel == "" {
		switch c.EmbeddingsProvider {
		case ProviderGemini:
			c.EmbeddingModel = defaultGeminiEmbeddingModel
		case ProviderOpenAI:
			c.EmbeddingModel = defaultOpenAIEmbeddingModel
		}
	}
}

// Validate checks the settings every command needs: the embeddings provider
// credentials and the numeric retrieval settings. Completion credentials are
// checked separately by ValidateCompletion.
func (c *Config) Validate() error {
	var errs []error

	switch c.EmbeddingsProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY environment variable is required when EMBEDDINGS_PROVIDER=gemini"))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY environment variable is required when EMBEDDINGS_PROVIDER=openai"))
		}
	case ProviderLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown EMBEDDINGS_PROVIDER %q", c.EmbeddingsProvider))
	}

	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("CHUNK_SIZE must be positive"))
	}
	if c.ChunkOverlap < 0 {
		errs = append(errs, errors.New("CHUNK_OVERLAP must not be negative"))
	}
	if c.TopK <= 0 {
		errs = append(errs, errors.New("TOP_K must be positive"))
	}
	if c.HistoryTurns < 0 {
		errs = append(errs, errors.New("HISTORY_TURNS must not be negative"))
	}

	return errors.Join(errs...)
}

// ValidateCompletion checks that the selected LLM provider has its
// credentials. Only the server answers chat requests, so only it calls this.
func (c *Config) ValidateCompletion() error {
	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY environment variable is required when LLM_PROVIDER=gemini")
		}
	case ProviderOpenRouter:
		if c.OpenRouterAPIKey == "" {
			return errors.New("OPENROUTER_API_KEY environment variable is required when LLM_PROVIDER=openrouter")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	return nil
}

// RateLimitEnabled reports whether chat requests should be rate limited.
func (c *Config) RateLimitEnabled() bool {
	return c.RedisURL != "" && c.RateLimitRequests > 0
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("30s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
