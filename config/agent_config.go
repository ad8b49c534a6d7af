package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateAgentID creates a unique agent ID using hostname and PID
func generateAgentID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "agent"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string

	// Redis (optional; limiter falls back to in-process window without it)
	RedisURL string

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	LLMVisionModel string
	LLMMaxTokens   int
	LLMTemperature float64

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	// GoogleTokenDir holds one <account_id>.json OAuth token per account.
	GoogleTokenDir string

	// Pipeline policy
	EnableMultimodalFallback    bool
	EnforceBothLabels           bool
	SpamDisposition             string // trash | none
	MultimodalMaxAttachments    int
	MultimodalMaxAttachmentByte int
	ClassifierTimeout           time.Duration

	// Labels
	ProcessedLabel string

	// Agent loop
	AgentID       string
	AccountIDs    []string
	BatchSize     int
	FetchInterval time.Duration
	Timezone      string

	// Worker pool
	WorkerCount    int
	WorkerChanSize int

	// Backend limiter
	LimiterMaxConcurrent     int
	LimiterRequestsPerSecond int
	LimiterBurstSize         int

	// Cleanup
	CleanupRetentionDays int
	CleanupDryRun        bool
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		RedisURL: getEnv("REDIS_URL", ""),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMVisionModel: getEnv("LLM_VISION_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.0),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		GoogleTokenDir:     getEnv("GOOGLE_TOKEN_DIR", "credentials"),

		// Pipeline policy
		EnableMultimodalFallback:    getEnvBool("ENABLE_MULTIMODAL_FALLBACK", true),
		EnforceBothLabels:           getEnvBool("ENFORCE_BOTH_LABELS", true),
		SpamDisposition:             strings.ToLower(getEnv("SPAM_DISPOSITION", "trash")),
		MultimodalMaxAttachments:    getEnvInt("MULTIMODAL_MAX_ATTACHMENTS", 3),
		MultimodalMaxAttachmentByte: getEnvInt("MULTIMODAL_MAX_ATTACHMENT_BYTES", 2000000),
		ClassifierTimeout:           time.Duration(getEnvInt("CLASSIFIER_TIMEOUT_SEC", 30)) * time.Second,

		// Labels
		ProcessedLabel: getEnv("PROCESSED_LABEL", "ProcessedByAgent"),

		// Agent loop
		AgentID:       getEnv("AGENT_ID", generateAgentID()),
		AccountIDs:    getEnvSlice("ACCOUNT_IDS", []string{"default"}),
		BatchSize:     getEnvInt("BATCH_SIZE", 25),
		FetchInterval: time.Duration(getEnvInt("FETCH_INTERVAL_SEC", 300)) * time.Second,
		Timezone:      getEnv("AGENT_TIMEZONE", "UTC"),

		// Worker pool
		WorkerCount:    getEnvInt("WORKER_COUNT", 4),
		WorkerChanSize: getEnvInt("WORKER_CHAN_SIZE", 16),

		// Backend limiter
		LimiterMaxConcurrent:     getEnvInt("LIMITER_MAX_CONCURRENT", 4),
		LimiterRequestsPerSecond: getEnvInt("LIMITER_RPS", 5),
		LimiterBurstSize:         getEnvInt("LIMITER_BURST", 5),

		// Cleanup
		CleanupRetentionDays: getEnvInt("CLEANUP_RETENTION_DAYS", 30),
		CleanupDryRun:        getEnvBool("CLEANUP_DRY_RUN", false),
	}

	if cfg.SpamDisposition != "trash" && cfg.SpamDisposition != "none" {
		return nil, fmt.Errorf("invalid SPAM_DISPOSITION %q (want trash or none)", cfg.SpamDisposition)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
