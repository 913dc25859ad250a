// Package config provides environment configuration for the bot server.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Messenger settings
	VerifyToken     string
	PageAccessToken string
	PageID          string
	PageName        string
	BotName         string
	AppSecret       string
	GraphAPIURL     string
	GraphAPIVersion string
	SendRatePerSec  float64
	SendBurst       int

	// Knowledge base
	KnowledgeBaseFile string
	TriggersFile      string
	Hotline           string
	PackageImageURL   string

	// LLM settings
	LLMProvider     string
	GroqAPIKey      string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	LLMModel        string
	LLMMaxTokens    int
	LLMTemperature  float64
	LLMTimeout      time.Duration

	// Conversation state
	ThrottleCooldown time.Duration
	PruneThreshold   int
	PruneBatch       int
	HistoryWindow    int

	// Workers
	WorkerCount int
	QueueSize   int

	// Storage
	DatabaseURL string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string
	NATSThrottle bool

	// JWT settings for the inspection API
	JWTSecret string

	// Rate limiting
	RateLimitRequests   int
	RateLimitWindow     time.Duration
	WebhookRateRequests int

	// Logging
	LogLevel  string
	LogFormat string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "5000"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),

		// Messenger
		VerifyToken:     getEnv("VERIFY_TOKEN", ""),
		PageAccessToken: getEnv("PAGE_ACCESS_TOKEN", ""),
		PageID:          getEnv("PAGE_ID", ""),
		PageName:        getEnv("PAGE_NAME", "SpeedNet Khulna"),
		BotName:         getEnv("BOT_NAME", "SpeedNet Assistant"),
		AppSecret:       getEnv("APP_SECRET", ""),
		GraphAPIURL:     getEnv("GRAPH_API_URL", "https://graph.facebook.com"),
		GraphAPIVersion: getEnv("GRAPH_API_VERSION", "v19.0"),
		SendRatePerSec:  getFloatEnv("SEND_RATE_PER_SEC", 0),
		SendBurst:       getIntEnv("SEND_BURST", 10),

		// Knowledge base
		KnowledgeBaseFile: getEnv("KNOWLEDGE_BASE_FILE", "training_data.txt"),
		TriggersFile:      getEnv("KNOWLEDGE_TRIGGERS_FILE", ""),
		Hotline:           getEnv("HOTLINE", "01711-000000"),
		PackageImageURL:   getEnv("PACKAGE_IMAGE_URL", ""),

		// LLM
		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "groq")),
		GroqAPIKey:      getEnv("GROQ_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		LLMModel:        getEnv("LLM_MODEL", "llama-3.1-8b-instant"),
		LLMMaxTokens:    getIntEnv("LLM_MAX_TOKENS", 512),
		LLMTemperature:  getFloatEnv("LLM_TEMPERATURE", 0.3),
		LLMTimeout:      getDurationEnv("LLM_TIMEOUT", 60*time.Second),

		// Conversation state
		ThrottleCooldown: getDurationEnv("THROTTLE_COOLDOWN", 10*time.Second),
		PruneThreshold:   getIntEnv("PRUNE_THRESHOLD", 10),
		PruneBatch:       getIntEnv("PRUNE_BATCH", 5),
		HistoryWindow:    getIntEnv("HISTORY_WINDOW", 6),

		// Workers
		WorkerCount: getIntEnv("WORKER_COUNT", 8),
		QueueSize:   getIntEnv("WORKER_QUEUE_SIZE", 256),

		// Storage
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),
		NATSThrottle: getBoolEnv("NATS_THROTTLE", false),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Rate limiting
		RateLimitRequests:   getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:     getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		WebhookRateRequests: getIntEnv("WEBHOOK_RATE_LIMIT", 1200),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports configuration the server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.VerifyToken == "" {
		errs = append(errs, errors.New("VERIFY_TOKEN is required"))
	}
	if c.PageAccessToken == "" {
		errs = append(errs, errors.New("PAGE_ACCESS_TOKEN is required"))
	}
	if c.PruneBatch <= 0 || c.PruneThreshold < c.PruneBatch {
		errs = append(errs, errors.New("PRUNE_BATCH must be positive and not exceed PRUNE_THRESHOLD"))
	}
	if c.WorkerCount <= 0 || c.QueueSize <= 0 {
		errs = append(errs, errors.New("WORKER_COUNT and WORKER_QUEUE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

// LLMAPIKey returns the key for the configured provider.
func (c *Config) LLMAPIKey() string {
	switch c.LLMProvider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	default:
		return c.GroqAPIKey
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
