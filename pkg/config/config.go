package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// StoreBackend selects where session state lives.
type StoreBackend string

const (
	StoreMemory StoreBackend = "memory" // in-process, single instance
	StoreRedis  StoreBackend = "redis"  // shared state across replicas
)

// Config holds global settings for the decoy engine and gateway.
// All settings can be configured via environment variables or programmatically.
type Config struct {
	// === Core Settings ===
	Port         int          // HTTP listen port (default: 8080)
	StoreBackend StoreBackend // "memory" or "redis"

	// === Detection ===
	ScamThreshold   float64 // score at or above this marks the session as scam (default: 0.35)
	KeywordsFile    string  // optional YAML file extending or replacing the keyword list
	EnableSemantics bool    // embedding similarity detection (requires Ollama)
	EnableONNX      bool    // local ONNX intent classifier

	// === ONNX Classifier ===
	ONNXModelPath   string // directory with model.onnx + tokenizer files
	ONNXLibraryPath string // onnxruntime shared library, empty = pure Go backend

	// === Reply Generation ===
	LLMProvider   string        // "ollama", "openrouter", "groq", "custom", "none"
	LLMAPIKey     string        // API key for cloud providers
	LLMModel      string        // model identifier
	LLMBaseURL    string        // custom base URL for self-hosted providers
	ReplyTimeout  time.Duration // hard deadline on reply generation (default: 4s)
	FallbackReply string        // returned when generation fails or times out

	// === Finalization & Escalation ===
	FinalizeMinArtifacts int           // strong artifact kinds required to finalize (default: 1)
	WebhookURL           string        // escalation callback endpoint, empty disables
	WebhookAPIKey        string        // sent as x-api-key on callbacks
	NotifyTimeout        time.Duration // deadline on escalation delivery (default: 5s)
	PostgresDSN          string        // escalation report archive, empty disables

	// === Session Store ===
	RedisAddr       string        // host:port for the redis backend
	RedisPassword   string
	SessionTTL      time.Duration // redis key TTL / memory eviction age (default: 24h)
	LockTTL         time.Duration // redis lock expiry (default: 30s)
}

// NewDefaultConfig builds a config from environment variables with
// sensible defaults for local development.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Port:         GetEnvInt("DECOY_PORT", 8080),
		StoreBackend: StoreBackend(GetEnv("DECOY_STORE", "memory")),

		ScamThreshold:   GetEnvFloat("DECOY_SCAM_THRESHOLD", 0.35),
		KeywordsFile:    GetEnv("DECOY_KEYWORDS_FILE", ""),
		EnableSemantics: GetEnvBool("DECOY_ENABLE_SEMANTICS", false),
		EnableONNX:      GetEnvBool("DECOY_ENABLE_ONNX", false),

		ONNXModelPath:   GetEnv("DECOY_ONNX_MODEL_PATH", ""),
		ONNXLibraryPath: GetEnv("DECOY_ONNX_LIBRARY_PATH", ""),

		LLMProvider:   GetEnv("DECOY_LLM_PROVIDER", detectLLMProvider()),
		LLMAPIKey:     GetEnv("DECOY_LLM_API_KEY", GetEnv("GROQ_API_KEY", os.Getenv("OPENROUTER_API_KEY"))),
		LLMModel:      GetEnv("DECOY_LLM_MODEL", ""),
		LLMBaseURL:    GetEnv("DECOY_LLM_BASE_URL", ""),
		ReplyTimeout:  time.Duration(GetEnvInt("DECOY_REPLY_TIMEOUT_MS", 4000)) * time.Millisecond,
		FallbackReply: GetEnv("DECOY_FALLBACK_REPLY", ""),

		FinalizeMinArtifacts: GetEnvInt("DECOY_FINALIZE_MIN_ARTIFACTS", 1),
		WebhookURL:           GetEnv("DECOY_WEBHOOK_URL", ""),
		WebhookAPIKey:        GetEnv("DECOY_WEBHOOK_API_KEY", ""),
		NotifyTimeout:        time.Duration(GetEnvInt("DECOY_NOTIFY_TIMEOUT_MS", 5000)) * time.Millisecond,
		PostgresDSN:          GetEnv("DECOY_POSTGRES_DSN", ""),

		RedisAddr:     GetEnv("DECOY_REDIS_ADDR", "localhost:6379"),
		RedisPassword: GetEnv("DECOY_REDIS_PASSWORD", ""),
		SessionTTL:    time.Duration(GetEnvInt("DECOY_SESSION_TTL_SECONDS", 86400)) * time.Second,
		LockTTL:       time.Duration(GetEnvInt("DECOY_LOCK_TTL_SECONDS", 30)) * time.Second,
	}

	return cfg
}

// detectLLMProvider picks a reply backend based on which keys are present.
func detectLLMProvider() string {
	if os.Getenv("GROQ_API_KEY") != "" {
		return "groq"
	}
	if os.Getenv("OPENROUTER_API_KEY") != "" {
		return "openrouter"
	}
	return "ollama"
}

// Validate checks the configuration for misconfigurations that would
// otherwise surface as confusing runtime failures.
func (c *Config) Validate() error {
	var problems []string

	if c.ScamThreshold < 0 || c.ScamThreshold > 1 {
		problems = append(problems, fmt.Sprintf("DECOY_SCAM_THRESHOLD must be in [0,1], got %.2f", c.ScamThreshold))
	}
	if c.FinalizeMinArtifacts < 1 {
		problems = append(problems, "DECOY_FINALIZE_MIN_ARTIFACTS must be at least 1")
	}
	switch c.StoreBackend {
	case StoreMemory, StoreRedis:
	default:
		problems = append(problems, fmt.Sprintf("DECOY_STORE must be 'memory' or 'redis', got %q", c.StoreBackend))
	}
	if c.StoreBackend == StoreRedis && c.RedisAddr == "" {
		problems = append(problems, "DECOY_REDIS_ADDR is required when DECOY_STORE=redis")
	}
	if (c.LLMProvider == "openrouter" || c.LLMProvider == "groq") && c.LLMAPIKey == "" {
		log.Printf("[STARTUP] Warning: %s selected but no API key set; replies will fall back", c.LLMProvider)
	}
	if c.EnableONNX && c.ONNXModelPath == "" {
		problems = append(problems, "DECOY_ONNX_MODEL_PATH is required when DECOY_ENABLE_ONNX=true")
	}
	if c.ReplyTimeout <= 0 {
		problems = append(problems, "DECOY_REPLY_TIMEOUT_MS must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
// Call this at startup before starting the server.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: %v", err)
	}
	log.Println("[STARTUP] Configuration validated successfully")
}

// ============================================================================
// Environment Variable Helpers
// ============================================================================

// GetEnv returns the environment variable value or a default.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool parses a boolean environment variable.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat parses a float environment variable.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt parses an integer environment variable.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
