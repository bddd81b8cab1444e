package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort  string
	LogLevel string

	ModelPath               string
	ONNXSharedLibraryPath   string
	ModelInputName          string
	ModelOutputName         string
	ModelInputWidth         int
	ModelInputHeight        int
	ModelInputLayout        string
	PreprocessScale         float64
	PreprocessOffset        float64
	PreprocessInterpolation string
	MaxImagePixels          int

	LabelsPath     string
	TreatmentsPath string
	TopK           int

	ChatProvider       string
	ChatBaseURL        string
	ChatAPIKey         string
	ChatModel          string
	ChatContextTurns   int
	ChatTimeoutSeconds int
	OllamaURL          string
	GeminiAPIKey       string
	GeminiModel        string

	NATSURL             string
	NATSDiagnoseSubject string
	NATSEventsSubject   string
	NATSQueueGroup      string
	// DiagnoseViaQueue sends API uploads to the worker pool instead of the
	// in-process model.
	DiagnoseViaQueue bool

	TelegramToken string

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int
	APIMaxConnections int
	MaxUploadBytes    int64

	RetryMaxAttempts      int
	RetryInitialBackoffMS int
	RetryMaxBackoffMS     int
	BreakerEnabled        bool
	BreakerMinRequests    int
	BreakerFailureRatio   float64
	BreakerOpenTimeoutSec int

	WorkerMetricsPort string
}

// Load reads the process environment. A .env file (or ENV_FILE) is applied
// first; variables already set in the environment win over file values.
func Load() Config {
	loadDotEnv(mustEnv("ENV_FILE", ".env"))

	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		ModelPath:               mustEnv("MODEL_PATH", "./assets/plant_disease_model.onnx"),
		ONNXSharedLibraryPath:   mustEnv("ONNX_SHARED_LIBRARY_PATH", ""),
		ModelInputName:          mustEnv("MODEL_INPUT_NAME", "input"),
		ModelOutputName:         mustEnv("MODEL_OUTPUT_NAME", "output"),
		ModelInputWidth:         mustEnvInt("MODEL_INPUT_WIDTH", 224),
		ModelInputHeight:        mustEnvInt("MODEL_INPUT_HEIGHT", 224),
		ModelInputLayout:        mustEnv("MODEL_INPUT_LAYOUT", "nhwc"),
		PreprocessScale:         mustEnvFloat("PREPROCESS_SCALE", 1.0/255.0),
		PreprocessOffset:        mustEnvFloat("PREPROCESS_OFFSET", 0),
		PreprocessInterpolation: mustEnv("PREPROCESS_INTERPOLATION", "bilinear"),
		MaxImagePixels:          mustEnvInt("MAX_IMAGE_PIXELS", 40_000_000),

		LabelsPath:     mustEnv("LABELS_PATH", "./assets/class_labels.json"),
		TreatmentsPath: mustEnv("TREATMENTS_PATH", ""),
		TopK:           mustEnvInt("DIAGNOSIS_TOP_K", 3),

		ChatProvider:       strings.ToLower(mustEnv("CHAT_PROVIDER", "groq")),
		ChatBaseURL:        mustEnv("CHAT_BASE_URL", ""),
		ChatAPIKey:         mustEnv("CHAT_API_KEY", os.Getenv("GROQ_API_KEY")),
		ChatModel:          mustEnv("CHAT_MODEL", ""),
		ChatContextTurns:   mustEnvInt("CHAT_CONTEXT_TURNS", 20),
		ChatTimeoutSeconds: mustEnvInt("CHAT_TIMEOUT_SECONDS", 60),
		OllamaURL:          mustEnv("OLLAMA_URL", "http://localhost:11434"),
		GeminiAPIKey:       mustEnv("GEMINI_API_KEY", ""),
		GeminiModel:        mustEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		NATSURL:             mustEnv("NATS_URL", ""),
		NATSDiagnoseSubject: mustEnv("NATS_DIAGNOSE_SUBJECT", "plant.diagnose"),
		NATSEventsSubject:   mustEnv("NATS_EVENTS_SUBJECT", "plant.diagnosis.events"),
		NATSQueueGroup:      mustEnv("NATS_QUEUE_GROUP", "plant-doctor-workers"),
		DiagnoseViaQueue:    mustEnvBool("DIAGNOSE_VIA_QUEUE", false),

		TelegramToken: mustEnv("TELEGRAM_TOKEN", ""),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 10),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 20),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 8),
		APIMaxConnections: mustEnvInt("API_MAX_CONNECTIONS", 256),
		MaxUploadBytes:    int64(mustEnvInt("MAX_UPLOAD_BYTES", 10<<20)),

		RetryMaxAttempts:      mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoffMS: mustEnvInt("RESILIENCE_RETRY_INITIAL_BACKOFF_MS", 200),
		RetryMaxBackoffMS:     mustEnvInt("RESILIENCE_RETRY_MAX_BACKOFF_MS", 2000),
		BreakerEnabled:        mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
		BreakerMinRequests:    mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", 5),
		BreakerFailureRatio:   mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", 0.6),
		BreakerOpenTimeoutSec: mustEnvInt("RESILIENCE_BREAKER_OPEN_TIMEOUT_SECONDS", 30),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

func loadDotEnv(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("dotenv_load_failed", "path", path, "error", err)
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
