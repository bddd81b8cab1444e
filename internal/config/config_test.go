package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	t.Setenv("MODEL_INPUT_WIDTH", "")
	t.Setenv("MODEL_INPUT_LAYOUT", "")
	t.Setenv("PREPROCESS_SCALE", "")
	t.Setenv("CHAT_PROVIDER", "")
	t.Setenv("CHAT_CONTEXT_TURNS", "")
	t.Setenv("NATS_URL", "")

	cfg := Load()
	if cfg.ModelInputWidth != 224 || cfg.ModelInputHeight != 224 {
		t.Fatalf("expected 224x224 default input, got %dx%d", cfg.ModelInputWidth, cfg.ModelInputHeight)
	}
	if cfg.ModelInputLayout != "nhwc" {
		t.Fatalf("expected default layout nhwc, got %q", cfg.ModelInputLayout)
	}
	if cfg.PreprocessScale != 1.0/255.0 {
		t.Fatalf("expected default scale 1/255, got %v", cfg.PreprocessScale)
	}
	if cfg.ChatProvider != "groq" {
		t.Fatalf("expected default chat provider groq, got %q", cfg.ChatProvider)
	}
	if cfg.ChatContextTurns != 20 {
		t.Fatalf("expected default context turns 20, got %d", cfg.ChatContextTurns)
	}
	if cfg.NATSURL != "" {
		t.Fatalf("expected NATS disabled by default, got %q", cfg.NATSURL)
	}
	if cfg.MaxImagePixels != 40_000_000 {
		t.Fatalf("expected default pixel limit 40M, got %d", cfg.MaxImagePixels)
	}
	if cfg.DiagnoseViaQueue {
		t.Fatalf("expected in-process diagnosis by default")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	t.Setenv("MODEL_INPUT_LAYOUT", "nchw")
	t.Setenv("PREPROCESS_SCALE", "0.0078125")
	t.Setenv("PREPROCESS_OFFSET", "-1")
	t.Setenv("CHAT_PROVIDER", "Gemini")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("RESILIENCE_BREAKER_ENABLED", "false")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("MAX_IMAGE_PIXELS", "1000000")
	t.Setenv("DIAGNOSE_VIA_QUEUE", "true")

	cfg := Load()
	if cfg.ModelInputLayout != "nchw" {
		t.Fatalf("expected layout override, got %q", cfg.ModelInputLayout)
	}
	if cfg.PreprocessScale != 0.0078125 || cfg.PreprocessOffset != -1 {
		t.Fatalf("expected scale/offset overrides, got %v/%v", cfg.PreprocessScale, cfg.PreprocessOffset)
	}
	if cfg.ChatProvider != "gemini" {
		t.Fatalf("expected lower-cased provider, got %q", cfg.ChatProvider)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.BreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
	if cfg.MaxUploadBytes != 1024 {
		t.Fatalf("expected max upload 1024, got %d", cfg.MaxUploadBytes)
	}
	if cfg.MaxImagePixels != 1000000 || !cfg.DiagnoseViaQueue {
		t.Fatalf("expected pixel limit and queue overrides, got %d/%v", cfg.MaxImagePixels, cfg.DiagnoseViaQueue)
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	t.Setenv("CHAT_CONTEXT_TURNS", "many")
	t.Setenv("PREPROCESS_OFFSET", "zero")

	cfg := Load()
	if cfg.ChatContextTurns != 20 {
		t.Fatalf("expected fallback context turns, got %d", cfg.ChatContextTurns)
	}
	if cfg.PreprocessOffset != 0 {
		t.Fatalf("expected fallback offset, got %v", cfg.PreprocessOffset)
	}
}

func TestLoadReadsDotEnvWithoutOverridingEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "TELEGRAM_TOKEN=from-file\nCHAT_MODEL=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("CHAT_MODEL", "from-env")
	// godotenv writes into the process environment; restore after the test.
	t.Setenv("TELEGRAM_TOKEN", "")
	os.Unsetenv("TELEGRAM_TOKEN")

	cfg := Load()
	if cfg.TelegramToken != "from-file" {
		t.Fatalf("expected token from env file, got %q", cfg.TelegramToken)
	}
	if cfg.ChatModel != "from-env" {
		t.Fatalf("expected environment to win over env file, got %q", cfg.ChatModel)
	}
}
