package infra

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
}

func TestLoadConfigDefaultStorageBaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:8080/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigRequiresTelegramIdentity(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_BOT_ID", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when neither bot token nor bot id is set")
	}

	t.Setenv("TELEGRAM_BOT_ID", "7210667871")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.TelegramBotID != 7210667871 {
		t.Fatalf("TelegramBotID = %d", cfg.TelegramBotID)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("DONATION_VERIFY", "false")
	t.Setenv("SEAL_TIMEOUT_SECONDS", "notanumber")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("AllowedOrigins = %#v", cfg.AllowedOrigins)
	}
	if cfg.DonationVerify {
		t.Fatal("DonationVerify should be false")
	}
	if cfg.SealTimeout != 120*time.Second {
		t.Fatalf("SealTimeout = %s, want default", cfg.SealTimeout)
	}
	if cfg.OpenAIBaseURL != "https://api.deepseek.com" || cfg.OpenAIModel != "deepseek-chat" {
		t.Fatalf("unexpected AI defaults: %s %s", cfg.OpenAIBaseURL, cfg.OpenAIModel)
	}
	if cfg.MinioEnabled() {
		t.Fatal("minio should be disabled without credentials")
	}
}
