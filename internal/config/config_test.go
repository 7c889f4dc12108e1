package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/taskpilot/taskpilot/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"TP_LISTEN", "TP_DATABASE_PATH", "ANTHROPIC_API_KEY", "TP_MODEL", "TP_JWT_SECRET", "TP_TOKEN_EXPIRY", "TP_CHAT_RATE_PER_MINUTE"} {
		t.Setenv(k, "")
	}
	// t.Setenv("", "") leaves empty values which Load treats as unset.
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8080" || cfg.ChatRatePerMinute != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "listen: \":9000\"\njwt_secret: from-file\nanthropic_api_key: key-from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TP_JWT_SECRET", "from-env")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("file value not applied: %q", cfg.Listen)
	}
	if cfg.JWTSecret != "from-env" {
		t.Errorf("env should override file: %q", cfg.JWTSecret)
	}
	if cfg.AnthropicAPIKey != "key-from-file" {
		t.Errorf("file value lost: %q", cfg.AnthropicAPIKey)
	}
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	clearEnv(t)
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Fatalf("absent config file should not error: %v", err)
	}
}

func TestValidate_RequiresSecrets(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure without api key")
	}

	cfg.AnthropicAPIKey = "k"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure without jwt secret")
	}

	cfg.JWTSecret = "s"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_BadExpiry(t *testing.T) {
	clearEnv(t)
	cfg, _ := config.Load("")
	cfg.AnthropicAPIKey = "k"
	cfg.JWTSecret = "s"
	cfg.TokenExpiry = "soonish"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure for bad expiry")
	}
}
