package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sakura-go/sakura/pkg/sakura"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Sakura.ClerkURL != sakura.DefaultClerkURL || cfg.Sakura.APIURL != sakura.DefaultAPIURL {
		t.Fatalf("expected default urls, got %+v", cfg.Sakura)
	}
	if cfg.Login.MaxAttempts != sakura.DefaultLoginAttempts || cfg.Login.PollInterval != sakura.DefaultLoginInterval {
		t.Fatalf("expected default login budget, got %+v", cfg.Login)
	}
	if cfg.Sakura.CookieRefreshInterval != time.Minute {
		t.Fatalf("expected 60s refresh, got %v", cfg.Sakura.CookieRefreshInterval)
	}
	if cfg.Cache.Enabled {
		t.Fatal("expected cache to be off by default")
	}
}

func TestLoadConfigFileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
sakura:
  frontend_url: "http://localhost:3000"
  request_timeout: 5s
login:
  max_attempts: 3
  poll_interval: 500ms
cache:
  enabled: true
  ttl: 1m
  max_size: 10
`)
	t.Setenv("SAKURA_SESSION_ID", "sess_env")
	t.Setenv("SAKURA_REFRESH_TOKEN", "rt_env")
	t.Setenv("GATEWAY_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Sakura.FrontendURL != "http://localhost:3000" || cfg.Sakura.RequestTimeout != 5*time.Second {
		t.Fatalf("expected file values, got %+v", cfg.Sakura)
	}
	if cfg.Sakura.SessionID != "sess_env" || cfg.Sakura.RefreshToken != "rt_env" {
		t.Fatalf("expected credentials from env, got %q / %q", cfg.Sakura.SessionID, cfg.Sakura.RefreshToken)
	}
	if cfg.Gateway.Port != 9090 {
		t.Fatalf("expected port from env, got %d", cfg.Gateway.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected level from env, got %q", cfg.Logging.Level)
	}

	wait := cfg.WaitOptions()
	if wait.MaxAttempts != 3 || wait.Interval != 500*time.Millisecond {
		t.Fatalf("unexpected wait options: %+v", wait)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "relative url", body: "sakura:\n  api_url: \"/api\"\n", want: "sakura.api_url"},
		{name: "bad locale", body: "sakura:\n  locale: \"!!\"\n", want: "sakura.locale"},
		{name: "no attempts", body: "login:\n  max_attempts: 0\n", want: "login.max_attempts"},
		{name: "bad output", body: "logging:\n  output: \"syslog\"\n", want: "logging.output"},
		{name: "default language", body: "i18n:\n  default_language: \"de\"\n", want: "i18n.default_language"},
		{name: "rate limit", body: "gateway:\n  rate_limit:\n    enabled: true\n    burst: 0\n", want: "gateway.rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error about %s, got %v", tt.want, err)
			}
		})
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &Config{Sakura: SakuraConfig{
		ClerkURL:              "http://clerk",
		APIURL:                "http://api",
		FrontendURL:           "http://www",
		AcceptLanguage:        "ru-RU,ru;q=0.9",
		UserAgent:             "agent",
		RequestTimeout:        time.Second,
		CookieRefreshInterval: 2 * time.Second,
	}}

	opts := cfg.ClientOptions()
	if opts.ClerkURL != "http://clerk" || opts.APIURL != "http://api" || opts.FrontendURL != "http://www" {
		t.Fatalf("unexpected urls: %+v", opts)
	}
	if opts.AcceptLanguage != "ru-RU,ru;q=0.9" || opts.UserAgent != "agent" {
		t.Fatalf("unexpected headers: %+v", opts)
	}
	if opts.RequestTimeout != time.Second || opts.RefreshEvery != 2*time.Second {
		t.Fatalf("unexpected timings: %+v", opts)
	}
}
