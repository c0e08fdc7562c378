package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sakura-go/sakura/pkg/sakura"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

type Config struct {
	Sakura     SakuraConfig     `mapstructure:"sakura"`
	Login      LoginConfig      `mapstructure:"login"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type SakuraConfig struct {
	ClerkURL              string        `mapstructure:"clerk_url"`
	APIURL                string        `mapstructure:"api_url"`
	FrontendURL           string        `mapstructure:"frontend_url"`
	Locale                string        `mapstructure:"locale"`
	AcceptLanguage        string        `mapstructure:"accept_language"`
	UserAgent             string        `mapstructure:"user_agent"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	CookieRefreshInterval time.Duration `mapstructure:"cookie_refresh_interval"`
	SessionID             string        `mapstructure:"session_id"`
	RefreshToken          string        `mapstructure:"refresh_token"`
}

type LoginConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type GatewayConfig struct {
	Port         int             `mapstructure:"port"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig.Port of 0 serves metrics on the gateway listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

var envBindings = map[string]string{
	"sakura.session_id":    "SAKURA_SESSION_ID",
	"sakura.refresh_token": "SAKURA_REFRESH_TOKEN",
	"sakura.locale":        "SAKURA_LOCALE",
	"logging.level":        "LOG_LEVEL",
	"gateway.port":         "GATEWAY_PORT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sakura.clerk_url", sakura.DefaultClerkURL)
	v.SetDefault("sakura.api_url", sakura.DefaultAPIURL)
	v.SetDefault("sakura.frontend_url", sakura.DefaultFrontendURL)
	v.SetDefault("sakura.locale", sakura.DefaultLocale)
	v.SetDefault("sakura.accept_language", sakura.DefaultAcceptLanguage)
	v.SetDefault("sakura.user_agent", "")
	v.SetDefault("sakura.request_timeout", sakura.DefaultRequestTimeout)
	v.SetDefault("sakura.cookie_refresh_interval", sakura.DefaultRefreshEvery)
	v.SetDefault("sakura.session_id", "")
	v.SetDefault("sakura.refresh_token", "")

	v.SetDefault("login.max_attempts", sakura.DefaultLoginAttempts)
	v.SetDefault("login.poll_interval", sakura.DefaultLoginInterval)

	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.read_timeout", 15*time.Second)
	v.SetDefault("gateway.write_timeout", 60*time.Second)
	v.SetDefault("gateway.rate_limit.enabled", true)
	v.SetDefault("gateway.rate_limit.requests_per_minute", 30)
	v.SetDefault("gateway.rate_limit.burst", 5)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.max_size", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.file.path", "logs/sakura.log")
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)

	v.SetDefault("monitoring.metrics.enabled", true)
	v.SetDefault("monitoring.metrics.port", 0)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.languages", []string{"en", "ru"})
}

// LoadConfig loads configuration from file and environment variables.
// A missing file leaves the defaults in place.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	for name, raw := range map[string]string{
		"sakura.clerk_url":    cfg.Sakura.ClerkURL,
		"sakura.api_url":      cfg.Sakura.APIURL,
		"sakura.frontend_url": cfg.Sakura.FrontendURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if _, err := language.Parse(cfg.Sakura.Locale); err != nil {
		return fmt.Errorf("sakura.locale %q: %w", cfg.Sakura.Locale, err)
	}
	if cfg.Sakura.RequestTimeout <= 0 {
		return fmt.Errorf("sakura.request_timeout must be positive")
	}
	if cfg.Sakura.CookieRefreshInterval <= 0 {
		return fmt.Errorf("sakura.cookie_refresh_interval must be positive")
	}

	if cfg.Login.MaxAttempts <= 0 {
		return fmt.Errorf("login.max_attempts must be positive")
	}
	if cfg.Login.PollInterval <= 0 {
		return fmt.Errorf("login.poll_interval must be positive")
	}

	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d is out of range", cfg.Gateway.Port)
	}
	if rl := cfg.Gateway.RateLimit; rl.Enabled && (rl.RequestsPerMinute <= 0 || rl.Burst <= 0) {
		return fmt.Errorf("gateway.rate_limit needs positive requests_per_minute and burst")
	}

	if cfg.Cache.Enabled && (cfg.Cache.TTL <= 0 || cfg.Cache.MaxSize <= 0) {
		return fmt.Errorf("cache needs a positive ttl and max_size")
	}

	switch cfg.Logging.Output {
	case "stdout", "stderr":
	case "file":
		if cfg.Logging.File.Path == "" {
			return fmt.Errorf("logging.file.path is required for file output")
		}
	default:
		return fmt.Errorf("unknown logging.output %q", cfg.Logging.Output)
	}

	if cfg.Monitoring.Metrics.Enabled && !strings.HasPrefix(cfg.Monitoring.Metrics.Path, "/") {
		return fmt.Errorf("monitoring.metrics.path must start with /")
	}

	if len(cfg.I18n.Languages) == 0 {
		return fmt.Errorf("i18n.languages must not be empty")
	}
	found := false
	for _, lang := range cfg.I18n.Languages {
		if lang == cfg.I18n.DefaultLanguage {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("i18n.default_language %q is not among i18n.languages", cfg.I18n.DefaultLanguage)
	}

	return nil
}

// ClientOptions maps the sakura section onto client options.
func (c *Config) ClientOptions() sakura.Options {
	return sakura.Options{
		ClerkURL:       c.Sakura.ClerkURL,
		APIURL:         c.Sakura.APIURL,
		FrontendURL:    c.Sakura.FrontendURL,
		AcceptLanguage: c.Sakura.AcceptLanguage,
		UserAgent:      c.Sakura.UserAgent,
		RequestTimeout: c.Sakura.RequestTimeout,
		RefreshEvery:   c.Sakura.CookieRefreshInterval,
	}
}

// WaitOptions returns the login polling budget.
func (c *Config) WaitOptions() sakura.WaitOptions {
	return sakura.WaitOptions{
		MaxAttempts: c.Login.MaxAttempts,
		Interval:    c.Login.PollInterval,
	}
}
