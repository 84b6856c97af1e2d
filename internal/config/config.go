// Package config builds the application configuration once at startup.
//
// Values come from, in increasing priority: built-in defaults, an optional
// YAML config file, `.env`, `.env.local` and the process environment. The
// resulting *Config is passed explicitly to every component that needs it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application-wide configuration.
type Config struct {
	Env     string
	Port    string
	GinMode string

	Database DatabaseConfig
	Auth     AuthConfig
	CORS     CORSConfig
	LLM      LLMConfig
	Report   ReportConfig
	Log      LogConfig

	v *viper.Viper
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string
	LogLevel string // silent, error, warn, info
}

// AuthConfig holds JWT settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// CORSConfig holds the browser origins allowed to call the API.
// AllowedOrigins already includes the origin of FrontendRedirectURL.
type CORSConfig struct {
	AllowedOrigins      []string
	FrontendRedirectURL string
}

// LLMConfig holds settings for the completion service.
type LLMConfig struct {
	// Provider selects the backend: "openai" or "ollama"
	Provider    string
	Model       string
	BaseURL     string // optional, for OpenAI-compatible endpoints
	APIKey      string
	OllamaHost  string
	Temperature float32
	Timeout     time.Duration // per attempt
	MaxRetries  int
}

// ReportConfig holds settings for report generation.
type ReportConfig struct {
	Dir            string
	PreviewChars   int
	MaxPromptBytes int // 0 disables the size guard
	JobWorkers     int
	FontFile       string // optional TrueType body font
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string // text or json
	File   string // empty logs to stdout
}

// Options controls where Load looks for configuration sources.
type Options struct {
	// EnvFiles are loaded in order; files named *.env.local override
	// values that are already set.
	EnvFiles []string

	// ConfigFile is an optional YAML file.
	ConfigFile string
}

// DefaultEnvFiles returns the .env locations checked when none are given.
func DefaultEnvFiles() []string {
	return []string{
		filepath.Join("..", ".env"),
		filepath.Join("..", ".env.local"),
		".env",
		".env.local",
	}
}

var envBindings = map[string]string{
	"env":                     "ENV",
	"port":                    "PORT",
	"gin_mode":                "GIN_MODE",
	"database.url":            "DATABASE_URL",
	"database.log_level":      "DB_LOG_LEVEL",
	"auth.jwt_secret":         "JWT_SECRET",
	"auth.token_ttl":          "JWT_TTL",
	"cors.allowed_origins":    "ALLOWED_ORIGINS",
	"cors.frontend_redirect":  "FRONTEND_REDIRECT_URL",
	"llm.provider":            "LLM_PROVIDER",
	"llm.model":               "LLM_MODEL",
	"llm.base_url":            "LLM_BASE_URL",
	"llm.ollama_host":         "OLLAMA_HOST",
	"llm.temperature":         "LLM_TEMPERATURE",
	"llm.timeout":             "LLM_TIMEOUT",
	"llm.max_retries":         "LLM_MAX_RETRIES",
	"report.dir":              "REPORT_DIR",
	"report.preview_chars":    "REPORT_PREVIEW_CHARS",
	"report.max_prompt_bytes": "REPORT_MAX_PROMPT_BYTES",
	"report.job_workers":      "REPORT_JOB_WORKERS",
	"report.font_file":        "REPORT_FONT_FILE",
	"log.level":               "LOG_LEVEL",
	"log.format":              "LOG_FORMAT",
	"log.file":                "LOG_FILE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("port", "8000")
	v.SetDefault("gin_mode", "debug")
	v.SetDefault("database.log_level", "error")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("cors.allowed_origins", "")
	v.SetDefault("cors.frontend_redirect", "")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.ollama_host", "http://localhost:11434")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("report.dir", filepath.Join("data", "reports"))
	v.SetDefault("report.preview_chars", 300)
	v.SetDefault("report.max_prompt_bytes", 0)
	v.SetDefault("report.job_workers", 2)
	v.SetDefault("report.font_file", "")
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// Load reads all configuration sources and returns a validated Config.
func Load(opts Options) (*Config, error) {
	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = DefaultEnvFiles()
	}
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	if err := v.BindEnv("llm.api_key", "LLM_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind LLM_API_KEY: %w", err)
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", opts.ConfigFile, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads every existing file; .env.local files override.
func loadEnvFiles(paths []string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %s: %w", path, err)
		}
		var err error
		if strings.HasSuffix(path, ".env.local") {
			err = godotenv.Overload(path)
		} else {
			err = godotenv.Load(path)
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Env:     v.GetString("env"),
		Port:    v.GetString("port"),
		GinMode: v.GetString("gin_mode"),
		Database: DatabaseConfig{
			URL:      v.GetString("database.url"),
			LogLevel: v.GetString("database.log_level"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			TokenTTL:  v.GetDuration("auth.token_ttl"),
		},
		CORS: CORSConfig{
			AllowedOrigins:      BuildOrigins(v.GetString("cors.allowed_origins"), v.GetString("cors.frontend_redirect")),
			FrontendRedirectURL: v.GetString("cors.frontend_redirect"),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(v.GetString("llm.provider")),
			Model:       v.GetString("llm.model"),
			BaseURL:     v.GetString("llm.base_url"),
			APIKey:      v.GetString("llm.api_key"),
			OllamaHost:  v.GetString("llm.ollama_host"),
			Temperature: float32(v.GetFloat64("llm.temperature")),
			Timeout:     v.GetDuration("llm.timeout"),
			MaxRetries:  v.GetInt("llm.max_retries"),
		},
		Report: ReportConfig{
			Dir:            v.GetString("report.dir"),
			PreviewChars:   v.GetInt("report.preview_chars"),
			MaxPromptBytes: v.GetInt("report.max_prompt_bytes"),
			JobWorkers:     v.GetInt("report.job_workers"),
			FontFile:       v.GetString("report.font_file"),
		},
		Log: LogConfig{
			Level:  strings.ToUpper(v.GetString("log.level")),
			Format: v.GetString("log.format"),
			File:   v.GetString("log.file"),
		},
		v: v,
	}
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	var problems []string
	if c.Database.URL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		problems = append(problems, fmt.Sprintf("LLM_PROVIDER %q is not supported (openai, ollama)", c.LLM.Provider))
	}
	if c.LLM.MaxRetries < 0 {
		problems = append(problems, "LLM_MAX_RETRIES must not be negative")
	}
	if c.Report.PreviewChars <= 0 {
		problems = append(problems, "REPORT_PREVIEW_CHARS must be positive")
	}
	if c.Report.JobWorkers <= 0 {
		problems = append(problems, "REPORT_JOB_WORKERS must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsDevelopment reports whether the server runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "local"
}

// Watch calls onLevelChange whenever log.level changes in the config file.
// It does nothing when no config file was loaded.
func (c *Config) Watch(onLevelChange func(level string)) bool {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return false
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := strings.ToUpper(c.v.GetString("log.level"))
		if level != c.Log.Level {
			c.Log.Level = level
			onLevelChange(level)
		}
	})
	c.v.WatchConfig()
	return true
}

// BuildOrigins returns the CORS allowlist: every origin named in allowed
// followed by the origin of the frontend redirect URL, without duplicates.
func BuildOrigins(allowed, frontendRedirect string) []string {
	origins := SplitOrigins(allowed)
	if origin := OriginFromURL(frontendRedirect); origin != "" && !slices.Contains(origins, origin) {
		origins = append(origins, origin)
	}
	return origins
}

// SplitOrigins parses a comma separated origin list into unique origins,
// dropping blanks and reducing full URLs to scheme://host.
func SplitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var origins []string
	for _, entry := range strings.Split(raw, ",") {
		origin := OriginFromURL(entry)
		if origin != "" && !slices.Contains(origins, origin) {
			origins = append(origins, origin)
		}
	}
	return origins
}

// OriginFromURL reduces an absolute URL to its origin. Anything else is
// returned trimmed and without trailing slashes.
func OriginFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	return strings.TrimRight(raw, "/")
}
