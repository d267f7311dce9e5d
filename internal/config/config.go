package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "AUDIT"

type Config struct {
	Provider   ProviderConfig `mapstructure:"provider"`
	Fetch      FetchConfig    `mapstructure:"fetch"`
	Sampler    SamplerConfig  `mapstructure:"sampler"`
	Analyzer   AnalyzerConfig `mapstructure:"analyzer"`
	Cache      CacheConfig    `mapstructure:"cache"`
	Docs       DocsConfig     `mapstructure:"docs"`
	Log        LogConfig      `mapstructure:"log"`
	Server     ServerConfig   `mapstructure:"server"`
	RunTimeout time.Duration  `mapstructure:"run_timeout"`
}

// ProviderConfig selects the inference backend for one run. It is passed
// explicitly to every run and never stored process-wide.
type ProviderConfig struct {
	Name        string  `mapstructure:"name"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	RPS         float64 `mapstructure:"rps"`
	Burst       int     `mapstructure:"burst"`
	MaxAttempts int     `mapstructure:"max_attempts"`
}

type FetchConfig struct {
	GitHubToken     string `mapstructure:"github_token"`
	GitHubBaseURL   string `mapstructure:"github_base_url"`
	MaxArchiveBytes int64  `mapstructure:"max_archive_bytes"`
	MaxFileBytes    int64  `mapstructure:"max_file_bytes"`
}

type SamplerConfig struct {
	Cap int `mapstructure:"cap"`
}

type AnalyzerConfig struct {
	Concurrency     int `mapstructure:"concurrency"`
	MaxExcerptChars int `mapstructure:"max_excerpt_chars"`
}

type CacheConfig struct {
	Backend      string        `mapstructure:"backend"`
	MaxAge       time.Duration `mapstructure:"max_age"`
	MaxEntries   int           `mapstructure:"max_entries"`
	DiskRoot     string        `mapstructure:"disk_root"`
	DiskMaxBytes int64         `mapstructure:"disk_max_bytes"`
	PostgresDSN  string        `mapstructure:"postgres_dsn"`
	S3           S3Config      `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// CanUse reports whether enough settings are present to build a client.
func (c S3Config) CanUse() bool {
	return strings.TrimSpace(c.Endpoint) != "" &&
		strings.TrimSpace(c.AccessKey) != "" &&
		strings.TrimSpace(c.SecretKey) != "" &&
		strings.TrimSpace(c.Bucket) != ""
}

type DocsConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	MaxReferences int    `mapstructure:"max_references"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

func defaults() map[string]any {
	return map[string]any{
		"provider.name":              "gemini",
		"provider.model":             "gemini-2.5-flash",
		"provider.api_key":           "",
		"provider.rps":               0.5,
		"provider.burst":             1,
		"provider.max_attempts":      3,
		"fetch.github_token":         "",
		"fetch.github_base_url":      "",
		"fetch.max_archive_bytes":    int64(200 << 20),
		"fetch.max_file_bytes":       int64(1 << 20),
		"sampler.cap":                40,
		"analyzer.concurrency":       3,
		"analyzer.max_excerpt_chars": 60000,
		"cache.backend":              "memory",
		"cache.max_age":              24 * time.Hour,
		"cache.max_entries":          256,
		"cache.disk_max_bytes":       int64(0),
		"cache.disk_root":            ".audit-cache",
		"cache.postgres_dsn":         "",
		"cache.s3.endpoint":          "",
		"cache.s3.region":            "us-east-1",
		"cache.s3.access_key":        "",
		"cache.s3.secret_key":        "",
		"cache.s3.bucket":            "repoaudit-cache",
		"cache.s3.use_ssl":           true,
		"docs.base_url":              "",
		"docs.api_key":               "",
		"docs.max_references":        3,
		"log.level":                  "info",
		"log.format":                 "console",
		"server.addr":                ":8080",
		"run_timeout":                15 * time.Minute,
	}
}

// Load reads .env, then an optional YAML file, then AUDIT_* environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}
	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyFallbacks()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyFallbacks honours the provider-native variable names when the
// prefixed ones are unset.
func (c *Config) applyFallbacks() {
	c.Provider.Name = strings.ToLower(strings.TrimSpace(c.Provider.Name))
	if strings.TrimSpace(c.Provider.APIKey) == "" {
		switch c.Provider.Name {
		case "gemini":
			c.Provider.APIKey = firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		case "groq":
			c.Provider.APIKey = os.Getenv("GROQ_API_KEY")
		}
	}
	c.Fetch.GitHubToken = firstNonEmpty(c.Fetch.GitHubToken, os.Getenv("GITHUB_TOKEN"))
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
}

func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "gemini", "groq", "fake":
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider.Name)
	}
	switch c.Cache.Backend {
	case "", "none", "memory", "disk", "postgres", "s3":
	default:
		return fmt.Errorf("unsupported cache backend %q", c.Cache.Backend)
	}
	if c.Sampler.Cap <= 0 {
		return fmt.Errorf("sampler.cap must be > 0")
	}
	if c.Analyzer.Concurrency <= 0 {
		return fmt.Errorf("analyzer.concurrency must be > 0")
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be > 0")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
