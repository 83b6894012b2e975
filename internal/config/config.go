// Package config manages stickycheese configuration from defaults, an
// optional config file, .env files and environment variables.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jedarden/stickycheese/internal/provider"
	"github.com/jedarden/stickycheese/internal/translator"
)

// StoreBackend selects where conversations are kept.
type StoreBackend string

const (
	// BackendMemory keeps conversations for the life of the process.
	BackendMemory StoreBackend = "memory"
	BackendJSON   StoreBackend = "json"
	BackendSQLite StoreBackend = "sqlite"
)

// Config holds the stickycheese configuration.
type Config struct {
	// API keys
	OpenAIAPIKey    string `yaml:"openai_api_key,omitempty" toml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key,omitempty" toml:"anthropic_api_key"`
	GoogleAPIKey    string `yaml:"google_api_key,omitempty" toml:"google_api_key"`

	// Chat settings
	RelayURL     string `yaml:"relay_url,omitempty" toml:"relay_url"`
	DefaultModel string `yaml:"model,omitempty" toml:"model"`
	SystemPrompt string `yaml:"system_prompt,omitempty" toml:"system_prompt"`

	// Storage settings
	StoreBackend StoreBackend `yaml:"store,omitempty" toml:"store"`
	DataDir      string       `yaml:"data_dir,omitempty" toml:"data_dir"`

	// Relay settings
	Port              int      `yaml:"port,omitempty" toml:"port"`
	AllowedOrigins    []string `yaml:"allowed_origins,omitempty" toml:"allowed_origins"`
	OpenAIUpstream    string   `yaml:"openai_upstream,omitempty" toml:"openai_upstream"`
	AnthropicUpstream string   `yaml:"anthropic_upstream,omitempty" toml:"anthropic_upstream"`
	GoogleUpstream    string   `yaml:"google_upstream,omitempty" toml:"google_upstream"`

	// Rate limiting settings
	RateLimitEnabled  bool `yaml:"rate_limit,omitempty" toml:"rate_limit"`
	RateLimitRequests int  `yaml:"rate_limit_requests,omitempty" toml:"rate_limit_requests"` // Requests per window
	RateLimitWindow   int  `yaml:"rate_limit_window,omitempty" toml:"rate_limit_window"`     // Window in seconds
	RateLimitBurst    int  `yaml:"rate_limit_burst,omitempty" toml:"rate_limit_burst"`

	// Debug settings
	Debug bool `yaml:"debug,omitempty" toml:"debug"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultModel:      provider.DefaultModel,
		StoreBackend:      BackendJSON,
		DataDir:           filepath.Join(Dir(), "data"),
		Port:              8787,
		OpenAIUpstream:    provider.DefaultOpenAIHost,
		AnthropicUpstream: provider.DefaultAnthropicHost,
		GoogleUpstream:    provider.DefaultGoogleHost,
		RateLimitRequests: 60,
		RateLimitWindow:   60,
		RateLimitBurst:    10,
	}
}

// Dir returns the stickycheese home directory.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".stickycheese")
}

// Load builds the configuration: defaults, then the first config file found
// in Dir, then .env files, then environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := FindConfigFile(Dir()); path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
		log.Printf("[STICKYCHEESE] Loaded configuration from %s", path)
	}

	for _, path := range LoadDotEnv(".env", filepath.Join(Dir(), ".env")) {
		log.Printf("[STICKYCHEESE] Loaded environment from %s", path)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfigFile returns config.yaml, config.yml or config.toml in dir, or ""
// when none exists.
func FindConfigFile(dir string) string {
	for _, name := range []string{"config.yaml", "config.yml", "config.toml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadFile decodes a YAML or TOML file onto cfg, chosen by extension.
// Fields absent from the file keep their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode YAML file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to decode TOML file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file type: %s", path)
	}
	return nil
}

// SaveFile writes cfg as YAML with owner-only permissions.
func SaveFile(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadDotEnv loads each existing .env file into the environment without
// overriding variables that are already set. It returns the files loaded.
func LoadDotEnv(paths ...string) []string {
	var loaded []string
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			loaded = append(loaded, path)
		}
	}
	return loaded
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	// API keys
	setString(&cfg.OpenAIAPIKey, KeyEnvVar(provider.OpenAI))
	setString(&cfg.AnthropicAPIKey, KeyEnvVar(provider.Anthropic))
	setString(&cfg.GoogleAPIKey, KeyEnvVar(provider.Google))
	if cfg.GoogleAPIKey == "" {
		setString(&cfg.GoogleAPIKey, "GEMINI_API_KEY")
	}

	// Chat settings
	setString(&cfg.RelayURL, "STICKYCHEESE_RELAY_URL")
	setString(&cfg.DefaultModel, "STICKYCHEESE_MODEL")
	setString(&cfg.SystemPrompt, "STICKYCHEESE_SYSTEM_PROMPT")
	cfg.RelayURL = translator.NormalizeRelayURL(cfg.RelayURL)

	// Storage settings
	if backend := os.Getenv("STICKYCHEESE_STORE"); backend != "" {
		cfg.StoreBackend = StoreBackend(strings.ToLower(backend))
	}
	setString(&cfg.DataDir, "STICKYCHEESE_DATA_DIR")

	// Relay settings
	if err := setInt(&cfg.Port, "STICKYCHEESE_PORT"); err != nil {
		return err
	}
	if origins := os.Getenv("STICKYCHEESE_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = ParseOrigins(origins)
	}
	setString(&cfg.OpenAIUpstream, "STICKYCHEESE_OPENAI_UPSTREAM")
	setString(&cfg.AnthropicUpstream, "STICKYCHEESE_ANTHROPIC_UPSTREAM")
	setString(&cfg.GoogleUpstream, "STICKYCHEESE_GOOGLE_UPSTREAM")

	// Rate limiting settings
	if v := os.Getenv("STICKYCHEESE_RATE_LIMIT"); v != "" {
		cfg.RateLimitEnabled = isTrue(v)
	}
	if err := setInt(&cfg.RateLimitRequests, "STICKYCHEESE_RATE_LIMIT_REQUESTS"); err != nil {
		return err
	}
	if err := setInt(&cfg.RateLimitWindow, "STICKYCHEESE_RATE_LIMIT_WINDOW"); err != nil {
		return err
	}
	if err := setInt(&cfg.RateLimitBurst, "STICKYCHEESE_RATE_LIMIT_BURST"); err != nil {
		return err
	}

	// Debug settings
	if v := os.Getenv("STICKYCHEESE_DEBUG"); v != "" {
		cfg.Debug = isTrue(v)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func isTrue(v string) bool {
	return v == "true" || v == "1"
}

// ParseOrigins splits a comma-separated origin list, dropping empty entries.
func ParseOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if _, err := provider.Lookup(c.DefaultModel); err != nil {
		return fmt.Errorf("invalid default model: %w", err)
	}
	switch c.StoreBackend {
	case BackendMemory, BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("unknown store backend: %s", c.StoreBackend)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.RateLimitEnabled {
		if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
			return fmt.Errorf("rate limit requests and window must be positive")
		}
		if c.RateLimitBurst < 1 {
			return fmt.Errorf("rate limit burst must be at least 1")
		}
	}
	if c.RelayURL != "" && !strings.HasPrefix(c.RelayURL, "http://") && !strings.HasPrefix(c.RelayURL, "https://") {
		return fmt.Errorf("relay URL must start with http:// or https://")
	}
	return nil
}

// APIKey returns the configured key for a provider.
func (c *Config) APIKey(id provider.ID) string {
	switch id {
	case provider.OpenAI:
		return c.OpenAIAPIKey
	case provider.Anthropic:
		return c.AnthropicAPIKey
	case provider.Google:
		return c.GoogleAPIKey
	default:
		return ""
	}
}

// KeyEnvVar names the environment variable holding a provider's key.
func KeyEnvVar(id provider.ID) string {
	switch id {
	case provider.OpenAI:
		return "OPENAI_API_KEY"
	case provider.Anthropic:
		return "ANTHROPIC_API_KEY"
	case provider.Google:
		return "GOOGLE_API_KEY"
	default:
		return ""
	}
}

// SetAPIKey stores the key for a provider.
func (c *Config) SetAPIKey(id provider.ID, key string) {
	key = strings.TrimSpace(key)
	switch id {
	case provider.OpenAI:
		c.OpenAIAPIKey = key
	case provider.Anthropic:
		c.AnthropicAPIKey = key
	case provider.Google:
		c.GoogleAPIKey = key
	}
}

// Upstream returns the origin the relay forwards a provider's traffic to.
func (c *Config) Upstream(id provider.ID) string {
	switch id {
	case provider.OpenAI:
		return c.OpenAIUpstream
	case provider.Anthropic:
		return c.AnthropicUpstream
	case provider.Google:
		return c.GoogleUpstream
	default:
		return ""
	}
}

// HasAnyKey reports whether at least one provider key is configured.
func (c *Config) HasAnyKey() bool {
	return c.OpenAIAPIKey != "" || c.AnthropicAPIKey != "" || c.GoogleAPIKey != ""
}
