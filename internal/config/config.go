// Package config loads nexusworld's runtime configuration, following the
// teacher's load/defaults/env-override/validate pipeline (see
// internal/config/config.go in the teacher repo) trimmed to this runtime's
// surface.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for a worldctl process.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	World   WorldConfig   `yaml:"world"`
	LLM     LLMConfig     `yaml:"llm"`
	Tools   ToolsConfig   `yaml:"tools"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP/SSE surface (spec §6).
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects and configures the durable backend (spec §4.10).
type StorageConfig struct {
	// Backend is "memory" or "sqlite". Defaults to "sqlite".
	Backend string `yaml:"backend"`
	// Path is the sqlite database file. Ignored for the memory backend.
	Path string `yaml:"path"`
}

// WorldConfig holds world- and agent-level defaults (spec §3, §4.3).
type WorldConfig struct {
	DefaultTurnLimit    int  `yaml:"default_turn_limit"`
	DisableStreaming    bool `yaml:"disable_streaming"`
	ErrorLogSize        int  `yaml:"error_log_size"`
	MaxOrchestrationIter int `yaml:"max_orchestration_iterations"`
}

// LLMConfig configures the default provider/model and the credentials each
// provider adapter needs (spec §2.2, §4.3.2).
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	DefaultModel    string                       `yaml:"default_model"`
	Temperature     float64                      `yaml:"temperature"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

// LLMProviderConfig is one provider's credentials and overrides.
type LLMProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// ToolsConfig configures the approval heuristic (spec §4.4).
type ToolsConfig struct {
	// DangerousKeywords are matched, case-insensitively, against a tool's
	// name and description to decide whether it needs approval. Empty keeps
	// the package default list.
	DangerousKeywords []string `yaml:"dangerous_keywords"`
	// SensitiveArgKeys extends the redaction pattern applied to tool args
	// shown in an approval request (spec §4.4.2).
	SensitiveArgKeys []string      `yaml:"sensitive_arg_keys"`
	ShellTimeout     time.Duration `yaml:"shell_timeout"`
}

// LoggingConfig configures the structured logger (spec §2.1).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, expands, decodes, defaults, and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected a single document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "nexusworld.db"
	}

	if cfg.World.DefaultTurnLimit == 0 {
		cfg.World.DefaultTurnLimit = 5
	}
	if cfg.World.ErrorLogSize == 0 {
		cfg.World.ErrorLogSize = 100
	}
	if cfg.World.MaxOrchestrationIter == 0 {
		cfg.World.MaxOrchestrationIter = 10
	}

	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}

	if cfg.Tools.ShellTimeout == 0 {
		cfg.Tools.ShellTimeout = 30 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("NEXUSWORLD_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("NEXUSWORLD_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("NEXUSWORLD_STORAGE_BACKEND")); v != "" {
		cfg.Storage.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("NEXUSWORLD_STORAGE_PATH")); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("NEXUSWORLD_DEFAULT_PROVIDER")); v != "" {
		cfg.LLM.DefaultProvider = v
	}

	for _, name := range []string{"anthropic", "openai", "google"} {
		envKey := "NEXUSWORLD_" + strings.ToUpper(name) + "_API_KEY"
		v := strings.TrimSpace(os.Getenv(envKey))
		if v == "" {
			continue
		}
		if cfg.LLM.Providers == nil {
			cfg.LLM.Providers = make(map[string]LLMProviderConfig)
		}
		entry := cfg.LLM.Providers[name]
		entry.APIKey = v
		cfg.LLM.Providers[name] = entry
	}
}

// ValidationError collects every config problem found, matching the
// teacher's aggregate-then-report style rather than failing on the first
// issue.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	switch cfg.Storage.Backend {
	case "memory", "sqlite":
	default:
		issues = append(issues, `storage.backend must be "memory" or "sqlite"`)
	}

	if cfg.World.DefaultTurnLimit < 1 {
		issues = append(issues, "world.default_turn_limit must be >= 1")
	}
	if cfg.World.MaxOrchestrationIter < 1 {
		issues = append(issues, "world.max_orchestration_iterations must be >= 1")
	}

	defaultProvider := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	switch defaultProvider {
	case "anthropic", "openai", "google":
	default:
		issues = append(issues, `llm.default_provider must be "anthropic", "openai", or "google"`)
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		issues = append(issues, "llm.temperature must be between 0 and 2")
	}

	if cfg.Tools.ShellTimeout < 0 {
		issues = append(issues, "tools.shell_timeout must be >= 0")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, `logging.level must be "debug", "info", "warn", or "error"`)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "console":
	default:
		issues = append(issues, `logging.format must be "json" or "console"`)
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
