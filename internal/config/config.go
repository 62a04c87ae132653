// Package config loads and validates datapilot configuration from
// .datapilot/config.yaml with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Engine  EngineConfig  `yaml:"engine"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Dataset DatasetConfig `yaml:"dataset"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the text-generation client.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// EngineConfig configures the analysis workflow.
type EngineConfig struct {
	MaxRetries    int `yaml:"max_retries"`
	SampleRows    int `yaml:"sample_rows"`
	PreviewRows   int `yaml:"preview_rows"`
	MaxConcurrent int `yaml:"max_concurrent"`
}

// SandboxConfig configures generated-code execution.
type SandboxConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// DatasetConfig configures dataset loading.
type DatasetConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig configures run persistence and artifacts.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	ArtifactsDir string `yaml:"artifacts_dir"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	UploadDir      string   `yaml:"upload_dir"`
}

// LoggingConfig configures the category file loggers.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// Default returns a Config with sensible defaults for the given workspace.
func Default(workspace string) *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   4096,
			Temperature: 0.0,
			Timeout:     60 * time.Second,
			MaxRetries:  3,
		},
		Engine: EngineConfig{
			MaxRetries:    3,
			SampleRows:    5,
			PreviewRows:   20,
			MaxConcurrent: 4,
		},
		Sandbox: SandboxConfig{
			Timeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(workspace, ".datapilot", "datapilot.db"),
			ArtifactsDir: filepath.Join(workspace, ".datapilot", "artifacts"),
		},
		Server: ServerConfig{
			Addr:      ":8080",
			UploadDir: filepath.Join(workspace, ".datapilot", "uploads"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads config from <workspace>/.datapilot/config.yaml, applies
// environment overrides, fills defaults, and validates. A missing file is
// not an error; defaults apply.
func Load(workspace string) (*Config, error) {
	cfg := Default(workspace)

	path := filepath.Join(workspace, ".datapilot", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(workspace); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATAPILOT_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("DATAPILOT_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("DATAPILOT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DATAPILOT_DATA"); v != "" {
		c.Dataset.Path = v
	}
}

// Validate fills zero values with defaults and rejects invalid settings.
func (c *Config) Validate(workspace string) error {
	def := Default(workspace)

	if c.LLM.Provider == "" {
		c.LLM.Provider = def.LLM.Provider
	}
	if c.LLM.Model == "" {
		c.LLM.Model = def.LLM.Model
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = def.LLM.MaxTokens
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = def.LLM.Timeout
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must be >= 0, got %d", c.LLM.MaxRetries)
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = def.LLM.MaxRetries
	}

	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must be >= 0, got %d", c.Engine.MaxRetries)
	}
	if c.Engine.MaxRetries == 0 {
		c.Engine.MaxRetries = def.Engine.MaxRetries
	}
	if c.Engine.SampleRows <= 0 {
		c.Engine.SampleRows = def.Engine.SampleRows
	}
	if c.Engine.PreviewRows <= 0 {
		c.Engine.PreviewRows = def.Engine.PreviewRows
	}
	if c.Engine.MaxConcurrent <= 0 {
		c.Engine.MaxConcurrent = def.Engine.MaxConcurrent
	}

	if c.Sandbox.Timeout <= 0 {
		c.Sandbox.Timeout = def.Sandbox.Timeout
	}

	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = def.Storage.DatabasePath
	}
	if c.Storage.ArtifactsDir == "" {
		c.Storage.ArtifactsDir = def.Storage.ArtifactsDir
	}

	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = def.Server.UploadDir
	}

	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug|info|warn|error", c.Logging.Level)
	}

	return nil
}
