package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 2048
	DefaultHost      = "0.0.0.0"
	DefaultPort      = 18320
	DefaultBufSize   = 100

	// DefaultModelTimeout bounds each candidate model call in seconds. A call
	// that exceeds it is treated like an unavailable model so the fallback
	// chain can continue.
	DefaultModelTimeout = 60
)

type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Provider ProviderConfig `json:"provider"`
	Agent    AgentConfig    `json:"agent"`
	Store    StoreConfig    `json:"store"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ProviderConfig struct {
	APIKey    string `json:"apiKey"`
	BaseURL   string `json:"baseUrl,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

type AgentConfig struct {
	Model          string   `json:"model,omitempty"`          // preferred model, tried first
	FallbackModels []string `json:"fallbackModels,omitempty"` // tried after the built-in defaults
	MaxTokens      int      `json:"maxTokens"`
	SystemPrompt   string   `json:"systemPrompt,omitempty"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Provider: ProviderConfig{},
		Agent: AgentConfig{
			MaxTokens: DefaultMaxTokens,
		},
		Store: StoreConfig{},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".plannerd")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func (c *Config) DBPath() string {
	if strings.TrimSpace(c.Store.DBPath) != "" {
		return c.Store.DBPath
	}
	return filepath.Join(ConfigDir(), "data", "plannerd.db")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("PLANNERD_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("PLANNERD_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("PLANNERD_MODEL"); model != "" {
		cfg.Agent.Model = model
	}
	if models := os.Getenv("PLANNERD_FALLBACK_MODELS"); models != "" {
		cfg.Agent.FallbackModels = splitList(models)
	}
	if dbPath := os.Getenv("PLANNERD_DB_PATH"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	if port := os.Getenv("PLANNERD_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Gateway.Port = parsed
		}
	}

	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = DefaultHost
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Agent.MaxTokens <= 0 {
		cfg.Agent.MaxTokens = DefaultMaxTokens
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
