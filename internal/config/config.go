package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

var (
	ErrNoConfig    = errors.New("config file not found")
	ErrNoAPIKey    = errors.New("api_key not set")
	ErrInvalidJSON = errors.New("invalid config JSON")
)

// Config holds the shared client and server configuration.
type Config struct {
	// APIKey is forwarded opaquely to the upstream gateway on every request.
	APIKey string `json:"api_key"`
	// GatewayURL is the upstream model gateway base URL.
	GatewayURL string `json:"gateway_url"`
	// ProxyURL is the base URL the chat client reaches the proxy at.
	ProxyURL string `json:"proxy_url"`
	// DefaultModel is used when the session has no explicit selection.
	DefaultModel string `json:"default_model"`
	// TitleModel is the cheap/fast model used for chat titles.
	TitleModel string `json:"title_model"`
	// Listen is the proxy server bind address.
	Listen string `json:"listen"`
	// DBPath is the sqlite file backing the chat store.
	DBPath string `json:"db_path"`
	// StaticDir holds the static assets served at /.
	StaticDir string `json:"static_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		GatewayURL:   "https://ai.hackclub.com/proxy/v1",
		ProxyURL:     "http://localhost:8100",
		DefaultModel: "openai/gpt-4o",
		TitleModel:   "qwen/qwen3-next-80b-a3b-instruct",
		Listen:       ":8100",
		DBPath:       "quill.db",
		StaticDir:    "public",
	}
}

// Load reads the config from ~/.config/quill/config.json, falling back to
// defaults when the file does not exist. Environment variables override both.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	cfg, err := LoadFrom(filepath.Join(homeDir, ".config", "quill", "config.json"))
	if errors.Is(err, ErrNoConfig) {
		cfg = Default()
	} else if err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadFrom reads the config from a specific path. Missing fields keep their
// defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoConfig
		}
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, ErrInvalidJSON
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	for env, field := range map[string]*string{
		"QUILL_API_KEY":     &c.APIKey,
		"QUILL_GATEWAY_URL": &c.GatewayURL,
		"QUILL_PROXY_URL":   &c.ProxyURL,
		"QUILL_MODEL":       &c.DefaultModel,
		"QUILL_TITLE_MODEL": &c.TitleModel,
		"QUILL_LISTEN":      &c.Listen,
		"QUILL_DB":          &c.DBPath,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

// RequireAPIKey reports ErrNoAPIKey when no key is configured. Callers check
// this before issuing any network request.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}
