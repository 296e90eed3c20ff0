package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	DataDir    string `json:"data_dir"`
	LogLevel   string `json:"log_level"`
	MaxWatches int    `json:"max_watches"`
	Backend    struct {
		BaseURL     string `json:"base_url"`
		APIToken    string `json:"api_token"`
		DialTimeout int    `json:"dial_timeout_seconds"`
	} `json:"backend"`
	HTTP struct {
		Addr string `json:"addr"`
	} `json:"http"`
	Retention struct {
		Schedule   string `json:"schedule"`
		MaxAgeDays int    `json:"max_age_days"`
	} `json:"retention"`
	Notify struct {
		DefaultTarget string `json:"default_target"`
		Telegram      struct {
			Token string `json:"token"`
		} `json:"telegram"`
	} `json:"notify"`
	Usage struct {
		Model string `json:"model"`
	} `json:"usage"`
	Simulator struct {
		Addr string `json:"addr"`
	} `json:"simulator"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:    filepath.Join(os.Getenv("HOME"), ".stratwatch"),
		LogLevel:   "info",
		MaxWatches: 4,
	}
	cfg.Backend.BaseURL = "http://localhost:8080"
	cfg.Backend.DialTimeout = 10
	cfg.HTTP.Addr = "127.0.0.1:8787"
	cfg.Retention.Schedule = "0 3 * * *"
	cfg.Retention.MaxAgeDays = 30
	cfg.Notify.DefaultTarget = "log:"
	cfg.Usage.Model = "gpt-4"
	cfg.Simulator.Addr = "127.0.0.1:17380"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if baseURL := os.Getenv("STRATWATCH_BACKEND_URL"); baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}
	if token := os.Getenv("STRATWATCH_API_TOKEN"); token != "" {
		cfg.Backend.APIToken = token
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Notify.Telegram.Token = tgToken
	}

	return cfg, nil
}

// Save writes the config to disk atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
