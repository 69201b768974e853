package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	Server        struct {
		URL            string `json:"url"`
		Origin         string `json:"origin"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"server"`
	Mission struct {
		MaxIterations int  `json:"max_iterations"`
		Headless      bool `json:"headless"`
	} `json:"mission"`
	Telegram struct {
		Token        string  `json:"token"`
		ChatID       int64   `json:"chat_id"`
		AllowedUsers []int64 `json:"allowed_users"`
	} `json:"telegram"`
	Webhook struct {
		Addr  string `json:"addr"`
		Token string `json:"token"`
	} `json:"webhook"`
}

// DefaultPath is ~/.marketradar/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".marketradar", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".marketradar"),
		LogLevel:      "info",
		MaxConcurrent: 2,
	}
	cfg.Server.URL = "http://localhost:8000"
	cfg.Server.Origin = "http://localhost"
	cfg.Server.TimeoutSeconds = 30
	cfg.Mission.MaxIterations = 50
	cfg.Mission.Headless = true
	cfg.Webhook.Addr = "127.0.0.1:8090"
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if url := os.Getenv("RADAR_SERVER_URL"); url != "" {
		cfg.Server.URL = url
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
	if chat := os.Getenv("TELEGRAM_CHAT_ID"); chat != "" {
		id, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = id
	}
	if token := os.Getenv("RADAR_WEBHOOK_TOKEN"); token != "" {
		cfg.Webhook.Token = token
	}

	return cfg, nil
}

// TasksPath is where scheduled tasks are stored.
func (c *Config) TasksPath() string {
	return filepath.Join(c.DataDir, "tasks.json")
}

// PIDPath is the pid file written by a running server.
func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir, "radar.pid")
}

// LogPath is where a daemonized server writes its output.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "radar.log")
}
