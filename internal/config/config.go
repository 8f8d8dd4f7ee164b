package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Telegram struct {
		APIID       int    `yaml:"api_id"`
		APIHash     string `yaml:"api_hash"`
		Phone       string `yaml:"phone"`
		SessionFile string `yaml:"session_file"`
	} `yaml:"telegram"`
	Workdir  string `yaml:"workdir"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"openai"`
	API struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"api"`
}

// LoadConfig reads configuration from the specified YAML file, then fills
// gaps from the environment and defaults.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()
	return config, nil
}

func (c *Config) applyEnv() {
	if c.Telegram.APIID == 0 {
		if v, err := strconv.Atoi(os.Getenv("TG_API_ID")); err == nil {
			c.Telegram.APIID = v
		}
	}
	if c.Telegram.APIHash == "" {
		c.Telegram.APIHash = os.Getenv("TG_API_HASH")
	}
	if c.Telegram.Phone == "" {
		c.Telegram.Phone = os.Getenv("TG_PHONE")
	}
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
}

func (c *Config) applyDefaults() {
	if c.Workdir == "" {
		homeDir, _ := os.UserHomeDir()
		c.Workdir = filepath.Join(homeDir, ".tg-signer")
	}
	if c.Telegram.SessionFile == "" {
		c.Telegram.SessionFile = filepath.Join(c.Workdir, "session.json")
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.Workdir, "tg-signer.db")
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8686"
	}
}

// Validate checks that the settings needed to talk to Telegram are present.
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 || c.Telegram.APIHash == "" {
		return fmt.Errorf("telegram api_id/api_hash: required")
	}
	if c.Telegram.Phone == "" {
		return fmt.Errorf("telegram phone: required")
	}
	return nil
}
