package roulette

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file configuration for the whole core. Secrets never live
// in the file: each provider names the environment variable its API key is
// read from.
type Config struct {
	// DataDir is the root for the SQLite database. Default: "data".
	DataDir string `yaml:"data_dir"`

	Queue struct {
		// Backend selects "sqlite" (default) or "redis".
		Backend string `yaml:"backend"`
		Redis   struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"queue"`

	Gemini struct {
		BaseURL   string   `yaml:"base_url"`
		APIKeyEnv string   `yaml:"api_key_env"`
		Models    []string `yaml:"models"`
	} `yaml:"gemini"`

	Fallbacks []FallbackConfig `yaml:"fallbacks"`

	Review struct {
		Enabled bool `yaml:"enabled"`
		// Provider names which fallback performs review; empty picks
		// the last provider in the chain.
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		// Policy is "fail-open" (default) or "fail-closed".
		Policy    string `yaml:"policy"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"review"`

	Dedupe struct {
		Capacity int           `yaml:"capacity"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"dedupe"`

	Gen struct {
		BurstSize   int           `yaml:"burst_size"`
		CallTimeout time.Duration `yaml:"call_timeout"`
		MaxTokens   int           `yaml:"max_tokens"`
	} `yaml:"gen"`

	TopUp struct {
		Enabled     bool          `yaml:"enabled"`
		MinFill     int           `yaml:"min_fill"`
		FillTo      int           `yaml:"fill_to"`
		LowWater    int           `yaml:"low_water"`
		Concurrency int           `yaml:"concurrency"`
		Interval    time.Duration `yaml:"interval"`
	} `yaml:"topup"`
}

// FallbackConfig describes one OpenAI-compatible fallback provider.
type FallbackConfig struct {
	Name      string   `yaml:"name"`
	BaseURL   string   `yaml:"base_url"`
	APIKeyEnv string   `yaml:"api_key_env"`
	Models    []string `yaml:"models"`
}

// Defaults fills zero values with the shipping defaults.
func (c *Config) Defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = "sqlite"
	}
	if c.Gemini.APIKeyEnv == "" {
		c.Gemini.APIKeyEnv = "GEMINI_API_KEY"
	}
	if c.Review.Policy == "" {
		c.Review.Policy = "fail-open"
	}
}

// LoadConfig reads a YAML configuration file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	c.Defaults()
	return &c, nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	var c Config
	c.Defaults()
	c.TopUp.Enabled = true
	c.Review.Enabled = true
	return &c
}
