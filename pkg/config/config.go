// Package config loads gateway settings from built-in defaults, an optional
// YAML file, and CLAWD_-prefixed environment variables, in that order of
// precedence (env wins).
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration parses "30m"-style strings from both YAML and env values.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", string(b))
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Addr               string   `env:"CLAWD_ADDR" yaml:"addr"`
	LLMURL             string   `env:"CLAWD_LLM_URL" yaml:"llm_url"`
	BotName            string   `env:"CLAWD_BOT_NAME" yaml:"bot_name"`
	SystemPrompt       string   `env:"CLAWD_SYSTEM_PROMPT" yaml:"system_prompt"`
	DefaultMaxTokens   int      `env:"CLAWD_DEFAULT_MAX_TOKENS" yaml:"default_max_tokens"`
	MaxHistory         int      `env:"CLAWD_MAX_HISTORY" yaml:"max_history"`
	RateLimitPerSecond int      `env:"CLAWD_RATE_LIMIT_PER_SECOND" yaml:"rate_limit_per_second"`
	SessionTTL         Duration `env:"CLAWD_SESSION_TTL" yaml:"session_ttl"`
	EvictInterval      Duration `env:"CLAWD_EVICT_INTERVAL" yaml:"evict_interval"`
	LogLevel           string   `env:"CLAWD_LOG_LEVEL" yaml:"log_level"`
}

func Default() *Config {
	return &Config{
		Addr:               ":3000",
		LLMURL:             "http://127.0.0.1:8000",
		BotName:            "ClawDBot",
		DefaultMaxTokens:   512,
		MaxHistory:         10,
		RateLimitPerSecond: 5,
		SessionTTL:         Duration(30 * time.Minute),
		EvictInterval:      Duration(10 * time.Minute),
		LogLevel:           "info",
	}
}

// Load layers the optional YAML file at path and then the environment over
// the defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.LLMURL == "" {
		return errors.New("llm_url must not be empty")
	}
	if c.MaxHistory < 1 {
		return errors.Errorf("max_history must be positive, got %d", c.MaxHistory)
	}
	if c.DefaultMaxTokens < 1 {
		return errors.Errorf("default_max_tokens must be positive, got %d", c.DefaultMaxTokens)
	}
	if c.RateLimitPerSecond < 1 {
		return errors.Errorf("rate_limit_per_second must be positive, got %d", c.RateLimitPerSecond)
	}
	if c.SessionTTL <= 0 || c.EvictInterval <= 0 {
		return errors.New("session_ttl and evict_interval must be positive")
	}
	return nil
}
