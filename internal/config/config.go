package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "formpulse.yaml"

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Config struct {
	Inference struct {
		Provider    string        `yaml:"provider"`
		Endpoint    string        `yaml:"endpoint"`
		Model       string        `yaml:"model"` // empty: provider default
		Version     string        `yaml:"version"`
		MaxTokens   int           `yaml:"maxTokens"`
		Timeout     time.Duration `yaml:"timeout"`
		MaxRetries  int           `yaml:"maxRetries"`
		BackoffStep time.Duration `yaml:"backoffStep"`
	} `yaml:"inference"`

	Capture struct {
		Command []string      `yaml:"command"`
		Path    string        `yaml:"path"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"capture"`

	Actuator struct {
		// empty means "vibrate" next to the executable
		Path    string        `yaml:"path"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"actuator"`

	Feedback struct {
		Pause time.Duration `yaml:"pause"`
	} `yaml:"feedback"`

	Trigger struct {
		Source   string        `yaml:"source"` // auto | global | terminal
		Modifier string        `yaml:"modifier"`
		Letter   string        `yaml:"letter"`
		Debounce time.Duration `yaml:"debounce"`
	} `yaml:"trigger"`

	Server struct {
		Port           int      `yaml:"port"` // 0 = disabled
		Host           string   `yaml:"host"`
		Token          string   `yaml:"token"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`

	Archive struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"archive"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var c Config
	c.Inference.Provider = ProviderAnthropic
	c.Inference.Endpoint = "https://api.anthropic.com/v1/messages"
	c.Inference.Version = "2023-06-01"
	c.Inference.MaxTokens = 2048
	c.Inference.Timeout = 60 * time.Second
	c.Inference.MaxRetries = 4
	c.Inference.BackoffStep = 10 * time.Second

	c.Capture.Command = []string{"screencapture", "-x"}
	c.Capture.Path = "/tmp/fa_screen.png"
	c.Capture.Timeout = 30 * time.Second

	c.Actuator.Timeout = 10 * time.Second
	c.Feedback.Pause = 1500 * time.Millisecond

	c.Trigger.Source = "auto"
	c.Trigger.Modifier = "cmd"
	c.Trigger.Letter = "b"
	c.Trigger.Debounce = 1500 * time.Millisecond

	c.Server.Host = "127.0.0.1"
	c.Archive.Region = "us-east-1"
	c.Archive.BucketName = "formpulse"
	c.Log.Level = "info"
	return &c
}

// Load baca file config. A missing file yields the defaults; file values override defaults,
// and FORMPULSE_* env vars override both.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("FORMPULSE_PROVIDER"); v != "" {
		c.Inference.Provider = v
	}
	if v := getenv("FORMPULSE_MODEL"); v != "" {
		c.Inference.Model = v
	}
	if v := getenv("FORMPULSE_ACTUATOR"); v != "" {
		c.Actuator.Path = v
	}
	if v := getenv("FORMPULSE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("FORMPULSE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FORMPULSE_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate rejects values the agent cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Inference.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("inference.provider: unknown %q", c.Inference.Provider))
	}
	if c.Inference.Timeout <= 0 {
		errs = append(errs, errors.New("inference.timeout must be positive"))
	}
	if c.Inference.MaxRetries < 0 {
		errs = append(errs, errors.New("inference.maxRetries must not be negative"))
	}
	if c.Inference.BackoffStep < 0 {
		errs = append(errs, errors.New("inference.backoffStep must not be negative"))
	}
	if len(c.Capture.Command) == 0 || strings.TrimSpace(c.Capture.Command[0]) == "" {
		errs = append(errs, errors.New("capture.command is empty"))
	}
	if c.Capture.Path == "" {
		errs = append(errs, errors.New("capture.path is empty"))
	}
	if c.Actuator.Timeout <= 0 {
		errs = append(errs, errors.New("actuator.timeout must be positive"))
	}
	if c.Feedback.Pause < 0 {
		errs = append(errs, errors.New("feedback.pause must not be negative"))
	}
	if utf8.RuneCountInString(c.Trigger.Letter) != 1 {
		errs = append(errs, fmt.Errorf("trigger.letter must be a single character, got %q", c.Trigger.Letter))
	}
	switch c.Trigger.Source {
	case "auto", "global", "terminal":
	default:
		errs = append(errs, fmt.Errorf("trigger.source: unknown %q", c.Trigger.Source))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Archive.Enabled && (c.Archive.Endpoint == "" || c.Archive.BucketName == "") {
		errs = append(errs, errors.New("archive enabled without endpoint or bucketName"))
	}
	return errors.Join(errs...)
}

// ModelName is the configured model, or the provider's default when unset.
func (c *Config) ModelName() string {
	if c.Inference.Model != "" {
		return c.Inference.Model
	}
	if c.Inference.Provider == ProviderOpenAI {
		return "gpt-4o"
	}
	return "claude-sonnet-4-6"
}

// TriggerLetter is the configured letter as a rune.
func (c *Config) TriggerLetter() rune {
	r, _ := utf8.DecodeRuneInString(c.Trigger.Letter)
	return r
}

// Addr is the control API listen address, or "" when disabled.
func (c *Config) Addr() string {
	if c.Server.Port == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
