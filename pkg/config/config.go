// Package config loads the clippypour YAML configuration file and applies
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/clippypour/pkg/fill"
)

// Driver names accepted in browser.driver.
const (
	DriverPlaywright = "playwright"
	DriverRod        = "rod"
	DriverStatic     = "static"
)

// Config is the full configuration of a clippypour process.
type Config struct {
	Browser BrowserConfig `yaml:"browser" json:"browser"`
	LLM     LLMConfig     `yaml:"llm" json:"llm"`
	Fill    FillConfig    `yaml:"fill" json:"fill"`
	Mapping MappingConfig `yaml:"mapping" json:"mapping"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// BrowserConfig selects and tunes the page driver.
type BrowserConfig struct {
	// Driver is playwright, rod, or static.
	Driver   string        `yaml:"driver" json:"driver"`
	Headless bool          `yaml:"headless" json:"headless"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`

	// RemoteURL points the rod driver at an existing Chrome.
	RemoteURL string `yaml:"remote_url" json:"remote_url"`

	MaxPages    int  `yaml:"max_pages" json:"max_pages"`
	SkipInstall bool `yaml:"skip_install" json:"skip_install"` // playwright only
}

// LLMConfig configures the semantic matcher's model.
type LLMConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Model   string `yaml:"model" json:"model"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	APIKey  string `yaml:"api_key" json:"-"`

	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// SegmentTokens caps each data segment in the prompt.
	SegmentTokens int `yaml:"segment_tokens" json:"segment_tokens"`

	// DescribeForms lets the model refine each analyzed form's purpose,
	// category and field data types.
	DescribeForms bool `yaml:"describe_forms" json:"describe_forms"`
}

// FillConfig holds session defaults. Requests may override Mode and Verify.
type FillConfig struct {
	Mode         string        `yaml:"mode" json:"mode"`
	Verify       bool          `yaml:"verify" json:"verify"`
	RetryLimit   int           `yaml:"retry_limit" json:"retry_limit"`
	RetryDelay   time.Duration `yaml:"retry_delay" json:"retry_delay"`
	Pacing       time.Duration `yaml:"pacing" json:"pacing"`
	KeepFinished int           `yaml:"keep_finished" json:"keep_finished"`

	// Confirm prompts the operator before writing a non-positional mapping.
	// Only the CLI honours it.
	Confirm bool `yaml:"confirm" json:"confirm"`

	// Submit submits the form after a session ends in Done. Requests may
	// override it.
	Submit bool `yaml:"submit" json:"submit"`
}

// MappingConfig tunes segment alignment.
type MappingConfig struct {
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// Heuristic enables the offline shape matcher ahead of the LLM.
	Heuristic bool `yaml:"heuristic" json:"heuristic"`
}

// StorageConfig locates persistent state.
type StorageConfig struct {
	// Dir holds templates.json, profiles.json, history.db and artifacts/.
	// Empty means ~/.clippypour.
	Dir string `yaml:"dir" json:"dir"`

	UseTemplates  bool `yaml:"use_templates" json:"use_templates"`
	SaveTemplates bool `yaml:"save_templates" json:"save_templates"`
	Profiles      bool `yaml:"profiles" json:"profiles"`
	History       bool `yaml:"history" json:"history"`
	Artifacts     bool `yaml:"artifacts" json:"artifacts"`
}

// ServerConfig configures `clippypour serve`.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`

	// FillTimeout bounds one asynchronous fill session.
	FillTimeout time.Duration `yaml:"fill_timeout" json:"fill_timeout"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// DefaultConfig returns a configuration suitable for most use cases.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Driver:   DriverPlaywright,
			Headless: true,
			Timeout:  30 * time.Second,
			MaxPages: 5,
		},
		LLM: LLMConfig{
			Enabled:       true,
			Model:         "gpt-4o-mini",
			Timeout:       60 * time.Second,
			SegmentTokens: 64,
			DescribeForms: true,
		},
		Fill: FillConfig{
			Mode:         string(fill.ModeLenient),
			Verify:       true,
			RetryLimit:   fill.DefaultRetryLimit,
			RetryDelay:   fill.DefaultRetryDelay,
			Pacing:       fill.DefaultPacing,
			KeepFinished: 100,
		},
		Mapping: MappingConfig{
			Threshold: 0.5,
			Heuristic: true,
		},
		Storage: StorageConfig{
			UseTemplates:  true,
			SaveTemplates: true,
			Profiles:      true,
			History:       true,
			Artifacts:     false,
		},
		Server: ServerConfig{
			Addr:        "127.0.0.1:8765",
			FillTimeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

// Load reads the YAML file at path over DefaultConfig and applies the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides LLM credentials from OPENAI_API_KEY and
// OPENAI_BASE_URL when they are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Browser.Driver {
	case DriverPlaywright, DriverRod, DriverStatic:
	default:
		return fmt.Errorf("invalid browser driver: %s (must be 'playwright', 'rod', or 'static')", c.Browser.Driver)
	}
	if c.Browser.Timeout < 0 {
		return fmt.Errorf("browser timeout cannot be negative")
	}
	if c.Browser.MaxPages < 0 {
		return fmt.Errorf("max_pages cannot be negative")
	}

	if c.LLM.SegmentTokens < 0 {
		return fmt.Errorf("segment_tokens cannot be negative")
	}

	if _, err := fill.ParseMode(c.Fill.Mode); err != nil {
		return err
	}
	if c.Fill.RetryLimit < 0 {
		return fmt.Errorf("retry_limit cannot be negative")
	}
	if c.Fill.RetryDelay < 0 || c.Fill.Pacing < 0 {
		return fmt.Errorf("retry_delay and pacing cannot be negative")
	}

	if c.Mapping.Threshold <= 0 || c.Mapping.Threshold > 1 {
		return fmt.Errorf("mapping threshold must be in (0, 1], got %v", c.Mapping.Threshold)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}
	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}
	return nil
}

// StorageDir returns Storage.Dir, or ~/.clippypour when unset.
func (c *Config) StorageDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".clippypour"), nil
}

// TemplatesPath returns the template store file.
func (c *Config) TemplatesPath() (string, error) {
	return c.storagePath("templates.json")
}

// ProfilesPath returns the profile store file.
func (c *Config) ProfilesPath() (string, error) {
	return c.storagePath("profiles.json")
}

// HistoryPath returns the history database file.
func (c *Config) HistoryPath() (string, error) {
	return c.storagePath("history.db")
}

// ArtifactsDir returns the directory session artifacts are written to.
func (c *Config) ArtifactsDir() (string, error) {
	return c.storagePath("artifacts")
}

func (c *Config) storagePath(name string) (string, error) {
	dir, err := c.StorageDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
