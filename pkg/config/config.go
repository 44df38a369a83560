package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/convoy/pkg/browser"
)

// MaxWorkers caps the parallel worker pool regardless of configuration.
const MaxWorkers = 16

// Config represents the configuration for automation runs
type Config struct {
	// Browser engine settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Coordination and executor settings
	Orchestration OrchestrationConfig `yaml:"orchestration" json:"orchestration"`

	// URL restrictions for sites and navigate actions
	Security SecurityConfig `yaml:"security" json:"security"`

	// Artifacts configuration
	Artifacts ArtifactConfig `yaml:"artifacts" json:"artifacts"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Tracing configuration
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// BrowserConfig selects and tunes the browsing engine
type BrowserConfig struct {
	Engine         browser.Engine    `yaml:"engine" json:"engine"`
	Headless       bool              `yaml:"headless" json:"headless"`
	ViewportWidth  int               `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int               `yaml:"viewport_height" json:"viewport_height"`
	Timeout        time.Duration     `yaml:"timeout" json:"timeout"`
	Pages          map[string]string `yaml:"pages" json:"pages"` // Fixture pages for the static engine
}

// OrchestrationConfig controls how actions are scheduled and executed
type OrchestrationConfig struct {
	// Workers bounds the parallel pool (0 means one worker per action, capped at MaxWorkers)
	Workers int `yaml:"workers" json:"workers"`

	// WaitForTimeout bounds the waitFor pre-condition of an action
	WaitForTimeout time.Duration `yaml:"wait_for_timeout" json:"wait_for_timeout"`

	// DefaultWait is used by wait actions without a value
	DefaultWait time.Duration `yaml:"default_wait" json:"default_wait"`

	// DefaultTimeout is the overall budget of requests that do not set timeoutMs
	DefaultTimeout time.Duration `yaml:"default_timeout" json:"default_timeout"`

	// StopOnFailure is the batch failure policy when a request does not set one
	StopOnFailure bool `yaml:"stop_on_failure" json:"stop_on_failure"`

	// ActionRate limits driver actions per second across all sessions (0 disables)
	ActionRate  float64 `yaml:"action_rate" json:"action_rate"`
	ActionBurst int     `yaml:"action_burst" json:"action_burst"`
}

// SecurityConfig restricts which hosts sessions may visit
type SecurityConfig struct {
	AllowedURLs []string `yaml:"allowed_urls" json:"allowed_urls"`
	DeniedURLs  []string `yaml:"denied_urls" json:"denied_urls"`
}

// ArtifactConfig defines artifact generation configuration
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// Individual format flags
	JSON        bool `yaml:"json" json:"json"`
	Markdown    bool `yaml:"markdown" json:"markdown"`
	Metrics     bool `yaml:"metrics" json:"metrics"`
	Screenshots bool `yaml:"screenshots" json:"screenshots"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// TracingConfig controls OpenTelemetry span export
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	ServiceName string `yaml:"service_name" json:"service_name"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Browser.Engine {
	case browser.EnginePlaywright, browser.EngineChromedp, browser.EngineStatic:
	default:
		return fmt.Errorf("invalid browser engine: %s (must be 'playwright', 'chromedp', or 'static')", c.Browser.Engine)
	}

	if c.Browser.ViewportWidth < 100 || c.Browser.ViewportWidth > 5000 {
		return fmt.Errorf("viewport width must be between 100 and 5000 pixels")
	}
	if c.Browser.ViewportHeight < 100 || c.Browser.ViewportHeight > 5000 {
		return fmt.Errorf("viewport height must be between 100 and 5000 pixels")
	}
	if c.Browser.Timeout < 0 {
		return fmt.Errorf("browser timeout cannot be negative")
	}

	o := c.Orchestration
	if o.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}
	if o.Workers > MaxWorkers {
		return fmt.Errorf("workers cannot exceed %d", MaxWorkers)
	}
	if o.WaitForTimeout <= 0 {
		return fmt.Errorf("wait_for_timeout must be positive")
	}
	if o.DefaultWait < 0 {
		return fmt.Errorf("default_wait cannot be negative")
	}
	if o.DefaultTimeout <= 0 {
		return fmt.Errorf("default_timeout must be positive")
	}
	if o.ActionRate < 0 {
		return fmt.Errorf("action_rate cannot be negative")
	}
	if o.ActionBurst < 0 {
		return fmt.Errorf("action_burst cannot be negative")
	}

	if _, err := NewURLPolicy(c.Security.AllowedURLs, c.Security.DeniedURLs); err != nil {
		return err
	}

	if c.Artifacts.Enabled && c.Artifacts.OutputDir == "" {
		return fmt.Errorf("artifacts output_dir is required when artifacts are enabled")
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

// BrowserOptions converts the browser section into engine options.
func (c *Config) BrowserOptions() browser.Options {
	return browser.Options{
		Engine:   c.Browser.Engine,
		Headless: c.Browser.Headless,
		Viewport: &browser.Viewport{
			Width:  c.Browser.ViewportWidth,
			Height: c.Browser.ViewportHeight,
		},
		Timeout: c.Browser.Timeout,
		Pages:   c.Browser.Pages,
	}
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Engine:         browser.EnginePlaywright,
			Headless:       true,
			ViewportWidth:  browser.DefaultViewportWidth,
			ViewportHeight: browser.DefaultViewportHeight,
			Timeout:        browser.DefaultTimeout,
		},
		Orchestration: OrchestrationConfig{
			WaitForTimeout: 10 * time.Second,
			DefaultWait:    time.Second,
			DefaultTimeout: 5 * time.Minute,
		},
		Artifacts: ArtifactConfig{
			Enabled:     false,
			OutputDir:   ".convoy/artifacts",
			JSON:        true,
			Markdown:    true,
			Metrics:     true,
			Screenshots: true,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
		Tracing: TracingConfig{
			ServiceName: "convoy",
		},
	}
}

// Load reads a YAML configuration file over the defaults and validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
