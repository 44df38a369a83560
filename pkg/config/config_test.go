package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/convoy/pkg/browser"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, browser.EnginePlaywright, cfg.Browser.Engine)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 10*time.Second, cfg.Orchestration.WaitForTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Orchestration.DefaultTimeout)
	assert.False(t, cfg.Artifacts.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"static engine", func(c *Config) { c.Browser.Engine = browser.EngineStatic }, ""},
		{"unknown engine", func(c *Config) { c.Browser.Engine = "lynx" }, "invalid browser engine"},
		{"tiny viewport", func(c *Config) { c.Browser.ViewportWidth = 50 }, "viewport width"},
		{"huge viewport", func(c *Config) { c.Browser.ViewportHeight = 9000 }, "viewport height"},
		{"negative browser timeout", func(c *Config) { c.Browser.Timeout = -time.Second }, "browser timeout"},
		{"negative workers", func(c *Config) { c.Orchestration.Workers = -1 }, "workers cannot be negative"},
		{"too many workers", func(c *Config) { c.Orchestration.Workers = MaxWorkers + 1 }, "cannot exceed"},
		{"max workers", func(c *Config) { c.Orchestration.Workers = MaxWorkers }, ""},
		{"zero wait_for_timeout", func(c *Config) { c.Orchestration.WaitForTimeout = 0 }, "wait_for_timeout"},
		{"negative default_wait", func(c *Config) { c.Orchestration.DefaultWait = -1 }, "default_wait"},
		{"zero default_timeout", func(c *Config) { c.Orchestration.DefaultTimeout = 0 }, "default_timeout"},
		{"negative action_rate", func(c *Config) { c.Orchestration.ActionRate = -2 }, "action_rate"},
		{"negative action_burst", func(c *Config) { c.Orchestration.ActionBurst = -2 }, "action_burst"},
		{"bad url pattern", func(c *Config) { c.Security.DeniedURLs = []string{"[unclosed"} }, "invalid denied url pattern"},
		{"artifacts without dir", func(c *Config) {
			c.Artifacts.Enabled = true
			c.Artifacts.OutputDir = ""
		}, "output_dir"},
		{"bad verbosity", func(c *Config) { c.Logging.Verbosity = "chatty" }, "invalid logging verbosity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateDefaultsVerbosity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Verbosity = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "normal", cfg.Logging.Verbosity)
}

func TestLoad(t *testing.T) {
	t.Run("empty path gives defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "convoy.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
browser:
  engine: chromedp
  headless: false
  viewport_width: 1920
  pages:
    "https://fixture.test/": "<h1>hi</h1>"
orchestration:
  workers: 4
  wait_for_timeout: 3s
  default_timeout: 90s
  stop_on_failure: true
  action_rate: 5
  action_burst: 2
security:
  allowed_urls: ["*.example.com"]
artifacts:
  enabled: true
  output_dir: out
  markdown: false
logging:
  verbosity: debug
tracing:
  enabled: true
`), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, browser.EngineChromedp, cfg.Browser.Engine)
		assert.False(t, cfg.Browser.Headless)
		assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
		assert.Equal(t, browser.DefaultViewportHeight, cfg.Browser.ViewportHeight)
		assert.Equal(t, "<h1>hi</h1>", cfg.Browser.Pages["https://fixture.test/"])
		assert.Equal(t, 4, cfg.Orchestration.Workers)
		assert.Equal(t, 3*time.Second, cfg.Orchestration.WaitForTimeout)
		assert.Equal(t, 90*time.Second, cfg.Orchestration.DefaultTimeout)
		assert.Equal(t, time.Second, cfg.Orchestration.DefaultWait)
		assert.True(t, cfg.Orchestration.StopOnFailure)
		assert.Equal(t, 5.0, cfg.Orchestration.ActionRate)
		assert.Equal(t, 2, cfg.Orchestration.ActionBurst)
		assert.Equal(t, []string{"*.example.com"}, cfg.Security.AllowedURLs)
		assert.True(t, cfg.Artifacts.Enabled)
		assert.Equal(t, "out", cfg.Artifacts.OutputDir)
		assert.False(t, cfg.Artifacts.Markdown)
		assert.True(t, cfg.Artifacts.JSON)
		assert.Equal(t, "debug", cfg.Logging.Verbosity)
		assert.True(t, cfg.Tracing.Enabled)
		assert.Equal(t, "convoy", cfg.Tracing.ServiceName)
	})

	t.Run("invalid file is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "convoy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("orchestration:\n  workers: 99\n"), 0644))

		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "invalid configuration"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "convoy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("browser: [\n"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestConfig_BrowserOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Browser.Engine = browser.EngineStatic
	cfg.Browser.Pages = map[string]string{"a": "b"}

	opts := cfg.BrowserOptions()
	assert.Equal(t, browser.EngineStatic, opts.Engine)
	assert.True(t, opts.Headless)
	require.NotNil(t, opts.Viewport)
	assert.Equal(t, browser.DefaultViewportWidth, opts.Viewport.Width)
	assert.Equal(t, "b", opts.Pages["a"])
}
