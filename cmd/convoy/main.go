// Package main provides the convoy command, which runs a multi-site browser
// automation request and prints the aggregated report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entrhq/convoy/pkg/artifact"
	"github.com/entrhq/convoy/pkg/automation"
	"github.com/entrhq/convoy/pkg/browser"
	"github.com/entrhq/convoy/pkg/config"
	"github.com/entrhq/convoy/pkg/logging"
	"github.com/entrhq/convoy/pkg/telemetry"
)

const version = "0.1.0"

// Exit codes
const (
	exitOK       = 0
	exitError    = 1
	exitFailures = 2
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	RequestFile  string
	ConfigFile   string
	Engine       string
	Headless     bool
	Timeout      time.Duration
	OutputFile   string
	ArtifactsDir string
	Verbosity    string
	Trace        bool
	Strict       bool
	ShowVersion  bool

	// set records which flags were given explicitly
	set map[string]bool
}

func main() {
	cli := parseFlags(os.Args[1:])

	if cli.ShowVersion {
		fmt.Printf("convoy v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, closing sessions...")
		cancel()
	}()

	code, err := run(ctx, cli, os.Stdin, os.Stdout)
	cancel()
	if err != nil {
		log.Printf("convoy: %v", err)
	}
	os.Exit(code)
}

// parseFlags parses command line flags
func parseFlags(args []string) *CLIConfig {
	cli := &CLIConfig{set: make(map[string]bool)}
	fs := flag.NewFlagSet("convoy", flag.ExitOnError)

	fs.StringVar(&cli.RequestFile, "request", "", "Request file (JSON or YAML), or - for stdin")
	fs.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	fs.StringVar(&cli.Engine, "engine", "", "Browser engine: playwright, chromedp or static")
	fs.BoolVar(&cli.Headless, "headless", true, "Run the browser without a window")
	fs.DurationVar(&cli.Timeout, "timeout", 0, "Default request budget when the request sets none")
	fs.StringVar(&cli.OutputFile, "output", "", "Write the report to this file instead of stdout")
	fs.StringVar(&cli.ArtifactsDir, "artifacts", "", "Write report, summary, metrics and screenshots to this directory")
	fs.StringVar(&cli.Verbosity, "verbosity", "", "Log verbosity: quiet, normal, verbose or debug")
	fs.BoolVar(&cli.Trace, "trace", false, "Export OpenTelemetry spans to stderr")
	fs.BoolVar(&cli.Strict, "strict", false, "Exit with status 2 when any action fails")
	fs.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "convoy - Multi-site browser automation\n\n")
		fmt.Fprintf(os.Stderr, "Usage: convoy -request <file> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Run a request with the default Playwright engine\n")
		fmt.Fprintf(os.Stderr, "  convoy -request compare-prices.yaml\n\n")
		fmt.Fprintf(os.Stderr, "  # Use Chrome DevTools and keep artifacts\n")
		fmt.Fprintf(os.Stderr, "  convoy -request req.json -engine chromedp -artifacts ./out\n\n")
		fmt.Fprintf(os.Stderr, "  # Fail CI when any action fails\n")
		fmt.Fprintf(os.Stderr, "  convoy -request smoke.yaml -engine static -strict\n\n")
	}

	_ = fs.Parse(args)
	fs.Visit(func(f *flag.Flag) { cli.set[f.Name] = true })
	return cli
}

// run executes one request and returns the process exit code
//
//nolint:gocyclo
func run(ctx context.Context, cli *CLIConfig, stdin io.Reader, stdout io.Writer) (int, error) {
	if cli.RequestFile == "" {
		return exitError, fmt.Errorf("-request is required")
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return exitError, err
	}

	logger, logErr := logging.NewLogger("convoy")
	defer logger.Close()
	if logErr != nil {
		log.Printf("warning: %v", logErr)
	}
	logger.SetLevel(logging.ParseVerbosity(cfg.Logging.Verbosity))

	req, err := readRequest(cli.RequestFile, stdin)
	if err != nil {
		return exitError, err
	}

	if cfg.Tracing.Enabled {
		tp, tpErr := telemetry.NewTracerProvider(cfg.Tracing.ServiceName, version, os.Stderr)
		if tpErr != nil {
			return exitError, tpErr
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warnf("failed to flush traces: %v", err)
			}
		}()
	}

	provider, err := browser.NewProvider(cfg.BrowserOptions())
	if err != nil {
		return exitError, fmt.Errorf("failed to start %s engine: %w", cfg.Browser.Engine, err)
	}
	defer func() {
		if err := provider.Shutdown(); err != nil {
			logger.Warnf("failed to shut down browser: %v", err)
		}
	}()

	metrics := telemetry.NewMetrics()
	opts := []automation.Option{
		automation.WithLogger(logger),
		automation.WithMetrics(metrics),
	}

	var writer *artifact.Writer
	if cfg.Artifacts.Enabled {
		writer = artifact.NewWriter(cfg.Artifacts)
		if store := writer.CaptureStore(); store != nil {
			opts = append(opts, automation.WithCaptureStore(store))
		}
	}

	orch := automation.New(provider, cfg, opts...)
	report, err := orch.Run(ctx, req)
	if err != nil {
		return exitError, err
	}

	if writer != nil {
		if err := writer.WriteAll(report, metrics); err != nil {
			logger.Errorf("failed to write artifacts: %v", err)
			log.Printf("warning: failed to write artifacts: %v", err)
		} else {
			log.Printf("Artifacts written to %s", writer.OutputDir())
		}
	}

	if err := writeReport(report, cli.OutputFile, stdout); err != nil {
		return exitError, err
	}

	s := report.Summary
	log.Printf("%d succeeded, %d failed, %d skipped in %s",
		s.Succeeded, s.Failed, s.Skipped, report.Duration().Round(time.Millisecond))

	if cli.Strict && s.Failed > 0 {
		return exitFailures, nil
	}
	return exitOK, nil
}

// loadConfig loads the config file and applies flag overrides
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return nil, err
	}

	if cli.Engine != "" {
		cfg.Browser.Engine = browser.Engine(cli.Engine)
	}
	if cli.set["headless"] {
		cfg.Browser.Headless = cli.Headless
	}
	if cli.Timeout > 0 {
		cfg.Orchestration.DefaultTimeout = cli.Timeout
	}
	if cli.ArtifactsDir != "" {
		cfg.Artifacts.Enabled = true
		cfg.Artifacts.OutputDir = cli.ArtifactsDir
	}
	if cli.Verbosity != "" {
		cfg.Logging.Verbosity = cli.Verbosity
	}
	if cli.Trace {
		cfg.Tracing.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// readRequest loads a request from a file, or from stdin when path is "-"
func readRequest(path string, stdin io.Reader) (*automation.Request, error) {
	if path != "-" {
		return automation.LoadRequest(path)
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read request from stdin: %w", err)
	}
	return automation.ParseRequest(data, json.Valid(data))
}

func writeReport(report *automation.Report, path string, stdout io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
