// Package artifact writes the files a run leaves behind: the JSON report, a
// markdown summary, a Prometheus textfile and captured screenshots.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/convoy/pkg/automation"
	"github.com/entrhq/convoy/pkg/config"
	"github.com/entrhq/convoy/pkg/telemetry"
)

// File names inside the output directory
const (
	ReportFile     = "report.json"
	SummaryFile    = "summary.md"
	MetricsFile    = "metrics.prom"
	ScreenshotsDir = "screenshots"
)

// Writer handles writing run artifacts
type Writer struct {
	outputDir string
	formats   config.ArtifactConfig
}

// NewWriter creates a writer for the formats enabled in cfg.
func NewWriter(cfg config.ArtifactConfig) *Writer {
	return &Writer{
		outputDir: cfg.OutputDir,
		formats:   cfg,
	}
}

// OutputDir returns the directory artifacts are written to.
func (w *Writer) OutputDir() string {
	return w.outputDir
}

// CaptureStore returns a store that writes screenshots under the output
// directory, or nil when screenshot artifacts are disabled.
func (w *Writer) CaptureStore() automation.CaptureStore {
	if !w.formats.Screenshots {
		return nil
	}
	return &automation.FileCaptureStore{Dir: filepath.Join(w.outputDir, ScreenshotsDir)}
}

// WriteAll writes every enabled artifact format. metrics may be nil.
func (w *Writer) WriteAll(report *automation.Report, metrics *telemetry.Metrics) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if w.formats.JSON {
		if err := w.WriteReportJSON(report); err != nil {
			return err
		}
	}

	if w.formats.Markdown {
		if err := w.WriteSummaryMarkdown(report); err != nil {
			return err
		}
	}

	if w.formats.Metrics && metrics != nil {
		if err := metrics.WriteTextfile(filepath.Join(w.outputDir, MetricsFile)); err != nil {
			return err
		}
	}

	return nil
}

// WriteReportJSON writes the full report as indented JSON
func (w *Writer) WriteReportJSON(report *automation.Report) error {
	path := filepath.Join(w.outputDir, ReportFile)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if writeErr := os.WriteFile(path, data, 0600); writeErr != nil {
		return fmt.Errorf("failed to write report JSON: %w", writeErr)
	}

	return nil
}

// WriteSummaryMarkdown writes a human-readable markdown summary
func (w *Writer) WriteSummaryMarkdown(report *automation.Report) error {
	path := filepath.Join(w.outputDir, SummaryFile)

	if writeErr := os.WriteFile(path, []byte(RenderMarkdown(report)), 0600); writeErr != nil {
		return fmt.Errorf("failed to write summary markdown: %w", writeErr)
	}

	return nil
}

// RenderMarkdown formats a report as markdown.
func RenderMarkdown(report *automation.Report) string {
	var md strings.Builder

	md.WriteString("# Convoy Run Summary\n\n")
	md.WriteString(fmt.Sprintf("**Run:** `%s`\n\n", report.RunID))
	md.WriteString(fmt.Sprintf("**Coordination:** %s\n\n", report.Coordination))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", report.StartedAt.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", report.Duration().Round(time.Millisecond)))

	s := report.Summary
	md.WriteString("## Result\n\n")
	switch {
	case s.HasMarker(automation.KindBatchTimeout):
		md.WriteString("⏱️ **Timed out** before every action completed\n\n")
	case s.HasMarker(automation.KindCancelled):
		md.WriteString("⏹️ **Cancelled** before every action completed\n\n")
	case s.Failed > 0:
		md.WriteString("❌ **Completed with failures**\n\n")
	default:
		md.WriteString("✅ **Success**\n\n")
	}

	md.WriteString(fmt.Sprintf("- **Succeeded:** %d\n", s.Succeeded))
	md.WriteString(fmt.Sprintf("- **Failed:** %d\n", s.Failed))
	md.WriteString(fmt.Sprintf("- **Skipped:** %d\n\n", s.Skipped))

	if len(report.Results) > 0 {
		md.WriteString("## Actions\n\n")
		md.WriteString("| # | Site | Kind | Target | Outcome | Time |\n")
		md.WriteString("|---|------|------|--------|---------|------|\n")
		for _, r := range report.Results {
			outcome := "✅"
			if !r.Success {
				outcome = "❌ " + string(r.Error.Kind)
			}
			md.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %dms |\n",
				r.Index, r.Site, r.Kind, cell(target(r)), outcome, r.DurationMs))
		}
		md.WriteString("\n")
	}

	if failures := report.Failures(); len(failures) > 0 {
		md.WriteString("## Failures\n\n")
		for _, r := range failures {
			md.WriteString(fmt.Sprintf("- **#%d** `%s`: %s\n", r.Index, r.Error.Kind, r.Error.Message))
		}
		md.WriteString("\n")
	}

	return md.String()
}

func target(r automation.ActionResult) string {
	if r.Selector != "" {
		return "`" + r.Selector + "`"
	}
	if r.Kind == automation.ActionNavigate {
		return r.Value
	}
	return ""
}

// cell escapes text for a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
