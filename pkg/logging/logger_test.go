package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// setupTestDir points the log directory at a temp dir and resets global state
func setupTestDir(t *testing.T) string {
	t.Helper()

	tempDir := t.TempDir()
	t.Setenv("CONVOY_LOG_DIR", tempDir)

	origLogDir := logDir
	origInitErr := initErr
	origRunID := runID

	logDir = ""
	initErr = nil
	initOnce = sync.Once{}
	runID = ""
	runIDOnce = sync.Once{}

	t.Cleanup(func() {
		logDir = origLogDir
		initErr = origInitErr
		initOnce = sync.Once{}
		runID = origRunID
		runIDOnce = sync.Once{}
	})
	return tempDir
}

func TestNewLogger(t *testing.T) {
	dir := setupTestDir(t)

	logger, err := NewLogger("test-component")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.component != "test-component" {
		t.Errorf("Expected component 'test-component', got %q", logger.component)
	}
	if logger.RunID() == "" {
		t.Error("Expected non-empty run ID")
	}

	expected := filepath.Join(dir, logger.RunID()+"-convoy.log")
	if logger.LogPath() != expected {
		t.Errorf("Expected log path %q, got %q", expected, logger.LogPath())
	}
	if _, err := os.Stat(logger.LogPath()); os.IsNotExist(err) {
		t.Errorf("Log file does not exist at %s", logger.LogPath())
	}

	gotDir, err := GetLogDirectory()
	if err != nil || gotDir != dir {
		t.Errorf("GetLogDirectory() = %q, %v; want %q", gotDir, err, dir)
	}
}

func TestLoggerFormatting(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	logger.SetLevel(LevelDebug)

	logger.Debugf("Debug message %d", 1)
	logger.Infof("Info message")
	logger.Warnf("Warning message")
	logger.Errorf("Error message")
	logger.Close()

	content, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	for _, pattern := range []string{
		"[test] [DEBUG] Debug message 1",
		"[test] [INFO] Info message",
		"[test] [WARN] Warning message",
		"[test] [ERROR] Error message",
	} {
		if !strings.Contains(string(content), pattern) {
			t.Errorf("Log content missing expected pattern: %q\nContent:\n%s", pattern, content)
		}
	}
}

func TestMultipleComponentsShareFile(t *testing.T) {
	setupTestDir(t)

	logger1, err := NewLogger("component1")
	if err != nil {
		t.Fatalf("Failed to create logger1: %v", err)
	}
	defer logger1.Close()

	logger2, err := NewLogger("component2")
	if err != nil {
		t.Fatalf("Failed to create logger2: %v", err)
	}
	defer logger2.Close()

	if logger1.RunID() != logger2.RunID() {
		t.Errorf("Expected same run ID, got %q and %q", logger1.RunID(), logger2.RunID())
	}
	if logger1.LogPath() != logger2.LogPath() {
		t.Errorf("Expected same log path, got %q and %q", logger1.LogPath(), logger2.LogPath())
	}
	if GetRunID() != logger1.RunID() {
		t.Errorf("GetRunID() = %q, want %q", GetRunID(), logger1.RunID())
	}

	logger1.Infof("Message from component1")
	logger2.Infof("Message from component2")

	content, err := os.ReadFile(logger1.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	for _, want := range []string{"[component1] [INFO] Message from component1", "[component2] [INFO] Message from component2"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("Log content missing %q", want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		verbosity string
		level     Level
		want      []string
		notWant   []string
	}{
		{"quiet", LevelWarn, []string{"WARN", "ERROR"}, []string{"DEBUG", "INFO"}},
		{"normal", LevelInfo, []string{"INFO", "WARN"}, []string{"DEBUG"}},
		{"verbose", LevelDebug, []string{"DEBUG", "INFO"}, nil},
		{"debug", LevelDebug, []string{"DEBUG"}, nil},
		{"", LevelInfo, []string{"INFO"}, []string{"DEBUG"}},
	}

	for _, tt := range tests {
		t.Run(tt.verbosity, func(t *testing.T) {
			level := ParseVerbosity(tt.verbosity)
			if level != tt.level {
				t.Fatalf("ParseVerbosity(%q) = %v, want %v", tt.verbosity, level, tt.level)
			}

			var buf bytes.Buffer
			logger := NewLoggerWithWriter("filter", &buf, level)
			logger.Debugf("d")
			logger.Infof("i")
			logger.Warnf("w")
			logger.Errorf("e")

			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, "["+w+"]") {
					t.Errorf("expected %s entries in:\n%s", w, out)
				}
			}
			for _, n := range tt.notWant {
				if strings.Contains(out, "["+n+"]") {
					t.Errorf("unexpected %s entries in:\n%s", n, out)
				}
			}
		})
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLoggerWithWriter("convoy", &buf, LevelInfo)
	child := parent.With("registry")

	child.Infof("opened")
	child.Debugf("hidden")

	if !strings.Contains(buf.String(), "[convoy/registry] [INFO] opened") {
		t.Errorf("unexpected output: %s", buf.String())
	}
	if strings.Contains(buf.String(), "hidden") {
		t.Error("child should inherit the parent level")
	}
	if child.RunID() != parent.RunID() {
		t.Error("child should share the run ID")
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Errorf("nothing %s", "happens")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestConcurrentLogging(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("concurrent")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				logger.Infof("goroutine %d message %d", id, j)
			}
		}(i)
	}
	wg.Wait()
	logger.Close()

	content, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if lines := strings.Count(string(content), "\n"); lines != 100 {
		t.Errorf("Expected 100 log lines, got %d", lines)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("close")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("first Close() = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
