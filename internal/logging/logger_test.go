package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danwrong/yotohero/internal/logging"
)

func TestConsoleLoggerFormatsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "card").Info("card written", logging.String(logging.FieldCardID, "abc"), logging.Int(logging.FieldChapterCount, 3))

	line := buf.String()
	if !strings.Contains(line, "INFO card: card written") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if !strings.Contains(line, "card_id=abc") || !strings.Contains(line, "chapter_count=3") {
		t.Fatalf("expected attrs in line, got %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("info lines should not carry source, got %q", line)
	}
}

func TestJSONLoggerUsesTsKey(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("hello", logging.Error(errors.New("bad")))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json line: %v (%q)", err, buf.String())
	}
	if _, ok := record["ts"]; !ok {
		t.Errorf("expected ts key in %v", record)
	}
	if record["level"] != "debug" {
		t.Errorf("expected lowercase level, got %v", record["level"])
	}
	if _, ok := record["source"]; !ok {
		t.Errorf("debug level should include source: %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "yotohero.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("disk")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "WARN disk") {
		t.Fatalf("unexpected log content %q", content)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := logging.New(logging.Options{Format: "console", Writer: &buf})

	logging.WarnWithContext(logger, "cache write failed", "cache_put_failed", logging.String(logging.FieldImpact, "next request re-synthesizes"))

	line := buf.String()
	for _, want := range []string{"event_type=cache_put_failed", "error_hint=", `impact="next request re-synthesizes"`} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
}

func TestWithContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := logging.New(logging.Options{Format: "console", Writer: &buf})

	ctx := logging.WithRequestID(context.Background(), "req-42")
	logging.WithContext(ctx, logger).Info("handled")

	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Fatalf("expected request id, got %q", buf.String())
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewComponentLogger(nil, "x")
	logger.Error("nothing happens")
	if logger.Enabled(context.Background(), 0) {
		t.Error("nop logger should not be enabled")
	}
}
