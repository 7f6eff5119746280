package infra

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "api")
	logger.Debug().Msg("hidden")
	logger.Info().Str("job_id", "j1").Msg("visible")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["component"] != "api" || entry["job_id"] != "j1" || entry["message"] != "visible" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestDiscardLogger(t *testing.T) {
	logger := DiscardLogger(nil)
	logger.Info().Msg("nowhere")

	var buf bytes.Buffer
	real := newLogger(&buf, "production", "")
	got := DiscardLogger(&real)
	got.Info().Msg("somewhere")
	if buf.Len() == 0 {
		t.Fatalf("expected the provided logger to be used")
	}
}
