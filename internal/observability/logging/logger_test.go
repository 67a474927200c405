package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestJSONLoggerAddsServiceAndRedacts(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, "api", "debug")
	logger.Info("payment_applied", "user_id", "u-1", "token", "abc")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if line["service"] != "api" || line["msg"] != "payment_applied" || line["user_id"] != "u-1" {
		t.Fatalf("unexpected log line %v", line)
	}
	if line["token"] != "[redacted]" {
		t.Fatalf("token must be redacted, got %v", line["token"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, "worker", "warn")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level: %s", buf.String())
	}
	logger.Warn("shown")
	if buf.Len() == 0 {
		t.Fatalf("warn must be written")
	}
}
