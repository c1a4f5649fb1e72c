package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestPersistentFieldsSurviveRepeatedLogs(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelInfo, Output: &buf, Service: "test"}).
		WithField("request_id", "req-1").
		WithField("component", "worker")

	log.Info("first")
	log.Info("second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2", len(lines))
	}
	for i, line := range lines {
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i, err)
		}
		if entry.RequestID != "req-1" {
			t.Errorf("line %d request_id = %q, want %q", i, entry.RequestID, "req-1")
		}
		if entry.Fields["component"] != "worker" {
			t.Errorf("line %d component = %v, want %q", i, entry.Fields["component"], "worker")
		}
	}
}

func TestWithErrorPopulatesErrorField(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelInfo, Output: &buf, Service: "test"})

	log.WithError(errTest).Warn("something failed")

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if entry.Error != "boom" {
		t.Errorf("error field = %q, want %q", entry.Error, "boom")
	}
}

type testError string

func (e testError) Error() string { return string(e) }

var errTest = testError("boom")
