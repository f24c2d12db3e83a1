package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facecam.log")

	log := New(Options{FilePath: path})
	log.Named("gate").Debug("request dispatched")
	// Syncing stderr fails on some terminals; only the file core matters here.
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected log file to exist: %v", err)
	}

	line := strings.TrimSpace(strings.Split(string(data), "\n")[0])
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("Log line is not JSON: %v (%s)", err, line)
	}
	if entry["message"] != "request dispatched" {
		t.Errorf("Expected message field, got %v", entry)
	}
	if entry["level"] != "DEBUG" {
		t.Errorf("Expected file core to capture debug level, got %v", entry["level"])
	}
	if entry["logger"] != "gate" {
		t.Errorf("Expected named logger, got %v", entry["logger"])
	}
}

func TestNew_ConsoleOnly(t *testing.T) {
	log := New(Options{})
	if log.Core().Enabled(-1) {
		t.Error("Expected debug to be disabled without Debug option")
	}

	debugLog := New(Options{Debug: true})
	if !debugLog.Core().Enabled(-1) {
		t.Error("Expected debug to be enabled with Debug option")
	}
}
