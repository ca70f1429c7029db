package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	path := filepath.Join(t.TempDir(), "connector.log")
	if err := log.Configure("debug", "json", path, 7); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
}

func TestWarnCountsByComponent(t *testing.T) {
	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.WithComponent("counter_test").WithField("k", 1).Warn("careful")
	log.WithComponent("counter_test").Error("broken")

	var line map[string]interface{}
	first := bytes.SplitN(buf.Bytes(), []byte("\n"), 2)[0]
	if err := json.Unmarshal(first, &line); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if line["message"] != "careful" || line["component"] != "counter_test" {
		t.Fatalf("log line = %v", line)
	}

	for _, c := range Counts() {
		if c.Component != "counter_test" {
			continue
		}
		if c.Warns != 1 || c.Errors != 1 {
			t.Fatalf("Counts() = %+v, want 1 warn 1 error", c)
		}
		return
	}
	t.Fatalf("Counts() missing counter_test")
}
