package logger

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewWithWriterKeepsFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(false, &buf, false).Named("nansen")

	log.Warn("Fetch attempt failed", zap.String("token", "BTC"), zap.Int("attempt", 2))
	log.Debug("hidden")

	out := buf.String()
	for _, want := range []string{"[WARN]", "nansen", "Fetch attempt failed", `"token": "BTC"`, `"attempt": 2`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug entry written at info level")
	}
}

func TestNewWithWriterDebug(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(true, &buf, true).Debug("visible")

	if !strings.Contains(buf.String(), ColorCyan+"[DEBUG]"+ColorReset) {
		t.Errorf("expected colored debug level, got %q", buf.String())
	}
}
