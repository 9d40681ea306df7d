package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewHonorsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "stage", "provide_dataset")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record leaked at warn level: %s", out)
	}
	if !strings.Contains(out, `"stage":"provide_dataset"`) {
		t.Fatalf("expected json attribute, got %s", out)
	}
}

func TestNewRejectsUnknownValues(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud", "logfmt"); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Fatalf("expected format error")
	}
}
