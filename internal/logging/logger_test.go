package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetLevel(t *testing.T) {
	defer Logger.SetLevel(logrus.InfoLevel)

	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"bogus", logrus.InfoLevel},
		{"", logrus.InfoLevel},
	}
	for _, tt := range tests {
		SetLevel(tt.in)
		if got := Logger.GetLevel(); got != tt.want {
			t.Errorf("SetLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	orig := Logger.Out
	Logger.SetOutput(&buf)
	defer Logger.SetOutput(orig)

	Component("cache").Info("hello")

	out := buf.String()
	if !strings.Contains(out, "component=cache") {
		t.Errorf("expected component field in %q", out)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("expected message in %q", out)
	}
}

func TestInitWritesToFile(t *testing.T) {
	orig := Logger.Out
	defer Logger.SetOutput(orig)
	defer Logger.SetLevel(logrus.InfoLevel)

	path := filepath.Join(t.TempDir(), "logs", "face.log")
	if err := Init("info", path); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	Infof("written %d", 1)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "written 1") {
		t.Errorf("log file missing message: %q", string(data))
	}
}
