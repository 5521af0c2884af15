package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
		drop  []string
	}{
		{"debug", []string{"DEBUG", "INFO", "WARN", "ERROR"}, nil},
		{"info", []string{"INFO", "WARN", "ERROR"}, []string{"DEBUG"}},
		{"warn", []string{"WARN", "ERROR"}, []string{"DEBUG", "INFO"}},
		{"error", []string{"ERROR"}, []string{"DEBUG", "INFO", "WARN"}},
		{"bogus", []string{"INFO"}, []string{"DEBUG"}}, // unknown falls back to info
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLogger(&buf, tt.level)
			l.Debug("d %d", 1)
			l.Info("i %d", 2)
			l.Warn("w %d", 3)
			l.Error("e %d", 4)

			out := buf.String()
			for _, tag := range tt.want {
				if !strings.Contains(out, tag+":") {
					t.Errorf("level %s should emit %s, got: %q", tt.level, tag, out)
				}
			}
			for _, tag := range tt.drop {
				if strings.Contains(out, tag+":") {
					t.Errorf("level %s should drop %s, got: %q", tt.level, tag, out)
				}
			}
		})
	}
}

func TestSetLogger_IgnoresNil(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	SetLogger(nil)
	if GetLogger() == nil {
		t.Error("nil must not replace the global logger")
	}

	var buf bytes.Buffer
	replacement := NewLogger(&buf, "debug")
	SetLogger(replacement)
	if GetLogger() != replacement {
		t.Error("SetLogger should install the replacement")
	}
}
