package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"pegbook/internal/config"

	"github.com/rs/zerolog"
)

func TestNewWithWriterLevel(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{name: "Debug", level: "debug", wantDebug: true, wantInfo: true},
		{name: "Warn hides info", level: "warn"},
		{name: "Empty defaults to info", level: "", wantInfo: true},
		{name: "Invalid defaults to info", level: "loud", wantInfo: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(config.LoggingConfig{Level: tt.level}, &buf)

			logger.Debug().Msg("debug-line")
			logger.Info().Msg("info-line")

			out := buf.String()
			if got := strings.Contains(out, "debug-line"); got != tt.wantDebug {
				t.Errorf("Expected debug output %v, got %v", tt.wantDebug, got)
			}
			if got := strings.Contains(out, "info-line"); got != tt.wantInfo {
				t.Errorf("Expected info output %v, got %v", tt.wantInfo, got)
			}
		})
	}
}

func TestNewWithWriterLeavesTimeFormat(t *testing.T) {
	before := zerolog.TimeFieldFormat
	t.Cleanup(func() { zerolog.TimeFieldFormat = before })
	zerolog.TimeFieldFormat = time.RFC3339

	NewWithWriter(config.LoggingConfig{Level: "info"}, &bytes.Buffer{})
	if zerolog.TimeFieldFormat != time.RFC3339 {
		t.Errorf("Expected TimeFieldFormat %q unchanged, got %q", time.RFC3339, zerolog.TimeFieldFormat)
	}
}
