package logger

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/wonny/autoinvest/pkg/config"
)

func TestNew(t *testing.T) {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "debug",
		LogFormat: "json",
	}

	log := New(cfg)
	if log == nil {
		t.Fatal("Expected logger to be created")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tc := range cases {
		if got := parseLogLevel(tc.input); got != tc.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestWithFieldsChaining(t *testing.T) {
	log := NewNop()

	derived := log.WithField("ticker", "AAPL_US_EQ").
		WithFields(map[string]interface{}{"amount": "50.00"}).
		WithError(nil)

	if derived == nil {
		t.Fatal("Expected derived logger")
	}
	if derived == log {
		t.Error("Expected WithField to return a new logger")
	}

	// Must not panic on a nop logger.
	derived.Debug("debug")
	derived.Infof("info %d", 1)
	derived.Warn("warn")
	derived.Error("error")
}
