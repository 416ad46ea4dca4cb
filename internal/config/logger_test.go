package config

import (
	"testing"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		format     string
		wantErr    bool
		enabled    zapcore.Level
		suppressed zapcore.Level
	}{
		{name: "defaults", level: "info", format: "json", enabled: zapcore.InfoLevel, suppressed: zapcore.DebugLevel},
		{name: "debug json", level: "debug", format: "json", enabled: zapcore.DebugLevel, suppressed: zapcore.DebugLevel - 1},
		{name: "warn console", level: "warn", format: "console", enabled: zapcore.WarnLevel, suppressed: zapcore.InfoLevel},
		{name: "empty format is json", level: "error", format: "", enabled: zapcore.ErrorLevel, suppressed: zapcore.WarnLevel},
		{name: "unknown level", level: "banana", format: "json", wantErr: true},
		{name: "unknown format", level: "info", format: "xml", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			v.Set("logging.level", tc.level)
			v.Set("logging.format", tc.format)

			logger, err := NewLogger(v)
			if tc.wantErr {
				if err == nil {
					t.Fatal("NewLogger() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			core := logger.Core()
			if !core.Enabled(tc.enabled) {
				t.Errorf("level %v disabled, want enabled", tc.enabled)
			}
			if core.Enabled(tc.suppressed) {
				t.Errorf("level %v enabled, want suppressed", tc.suppressed)
			}
		})
	}
}

func TestNewLogger_FromDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	if _, err := NewLogger(v); err != nil {
		t.Fatalf("NewLogger() with defaults error = %v", err)
	}
}
