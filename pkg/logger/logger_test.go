package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected string
	}{
		{"DEBUG level", DEBUG, "DEBUG"},
		{"INFO level", INFO, "INFO"},
		{"WARN level", WARN, "WARN"},
		{"ERROR level", ERROR, "ERROR"},
		{"Unknown level", LogLevel(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input     string
		expected  LogLevel
		wantError bool
	}{
		{"debug", DEBUG, false},
		{"TRACE", DEBUG, false},
		{"INFO", INFO, false},
		{"warning", WARN, false},
		{"ERROR", ERROR, false},
		{"loud", INFO, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLogOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithConfig(Config{Level: INFO, Output: &buf, Mode: "serve"})

	log.WithField("component", "rdpdr").Info("job closed", "jobId", 7, "path", "/spool/7.pdf")

	line := buf.String()
	assert.Contains(t, line, "[INFO]")
	assert.Contains(t, line, "[serve]")
	assert.Contains(t, line, "job closed")
	assert.Contains(t, line, "| component=rdpdr jobId=7 path=/spool/7.pdf")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithConfig(Config{Level: WARN, Output: &buf})

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	log.Error("shown too")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, 2, strings.Count(out, "shown"))
}

func TestWithFields(t *testing.T) {
	base := NewWithConfig(Config{Level: DEBUG, Output: &bytes.Buffer{}})

	derived := base.WithFields("printer", "Ulteo OVD Printer", "id", 1)
	assert.Len(t, derived.fields, 2)
	assert.Empty(t, base.fields, "parent logger must not change")

	odd := base.WithFields("dangling")
	assert.Empty(t, odd.fields)

	withMode := derived.WithMode("watch")
	assert.Equal(t, "watch", withMode.GetMode())
	assert.Equal(t, derived.fields, withMode.fields)
}

func TestSharedOutput(t *testing.T) {
	var first, second bytes.Buffer
	log := NewWithConfig(Config{Level: INFO, Output: &first})
	child := log.WithField("component", "channel")

	log.SetOutput(&second)
	child.Info("after redirect")

	assert.Empty(t, first.String())
	assert.Contains(t, second.String(), "after redirect")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithConfig(Config{Level: INFO, Output: &buf, Format: "json", Mode: "serve"})

	log.Error("notify failed", "error", errors.New("broken pipe"), "elapsed", 2*time.Second)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "notify failed", entry["msg"])
	assert.Equal(t, "serve", entry["mode"])
	assert.Equal(t, "broken pipe", entry["error"])
	assert.Equal(t, "2s", entry["elapsed"])
}

func TestLevelChecks(t *testing.T) {
	log := NewWithConfig(Config{Level: WARN, Output: &bytes.Buffer{}})
	assert.False(t, log.IsDebugEnabled())
	assert.False(t, log.IsInfoEnabled())

	log.SetLevel(DEBUG)
	assert.Equal(t, DEBUG, log.GetLevel())
	assert.True(t, log.IsDebugEnabled())
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		value    interface{}
		expected string
	}{
		{"plain string", "ready", "ready"},
		{"string with spaces", "Ulteo OVD Printer", `"Ulteo OVD Printer"`},
		{"error", errors.New("no reader"), `"no reader"`},
		{"duration", 1500 * time.Millisecond, "1.5s"},
		{"time", ts, "2024-03-01T12:00:00Z"},
		{"bytes", []byte{1, 2, 3}, "3B"},
		{"int", 8, "8"},
		{"nil", nil, "<nil>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatValue(tt.value))
		})
	}
}
