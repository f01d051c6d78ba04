package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureDefault(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	prev := defaultLogger.level
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return &buf
}

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"a@b.com", "***@b.com"},
		{"not-an-email", "***@***"},
		{"a@b@c", "***@***"},
		{"", "***@***"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactEmail(tt.in))
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" WARN "))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("info"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}

func TestLog_RedactsEmailFields(t *testing.T) {
	buf := captureDefault(t, DEBUG)

	Info("registered", "email", "someone@example.com", "detail", "sent to other@example.org")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "registered", entry["msg"])
	assert.Equal(t, "so***@example.com", entry["email"])
	assert.Equal(t, "sent to ot***@example.org", entry["detail"])
}

func TestLog_LevelFilter(t *testing.T) {
	buf := captureDefault(t, WARN)

	Info("hidden")
	Debug("hidden")
	Warn("shown", "error", errors.New("boom"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]string
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
}

func TestWith_AddsFields(t *testing.T) {
	buf := captureDefault(t, INFO)

	With("component", "poller").Info("cycle done", "sent", 2)

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "poller", entry["component"])
	assert.Equal(t, "2", entry["sent"])
}
