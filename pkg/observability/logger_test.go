package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestNewLogger_Formats(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(LogConfig{Level: LogLevelInfo, Format: LogFormatText, Output: &buf}).
			Info("slot offered", "offer_id", "o-1")
		assert.Contains(t, buf.String(), "slot offered")
		assert.Contains(t, buf.String(), "offer_id=o-1")
	})

	t.Run("json with service attributes", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf, ServiceName: "chiroflow", ServiceVersion: "1.2.0"}).
			Info("booked")
		entry := decodeLine(t, &buf)
		assert.Equal(t, "booked", entry["msg"])
		assert.Equal(t, "chiroflow", entry["service"])
		assert.Equal(t, "1.2.0", entry["version"])
	})

	t.Run("production defaults to json with source", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(LogConfig{Output: &buf, Production: true}).Info("started")
		entry := decodeLine(t, &buf)
		assert.Contains(t, entry, slog.SourceKey)
	})
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "WARN", Format: LogFormatText, Output: &buf})

	logger.Info("ignored")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "ignored")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf})

	logger.Info("invitation issued",
		"response_token", "abc123",
		"email", "ada@example.com",
		"offer_id", "o-1",
	)

	entry := decodeLine(t, &buf)
	assert.Equal(t, Redacted, entry["response_token"])
	assert.Equal(t, Redacted, entry["email"])
	assert.Equal(t, "o-1", entry["offer_id"])
	assert.NotContains(t, buf.String(), "abc123")
}

func TestNewLogger_CustomRedactKeys(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf, RedactKeys: []string{"notes"}}).
		Info("booked", "notes", "lower back", "email", "ada@example.com")

	entry := decodeLine(t, &buf)
	assert.Equal(t, Redacted, entry["notes"])
	assert.Equal(t, "ada@example.com", entry["email"])
}

func TestNewLogger_CopiesRequestContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf}).With("component", "gateway")

	ctx := WithActorID(WithRequestID(WithCorrelationID(context.Background(), "corr-1"), "req-1"), "staff-9")
	logger.InfoContext(ctx, "token resolved")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "corr-1", entry[CorrelationIDKey])
	assert.Equal(t, "req-1", entry[RequestIDKey])
	assert.Equal(t, "staff-9", entry[ActorIDKey])
	assert.Equal(t, "gateway", entry["component"])
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	WithComponent(NewLogger(LogConfig{Format: LogFormatText, Output: &buf}), "offer-expiry").Info("sweep")
	assert.Contains(t, buf.String(), "component=offer-expiry")

	assert.NotNil(t, WithComponent(nil, "fallback"))
}

func TestRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background(), "")
	assert.NotEmpty(t, RequestIDFromContext(ctx))
	assert.NotEmpty(t, CorrelationIDFromContext(ctx))

	ctx = NewRequestContext(context.Background(), "parent")
	assert.Equal(t, "parent", CorrelationIDFromContext(ctx))

	//nolint:staticcheck // nil context is tolerated by the getters
	assert.Empty(t, ActorIDFromContext(nil))
}
