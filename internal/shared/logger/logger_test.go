package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()

	buf := &bytes.Buffer{}
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	return &Logger{
		Logger: slog.New(handler),
		config: Config{Level: LevelDebug, Format: FormatJSON, Component: "test"},
	}, buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestErrorCtxEnrichesFromContext(t *testing.T) {
	log, buf := newBufferLogger(t)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithNodeName(ctx, "worker-1")
	ctx = WithAccountID(ctx, "acct-7")
	ctx = WithOperation(ctx, "fetch")

	log.ErrorCtx(ctx, "fetch failed", errors.New("session expired"), slog.String("identity", "target"))

	entry := decodeEntry(t, buf)
	assert.Equal(t, "fetch failed", entry["msg"])
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "session expired", entry["error"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "worker-1", entry["node_name"])
	assert.Equal(t, "acct-7", entry["account_id"])
	assert.Equal(t, "fetch", entry["operation"])
	assert.Equal(t, "target", entry["identity"])
}

func TestWithContextSkipsMissingKeys(t *testing.T) {
	log, buf := newBufferLogger(t)

	ctx := WithRequestID(context.Background(), "req-only")
	log.WithContext(ctx).Info("partial context")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "req-only", entry["request_id"])
	assert.NotContains(t, entry, "node_name")
	assert.NotContains(t, entry, "account_id")
	assert.NotContains(t, entry, "operation")
}

func TestWithComponentScopesLogger(t *testing.T) {
	log, buf := newBufferLogger(t)

	log.WithComponent("registry").Info("component scoped")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "registry", entry["component"])
}

func TestHTTPRequestLevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "INFO"},
		{404, "WARN"},
		{502, "ERROR"},
	}

	for _, tt := range tests {
		log, buf := newBufferLogger(t)
		log.HTTPRequest(context.Background(), "GET", "/healthz", tt.status, 0)

		entry := decodeEntry(t, buf)
		assert.Equal(t, tt.level, entry["level"], "status %d", tt.status)
		assert.Equal(t, float64(tt.status), entry["http_status"])
	}
}

func TestOperationScopeCorrelatesEntries(t *testing.T) {
	log, buf := newBufferLogger(t)

	ctx := WithRequestID(context.Background(), "req-op")
	op := log.StartOp(ctx, "approval_sweep")
	buf.Reset()

	op.Complete("", slog.Int("approved", 2))

	entry := decodeEntry(t, buf)
	assert.Equal(t, "approval_sweep completed", entry["msg"])
	assert.Equal(t, "approval_sweep", entry["operation"])
	assert.Equal(t, "req-op", entry["request_id"])
	assert.Contains(t, entry, "duration_ms")
	assert.Equal(t, float64(2), entry["approved"])
}

func TestOperationFailCarriesError(t *testing.T) {
	log, buf := newBufferLogger(t)

	op := log.StartOp(context.Background(), "pool_load")
	buf.Reset()

	op.Fail(errors.New("database locked"), "")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "pool_load failed", entry["msg"])
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "database locked", entry["error"])
	assert.Equal(t, "pool_load", entry["operation"])
}

func TestGetRequestID(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
	assert.Equal(t, "req-9", GetRequestID(WithRequestID(context.Background(), "req-9")))
}
