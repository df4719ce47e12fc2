package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	Info("upload accepted", KeyFileID, "f-123", KeySize, 1024)

	out := buf.String()
	assert.Contains(t, out, "[INFO]")
	assert.Contains(t, out, "upload accepted")
	assert.Contains(t, out, "file_id=f-123")
	assert.Contains(t, out, "size=1024")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)

	Info("proxy connection", KeyClientIP, "10.0.0.1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "proxy connection", record["msg"])
	assert.Equal(t, "10.0.0.1", record["client_ip"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)

	Debug("not shown")
	Info("not shown either")
	Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "not shown")
	assert.Contains(t, out, "shown")

	// restore default for other tests
	SetLevel("INFO")
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	ctx := WithContext(t.Context(), &LogContext{
		TraceID:   "tr-20260826-120000-abc123",
		Operation: "UPLOAD",
		FamilyID:  "fam-001",
		StartTime: time.Now(),
	})

	InfoCtx(ctx, "operation complete")

	out := buf.String()
	assert.Contains(t, out, "trace_id=tr-20260826-120000-abc123")
	assert.Contains(t, out, "operation=UPLOAD")
	assert.Contains(t, out, "family_id=fam-001")
	assert.Contains(t, out, "duration=")
}

func TestInvalidLevelIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	SetLevel("LOUD")
	Info("still here")

	assert.True(t, strings.Contains(buf.String(), "still here"))
}
