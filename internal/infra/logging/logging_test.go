//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"research-orchestrator/internal/config"
)

func TestWith_AttachesContextIDs(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, config.LogConfig{Level: "debug", Format: "json"}, false)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithJobID(ctx, "job-1")
	With(ctx, base).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	if line["trace_id"] != "trace-1" || line["job_id"] != "job-1" {
		t.Errorf("expected ids in log line, got %v", line)
	}
	if _, ok := line["user_id"]; ok {
		t.Error("absent ids must not be logged")
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("sk-or-v1-abcdef123456", false); got != "sk-o...56" {
		t.Errorf("unexpected redaction %q", got)
	}
	if got := Redact("short", false); got != "***" {
		t.Errorf("short secrets must be fully hidden, got %q", got)
	}
	if got := Redact("visible", true); got != "visible" {
		t.Errorf("dev mode keeps values, got %q", got)
	}
}
