package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWithJobID_And_JobIDFromContext(t *testing.T) {
	ctx := context.Background()

	if got := JobIDFromContext(ctx); got != "" {
		t.Errorf("JobIDFromContext() on empty ctx = %v, want empty", got)
	}

	ctx = WithJobID(ctx, "job-123")
	if got := JobIDFromContext(ctx); got != "job-123" {
		t.Errorf("JobIDFromContext() = %v, want job-123", got)
	}
}

func TestWithRequestID_And_RequestIDFromContext(t *testing.T) {
	ctx := context.Background()
	requestID := "req-12345"

	if got := RequestIDFromContext(ctx); got != "" {
		t.Errorf("RequestIDFromContext() on empty ctx = %v, want empty", got)
	}

	ctx = WithRequestID(ctx, requestID)
	if got := RequestIDFromContext(ctx); got != requestID {
		t.Errorf("RequestIDFromContext() = %v, want %v", got, requestID)
	}
}

func TestFromContext_AttachesIDs(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, slog.LevelInfo)

	ctx := WithRequestID(WithJobID(context.Background(), "job-1"), "req-1")
	FromContext(ctx, base).Info("served")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["job_id"] != "job-1" {
		t.Errorf("job_id = %v, want job-1", entry["job_id"])
	}
	if entry["request_id"] != "req-1" {
		t.Errorf("request_id = %v, want req-1", entry["request_id"])
	}
}

func TestFromContext_WithoutIDs(t *testing.T) {
	base := New()
	if got := FromContext(context.Background(), base); got != base {
		t.Error("FromContext() without ids should return the base logger")
	}
}

func TestNewFanout_WritesBoth(t *testing.T) {
	var console, file bytes.Buffer
	l := NewFanout(&console, &file, slog.LevelInfo)

	l.Info("hello", "job_id", "abc")
	l.Debug("hidden")

	if !strings.Contains(console.String(), "msg=hello") {
		t.Errorf("console output missing text entry: %q", console.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(file.Bytes(), &entry); err != nil {
		t.Fatalf("file output is not a single JSON entry: %v", err)
	}
	if entry["job_id"] != "abc" {
		t.Errorf("job_id = %v, want abc", entry["job_id"])
	}
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobwatch.log")

	l, closeFn := NewWithFile(path, slog.LevelInfo)
	l.Info("to file")
	if err := closeFn(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"to file"`) {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestNewWithFile_Fallback(t *testing.T) {
	l, closeFn := NewWithFile(filepath.Join(t.TempDir(), "missing", "dir", "x.log"), slog.LevelInfo)
	if l == nil {
		t.Fatal("expected a stderr logger")
	}
	if err := closeFn(); err != nil {
		t.Errorf("noop close returned %v", err)
	}

	l, closeFn = NewWithFile("", slog.LevelInfo)
	if l == nil || closeFn() != nil {
		t.Error("empty path should give a stderr logger with a noop close")
	}
}
