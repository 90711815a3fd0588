package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONHandlerRewritesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lvl))

	logger.Info("task picked", String(FieldTaskID, "abc"), Int("position", 2))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if record["msg"] != "task picked" {
		t.Fatalf("expected msg key, got %v", record)
	}
	if record["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatal("expected ts key")
	}
	if record[FieldTaskID] != "abc" {
		t.Fatalf("expected task_id attr, got %v", record)
	}
}

func TestConsoleHandlerPromotesComponent(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	NewComponentLogger(logger, "worker").Info("stage complete", String("status", "completed"))

	line := buf.String()
	if !strings.Contains(line, "[worker]") {
		t.Fatalf("expected component prefix in %q", line)
	}
	if !strings.Contains(line, "status=completed") {
		t.Fatalf("expected attr rendering in %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should not repeat as attr: %q", line)
	}
}

func TestWithContextAddsTaskFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lvl))

	ctx := WithTaskID(context.Background(), "task-1")
	ctx = WithVideoID(ctx, "vid-9")
	WithContext(ctx, logger).Info("hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if record[FieldTaskID] != "task-1" || record[FieldVideoID] != "vid-9" {
		t.Fatalf("expected context fields, got %v", record)
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if parseLevel("nonsense") != slog.LevelInfo {
		t.Fatal("unknown level should map to info")
	}
	if parseLevel("debug") != slog.LevelDebug {
		t.Fatal("debug should parse")
	}
}
