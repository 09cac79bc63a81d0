package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestHandlerRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf))
	logger.Info("deposit settled", MaskField("token", "secret"), MaskField("account", "ys1abc"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["message"] != "deposit settled" {
		t.Fatalf("unexpected message %v", line["message"])
	}
	if line["severity"] != "INFO" {
		t.Fatalf("unexpected severity %v", line["severity"])
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("timestamp missing")
	}
	if line["token"] != RedactedValue {
		t.Fatalf("token not redacted: %v", line["token"])
	}
	if line["account"] != "ys1abc" {
		t.Fatalf("account masked: %v", line["account"])
	}
}

func TestHandlerRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf))
	logger.Warn("journal unavailable",
		slog.String("journal_dsn", "postgres://yield:hunter2@db/yield"),
		slog.String("Authorization", "Bearer abc"),
		slog.String("op", "deposit"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	for _, key := range []string{"journal_dsn", "Authorization"} {
		if line[key] != RedactedValue {
			t.Fatalf("%s not redacted: %v", key, line[key])
		}
	}
	if line["op"] != "deposit" {
		t.Fatalf("op masked: %v", line["op"])
	}
}

func TestMaskValueKeepsEmpty(t *testing.T) {
	if MaskValue("  ") != "  " {
		t.Fatalf("blank value should pass through")
	}
	if MaskValue("x") != RedactedValue {
		t.Fatalf("expected redaction")
	}
}

func TestSetupWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yieldd.log")
	logger, closer := SetupWithFile("yieldd", "test", path, DefaultFileOptions())
	defer closer.Close()
	if logger == nil {
		t.Fatalf("expected logger")
	}
	logger.Info("started")
}
