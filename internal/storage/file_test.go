package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func appendRaw(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestFileRecorderAppendLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attempts.jsonl")
	rec, err := NewFileRecorder(path)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	events := []AttemptEvent{
		{Timestamp: time.Now().UTC(), UserID: "u1", Provider: "gemini", Succeeded: false, ErrorKind: "unavailable", LatencyMS: 812},
		{Timestamp: time.Now().UTC(), UserID: "u1", Provider: "perplexity", Succeeded: true, LatencyMS: 420},
	}
	for _, ev := range events {
		if err := rec.RecordAttempt(ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	loaded, err := rec.LoadAttempts()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 events, got %d", len(loaded))
	}
	if loaded[0].Provider != "gemini" || loaded[0].ErrorKind != "unavailable" {
		t.Fatalf("unexpected first event: %+v", loaded[0])
	}
	if !loaded[1].Succeeded || loaded[1].ErrorKind != "" {
		t.Fatalf("unexpected second event: %+v", loaded[1])
	}
}

func TestFileRecorderSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attempts.jsonl")
	rec, err := NewFileRecorder(path)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if err := rec.RecordAttempt(AttemptEvent{UserID: "u1", Provider: "openai"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	appendRaw(t, path, "{not json}\n")

	loaded, err := rec.LoadAttempts()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("malformed lines must be skipped, got %d events", len(loaded))
	}
}
