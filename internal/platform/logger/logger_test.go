package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVsRedactsCredentials(t *testing.T) {
	got := sanitizeKVs([]interface{}{"smtp_pass", "hunter2", "host", "smtp.example.test"})
	if len(got) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(got))
	}
	if got[1] != "[REDACTED]" {
		t.Fatalf("expected password redacted, got %v", got[1])
	}
	if got[3] != "smtp.example.test" {
		t.Fatalf("expected host untouched, got %v", got[3])
	}
}

func TestSanitizeKVsHashesSessionID(t *testing.T) {
	got := sanitizeKVs([]interface{}{"session_id", "abc-123"})
	s, ok := got[1].(string)
	if !ok || !strings.HasPrefix(s, "hash:") {
		t.Fatalf("expected hashed session id, got %v", got[1])
	}
	if strings.Contains(s, "abc-123") {
		t.Fatalf("raw session id leaked: %s", s)
	}
	again := sanitizeKVs([]interface{}{"session_id", "abc-123"})
	if again[1] != got[1] {
		t.Fatalf("hash should be stable, got %v and %v", got[1], again[1])
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	got := sanitizeKVs([]interface{}{"stage", "quiz", "dangling"})
	if len(got) != 3 || got[2] != "dangling" {
		t.Fatalf("unexpected output %v", got)
	}
}
