package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l := NewLogger(t.TempDir())
	if err := l.SetHMACKey([]byte("test key material, 32 bytes long")); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	return l
}

func TestLogRequiresKey(t *testing.T) {
	l := NewLogger(t.TempDir())
	if err := l.LogSuccess(OpSecretSet, "foo"); err == nil {
		t.Error("expected error before SetHMACKey")
	}
}

func TestLogAndList(t *testing.T) {
	l := newTestLogger(t)

	if err := l.LogSuccess(OpStoreCreate, ""); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}
	if err := l.LogSuccess(OpSecretSet, "db/password"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}
	if err := l.LogError(OpSecretGet, "missing", "NOT_FOUND", "secret not found"); err != nil {
		t.Fatalf("LogError failed: %v", err)
	}

	events, err := l.ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Operation != OpStoreCreate || events[2].Result != ResultError {
		t.Errorf("unexpected events: %+v", events)
	}
	if events[1].KeyHMAC == "" {
		t.Error("expected key name to be HMACed")
	}
	if strings.Contains(events[1].KeyHMAC, "db/password") {
		t.Error("key name leaked into the log")
	}

	limited, err := l.ListEvents(2, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(limited) != 2 || limited[0].Operation != OpSecretSet {
		t.Errorf("limit must keep the most recent events: %+v", limited)
	}
}

func TestVerifyIntactChain(t *testing.T) {
	l := newTestLogger(t)
	for i := 0; i < 5; i++ {
		if err := l.LogSuccess(OpSecretGet, "k"); err != nil {
			t.Fatalf("LogSuccess failed: %v", err)
		}
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid chain, got errors: %v", result.Errors)
	}
	if result.RecordsTotal != 5 {
		t.Errorf("expected 5 records, got %d", result.RecordsTotal)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := newTestLogger(t)
	for i := 0; i < 3; i++ {
		if err := l.LogSuccess(OpSecretSet, "k"); err != nil {
			t.Fatalf("LogSuccess failed: %v", err)
		}
	}

	// Flip the operation of the middle record.
	files, err := filepath.Glob(filepath.Join(l.Path(), "*.jsonl"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one log file, got %v (%v)", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	var event Event
	if err := json.Unmarshal([]byte(lines[1]), &event); err != nil {
		t.Fatalf("parse line: %v", err)
	}
	event.Operation = OpSecretDelete
	edited, _ := json.Marshal(event)
	lines[1] = string(edited)
	if err := os.WriteFile(files[0], []byte(strings.Join(lines, "\n")+"\n"), 0600); err != nil {
		t.Fatalf("write log: %v", err)
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Valid {
		t.Error("expected tampering to be detected")
	}
}

func TestChainStatePersistsAcrossLoggers(t *testing.T) {
	dir := t.TempDir()
	key := []byte("test key material, 32 bytes long")

	l1 := NewLogger(dir)
	if err := l1.SetHMACKey(key); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	if err := l1.LogSuccess(OpStoreCreate, ""); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	l2 := NewLogger(dir)
	if err := l2.SetHMACKey(key); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	if err := l2.LogSuccess(OpSecretSet, "k"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	result, err := l2.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("chain must continue across logger instances: %v", result.Errors)
	}
	if result.RecordsTotal != 2 {
		t.Errorf("expected 2 records, got %d", result.RecordsTotal)
	}
}
