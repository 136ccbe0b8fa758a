package store

import (
	"path/filepath"
	"testing"

	"github.com/danmuck/improvctl/internal/testutil/testlog"
)

func TestFileStoreRoundTrip(t *testing.T) {
	testlog.Start(t)
	s := NewFileStore(filepath.Join(t.TempDir(), "kv.json"))

	if _, ok, err := s.Fetch("__wifi__"); err != nil || ok {
		t.Fatalf("fetch on empty store: ok=%v err=%v", ok, err)
	}
	if err := s.Store("__wifi__", `{"ssid":"lab-net","password":"hunter2"}`); err != nil {
		t.Fatalf("store: %v", err)
	}
	value, ok, err := s.Fetch("__wifi__")
	if err != nil || !ok {
		t.Fatalf("fetch: ok=%v err=%v", ok, err)
	}
	if value != `{"ssid":"lab-net","password":"hunter2"}` {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "kv.json")
	if err := NewFileStore(path).Store("k", "v"); err != nil {
		t.Fatalf("store: %v", err)
	}
	value, ok, err := NewFileStore(path).Fetch("k")
	if err != nil || !ok || value != "v" {
		t.Fatalf("fetch after reopen: value=%q ok=%v err=%v", value, ok, err)
	}
}

func TestFileStoreRemove(t *testing.T) {
	testlog.Start(t)
	s := NewFileStore(filepath.Join(t.TempDir(), "kv.json"))
	if err := s.Store("k", "v"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.Remove("k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := s.Fetch("k"); ok {
		t.Fatalf("key still present after remove")
	}
	// Removing a missing key is not an error.
	if err := s.Remove("k"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}
