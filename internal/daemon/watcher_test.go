package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileWatcher_StartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.json")

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	if fw.IsRunning() {
		t.Error("Newly created watcher should not be running")
	}

	if err := fw.Start(path); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !fw.IsRunning() {
		t.Error("Watcher should be running after Start()")
	}
	if err := fw.Start(path); err == nil {
		t.Error("Second Start() should fail")
	}

	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if fw.IsRunning() {
		t.Error("Watcher should not be running after Stop()")
	}
}

func TestFileWatcher_MissingDirectory(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if err := fw.Start(filepath.Join(t.TempDir(), "nope", "template.json")); err == nil {
		t.Error("expected error watching a missing directory")
	}
}

func TestFileWatcher_OnlyTemplateEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "template.json")

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()
	if err := fw.Start(path); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	select {
	case ev := <-fw.Events():
		if filepath.Base(ev.Path) != "template.json" {
			t.Errorf("unexpected event for %s", ev.Path)
		}
		if ev.Op != OpCreate && ev.Op != OpModify {
			t.Errorf("unexpected op %s", ev.Op)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for template event")
	}
}

func TestEventOpString(t *testing.T) {
	tests := map[EventOp]string{
		OpCreate:    "create",
		OpModify:    "modify",
		OpDelete:    "delete",
		EventOp(42): "unknown",
	}
	for op, want := range tests {
		if got := op.String(); got != want {
			t.Errorf("EventOp(%d).String() = %q, want %q", op, got, want)
		}
	}
}
