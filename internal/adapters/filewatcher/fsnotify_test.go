package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
)

const testDebounce = 50 * time.Millisecond

func newTestWatcher(t *testing.T, names ...string) *FSNotifyWatcher {
	t.Helper()
	w, err := NewFSNotifyWatcher(names, testDebounce, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w
}

func TestFSNotifyWatcher_Defaults(t *testing.T) {
	w, err := NewFSNotifyWatcher(nil, 0, nil)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer w.Stop()

	if len(w.names) != 2 {
		t.Errorf("expected 2 default names, got %d", len(w.names))
	}
	if _, ok := w.names["config.default.json"]; !ok {
		t.Error("config.default.json should be watched by default")
	}
	if w.debounce != DefaultDebounce {
		t.Errorf("expected default debounce, got %v", w.debounce)
	}
}

func TestFSNotifyWatcher_WatchMissingDirectory(t *testing.T) {
	w := newTestWatcher(t, "config.json")
	if _, err := w.Watch(context.Background(), filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected error watching a missing directory")
	}
}

func TestFSNotifyWatcher_Created(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, "config.json")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := w.Watch(ctx, dir)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"models":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev.Operation != ports.FileCreated {
			t.Errorf("expected create, got %v", ev.Operation)
		}
		if ev.Path != path {
			t.Errorf("unexpected path %s", ev.Path)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for event")
	}
}

func TestFSNotifyWatcher_CoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	w := newTestWatcher(t, "config.json")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := w.Watch(ctx, dir)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(`{"models":[]}`), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case ev := <-events:
		if ev.Operation != ports.FileModified {
			t.Errorf("expected modify, got %v", ev.Operation)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for event")
	}

	select {
	case ev := <-events:
		t.Errorf("burst should yield one event, got another: %+v", ev)
	case <-time.After(4 * testDebounce):
	}
}

func TestFSNotifyWatcher_Deleted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.default.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	w := newTestWatcher(t, "config.default.json")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := w.Watch(ctx, dir)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev.Operation != ports.FileDeleted {
			t.Errorf("expected delete, got %v", ev.Operation)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for event")
	}
}

func TestFSNotifyWatcher_FiltersByName(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, "config.json")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events, err := w.Watch(ctx, dir)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644)
	os.WriteFile(filepath.Join(dir, "config.json.swp"), []byte("{}"), 0o644)

	select {
	case ev := <-events:
		t.Errorf("should not receive event for unrelated files: %+v", ev)
	case <-time.After(4 * testDebounce):
	}
}

func TestFSNotifyWatcher_ClosesOnCancel(t *testing.T) {
	w := newTestWatcher(t, "config.json")
	ctx, cancel := context.WithCancel(context.Background())

	events, err := w.Watch(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
