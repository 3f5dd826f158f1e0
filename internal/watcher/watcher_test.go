package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func startWatcher(t *testing.T, roots []string, calls *atomic.Int32) *Watcher {
	t.Helper()
	w, err := New(roots, func() { calls.Add(1) }, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestNew_RequiresCallback(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("New() with nil callback should fail")
	}
}

func TestNew_InvalidIgnore(t *testing.T) {
	if _, err := New(nil, func() {}, WithIgnore("[")); err == nil {
		t.Error("New() with invalid pattern should fail")
	}
}

func TestWatcher_DetectsNewPrefix(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	startWatcher(t, []string{root}, &calls)

	prefix := filepath.Join(root, "game")
	if err := os.Mkdir(prefix, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(prefix, "system.reg"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, func() bool { return calls.Load() > 0 }) {
		t.Fatal("onChange was not called")
	}
	// burst collapses into a single callback
	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("onChange called %d times, want 1", got)
	}
}

func TestWatcher_NewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	w := startWatcher(t, []string{root}, &calls)

	bottle := filepath.Join(root, "bottle")
	if err := os.Mkdir(bottle, 0755); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool {
		for _, d := range w.Watched() {
			if d == bottle {
				return true
			}
		}
		return false
	}) {
		t.Fatalf("new directory not watched: %v", w.Watched())
	}
}

func TestWatcher_IgnoresDriveAndWrites(t *testing.T) {
	root := t.TempDir()
	prefix := filepath.Join(root, "game")
	drive := filepath.Join(prefix, "drive_c")
	if err := os.MkdirAll(drive, 0755); err != nil {
		t.Fatal(err)
	}
	reg := filepath.Join(prefix, "system.reg")
	if err := os.WriteFile(reg, nil, 0644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	w := startWatcher(t, []string{root}, &calls)
	for _, d := range w.Watched() {
		if d == drive {
			t.Errorf("drive_c should not be watched")
		}
	}

	if err := os.WriteFile(reg, []byte("updated"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(drive, "Games"), 0755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("onChange called %d times for ignored changes", got)
	}
}

func TestWatcher_MissingRootIsSkipped(t *testing.T) {
	var calls atomic.Int32
	w := startWatcher(t, []string{filepath.Join(t.TempDir(), "missing")}, &calls)
	if len(w.Watched()) != 0 {
		t.Errorf("Watched() = %v, want none", w.Watched())
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New([]string{t.TempDir()}, func() {})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() failed: %v", err)
	}
}

func TestDepth(t *testing.T) {
	tests := map[string]int{".": 0, "a": 1, "a/prefix": 2, "a/prefix/drive_c": 3}
	for rel, want := range tests {
		if got := depth(rel); got != want {
			t.Errorf("depth(%q) = %d, want %d", rel, got, want)
		}
	}
}
