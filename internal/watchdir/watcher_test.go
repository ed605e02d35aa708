package watchdir

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]string, len(r.names))
	copy(cp, r.names)
	return cp
}

func (r *recorder) waitFor(t *testing.T, count int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got := r.snapshot()
		if len(got) >= count {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d callbacks, have %v", count, r.snapshot())
	return nil
}

func writeFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func startWatcher(t *testing.T, dir string, includeExisting bool, rec *recorder) *Watcher {
	t.Helper()
	w, err := New(Options{
		Dir:             dir,
		IncludeExisting: includeExisting,
		Interval:        10 * time.Millisecond,
		OnFile:          rec.add,
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestNewFilesFireExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "preexisting.exe")

	rec := &recorder{}
	startWatcher(t, dir, false, rec)

	writeFile(t, dir, "one.exe")
	rec.waitFor(t, 1)
	writeFile(t, dir, "two.exe")
	writeFile(t, dir, "three.exe")
	got := rec.waitFor(t, 3)

	// Allow several extra poll cycles, then confirm no duplicates and no
	// callback for the pre-existing file.
	time.Sleep(100 * time.Millisecond)
	got = rec.snapshot()
	sort.Strings(got)
	want := []string{"one.exe", "three.exe", "two.exe"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestIncludeExistingFiresForInitialContents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.exe")
	writeFile(t, dir, "b.exe")

	rec := &recorder{}
	startWatcher(t, dir, true, rec)

	got := rec.waitFor(t, 2)
	sort.Strings(got)
	if got[0] != "a.exe" || got[1] != "b.exe" {
		t.Fatalf("unexpected callbacks: %v", got)
	}
}

func TestDirectoriesAndSymlinksIgnored(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, false, rec)

	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	target := t.TempDir()
	if err := os.Symlink(target, filepath.Join(dir, "dirlink")); err != nil {
		t.Skipf("symlink unsupported: %v", err)
	}
	writeFile(t, dir, "real.exe")

	got := rec.waitFor(t, 1)
	if len(got) != 1 || got[0] != "real.exe" {
		t.Fatalf("unexpected callbacks: %v", got)
	}
}

func TestStopPreventsFutureCallbacks(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := startWatcher(t, dir, false, rec)

	writeFile(t, dir, "before.exe")
	rec.waitFor(t, 1)

	w.Stop()
	writeFile(t, dir, "after.exe")
	time.Sleep(100 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 || got[0] != "before.exe" {
		t.Fatalf("callbacks after stop: %v", got)
	}
}

func TestListingFailureTerminatesWatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "watched")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	rec := &recorder{}
	errCh := make(chan error, 1)
	w, err := New(Options{
		Dir:      dir,
		Interval: 10 * time.Millisecond,
		OnFile:   rec.add,
		OnError: func(err error) {
			select {
			case errCh <- err:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(w.Stop)

	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove watched dir: %v", err)
	}

	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("expected listing error")
	}
}

func TestStartFailsWhenDirectoryMissing(t *testing.T) {
	rec := &recorder{}
	w, err := New(Options{
		Dir:    filepath.Join(t.TempDir(), "absent"),
		OnFile: rec.add,
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Fatal("expected initial scan error")
	}
}
