package watchdir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"shipyard/internal/logging"
)

// DefaultInterval is the poll cadence used when none is configured. One
// second keeps interactive latency low without thrashing a network-backed
// shared folder.
const DefaultInterval = time.Second

// Options configures a Watcher.
type Options struct {
	// Dir is the directory whose regular-file membership is observed.
	Dir string
	// IncludeExisting controls whether files already present when the watch
	// starts are reported. When false the initial contents seed the snapshot
	// silently.
	IncludeExisting bool
	// Interval overrides the poll cadence. Zero means DefaultInterval.
	Interval time.Duration
	// OnFile is invoked once per newly-appeared regular file, on its own
	// goroutine so a slow handler cannot delay the next poll.
	OnFile func(name string)
	// OnError is invoked when a directory listing fails. The watch loop
	// terminates after reporting; a missing or unreadable watch directory is
	// an unrecoverable precondition violation.
	OnError func(err error)

	Logger *slog.Logger
}

// Watcher reports regular files newly appearing in a directory by polling
// and diffing snapshots.
type Watcher struct {
	dir             string
	includeExisting bool
	interval        time.Duration
	onFile          func(string)
	onError         func(error)
	logger          *slog.Logger

	mu       sync.Mutex
	running  bool
	snapshot map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a watcher from options.
func New(opts Options) (*Watcher, error) {
	if opts.Dir == "" {
		return nil, errors.New("watch directory required")
	}
	if opts.OnFile == nil {
		return nil, errors.New("file callback required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		dir:             opts.Dir,
		includeExisting: opts.IncludeExisting,
		interval:        interval,
		onFile:          opts.OnFile,
		onError:         opts.OnError,
		logger:          logging.NewComponentLogger(logger, "watchdir"),
	}, nil
}

// Start begins polling. When IncludeExisting is false the current directory
// contents are snapshotted synchronously before Start returns, so files
// present now never fire and files created afterwards always do.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("watcher already running")
	}

	snapshot := make(map[string]struct{})
	if !w.includeExisting {
		var err error
		snapshot, err = w.scan()
		if err != nil {
			return fmt.Errorf("initial scan of %s: %w", w.dir, err)
		}
	}
	w.snapshot = snapshot

	runCtx, cancel := context.WithCancel(ctx)
	w.ctx = runCtx
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop prevents any future poll from being scheduled. An in-flight poll
// completes but does not reschedule itself. Stop does not wait for
// already-dispatched file callbacks.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	if !w.poll() {
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if !w.poll() {
				return
			}
		}
	}
}

// poll diffs the directory against the previous snapshot and dispatches
// callbacks for new arrivals. It returns false when the watch must stop.
func (w *Watcher) poll() bool {
	if w.ctx.Err() != nil {
		return false
	}

	next, err := w.scan()
	if err != nil {
		w.logger.Error("directory listing failed; watch terminated",
			logging.Error(err),
			logging.String(logging.FieldEventType, "watch_list_failed"),
			logging.String("dir", w.dir),
			logging.String(logging.FieldErrorHint, "verify the watch directory exists and is readable"),
		)
		w.fail(err)
		return false
	}

	w.mu.Lock()
	previous := w.snapshot
	w.snapshot = next
	stopped := !w.running
	w.mu.Unlock()
	if stopped {
		return false
	}

	for name := range next {
		if _, known := previous[name]; known {
			continue
		}
		w.logger.Debug("new file observed", logging.String(logging.FieldFile, name))
		go w.onFile(name)
	}
	return true
}

// scan lists the directory and returns the set of regular files. Entries
// that vanish between listing and stat are treated as absent, not as errors.
func (w *Watcher) scan() (map[string]struct{}, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		info, statErr := os.Stat(filepath.Join(w.dir, entry.Name()))
		if statErr != nil {
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		snapshot[entry.Name()] = struct{}{}
	}
	return snapshot, nil
}

func (w *Watcher) fail(err error) {
	w.mu.Lock()
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if w.onError != nil {
		go w.onError(err)
	}
}
