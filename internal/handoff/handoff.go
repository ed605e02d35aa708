// Package handoff implements the build-host side of the cross-host signing
// protocol. A shared directory acts as a two-topic, at-most-once message
// channel: a message is "delivered" when a file is observed under the
// expected name in the target directory. Basenames are the only correlation
// mechanism, so a file's basename must be unique among in-flight requests.
package handoff

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"shipyard/internal/fileutil"
	"shipyard/internal/logging"
	"shipyard/internal/watchdir"
)

// InDirName and OutDirName are the fixed rendezvous subdirectories. The
// build side writes to in and consumes from out; the signing side does the
// opposite.
const (
	InDirName  = "in"
	OutDirName = "out"
)

// Dirs returns the input and output directories under the shared root.
func Dirs(root string) (in string, out string) {
	return filepath.Join(root, InDirName), filepath.Join(root, OutDirName)
}

// EnsureDirs creates the rendezvous subdirectories when absent.
func EnsureDirs(root string) error {
	in, out := Dirs(root)
	for _, dir := range []string{in, out} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create handoff directory %q: %w", dir, err)
		}
	}
	return nil
}

// Client hands files to the signing host and collects signed results.
type Client struct {
	inDir    string
	outDir   string
	interval time.Duration
	logger   *slog.Logger
}

// NewClient constructs a client rooted at the shared directory.
func NewClient(sharedRoot string, pollInterval time.Duration, logger *slog.Logger) *Client {
	in, out := Dirs(sharedRoot)
	return &Client{
		inDir:    in,
		outDir:   out,
		interval: pollInterval,
		logger:   logging.NewComponentLogger(logger, "handoff"),
	}
}

// Submit places the file into the input directory and blocks until a file
// with the same basename appears in the output directory, returning its
// path. The watch starts before the file is placed, and pre-existing output
// files are never reported: a stale result of the same name cannot be
// mistaken for a fresh signature. Callers bound the wait through ctx; the
// protocol itself has no timeout.
//
// A failure to place the file is returned as-is and is fatal to the caller's
// release: a lost handoff has no partial-failure recovery.
func (c *Client) Submit(ctx context.Context, path string) (string, error) {
	base := filepath.Base(path)

	arrived := make(chan struct{}, 1)
	watchErr := make(chan error, 1)
	watcher, err := watchdir.New(watchdir.Options{
		Dir:      c.outDir,
		Interval: c.interval,
		OnFile: func(name string) {
			if name != base {
				return
			}
			select {
			case arrived <- struct{}{}:
			default:
			}
		},
		OnError: func(err error) {
			select {
			case watchErr <- err:
			default:
			}
		},
		Logger: c.logger,
	})
	if err != nil {
		return "", err
	}
	if err := watcher.Start(ctx); err != nil {
		return "", fmt.Errorf("watch output directory: %w", err)
	}
	defer watcher.Stop()

	dst := filepath.Join(c.inDir, base)
	if err := fileutil.MoveFile(path, dst); err != nil {
		return "", fmt.Errorf("place %s for signing: %w", base, err)
	}
	c.logger.Info("file placed for signing",
		logging.String(logging.FieldFile, base),
		logging.String("dir", c.inDir),
	)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-watchErr:
		return "", fmt.Errorf("await signed %s: %w", base, err)
	case <-arrived:
	}

	signed := filepath.Join(c.outDir, base)
	c.logger.Info("signed file arrived", logging.String(logging.FieldFile, base))
	return signed, nil
}

// Retrieve moves the signed artifact out of the handoff area into dest.
// The shared-folder transport has been observed to lose or corrupt files
// around rename operations, so this path makes a checksum-verified copy and
// deletes best-effort: a failed delete is logged and tolerated because the
// data has already reached its destination.
func (c *Client) Retrieve(signedPath, dest string) error {
	info, err := os.Stat(signedPath)
	if err != nil {
		return fmt.Errorf("stat signed file: %w", err)
	}
	if err := fileutil.CopyFileVerified(signedPath, dest); err != nil {
		return fmt.Errorf("copy signed file to %s: %w", dest, err)
	}
	if err := os.Chmod(dest, info.Mode().Perm()); err != nil {
		return fmt.Errorf("restore mode on %s: %w", dest, err)
	}
	if err := os.Remove(signedPath); err != nil {
		c.logger.Warn("could not remove signed file from handoff area",
			logging.Error(err),
			logging.String(logging.FieldEventType, "handoff_cleanup_failed"),
			logging.String(logging.FieldFile, signedPath),
			logging.String(logging.FieldImpact, "stale file remains in the output directory"),
		)
	}
	return nil
}
