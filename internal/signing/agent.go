// Package signing implements the signing-host agent. It watches the shared
// input directory, signs every new executable with the platform signing
// tool, and publishes results to the output directory under the same
// basename. One file failing never stops the agent; failures are logged,
// recorded in the job store, and the watch continues.
package signing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shipyard/internal/config"
	"shipyard/internal/dedup"
	"shipyard/internal/handoff"
	"shipyard/internal/jobs"
	"shipyard/internal/logging"
	"shipyard/internal/notifications"
	"shipyard/internal/services/signtool"
	"shipyard/internal/watchdir"
)

// Agent signs executables dropped into the shared input directory.
type Agent struct {
	cfg      *config.Config
	client   signtool.Client
	store    *jobs.Store
	notifier notifications.Service
	logger   *slog.Logger

	inDir      string
	outDir     string
	extensions map[string]struct{}

	queue   *dedup.Queue
	watcher *watchdir.Watcher
	fatal   chan error
}

// New constructs an agent from configuration. The job store may be nil when
// history recording is not wanted.
func New(cfg *config.Config, client signtool.Client, store *jobs.Store, notifier notifications.Service, logger *slog.Logger) (*Agent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("signing: config is required")
	}
	if client == nil {
		return nil, fmt.Errorf("signing: signtool client is required")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	in, out := handoff.Dirs(cfg.Signing.SharedDir)
	extensions := make(map[string]struct{})
	for _, ext := range cfg.SignExtensions() {
		extensions[strings.ToLower(ext)] = struct{}{}
	}

	return &Agent{
		cfg:        cfg,
		client:     client,
		store:      store,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "signing-agent"),
		inDir:      in,
		outDir:     out,
		extensions: extensions,
		queue:      dedup.New(),
		fatal:      make(chan error, 1),
	}, nil
}

// Start creates the shared directories when absent and begins watching the
// input directory. Files already present are picked up; the agent may have
// been down while the build host kept submitting.
func (a *Agent) Start(ctx context.Context) error {
	if err := handoff.EnsureDirs(a.cfg.Signing.SharedDir); err != nil {
		return err
	}

	interval := time.Duration(a.cfg.Signing.PollInterval) * time.Second
	watcher, err := watchdir.New(watchdir.Options{
		Dir:             a.inDir,
		IncludeExisting: true,
		Interval:        interval,
		OnFile: func(name string) {
			a.handleFile(ctx, name)
		},
		OnError: func(err error) {
			select {
			case a.fatal <- err:
			default:
			}
		},
		Logger: a.logger,
	})
	if err != nil {
		return err
	}
	a.watcher = watcher
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("watch input directory: %w", err)
	}

	a.logger.Info("signing agent started",
		logging.String("in_dir", a.inDir),
		logging.String("out_dir", a.outDir),
		logging.String("extensions", strings.Join(a.cfg.SignExtensions(), ",")),
	)
	return nil
}

// Fatal reports unrecoverable watch failures. Receiving from it means the
// agent has stopped observing the input directory and should be shut down.
func (a *Agent) Fatal() <-chan error {
	return a.fatal
}

// Stop halts the watch and drains in-flight signing work.
func (a *Agent) Stop() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.queue.Wait()
	a.logger.Info("signing agent stopped")
}

// handleFile filters and enqueues one detected file. Repeated detections of
// the same path are dropped by the queue; the poll-based watch re-reports
// nothing, but restarts of the watch within one process would.
func (a *Agent) handleFile(ctx context.Context, name string) {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := a.extensions[ext]; !ok {
		a.logger.Debug("ignoring non-signable file", logging.String(logging.FieldFile, name))
		return
	}

	path := filepath.Join(a.inDir, name)

	// The file can vanish between detection and processing; the build host
	// may retract a submission. Confirm it is still readable before
	// committing a queue slot.
	file, err := os.Open(path)
	if err != nil {
		a.logger.Warn("detected file is not readable, skipping",
			logging.Error(err),
			logging.String(logging.FieldFile, name),
		)
		return
	}
	file.Close()

	a.queue.Submit(func() {
		a.signFile(ctx, name, path)
	}, path)
}

// signFile signs one file and moves it to the output directory. Every
// failure is terminal for the file only.
func (a *Agent) signFile(ctx context.Context, name, path string) {
	if ctx.Err() != nil {
		return
	}

	logger := a.logger.With(logging.String(logging.FieldFile, name))
	logger.Info("signing file", logging.String(logging.FieldEventType, "signing_started"))
	if err := a.notifier.NotifySigningStarted(ctx, name); err != nil {
		logger.Warn("signing-started notification failed", logging.Error(err))
	}

	var jobID int64
	if a.store != nil {
		job, err := a.store.Add(ctx, name, path)
		if err != nil {
			logger.Warn("could not record signing job", logging.Error(err))
		} else {
			jobID = job.ID
			if err := a.store.MarkSigning(ctx, jobID); err != nil {
				logger.Warn("could not mark job signing", logging.Error(err))
			}
		}
	}

	started := time.Now()
	err := a.client.Sign(ctx, signtool.Request{
		Path:            path,
		TimestampURL:    a.cfg.Signing.TimestampURL,
		DigestAlgorithm: a.cfg.Signing.DigestAlgorithm,
		CertName:        a.cfg.Signing.CertName,
		CertFile:        a.cfg.Signing.CertFile,
		Timeout:         time.Duration(a.cfg.Signing.SignTimeout) * time.Second,
	})
	if err == nil {
		// Same filesystem as in, so the signed file becomes visible in out
		// atomically under its full name.
		err = os.Rename(path, filepath.Join(a.outDir, name))
		if err != nil {
			err = fmt.Errorf("publish signed file: %w", err)
		}
	}

	if err != nil {
		a.recordFailure(ctx, logger, jobID, name, err)
		return
	}

	duration := time.Since(started)
	if a.store != nil && jobID != 0 {
		if markErr := a.store.MarkSigned(ctx, jobID); markErr != nil {
			logger.Warn("could not mark job signed", logging.Error(markErr))
		}
	}
	logger.Info("file signed",
		logging.String(logging.FieldEventType, "signing_completed"),
		logging.Duration("duration", duration),
	)
	if err := a.notifier.NotifySigningCompleted(ctx, name, duration); err != nil {
		logger.Warn("signing-completed notification failed", logging.Error(err))
	}
}

func (a *Agent) recordFailure(ctx context.Context, logger *slog.Logger, jobID int64, name string, cause error) {
	logger.Error("signing failed",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "signing_failed"),
		logging.String(logging.FieldImpact, "file left unsigned in the input directory"),
	)
	if a.store != nil && jobID != 0 {
		if err := a.store.MarkFailed(ctx, jobID, cause.Error()); err != nil {
			logger.Warn("could not mark job failed", logging.Error(err))
		}
	}
	if err := a.notifier.NotifySigningFailed(ctx, name, cause); err != nil {
		logger.Warn("signing-failed notification failed", logging.Error(err))
	}
}
