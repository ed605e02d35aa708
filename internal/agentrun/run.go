// Package agentrun wires up and runs the signerd process: logging, the
// single-instance lock, the job store, and the signing agent itself.
package agentrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"

	"shipyard/internal/config"
	"shipyard/internal/deps"
	"shipyard/internal/jobs"
	"shipyard/internal/logging"
	"shipyard/internal/notifications"
	"shipyard/internal/services/signtool"
	"shipyard/internal/signing"
)

// Options configures agent process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the signerd runtime loop and blocks until shutdown.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Misconfiguration and a missing signing tool are startup failures; an
	// agent that cannot sign must not consume files.
	if err := cfg.ValidateCertificate(); err != nil {
		return err
	}
	missing := deps.MissingRequired(deps.CheckBinaries(deps.ForSigner(cfg)))
	if len(missing) > 0 {
		return fmt.Errorf("missing required dependency: %s (%s)", missing[0].Name, missing[0].Detail)
	}

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.NewForProcess("signerd", cfg.Paths.LogDir, level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "signerd.lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another signerd instance is already running")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release agent lock", logging.Error(err))
		}
	}()

	pidPath := filepath.Join(cfg.Paths.LogDir, "signerd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logDependencySnapshot(logger, cfg)

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	client := signtool.NewCLI(signtool.WithBinary(cfg.SigntoolBinary()))

	agent, err := signing.New(cfg, client, store, notifier, logger)
	if err != nil {
		return fmt.Errorf("create signing agent: %w", err)
	}
	if err := agent.Start(signalCtx); err != nil {
		return fmt.Errorf("start signing agent: %w", err)
	}
	defer agent.Stop()

	select {
	case <-signalCtx.Done():
		logger.Info("signerd shutting down")
		return nil
	case err := <-agent.Fatal():
		logger.Error("signing agent failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "agent_failed"),
			logging.String(logging.FieldErrorHint, "check shared directory access"),
			logging.String(logging.FieldImpact, "no further files will be signed"),
		)
		return err
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	binary := cfg.SigntoolBinary()
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("signtool_available", binaryAvailable(binary)),
		logging.String("signtool_binary", binary),
		logging.Bool("cert_name_present", strings.TrimSpace(cfg.Signing.CertName) != ""),
		logging.Bool("cert_file_present", strings.TrimSpace(cfg.Signing.CertFile) != ""),
		logging.String("timestamp_url", cfg.Signing.TimestampURL),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
