// Package release orchestrates the build-host pipeline: fetch source at a
// tag, apply organization overrides, run the external build tool, route
// Windows installers through the cross-host signing handoff, and publish
// the artifacts to a hosted release.
package release

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"shipyard/internal/config"
	"shipyard/internal/logging"
	"shipyard/internal/notifications"
	"shipyard/internal/overrides"
	"shipyard/internal/services/github"
)

// ReleaseAPI is the subset of the GitHub client the pipeline calls.
type ReleaseAPI interface {
	ResolveTag(ctx context.Context, tag string) (string, error)
	DownloadTarball(ctx context.Context, ref, dest string) error
	GetReleaseByTag(ctx context.Context, tag string) (*github.Release, error)
	CreateRelease(ctx context.Context, tag, name, body string) (*github.Release, error)
	ListAssets(ctx context.Context, releaseID int64) ([]github.Asset, error)
	DeleteAsset(ctx context.Context, assetID int64) error
	UploadAsset(ctx context.Context, releaseID int64, name, filePath string) (*github.Asset, error)
}

// Signer routes one file through the cross-host signing handoff and brings
// the signed result back.
type Signer interface {
	Submit(ctx context.Context, path string) (string, error)
	Retrieve(signedPath, dest string) error
}

// Pipeline runs one release end to end.
type Pipeline struct {
	cfg      *config.Config
	api      ReleaseAPI
	signer   Signer
	notifier notifications.Service
	logger   *slog.Logger

	commandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// New constructs a pipeline. The signer may be nil when no shared signing
// directory is configured; Windows artifacts are then published unsigned.
func New(cfg *config.Config, api ReleaseAPI, signer Signer, notifier notifications.Service, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("release: config is required")
	}
	if api == nil {
		return nil, fmt.Errorf("release: github client is required")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		cfg:            cfg,
		api:            api,
		signer:         signer,
		notifier:       notifier,
		logger:         logging.NewComponentLogger(logger, "release"),
		commandContext: exec.CommandContext,
	}, nil
}

// Result summarizes a finished release run.
type Result struct {
	Tag       string
	Commit    string
	ReleaseID int64
	Assets    []string
}

// Run executes the full pipeline for one tag. The staging directory is
// removed on the way out regardless of outcome.
func (p *Pipeline) Run(ctx context.Context, tag string) (*Result, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, fmt.Errorf("release: tag is required")
	}
	logger := p.logger.With(logging.String("tag", tag))

	staging := filepath.Join(p.cfg.Paths.StagingDir, uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)
	logger.Info("release started", logging.String("staging", staging))

	commit, err := p.api.ResolveTag(ctx, tag)
	if err != nil {
		return nil, p.fail(ctx, logger, "resolve tag", err)
	}
	logger.Info("tag resolved", logging.String("commit", commit))

	sourceDir, err := p.fetchSource(ctx, commit, staging)
	if err != nil {
		return nil, p.fail(ctx, logger, "fetch source", err)
	}

	if err := overrides.Apply(p.cfg.Overrides.Dir, sourceDir); err != nil {
		return nil, p.fail(ctx, logger, "apply overrides", err)
	}

	if err := p.build(ctx, logger, sourceDir); err != nil {
		return nil, p.fail(ctx, logger, "build", err)
	}

	artifacts, err := p.collectArtifacts(sourceDir)
	if err != nil {
		return nil, p.fail(ctx, logger, "collect artifacts", err)
	}
	if len(artifacts) == 0 {
		return nil, p.fail(ctx, logger, "collect artifacts",
			fmt.Errorf("no artifacts found under %s", filepath.Join(sourceDir, p.cfg.Build.ArtifactsDir)))
	}
	logger.Info("artifacts collected", logging.Int("count", len(artifacts)))

	if err := p.signArtifacts(ctx, logger, artifacts); err != nil {
		return nil, p.fail(ctx, logger, "sign artifacts", err)
	}

	releaseID, names, err := p.publish(ctx, logger, tag, artifacts)
	if err != nil {
		return nil, p.fail(ctx, logger, "publish", err)
	}

	logger.Info("release published",
		logging.String(logging.FieldEventType, "release_published"),
		logging.Int64("release_id", releaseID),
		logging.Int("assets", len(names)),
	)
	if err := p.notifier.NotifyReleasePublished(ctx, tag, len(names)); err != nil {
		logger.Warn("release notification failed", logging.Error(err))
	}

	return &Result{Tag: tag, Commit: commit, ReleaseID: releaseID, Assets: names}, nil
}

func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, stage string, err error) error {
	wrapped := fmt.Errorf("%s: %w", stage, err)
	logger.Error("release failed",
		logging.Error(wrapped),
		logging.String(logging.FieldEventType, "release_failed"),
		logging.String("stage", stage),
	)
	if notifyErr := p.notifier.NotifyError(ctx, wrapped, "release"); notifyErr != nil {
		logger.Warn("error notification failed", logging.Error(notifyErr))
	}
	return wrapped
}

// fetchSource downloads and unpacks the tarball for commit into staging and
// returns the source root.
func (p *Pipeline) fetchSource(ctx context.Context, commit, staging string) (string, error) {
	tarballPath := filepath.Join(staging, "source.tar.gz")
	if err := p.api.DownloadTarball(ctx, commit, tarballPath); err != nil {
		return "", err
	}
	sourceDir := filepath.Join(staging, "source")
	if err := extractTarball(tarballPath, sourceDir); err != nil {
		return "", err
	}
	return sourceDir, nil
}

func (p *Pipeline) build(ctx context.Context, logger *slog.Logger, sourceDir string) error {
	timeout := time.Duration(p.cfg.Build.Timeout) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := p.commandContext(ctx, p.cfg.Build.Command, p.cfg.Build.Args...)
	cmd.Dir = sourceDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("build timed out after %s", timeout)
		}
		return fmt.Errorf("%s failed: %w: %s", p.cfg.Build.Command, err, tail(output, 2048))
	}
	logger.Info("build completed", logging.String("command", p.cfg.Build.Command))
	return nil
}

// collectArtifacts lists regular files in the build output directory,
// sorted for stable upload order.
func (p *Pipeline) collectArtifacts(sourceDir string) ([]string, error) {
	dir := filepath.Join(sourceDir, p.cfg.Build.ArtifactsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var artifacts []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		artifacts = append(artifacts, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(artifacts)
	return artifacts, nil
}

// signArtifacts routes every signable artifact through the handoff and
// replaces it in place with the signed copy.
func (p *Pipeline) signArtifacts(ctx context.Context, logger *slog.Logger, artifacts []string) error {
	if p.signer == nil {
		logger.Warn("no signer configured, publishing unsigned artifacts")
		return nil
	}
	signable := make(map[string]struct{}, len(p.cfg.SignExtensions()))
	for _, ext := range p.cfg.SignExtensions() {
		signable[ext] = struct{}{}
	}
	for _, artifact := range artifacts {
		ext := strings.ToLower(filepath.Ext(artifact))
		if _, ok := signable[ext]; !ok {
			continue
		}
		name := filepath.Base(artifact)
		logger.Info("submitting artifact for signing", logging.String(logging.FieldFile, name))
		signed, err := p.signer.Submit(ctx, artifact)
		if err != nil {
			return fmt.Errorf("sign %s: %w", name, err)
		}
		if err := p.signer.Retrieve(signed, artifact); err != nil {
			return fmt.Errorf("retrieve signed %s: %w", name, err)
		}
		logger.Info("artifact signed", logging.String(logging.FieldFile, name))
	}
	return nil
}

// publish uploads the artifacts to the release for tag, creating the
// release when absent and replacing same-named assets.
func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, tag string, artifacts []string) (int64, []string, error) {
	rel, err := p.api.GetReleaseByTag(ctx, tag)
	if err != nil {
		return 0, nil, err
	}
	if rel == nil {
		rel, err = p.api.CreateRelease(ctx, tag, tag, "")
		if err != nil {
			return 0, nil, err
		}
		logger.Info("release created", logging.Int64("release_id", rel.ID))
	}

	existing, err := p.api.ListAssets(ctx, rel.ID)
	if err != nil {
		return 0, nil, err
	}
	byName := make(map[string]github.Asset, len(existing))
	for _, asset := range existing {
		byName[asset.Name] = asset
	}

	var names []string
	for _, artifact := range artifacts {
		name := filepath.Base(artifact)
		if stale, ok := byName[name]; ok {
			if err := p.api.DeleteAsset(ctx, stale.ID); err != nil {
				return 0, nil, err
			}
		}
		if _, err := p.api.UploadAsset(ctx, rel.ID, name, artifact); err != nil {
			return 0, nil, err
		}
		names = append(names, name)
		logger.Info("asset uploaded", logging.String(logging.FieldFile, name))
	}
	return rel.ID, names, nil
}

// extractTarball unpacks a gzipped tarball into dest, stripping the single
// top-level directory GitHub puts into source tarballs.
func extractTarball(tarballPath, dest string) error {
	file, err := os.Open(tarballPath)
	if err != nil {
		return fmt.Errorf("open tarball: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("read tarball: %w", err)
	}
	defer gz.Close()

	reader := tar.NewReader(gz)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tarball entry: %w", err)
		}

		rel := stripLeadingComponent(header.Name)
		if rel == "" {
			continue
		}
		if !filepath.IsLocal(rel) {
			return fmt.Errorf("tarball entry escapes destination: %q", header.Name)
		}
		target := filepath.Join(dest, rel)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, reader); err != nil {
				out.Close()
				return fmt.Errorf("extract %s: %w", rel, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
		default:
			// Symlinks and the rest are not expected in source tarballs.
		}
	}
}

func stripLeadingComponent(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	if idx := strings.IndexByte(name, '/'); idx >= 0 {
		return filepath.FromSlash(name[idx+1:])
	}
	return ""
}

func tail(output []byte, limit int) string {
	text := strings.TrimSpace(string(output))
	if len(text) <= limit {
		return text
	}
	return "..." + text[len(text)-limit:]
}
