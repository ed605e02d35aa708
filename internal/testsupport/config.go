package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"shipyard/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Signing.SharedDir = filepath.Join(base, "shared")
	cfgVal.Signing.CertName = "Shipyard Test"
	cfgVal.Overrides.Dir = ""
	cfgVal.GitHub.Owner = "acme"
	cfgVal.GitHub.Repo = "desktop-app"
	cfgVal.GitHub.Token = "test-token"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCertFile switches the test config from a store certificate to a file
// certificate.
func WithCertFile(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Signing.CertName = ""
		b.cfg.Signing.CertFile = path
	}
}

// WithSharedDir overrides the signing rendezvous directory.
func WithSharedDir(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Signing.SharedDir = path
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default shipyard external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"signtool", "electron-builder"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}
