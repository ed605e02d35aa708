package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration shared by both binaries.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Signing contains the cross-host signing handoff settings.
//
// SharedDir is the rendezvous root; the build host drops unsigned
// executables into <shared_dir>/in and collects signed ones from
// <shared_dir>/out. CertName and CertFile are mutually exclusive.
type Signing struct {
	SharedDir       string   `toml:"shared_dir"`
	CertName        string   `toml:"cert_name"`
	CertFile        string   `toml:"cert_file"`
	TimestampURL    string   `toml:"timestamp_url"`
	DigestAlgorithm string   `toml:"digest_algorithm"`
	SignTimeout     int      `toml:"sign_timeout"`
	PollInterval    int      `toml:"poll_interval"`
	Extensions      []string `toml:"extensions"`
}

// Build contains configuration for the external packaging toolchain.
type Build struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Timeout int      `toml:"timeout"`
	// ArtifactsDir is where the build tool writes installers, relative to
	// the source root.
	ArtifactsDir string `toml:"artifacts_dir"`
}

// GitHub contains configuration for the hosted-release API.
type GitHub struct {
	Token          string `toml:"token"`
	Owner          string `toml:"owner"`
	Repo           string `toml:"repo"`
	BaseURL        string `toml:"base_url"`
	UploadURL      string `toml:"upload_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Overrides contains configuration for organization-specific source overrides.
type Overrides struct {
	Dir string `toml:"dir"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Signing        bool   `toml:"signing"`
	Release        bool   `toml:"release"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for shipyard and signerd.
//
// Configuration sections by subsystem:
//   - Paths: staging and log directories
//   - Signing: shared handoff directory, certificate, signtool parameters
//   - Build: external packaging tool invocation
//   - GitHub: hosted release API credentials and endpoints
//   - Overrides: organization-specific source override tree
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Signing       Signing       `toml:"signing"`
	Build         Build         `toml:"build"`
	GitHub        GitHub        `toml:"github"`
	Overrides     Overrides     `toml:"overrides"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/shipyard/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shipyard.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Signing.SharedDir, err = expandPath(c.Signing.SharedDir); err != nil {
		return err
	}
	if c.Signing.CertFile, err = expandPath(c.Signing.CertFile); err != nil {
		return err
	}
	if c.Overrides.Dir, err = expandPath(c.Overrides.Dir); err != nil {
		return err
	}

	if token, ok := os.LookupEnv("GITHUB_TOKEN"); ok && strings.TrimSpace(c.GitHub.Token) == "" {
		c.GitHub.Token = strings.TrimSpace(token)
	}

	normalized := make([]string, 0, len(c.Signing.Extensions))
	for _, ext := range c.Signing.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	c.Signing.Extensions = normalized

	c.Signing.DigestAlgorithm = strings.ToLower(strings.TrimSpace(c.Signing.DigestAlgorithm))
	if strings.TrimSpace(c.Build.ArtifactsDir) == "" {
		c.Build.ArtifactsDir = defaultArtifactsDir
	}
	return nil
}

// EnsureDirectories creates the directories required for operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SigntoolBinary returns the code-signing executable name.
func (c *Config) SigntoolBinary() string {
	return "signtool"
}

// SignExtensions returns the executable extensions that trigger signing.
func (c *Config) SignExtensions() []string {
	if len(c.Signing.Extensions) > 0 {
		return c.Signing.Extensions
	}
	return []string{".exe", ".msi"}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
