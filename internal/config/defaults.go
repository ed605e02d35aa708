package config

const (
	defaultStagingDir     = "~/.local/share/shipyard/staging"
	defaultLogDir         = "~/.local/share/shipyard/logs"
	defaultTimestampURL   = "http://timestamp.digicert.com"
	defaultDigest         = "sha256"
	defaultSignTimeout    = 1800
	defaultPollInterval   = 1
	defaultBuildTimeout   = 3600
	defaultGitHubBaseURL  = "https://api.github.com"
	defaultGitHubUpload   = "https://uploads.github.com"
	defaultGitHubTimeout  = 60
	defaultNotifyTimeout  = 10
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultBuildCommand   = "electron-builder"
	defaultArtifactsDir   = "dist"
	defaultOverridesDir   = "~/.config/shipyard/overrides"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Signing: Signing{
			TimestampURL:    defaultTimestampURL,
			DigestAlgorithm: defaultDigest,
			SignTimeout:     defaultSignTimeout,
			PollInterval:    defaultPollInterval,
			Extensions:      []string{".exe", ".msi"},
		},
		Build: Build{
			Command:      defaultBuildCommand,
			Timeout:      defaultBuildTimeout,
			ArtifactsDir: defaultArtifactsDir,
		},
		GitHub: GitHub{
			BaseURL:        defaultGitHubBaseURL,
			UploadURL:      defaultGitHubUpload,
			RequestTimeout: defaultGitHubTimeout,
		},
		Overrides: Overrides{
			Dir: defaultOverridesDir,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Signing:        true,
			Release:        true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
