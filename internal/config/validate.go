package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSigning(); err != nil {
		return err
	}
	if err := c.validateBuild(); err != nil {
		return err
	}
	if err := c.validateGitHub(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSigning() error {
	if strings.TrimSpace(c.Signing.SharedDir) == "" {
		return errors.New("signing.shared_dir must be set")
	}
	if strings.TrimSpace(c.Signing.CertName) != "" && strings.TrimSpace(c.Signing.CertFile) != "" {
		return errors.New("signing.cert_name and signing.cert_file are mutually exclusive")
	}
	if strings.TrimSpace(c.Signing.TimestampURL) == "" {
		return errors.New("signing.timestamp_url must be set")
	}
	if c.Signing.DigestAlgorithm != "sha256" {
		return fmt.Errorf("signing.digest_algorithm: unsupported value %q (only sha256 is supported)", c.Signing.DigestAlgorithm)
	}
	if c.Signing.SignTimeout <= 0 {
		return errors.New("signing.sign_timeout must be positive (seconds)")
	}
	if c.Signing.PollInterval <= 0 {
		return errors.New("signing.poll_interval must be positive (seconds)")
	}
	if len(c.SignExtensions()) == 0 {
		return errors.New("signing.extensions must list at least one extension")
	}
	return nil
}

// ValidateCertificate enforces the signing-host requirement that exactly one
// certificate source is configured. The build host never signs locally, so
// this is checked by signerd at startup rather than in Validate.
func (c *Config) ValidateCertificate() error {
	name := strings.TrimSpace(c.Signing.CertName)
	file := strings.TrimSpace(c.Signing.CertFile)
	if name == "" && file == "" {
		return errors.New("one of signing.cert_name or signing.cert_file must be set")
	}
	return nil
}

func (c *Config) validateBuild() error {
	if strings.TrimSpace(c.Build.Command) == "" {
		return errors.New("build.command must be set")
	}
	if c.Build.Timeout <= 0 {
		return errors.New("build.timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateGitHub() error {
	if strings.TrimSpace(c.GitHub.BaseURL) == "" {
		return errors.New("github.base_url must be set")
	}
	if strings.TrimSpace(c.GitHub.UploadURL) == "" {
		return errors.New("github.upload_url must be set")
	}
	if c.GitHub.RequestTimeout <= 0 {
		return errors.New("github.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive (seconds)")
	}
	return nil
}
