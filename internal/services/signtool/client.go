package signtool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"shipyard/internal/services"
)

var commandContext = exec.CommandContext

// Request describes one signing invocation.
type Request struct {
	// Path is the executable to sign in place.
	Path string
	// TimestampURL is the timestamp authority passed via /tr.
	TimestampURL string
	// DigestAlgorithm is used for both the file digest (/fd) and the
	// timestamp digest (/td).
	DigestAlgorithm string
	// CertName selects a certificate-store entry (/n). Mutually exclusive
	// with CertFile.
	CertName string
	// CertFile selects a certificate file (/f).
	CertFile string
	// Timeout bounds the invocation; hardware-token interaction can take
	// many minutes. Zero means no timeout.
	Timeout time.Duration
}

// Client defines code-signing behaviour.
type Client interface {
	Sign(ctx context.Context, req Request) error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the platform signtool command.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "signtool"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Sign invokes the signing tool on req.Path. The file keeps its name; the
// tool rewrites it in place. Captured output is folded into the returned
// error on failure.
func (c *CLI) Sign(ctx context.Context, req Request) error {
	args, err := buildArgs(req)
	if err != nil {
		return err
	}

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := commandContext(runCtx, c.binary, args...) //nolint:gosec
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			message := fmt.Sprintf("sign %s: timed out after %s", req.Path, req.Timeout)
			return services.Wrap(services.ErrTimeout, "signtool", "sign", message, nil)
		}
		message := fmt.Sprintf("sign %s", req.Path)
		if detail := strings.TrimSpace(output.String()); detail != "" {
			message = fmt.Sprintf("sign %s: %s", req.Path, detail)
		}
		return services.Wrap(services.ErrExternalTool, "signtool", "sign", message, err)
	}
	return nil
}

func buildArgs(req Request) ([]string, error) {
	if strings.TrimSpace(req.Path) == "" {
		return nil, services.Wrap(services.ErrValidation, "signtool", "sign", "target path required", nil)
	}
	if strings.TrimSpace(req.TimestampURL) == "" {
		return nil, services.Wrap(services.ErrValidation, "signtool", "sign", "timestamp URL required", nil)
	}

	digest := strings.TrimSpace(req.DigestAlgorithm)
	if digest == "" {
		digest = "sha256"
	}

	certName := strings.TrimSpace(req.CertName)
	certFile := strings.TrimSpace(req.CertFile)
	if certName != "" && certFile != "" {
		return nil, services.Wrap(services.ErrValidation, "signtool", "sign", "certificate name and certificate file are mutually exclusive", nil)
	}
	if certName == "" && certFile == "" {
		return nil, services.Wrap(services.ErrValidation, "signtool", "sign", "certificate name or certificate file required", nil)
	}

	args := []string{"sign", "/tr", req.TimestampURL, "/td", digest, "/fd", digest}
	if certName != "" {
		args = append(args, "/n", certName)
	} else {
		args = append(args, "/f", certFile)
	}
	args = append(args, req.Path)
	return args, nil
}

var _ Client = (*CLI)(nil)
