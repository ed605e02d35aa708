package signtool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shipyard/internal/services"
)

func TestBuildArgsCertName(t *testing.T) {
	args, err := buildArgs(Request{
		Path:            "/shared/in/update.exe",
		TimestampURL:    "http://timestamp.digicert.com",
		DigestAlgorithm: "sha256",
		CertName:        "Acme Corp",
	})
	if err != nil {
		t.Fatalf("build args: %v", err)
	}
	want := []string{"sign", "/tr", "http://timestamp.digicert.com", "/td", "sha256", "/fd", "sha256", "/n", "Acme Corp", "/shared/in/update.exe"}
	if strings.Join(args, " ") != strings.Join(want, " ") {
		t.Fatalf("args = %v, want %v", args, want)
	}
}

func TestBuildArgsCertFile(t *testing.T) {
	args, err := buildArgs(Request{
		Path:         "a.exe",
		TimestampURL: "http://ts.example",
		CertFile:     "/secrets/cert.pfx",
	})
	if err != nil {
		t.Fatalf("build args: %v", err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "/f /secrets/cert.pfx") {
		t.Fatalf("missing cert file flag: %v", args)
	}
	if strings.Contains(joined, "/n ") {
		t.Fatalf("unexpected cert name flag: %v", args)
	}
}

func TestBuildArgsRejectsBothCertSources(t *testing.T) {
	_, err := buildArgs(Request{
		Path:         "a.exe",
		TimestampURL: "http://ts.example",
		CertName:     "Acme",
		CertFile:     "/secrets/cert.pfx",
	})
	if err == nil {
		t.Fatal("expected mutual exclusion error")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBuildArgsRequiresCert(t *testing.T) {
	_, err := buildArgs(Request{Path: "a.exe", TimestampURL: "http://ts.example"})
	if err == nil {
		t.Fatal("expected missing certificate error")
	}
}

func writeStub(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "signtool")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestSignSuccess(t *testing.T) {
	stub := writeStub(t, "#!/bin/sh\nexit 0\n")
	cli := NewCLI(WithBinary(stub))

	err := cli.Sign(context.Background(), Request{
		Path:         filepath.Join(t.TempDir(), "update.exe"),
		TimestampURL: "http://ts.example",
		CertName:     "Acme",
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
}

func TestSignFailureIncludesOutput(t *testing.T) {
	stub := writeStub(t, "#!/bin/sh\necho 'SignTool Error: token not found' >&2\nexit 1\n")
	cli := NewCLI(WithBinary(stub))

	err := cli.Sign(context.Background(), Request{
		Path:         "update.exe",
		TimestampURL: "http://ts.example",
		CertName:     "Acme",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "token not found") {
		t.Fatalf("error missing tool output: %v", err)
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestSignTimeout(t *testing.T) {
	stub := writeStub(t, "#!/bin/sh\nsleep 5\n")
	cli := NewCLI(WithBinary(stub))

	start := time.Now()
	err := cli.Sign(context.Background(), Request{
		Path:         "update.exe",
		TimestampURL: "http://ts.example",
		CertName:     "Acme",
		Timeout:      100 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("unexpected error: %v", err)
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("timeout not enforced")
	}
}
