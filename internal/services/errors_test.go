package services

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestWrapMatchesMarkerAndCause(t *testing.T) {
	cause := fmt.Errorf("exit status 1")
	err := Wrap(ErrExternalTool, "signtool", "sign", "signing failed", cause)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool match, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain, got %v", err)
	}
	for _, want := range []string{"signtool", "sign", "signing failed"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := Wrap(ErrValidation, "signtool", "sign", "path is required", nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation match, got %v", err)
	}
	if strings.Contains(err.Error(), "(") {
		t.Fatalf("unexpected cause suffix in %q", err.Error())
	}
}

func TestWrapEmptyParts(t *testing.T) {
	err := Wrap(ErrTransient, "", "", "", nil)
	if !strings.Contains(err.Error(), "service error") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		marker error
		fatal  bool
	}{
		{ErrConfiguration, true},
		{ErrValidation, true},
		{ErrExternalTool, false},
		{ErrTimeout, false},
		{ErrTransient, false},
		{ErrNotFound, false},
	}
	for _, tc := range cases {
		err := Wrap(tc.marker, "component", "op", "message", nil)
		if got := IsFatal(err); got != tc.fatal {
			t.Errorf("IsFatal(%v) = %v, want %v", tc.marker, got, tc.fatal)
		}
	}
}
