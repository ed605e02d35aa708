package services

import (
	"errors"
	"fmt"
	"strings"
)

// Marker errors used with errors.Is to classify failures from external
// integrations. Wrap attaches exactly one of these to each error it builds.
var (
	// ErrExternalTool marks failures reported by an external binary.
	ErrExternalTool = errors.New("external tool failure")

	// ErrValidation marks malformed or rejected input.
	ErrValidation = errors.New("validation failure")

	// ErrConfiguration marks missing or invalid configuration. These are
	// precondition failures and are treated as fatal at startup.
	ErrConfiguration = errors.New("configuration failure")

	// ErrNotFound marks a missing resource (file, release, tag).
	ErrNotFound = errors.New("not found")

	// ErrTimeout marks an operation that exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrTransient marks failures worth retrying on a later item or attempt.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds a classified error for a service operation. The marker becomes
// matchable with errors.Is, component and operation identify the caller, and
// err (optional) is kept in the chain for unwrapping.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if err != nil {
		return fmt.Errorf("%s: %w (%w)", detail, marker, err)
	}
	return fmt.Errorf("%s: %w", detail, marker)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service error"
	}
	return strings.Join(parts, ": ")
}

// IsFatal reports whether err represents a precondition failure that should
// stop the process rather than be tolerated per item. Configuration and
// validation problems do not fix themselves between items.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrValidation)
}
