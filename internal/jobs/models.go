package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a signing job.
type Status string

const (
	StatusPending Status = "pending"
	StatusSigning Status = "signing"
	StatusSigned  Status = "signed"
	StatusFailed  Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusSigning,
	StatusSigned,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Job represents one signing request observed by the agent.
type Job struct {
	ID           int64
	FileName     string
	SourcePath   string
	Status       Status
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// IsTerminal reports whether the job reached a final state.
func (j Job) IsTerminal() bool {
	return j.Status == StatusSigned || j.Status == StatusFailed
}
