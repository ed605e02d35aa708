package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"shipyard/internal/config"
)

// Requirement defines an external dependency Shipyard relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// ForSigner returns the external binaries the signing agent needs. The
// signing tool is mandatory; the agent refuses to start without it.
func ForSigner(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "signtool",
			Command:     cfg.SigntoolBinary(),
			Description: "platform code-signing tool",
		},
	}
}

// ForBuilder returns the external binaries the release pipeline needs.
func ForBuilder(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "build tool",
			Command:     cfg.Build.Command,
			Description: "desktop application packager",
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the subset of statuses that are both required and
// unavailable.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Optional && !status.Available {
			missing = append(missing, status)
		}
	}
	return missing
}
