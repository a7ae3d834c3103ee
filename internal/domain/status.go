package domain

// BuildStatus is the canonical lower-case status of a tracked build.
// The CI system's upper-case result strings are normalized at the oracle
// boundary; nothing else in the system compares raw CI strings.
type BuildStatus string

const (
	StatusRunning BuildStatus = "running"
	StatusSuccess BuildStatus = "success"
	StatusFailure BuildStatus = "failure"
	StatusAborted BuildStatus = "aborted"

	// StatusUnknown means the CI system could not give a definitive answer
	// (unreachable, timeout, malformed payload). It is never persisted as a
	// tracked-job status and never produces a notification.
	StatusUnknown BuildStatus = "unknown"
)

// IsTerminal reports whether the status is a final build outcome.
// Terminal states are absorbing: no transition out of them exists.
func (s BuildStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusAborted:
		return true
	default:
		return false
	}
}

// StatusFromCIResult maps a CI build payload to a BuildStatus.
// building=true wins over any result field; an unrecognized or empty
// result on a finished build is Unknown, not terminal.
func StatusFromCIResult(building bool, result string) BuildStatus {
	if building {
		return StatusRunning
	}
	switch result {
	case "SUCCESS":
		return StatusSuccess
	case "FAILURE":
		return StatusFailure
	case "ABORTED":
		return StatusAborted
	default:
		return StatusUnknown
	}
}
