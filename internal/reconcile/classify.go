package reconcile

import "strings"

// statusClass is the closed local classification of the remote API's
// open-ended status vocabulary.
type statusClass int

const (
	classUnknown statusClass = iota
	classRunning
	classCompleted
	classFailed
)

// classifyRemoteStatus maps a remote status string onto the local state
// machine. Unrecognized values classify as unknown and must never be treated
// as failure; the job keeps its prior state and gets picked up again on the
// next poll.
func classifyRemoteStatus(remote string) statusClass {
	switch strings.ToLower(strings.TrimSpace(remote)) {
	case "completed":
		return classCompleted
	case "failed":
		return classFailed
	case "queued", "in_progress", "processing":
		return classRunning
	default:
		return classUnknown
	}
}
