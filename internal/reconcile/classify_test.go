package reconcile

import "testing"

func TestClassifyRemoteStatus(t *testing.T) {
	cases := map[string]statusClass{
		"completed":   classCompleted,
		"COMPLETED":   classCompleted,
		"failed":      classFailed,
		"queued":      classRunning,
		"in_progress": classRunning,
		"processing":  classRunning,
		" queued ":    classRunning,
		"archived":    classUnknown,
		"moderation":  classUnknown,
		"":            classUnknown,
	}
	for remote, want := range cases {
		if got := classifyRemoteStatus(remote); got != want {
			t.Fatalf("classifyRemoteStatus(%q) = %d, want %d", remote, got, want)
		}
	}
}
