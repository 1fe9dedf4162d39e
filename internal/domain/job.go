package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// VideoModel enumerates the remote generation models this tool can target.
type VideoModel string

const (
	ModelSora2    VideoModel = "sora-2"
	ModelSora2Pro VideoModel = "sora-2-pro"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further automatic transitions occur.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Allowed resolutions per model. The base model accepts the 720p pair only;
// the pro model additionally accepts the portrait/landscape 1792 pair.
var modelResolutions = map[VideoModel][]string{
	ModelSora2:    {"1280x720", "720x1280"},
	ModelSora2Pro: {"1280x720", "720x1280", "1024x1792", "1792x1024"},
}

// AllowedDurations lists the second-counts the remote API accepts.
var AllowedDurations = []int{4, 8, 12}

// ValidateGeneration checks the model/resolution/duration combination before
// any network call. The remote API remains the final authority; this is the
// advisory layer.
func ValidateGeneration(model VideoModel, resolution string, seconds int) error {
	allowed, ok := modelResolutions[model]
	if !ok {
		return fmt.Errorf("%w: unsupported model %q", ErrInvalidRequest, model)
	}
	found := false
	for _, r := range allowed {
		if r == resolution {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: resolution %q is not available for model %q", ErrInvalidRequest, resolution, model)
	}
	okDuration := false
	for _, d := range AllowedDurations {
		if d == seconds {
			okDuration = true
			break
		}
	}
	if !okDuration {
		return fmt.Errorf("%w: duration %d seconds is not supported", ErrInvalidRequest, seconds)
	}
	return nil
}

// Job tracks one video generation request end-to-end. The local record is the
// single source of truth read back by every consumer; the remote job is only
// ever observed through reconciliation.
type Job struct {
	ID                 string
	Prompt             string
	Model              VideoModel
	Resolution         string
	DurationSeconds    int
	Status             JobStatus
	RemoteJobID        string
	ArtifactURL        string
	ErrorMessage       string
	RemoteMetadata     json.RawMessage
	ReferenceImageURL  string
	ReferenceImageName string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// JobUpdate carries a partial mutation. Nil fields are left untouched; the
// repository bumps updated_at on every apply.
type JobUpdate struct {
	Status         *JobStatus
	RemoteJobID    *string
	ArtifactURL    *string
	ErrorMessage   *string
	RemoteMetadata json.RawMessage
}
