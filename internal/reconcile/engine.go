package reconcile

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/Dylan-Perrill/Sora2-Tool/internal/domain"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/infra"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/providers/sora"
)

// GenerationClient is the remote video generation API surface the engine
// consumes. *sora.Client satisfies it.
type GenerationClient interface {
	Submit(ctx context.Context, req sora.SubmitRequest) (*sora.RemoteJob, error)
	FetchStatus(ctx context.Context, remoteJobID string) (*sora.RemoteStatus, error)
	DownloadArtifact(ctx context.Context, remoteJobID string) ([]byte, string, error)
}

// ArtifactStore is the durable object storage surface the engine consumes.
type ArtifactStore interface {
	PutVideo(ctx context.Context, key string, data []byte, contentType string) (string, error)
	PutReferenceImage(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Engine orchestrates job creation and reconciliation. It is reentrant:
// concurrent reconcile calls for the same job converge through the
// artifact-url idempotence check and last-write-wins repository semantics.
type Engine struct {
	repo   domain.JobRepository
	client GenerationClient
	store  ArtifactStore
	logger *infra.Logger
}

// NewEngine wires the engine with its collaborators.
func NewEngine(repo domain.JobRepository, client GenerationClient, store ArtifactStore, logger *infra.Logger) *Engine {
	return &Engine{repo: repo, client: client, store: store, logger: logger}
}

// CreateParams carries the user-facing inputs for a new job.
type CreateParams struct {
	Prompt          string
	Model           domain.VideoModel
	Resolution      string
	DurationSeconds int
}

// ReferenceImage is an optional input image supplied at creation time.
type ReferenceImage struct {
	Data        []byte
	Filename    string
	ContentType string
}

// CreateJob runs the full creation flow: optional reference image upload,
// record creation, remote submission, record update.
//
// When the remote submission fails the record is durably marked failed before
// the error is returned; in that case the returned job is the stored failed
// record so callers see both effects.
func (e *Engine) CreateJob(ctx context.Context, params CreateParams, image *ReferenceImage) (*domain.Job, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrInvalidRequest)
	}
	if err := domain.ValidateGeneration(params.Model, params.Resolution, params.DurationSeconds); err != nil {
		return nil, err
	}

	// Reference image first: a storage failure here aborts before any job
	// record or remote job exists.
	var referenceURL, referenceName string
	if image != nil && len(image.Data) > 0 {
		key := uuid.NewString() + referenceExtension(image)
		url, err := e.store.PutReferenceImage(ctx, key, image.Data, referenceContentType(image))
		if err != nil {
			return nil, fmt.Errorf("upload reference image: %w", err)
		}
		referenceURL = url
		referenceName = image.Filename
	}

	job := &domain.Job{
		Prompt:             params.Prompt,
		Model:              params.Model,
		Resolution:         params.Resolution,
		DurationSeconds:    params.DurationSeconds,
		Status:             domain.JobStatusPending,
		ReferenceImageURL:  referenceURL,
		ReferenceImageName: referenceName,
	}
	if err := e.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}

	submitReq := sora.SubmitRequest{
		Prompt:     params.Prompt,
		Model:      params.Model,
		Resolution: params.Resolution,
		Seconds:    params.DurationSeconds,
	}
	if image != nil && len(image.Data) > 0 {
		submitReq.ReferenceImage = &sora.ReferenceImage{
			Data:     image.Data,
			Filename: image.Filename,
			URL:      referenceURL,
		}
	} else if referenceURL != "" {
		submitReq.ReferenceImage = &sora.ReferenceImage{URL: referenceURL}
	}

	remote, err := e.client.Submit(ctx, submitReq)
	if err != nil {
		msg := messageFromError(err)
		failed := domain.JobStatusFailed
		stored, updateErr := e.repo.Update(ctx, job.ID, domain.JobUpdate{
			Status:       &failed,
			ErrorMessage: &msg,
		})
		if updateErr != nil {
			e.logger.Error().Err(updateErr).Str("job_id", job.ID).Msg("reconcile: failed to record submission failure")
			stored = job
		}
		return stored, fmt.Errorf("submit generation job: %w", err)
	}

	processing := domain.JobStatusProcessing
	updated, err := e.repo.Update(ctx, job.ID, domain.JobUpdate{
		Status:         &processing,
		RemoteJobID:    &remote.ID,
		RemoteMetadata: remote.Raw,
	})
	if err != nil {
		return nil, fmt.Errorf("record remote submission: %w", err)
	}
	e.logger.Info().
		Str("job_id", updated.ID).
		Str("remote_job_id", remote.ID).
		Msg("reconcile: job submitted")
	return updated, nil
}

// ReconcileJob fetches the remote status of one job and transitions the local
// record accordingly, including one-time artifact migration on completion.
//
// It never returns an error for remote-side transient issues: a failed status
// fetch leaves the record untouched and returns the last-known state. Only an
// unknown job id is a hard error.
func (e *Engine) ReconcileJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := e.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	if job.Status.IsTerminal() {
		return job, nil
	}
	if job.RemoteJobID == "" {
		// Create never reached remote submission; nothing to poll.
		return job, nil
	}

	remote, err := e.client.FetchStatus(ctx, job.RemoteJobID)
	if err != nil {
		// Transient remote unavailability must never produce a false
		// failure verdict. Keep the last-known state and try again on
		// the next poll.
		e.logger.Warn().Err(err).
			Str("job_id", job.ID).
			Str("remote_job_id", job.RemoteJobID).
			Msg("reconcile: status fetch failed, keeping last-known state")
		return job, nil
	}

	if remote.Error != nil {
		return e.markFailed(ctx, job, remoteErrorMessage(remote), remote.Raw)
	}

	switch classifyRemoteStatus(remote.Status) {
	case classCompleted:
		return e.migrateArtifact(ctx, job, remote)
	case classFailed:
		return e.markFailed(ctx, job, remoteErrorMessage(remote), remote.Raw)
	case classRunning:
		processing := domain.JobStatusProcessing
		return e.repo.Update(ctx, job.ID, domain.JobUpdate{
			Status:         &processing,
			RemoteMetadata: remote.Raw,
		})
	default:
		// Unrecognized remote status: refresh diagnostics only, leave
		// the local status untouched.
		e.logger.Debug().
			Str("job_id", job.ID).
			Str("remote_status", remote.Status).
			Msg("reconcile: unrecognized remote status")
		return e.repo.Update(ctx, job.ID, domain.JobUpdate{RemoteMetadata: remote.Raw})
	}
}

// migrateArtifact moves the finished binary into durable storage exactly once.
func (e *Engine) migrateArtifact(ctx context.Context, job *domain.Job, remote *sora.RemoteStatus) (*domain.Job, error) {
	completed := domain.JobStatusCompleted

	// A non-empty artifact URL means a prior reconcile call already migrated
	// this job; do not download or upload again.
	if job.ArtifactURL != "" {
		return e.repo.Update(ctx, job.ID, domain.JobUpdate{
			Status:         &completed,
			RemoteMetadata: remote.Raw,
		})
	}

	data, contentType, err := e.client.DownloadArtifact(ctx, job.RemoteJobID)
	if err != nil {
		return e.markFailed(ctx, job, "artifact download failed: "+messageFromError(err), remote.Raw)
	}

	key := videoKey(job, contentType)
	url, err := e.store.PutVideo(ctx, key, data, contentType)
	if err != nil {
		return e.markFailed(ctx, job, "artifact upload failed: "+err.Error(), remote.Raw)
	}

	updated, err := e.repo.Update(ctx, job.ID, domain.JobUpdate{
		Status:         &completed,
		ArtifactURL:    &url,
		RemoteMetadata: remote.Raw,
	})
	if err != nil {
		return nil, fmt.Errorf("record migrated artifact: %w", err)
	}
	e.logger.Info().
		Str("job_id", updated.ID).
		Str("artifact_url", url).
		Msg("reconcile: artifact migrated")
	return updated, nil
}

func (e *Engine) markFailed(ctx context.Context, job *domain.Job, message string, metadata []byte) (*domain.Job, error) {
	failed := domain.JobStatusFailed
	updated, err := e.repo.Update(ctx, job.ID, domain.JobUpdate{
		Status:         &failed,
		ErrorMessage:   &message,
		RemoteMetadata: metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("record job failure: %w", err)
	}
	e.logger.Info().
		Str("job_id", updated.ID).
		Str("error", message).
		Msg("reconcile: job failed")
	return updated, nil
}

// GetJob returns one job; unknown ids are ErrNotFound.
func (e *Engine) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := e.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return job, nil
}

// ListJobs returns up to limit jobs, newest first.
func (e *Engine) ListJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	return e.repo.List(ctx, limit)
}

// DeleteJob removes the local record only. It does not retract the remote job
// or remove the migrated artifact, and deleting an absent id succeeds.
func (e *Engine) DeleteJob(ctx context.Context, jobID string) error {
	return e.repo.Delete(ctx, jobID)
}

func remoteErrorMessage(remote *sora.RemoteStatus) string {
	if remote.Error != nil && strings.TrimSpace(remote.Error.Message) != "" {
		return remote.Error.Message
	}
	return "generation failed"
}

func messageFromError(err error) string {
	var reqErr *sora.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Message
	}
	return err.Error()
}

// videoKey builds the deterministic storage key for a finished video, so
// repeated migration attempts for the same job converge on one object.
func videoKey(job *domain.Job, contentType string) string {
	ext := ".mp4"
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "video/webm":
		ext = ".webm"
	case "video/quicktime":
		ext = ".mov"
	}
	return job.ID + "/" + job.RemoteJobID + ext
}

func referenceExtension(image *ReferenceImage) string {
	if image == nil {
		return ""
	}
	if ext := path.Ext(image.Filename); ext != "" {
		return strings.ToLower(ext)
	}
	return ".png"
}

func referenceContentType(image *ReferenceImage) string {
	if image.ContentType != "" {
		return image.ContentType
	}
	if ct := mime.TypeByExtension(referenceExtension(image)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
