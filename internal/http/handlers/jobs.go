package handlers

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dylan-Perrill/Sora2-Tool/internal/domain"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/reconcile"
)

// maxCreateBodyBytes bounds the multipart body; reference images are small
// stills, not videos.
const maxCreateBodyBytes = 32 << 20

type createJobRequest struct {
	Prompt     string `json:"prompt"`
	Model      string `json:"model"`
	Resolution string `json:"resolution"`
	Seconds    int    `json:"seconds"`
}

type jobResponse struct {
	ID                 string          `json:"id"`
	Prompt             string          `json:"prompt"`
	Model              string          `json:"model"`
	Resolution         string          `json:"resolution"`
	DurationSeconds    int             `json:"duration_seconds"`
	Status             string          `json:"status"`
	RemoteJobID        string          `json:"remote_job_id,omitempty"`
	ArtifactURL        string          `json:"artifact_url,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	RemoteMetadata     json.RawMessage `json:"remote_metadata,omitempty"`
	ReferenceImageURL  string          `json:"reference_image_url,omitempty"`
	ReferenceImageName string          `json:"reference_image_name,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func toJobResponse(job *domain.Job) jobResponse {
	return jobResponse{
		ID:                 job.ID,
		Prompt:             job.Prompt,
		Model:              string(job.Model),
		Resolution:         job.Resolution,
		DurationSeconds:    job.DurationSeconds,
		Status:             string(job.Status),
		RemoteJobID:        job.RemoteJobID,
		ArtifactURL:        job.ArtifactURL,
		ErrorMessage:       job.ErrorMessage,
		RemoteMetadata:     job.RemoteMetadata,
		ReferenceImageURL:  job.ReferenceImageURL,
		ReferenceImageName: job.ReferenceImageName,
		CreatedAt:          job.CreatedAt,
		UpdatedAt:          job.UpdatedAt,
	}
}

// CreateJob accepts either a JSON body or a multipart form. The multipart
// form carries the same fields plus an optional reference_image file part.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	params, image, ok := a.decodeCreate(w, r)
	if !ok {
		return
	}

	job, err := a.Jobs.CreateJob(r.Context(), params, image)
	if err != nil {
		// A non-nil job alongside the error means the record was durably
		// marked failed after the remote submission was rejected.
		if job != nil {
			a.json(w, http.StatusBadGateway, map[string]any{
				"error": map[string]string{"code": "upstream", "message": job.ErrorMessage},
				"job":   toJobResponse(job),
			})
			return
		}
		a.serviceError(w, err)
		return
	}
	a.json(w, http.StatusCreated, toJobResponse(job))
}

func (a *App) decodeCreate(w http.ResponseWriter, r *http.Request) (reconcile.CreateParams, *reconcile.ReferenceImage, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req createJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
			return reconcile.CreateParams{}, nil, false
		}
		return reconcile.CreateParams{
			Prompt:          req.Prompt,
			Model:           domain.VideoModel(req.Model),
			Resolution:      req.Resolution,
			DurationSeconds: req.Seconds,
		}, nil, true
	}

	if err := r.ParseMultipartForm(maxCreateBodyBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return reconcile.CreateParams{}, nil, false
	}
	seconds, _ := strconv.Atoi(r.FormValue("seconds"))
	params := reconcile.CreateParams{
		Prompt:          r.FormValue("prompt"),
		Model:           domain.VideoModel(r.FormValue("model")),
		Resolution:      r.FormValue("resolution"),
		DurationSeconds: seconds,
	}

	file, header, err := r.FormFile("reference_image")
	if err == http.ErrMissingFile {
		return params, nil, true
	}
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid reference_image part")
		return reconcile.CreateParams{}, nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read reference_image")
		return reconcile.CreateParams{}, nil, false
	}
	return params, &reconcile.ReferenceImage{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}, true
}

// GetJob returns one job. With ?refresh=1 the remote status is reconciled
// before the record is returned.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}

	var (
		job *domain.Job
		err error
	)
	if refresh := r.URL.Query().Get("refresh"); refresh == "1" || refresh == "true" {
		job, err = a.Jobs.ReconcileJob(r.Context(), jobID)
	} else {
		job, err = a.Jobs.GetJob(r.Context(), jobID)
	}
	if err != nil {
		a.serviceError(w, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	jobs, err := a.Jobs.ListJobs(r.Context(), limit)
	if err != nil {
		a.serviceError(w, err)
		return
	}
	items := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, toJobResponse(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// ReconcileJob forces one reconciliation pass for a job.
func (a *App) ReconcileJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	job, err := a.Jobs.ReconcileJob(r.Context(), jobID)
	if err != nil {
		a.serviceError(w, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// DeleteJob removes the local record. Absent ids are a no-op, so the response
// is 204 either way.
func (a *App) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	if err := a.Jobs.DeleteJob(r.Context(), jobID); err != nil {
		a.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
