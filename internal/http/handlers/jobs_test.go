package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Dylan-Perrill/Sora2-Tool/internal/domain"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/infra"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/providers/sora"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/reconcile"
)

type fakeJobService struct {
	createFn    func(ctx context.Context, params reconcile.CreateParams, image *reconcile.ReferenceImage) (*domain.Job, error)
	reconcileFn func(ctx context.Context, jobID string) (*domain.Job, error)
	getFn       func(ctx context.Context, jobID string) (*domain.Job, error)
	listFn      func(ctx context.Context, limit int) ([]domain.Job, error)
	deleteFn    func(ctx context.Context, jobID string) error

	reconcileCalls int
	getCalls       int
}

func (f *fakeJobService) CreateJob(ctx context.Context, params reconcile.CreateParams, image *reconcile.ReferenceImage) (*domain.Job, error) {
	return f.createFn(ctx, params, image)
}

func (f *fakeJobService) ReconcileJob(ctx context.Context, jobID string) (*domain.Job, error) {
	f.reconcileCalls++
	return f.reconcileFn(ctx, jobID)
}

func (f *fakeJobService) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	f.getCalls++
	return f.getFn(ctx, jobID)
}

func (f *fakeJobService) ListJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	return f.listFn(ctx, limit)
}

func (f *fakeJobService) DeleteJob(ctx context.Context, jobID string) error {
	return f.deleteFn(ctx, jobID)
}

type fakeProber struct {
	result sora.ProbeResult
}

func (f *fakeProber) ProbeConnectivity(ctx context.Context) sora.ProbeResult {
	return f.result
}

func newTestRouter(svc JobService, prober ConnectivityProber) http.Handler {
	logger := infra.NewLogger("test")
	app := NewApp(svc, prober, &logger)

	r := chi.NewRouter()
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/connectivity", app.Connectivity)
	r.Post("/v1/jobs", app.CreateJob)
	r.Get("/v1/jobs", app.ListJobs)
	r.Get("/v1/jobs/{id}", app.GetJob)
	r.Post("/v1/jobs/{id}/reconcile", app.ReconcileJob)
	r.Delete("/v1/jobs/{id}", app.DeleteJob)
	return r
}

func sampleJob(id string) *domain.Job {
	return &domain.Job{
		ID:              id,
		Prompt:          "a fox in the snow",
		Model:           domain.ModelSora2,
		Resolution:      "1280x720",
		DurationSeconds: 8,
		Status:          domain.JobStatusPending,
	}
}

func TestCreateJobJSON(t *testing.T) {
	var gotParams reconcile.CreateParams
	svc := &fakeJobService{
		createFn: func(ctx context.Context, params reconcile.CreateParams, image *reconcile.ReferenceImage) (*domain.Job, error) {
			gotParams = params
			if image != nil {
				t.Fatalf("unexpected reference image on JSON create")
			}
			job := sampleJob("job-1")
			job.Prompt = params.Prompt
			return job, nil
		},
	}
	router := newTestRouter(svc, &fakeProber{})

	body := `{"prompt":"a fox in the snow","model":"sora-2","resolution":"1280x720","seconds":8}`
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if gotParams.Model != domain.ModelSora2 || gotParams.DurationSeconds != 8 {
		t.Fatalf("params not decoded: %+v", gotParams)
	}
	var resp jobResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "job-1" || resp.Status != "pending" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateJobMultipartCarriesReferenceImage(t *testing.T) {
	var gotImage *reconcile.ReferenceImage
	svc := &fakeJobService{
		createFn: func(ctx context.Context, params reconcile.CreateParams, image *reconcile.ReferenceImage) (*domain.Job, error) {
			gotImage = image
			return sampleJob("job-2"), nil
		},
	}
	router := newTestRouter(svc, &fakeProber{})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("prompt", "a fox in the snow")
	_ = form.WriteField("model", "sora-2")
	_ = form.WriteField("resolution", "1280x720")
	_ = form.WriteField("seconds", "8")
	part, err := form.CreateFormFile("reference_image", "fox.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte("png-bytes")); err != nil {
		t.Fatal(err)
	}
	_ = form.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	if gotImage == nil {
		t.Fatalf("reference image not forwarded")
	}
	if gotImage.Filename != "fox.png" || string(gotImage.Data) != "png-bytes" {
		t.Fatalf("unexpected image: %+v", gotImage)
	}
}

func TestCreateJobInvalidRequest(t *testing.T) {
	svc := &fakeJobService{
		createFn: func(ctx context.Context, params reconcile.CreateParams, image *reconcile.ReferenceImage) (*domain.Job, error) {
			return nil, fmt.Errorf("%w: unsupported resolution", domain.ErrInvalidRequest)
		},
	}
	router := newTestRouter(svc, &fakeProber{})

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{"prompt":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateJobSubmissionFailureReturnsStoredRecord(t *testing.T) {
	failed := sampleJob("job-3")
	failed.Status = domain.JobStatusFailed
	failed.ErrorMessage = "invalid prompt"
	svc := &fakeJobService{
		createFn: func(ctx context.Context, params reconcile.CreateParams, image *reconcile.ReferenceImage) (*domain.Job, error) {
			return failed, fmt.Errorf("submit: %w", &sora.RequestError{StatusCode: 400, Message: "invalid prompt"})
		},
	}
	router := newTestRouter(svc, &fakeProber{})

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{"prompt":"x","model":"sora-2","resolution":"1280x720","seconds":8}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var resp struct {
		Job jobResponse `json:"job"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Job.ID != "job-3" || resp.Job.Status != "failed" {
		t.Fatalf("stored failed record not returned: %+v", resp.Job)
	}
}

func TestGetJobRefreshTriggersReconcile(t *testing.T) {
	svc := &fakeJobService{
		getFn: func(ctx context.Context, jobID string) (*domain.Job, error) {
			return sampleJob(jobID), nil
		},
		reconcileFn: func(ctx context.Context, jobID string) (*domain.Job, error) {
			job := sampleJob(jobID)
			job.Status = domain.JobStatusProcessing
			return job, nil
		},
	}
	router := newTestRouter(svc, &fakeProber{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/job-4", nil))
	if rec.Code != http.StatusOK || svc.reconcileCalls != 0 {
		t.Fatalf("plain get: status %d, reconcile calls %d", rec.Code, svc.reconcileCalls)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/job-4?refresh=1", nil))
	if rec.Code != http.StatusOK || svc.reconcileCalls != 1 {
		t.Fatalf("refresh get: status %d, reconcile calls %d", rec.Code, svc.reconcileCalls)
	}
	var resp jobResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "processing" {
		t.Fatalf("refresh did not surface reconciled record: %+v", resp)
	}
}

func TestGetJobNotFound(t *testing.T) {
	svc := &fakeJobService{
		getFn: func(ctx context.Context, jobID string) (*domain.Job, error) {
			return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		},
	}
	router := newTestRouter(svc, &fakeProber{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListJobsLimit(t *testing.T) {
	var gotLimit int
	svc := &fakeJobService{
		listFn: func(ctx context.Context, limit int) ([]domain.Job, error) {
			gotLimit = limit
			return []domain.Job{*sampleJob("a"), *sampleJob("b")}, nil
		},
	}
	router := newTestRouter(svc, &fakeProber{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotLimit != 2 {
		t.Fatalf("limit = %d, want 2", gotLimit)
	}
	var resp struct {
		Items []jobResponse `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(resp.Items))
	}
}

func TestListJobsRejectsBadLimit(t *testing.T) {
	router := newTestRouter(&fakeJobService{}, &fakeProber{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs?limit=nope", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteJobAlwaysNoContent(t *testing.T) {
	svc := &fakeJobService{
		deleteFn: func(ctx context.Context, jobID string) error { return nil },
	}
	router := newTestRouter(svc, &fakeProber{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/jobs/anything", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestConnectivityReportsProbe(t *testing.T) {
	router := newTestRouter(&fakeJobService{}, &fakeProber{result: sora.ProbeResult{OK: false, Message: "401 unauthorized"}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/connectivity", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.OK || resp.Message != "401 unauthorized" {
		t.Fatalf("unexpected probe payload: %+v", resp)
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&fakeJobService{}, &fakeProber{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
