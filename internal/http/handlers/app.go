package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Dylan-Perrill/Sora2-Tool/internal/domain"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/infra"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/providers/sora"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/reconcile"
)

// JobService is the slice of the reconciliation engine the HTTP surface needs.
type JobService interface {
	CreateJob(ctx context.Context, params reconcile.CreateParams, image *reconcile.ReferenceImage) (*domain.Job, error)
	ReconcileJob(ctx context.Context, jobID string) (*domain.Job, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, limit int) ([]domain.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// ConnectivityProber reports whether the remote generation API is reachable
// with the configured credentials.
type ConnectivityProber interface {
	ProbeConnectivity(ctx context.Context) sora.ProbeResult
}

type App struct {
	Jobs   JobService
	Prober ConnectivityProber
	Log    *infra.Logger
}

func NewApp(jobs JobService, prober ConnectivityProber, log *infra.Logger) *App {
	return &App{Jobs: jobs, Prober: prober, Log: log}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, msg string) {
	a.json(w, status, map[string]any{"error": map[string]string{"code": code, "message": msg}})
}

// serviceError translates engine errors into HTTP responses.
func (a *App) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrConstraint):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrStorageConflict):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	default:
		var reqErr *sora.RequestError
		if errors.As(err, &reqErr) {
			a.error(w, http.StatusBadGateway, "upstream", reqErr.Message)
			return
		}
		a.Log.Error().Err(err).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
