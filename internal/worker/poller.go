package worker

import (
	"context"
	"sync"
	"time"

	"github.com/Dylan-Perrill/Sora2-Tool/internal/domain"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/infra"
)

// Reconciler is the engine surface the poller drives.
type Reconciler interface {
	ListJobs(ctx context.Context, limit int) ([]domain.Job, error)
	ReconcileJob(ctx context.Context, jobID string) (*domain.Job, error)
}

// Poller periodically reconciles every job in a non-terminal state. It holds
// no locks: overlap between ticks, or with manual refreshes from the API, is
// tolerated because the engine is reentrant and migration is idempotent.
type Poller struct {
	engine   Reconciler
	interval time.Duration
	limit    int
	logger   *infra.Logger
}

// NewPoller constructs a poller over the given engine.
func NewPoller(engine Reconciler, interval time.Duration, limit int, logger *infra.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if limit <= 0 {
		limit = 100
	}
	return &Poller{engine: engine, interval: interval, limit: limit, logger: logger}
}

// Run polls until the context is canceled. The first pass happens
// immediately; later passes follow the configured interval.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Msg("poller: started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("poller: stopped")
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce reconciles every currently non-terminal job. Each job runs in its
// own goroutine; one job's failure never aborts or delays the others.
func (p *Poller) PollOnce(ctx context.Context) {
	jobs, err := p.engine.ListJobs(ctx, p.limit)
	if err != nil {
		p.logger.Error().Err(err).Msg("poller: list jobs failed")
		return
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		if job.Status.IsTerminal() || job.RemoteJobID == "" {
			continue
		}
		wg.Add(1)
		go func(jobID string) {
			defer wg.Done()
			if _, err := p.engine.ReconcileJob(ctx, jobID); err != nil {
				p.logger.Error().Err(err).Str("job_id", jobID).Msg("poller: reconcile failed")
			}
		}(job.ID)
	}
	wg.Wait()
}
