package worker

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dylan-Perrill/Sora2-Tool/internal/domain"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/infra"
)

type fakeReconciler struct {
	mu         sync.Mutex
	jobs       []domain.Job
	reconciled []string
	failFor    map[string]error
}

func (f *fakeReconciler) ListJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	return f.jobs, nil
}

func (f *fakeReconciler) ReconcileJob(ctx context.Context, jobID string) (*domain.Job, error) {
	f.mu.Lock()
	f.reconciled = append(f.reconciled, jobID)
	f.mu.Unlock()
	if err, ok := f.failFor[jobID]; ok {
		return nil, err
	}
	return &domain.Job{ID: jobID}, nil
}

func newTestPoller(engine Reconciler) *Poller {
	discard := zerolog.New(io.Discard)
	logger := infra.Logger(discard)
	return NewPoller(engine, time.Second, 100, &logger)
}

func TestPollOnceSkipsTerminalAndUnsubmittedJobs(t *testing.T) {
	engine := &fakeReconciler{
		jobs: []domain.Job{
			{ID: "a", Status: domain.JobStatusProcessing, RemoteJobID: "r-a"},
			{ID: "b", Status: domain.JobStatusCompleted, RemoteJobID: "r-b"},
			{ID: "c", Status: domain.JobStatusFailed, RemoteJobID: "r-c"},
			{ID: "d", Status: domain.JobStatusPending},
			{ID: "e", Status: domain.JobStatusPending, RemoteJobID: "r-e"},
		},
	}
	poller := newTestPoller(engine)

	poller.PollOnce(context.Background())

	sort.Strings(engine.reconciled)
	want := []string{"a", "e"}
	if len(engine.reconciled) != len(want) {
		t.Fatalf("reconciled %v, want %v", engine.reconciled, want)
	}
	for i, id := range want {
		if engine.reconciled[i] != id {
			t.Fatalf("reconciled %v, want %v", engine.reconciled, want)
		}
	}
}

func TestPollOnceIsolatesPerJobFailures(t *testing.T) {
	engine := &fakeReconciler{
		jobs: []domain.Job{
			{ID: "a", Status: domain.JobStatusProcessing, RemoteJobID: "r-a"},
			{ID: "b", Status: domain.JobStatusProcessing, RemoteJobID: "r-b"},
			{ID: "c", Status: domain.JobStatusProcessing, RemoteJobID: "r-c"},
		},
		failFor: map[string]error{"b": errors.New("boom")},
	}
	poller := newTestPoller(engine)

	poller.PollOnce(context.Background())

	if len(engine.reconciled) != 3 {
		t.Fatalf("reconciled %d jobs, want all 3 despite one failure", len(engine.reconciled))
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	engine := &fakeReconciler{}
	poller := newTestPoller(engine)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not stop after cancellation")
	}
}
