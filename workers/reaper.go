package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"ue_scraper/models"
)

// JobStore is what the reaper needs from the persistence gateway.
type JobStore interface {
	ListActiveJobs(ctx context.Context) ([]models.Job, error)
	AppendJobLog(ctx context.Context, jobID string, level models.LogLevel, message string) error
	SetJobStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error
}

// ReaperWorker fails jobs left pending or running by a crashed process. A job
// is stale when nothing has touched it for staleAfter.
type ReaperWorker struct {
	store      JobStore
	staleAfter time.Duration
	triggerCh  chan struct{}
	now        func() time.Time
}

func NewReaperWorker(store JobStore, staleAfter time.Duration) *ReaperWorker {
	return &ReaperWorker{
		store:      store,
		staleAfter: staleAfter,
		triggerCh:  make(chan struct{}, 1),
		now:        time.Now,
	}
}

// Trigger causes the worker to run immediately
func (w *ReaperWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *ReaperWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.Reap(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("Reaper worker stopping")
			return
		case <-ticker.C:
			w.Reap(ctx)
		case <-w.triggerCh:
			log.Println("Reaper worker triggered manually")
			w.Reap(ctx)
		}
	}
}

// Reap fails every stale active job and returns how many it failed.
func (w *ReaperWorker) Reap(ctx context.Context) int {
	jobs, err := w.store.ListActiveJobs(ctx)
	if err != nil {
		log.Printf("Reaper: query error: %v", err)
		return 0
	}

	cutoff := w.now().Add(-w.staleAfter)
	reaped := 0
	for _, job := range jobs {
		if job.UpdatedAt.After(cutoff) {
			continue
		}

		msg := fmt.Sprintf("Job abandoned: no activity since %s", job.UpdatedAt.UTC().Format(time.RFC3339))
		if err := w.store.AppendJobLog(ctx, job.ID, models.LogLevelError, msg); err != nil {
			log.Printf("Reaper: log error for %s: %v", job.ID, err)
		}
		if err := w.store.SetJobStatus(ctx, job.ID, models.JobStatusFailed, msg); err != nil {
			log.Printf("Reaper: failed to fail job %s: %v", job.ID, err)
			continue
		}
		reaped++
	}

	if reaped > 0 {
		log.Printf("Reaper: failed %d stale jobs", reaped)
	}
	return reaped
}
