package storage

import (
	"context"
	"errors"
	"fmt"

	"ue_scraper/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Gateway is everything the orchestrator persists. SQLiteStore and
// PostgresStore both implement it.
type Gateway interface {
	UpsertTerm(ctx context.Context, t models.Term) (*models.Term, error)
	GetTerm(ctx context.Context, termID string) (*models.Term, error)
	ListTerms(ctx context.Context) ([]models.Term, error)
	ListUnscrapedTerms(ctx context.Context) ([]models.Term, error)
	MarkTermScraped(ctx context.Context, termID string, programCount int) (*models.Term, error)

	ReplaceFilterFields(ctx context.Context, ff models.FilterFields) error
	GetFilterFields(ctx context.Context, termID string) (*models.FilterFields, error)

	BulkUpsertPrograms(ctx context.Context, programs []models.Program) (models.UpsertResult, error)
	CountPrograms(ctx context.Context, termID string) (int, error)

	CreateJob(ctx context.Context, j models.NewJob) (string, error)
	AppendJobLog(ctx context.Context, jobID string, level models.LogLevel, message string) error
	SetJobStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error
	SetJobProgress(ctx context.Context, jobID string, p models.JobProgress) error
	SetJobProgramsScraped(ctx context.Context, jobID string, n int) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, limit int) ([]models.Job, error)
	ListActiveJobs(ctx context.Context) ([]models.Job, error)
	FindActiveJob(ctx context.Context, termID string) (*models.Job, error)

	Close() error
}

var (
	_ Gateway = (*SQLiteStore)(nil)
	_ Gateway = (*PostgresStore)(nil)
)

func checkTransition(from, to models.JobStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
