package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"ue_scraper/models"
)

func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in -short mode")
	}

	ctx := context.Background()
	testcontainers.Logger = log.New(io.Discard, "", 0)

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "ue",
				"POSTGRES_PASSWORD": "ue",
				"POSTGRES_DB":       "ue_scraper",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { pg.Terminate(context.Background()) })

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://ue:ue@%s:%s/ue_scraper?sslmode=disable", host, port.Port())
	store, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgresStore(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	t.Run("terms", func(t *testing.T) {
		_, err := store.UpsertTerm(ctx, models.Term{TermID: "41", Name: "Fall", IsActive: true})
		require.NoError(t, err)
		_, err = store.MarkTermScraped(ctx, "41", 3)
		require.NoError(t, err)

		term, err := store.UpsertTerm(ctx, models.Term{TermID: "41", Name: "Fall 2026", IsActive: true})
		require.NoError(t, err)
		assert.True(t, term.IsScraped)
		assert.Equal(t, "Fall 2026", term.Name)

		_, err = store.MarkTermScraped(ctx, "missing", 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("programs", func(t *testing.T) {
		batch := []models.Program{sampleProgram("41", "P-1", 100), sampleProgram("41", "P-2", 200)}
		res, err := store.BulkUpsertPrograms(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, 2, res.UpsertedCount)

		res, err = store.BulkUpsertPrograms(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, models.UpsertResult{ModifiedCount: 2}, res)

		n, err := store.CountPrograms(ctx, "41")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("filter fields", func(t *testing.T) {
		require.NoError(t, store.ReplaceFilterFields(ctx, models.FilterFields{
			TermID:    "41",
			Degrees:   []string{"Master", "Master", "PhD"},
			Languages: []string{"English"},
		}))
		ff, err := store.GetFilterFields(ctx, "41")
		require.NoError(t, err)
		assert.Equal(t, []string{"Master", "PhD"}, ff.Degrees)
		assert.Empty(t, ff.Campuses)
	})

	t.Run("jobs", func(t *testing.T) {
		id, err := store.CreateJob(ctx, models.NewJob{TermID: "41", TermName: "Fall"})
		require.NoError(t, err)

		require.NoError(t, store.SetJobStatus(ctx, id, models.JobStatusRunning, ""))
		require.NoError(t, store.AppendJobLog(ctx, id, models.LogLevelInfo, "Starting scrape"))
		require.NoError(t, store.SetJobStatus(ctx, id, models.JobStatusCompleted, ""))
		assert.ErrorIs(t, store.SetJobStatus(ctx, id, models.JobStatusFailed, "late"), ErrInvalidTransition)

		job, err := store.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, job.Status)
		assert.NotNil(t, job.StartedAt)
		assert.NotNil(t, job.CompletedAt)
		require.Len(t, job.Logs, 1)

		active, err := store.FindActiveJob(ctx, "41")
		require.NoError(t, err)
		assert.Nil(t, active)
	})
}
