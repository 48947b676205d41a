package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ue_scraper/config"
	"ue_scraper/models"
	"ue_scraper/search"
)

type fakeRunner struct {
	mu        sync.Mutex
	calls     []string
	cancelled []string
	opts      *search.Options
	block     chan struct{}
}

func (r *fakeRunner) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *fakeRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeRunner) ScrapeAndSaveTerms(ctx context.Context, userID string) (string, error) {
	r.record("sync:" + userID)
	if r.block != nil {
		<-r.block
	}
	return "job-sync", nil
}

func (r *fakeRunner) StartScrapingForTerm(ctx context.Context, termID, userID string, opts *search.Options) (string, error) {
	r.record("term:" + termID)
	r.mu.Lock()
	r.opts = opts
	r.mu.Unlock()
	return "job-" + termID, nil
}

func (r *fakeRunner) ScrapeAllUnscrapedTerms(ctx context.Context, userID string, opts *search.Options) ([]string, error) {
	r.record("all:" + userID)
	return []string{"job-1"}, nil
}

func (r *fakeRunner) CancelJob(ctx context.Context, jobID string) error {
	r.mu.Lock()
	r.cancelled = append(r.cancelled, jobID)
	r.mu.Unlock()
	return nil
}

type fakeQueue struct {
	pending   []models.Command
	processed []int64
}

func (q *fakeQueue) add(id int64, cmd models.CommandType, params models.CommandParams) {
	b, _ := json.Marshal(params)
	q.pending = append(q.pending, models.Command{ID: id, Command: cmd, Params: b})
}

func (q *fakeQueue) GetPendingCommands() ([]models.Command, error) {
	var out []models.Command
	for _, c := range q.pending {
		done := false
		for _, id := range q.processed {
			done = done || id == c.ID
		}
		if !done {
			out = append(out, c)
		}
	}
	return out, nil
}

func (q *fakeQueue) MarkCommandProcessed(id int64) error {
	q.processed = append(q.processed, id)
	return nil
}

type countingTrigger struct{ n int }

func (c *countingTrigger) Trigger() { c.n++ }

func testConfig() *config.Config {
	hi := 20000.0
	return &config.Config{
		Profiles: map[string]*config.Profile{
			"english": {ID: "english", Filters: config.ProfileFilter{Language: "English", MaxPrice: &hi}},
		},
	}
}

func TestRunBatch(t *testing.T) {
	r := &fakeRunner{}
	reaper := &countingTrigger{}
	s := New(testConfig(), r, &fakeQueue{})
	s.SetReaper(reaper)

	assert.True(t, s.RunBatch(context.Background()))
	assert.Equal(t, []string{"sync:scheduler", "all:scheduler"}, r.Calls())
	assert.Equal(t, 1, reaper.n)
}

func TestProcessCommands(t *testing.T) {
	r := &fakeRunner{}
	q := &fakeQueue{}
	q.add(1, models.CmdCancelJob, models.CommandParams{JobID: "job-9"})
	q.add(2, models.CmdScrapeTerm, models.CommandParams{TermID: "41", Profile: "english"})
	s := New(testConfig(), r, q)

	s.ProcessCommands(context.Background())
	s.Wait()

	assert.Equal(t, []string{"job-9"}, r.cancelled)
	assert.Equal(t, []string{"term:41"}, r.Calls())
	require.NotNil(t, r.opts)
	assert.Equal(t, "English", r.opts.Language)
	assert.Equal(t, []int64{1, 2}, q.processed)
}

func TestInvalidCommandsAreConsumed(t *testing.T) {
	q := &fakeQueue{}
	q.add(1, models.CmdScrapeTerm, models.CommandParams{})
	q.add(2, models.CmdScrapeAll, models.CommandParams{Profile: "missing"})
	q.add(3, "reboot", models.CommandParams{})
	r := &fakeRunner{}
	s := New(testConfig(), r, q)

	s.ProcessCommands(context.Background())
	s.Wait()

	assert.Empty(t, r.Calls())
	assert.Equal(t, []int64{1, 2, 3}, q.processed)
}

func TestRunsAreSerialized(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	q := &fakeQueue{}
	q.add(1, models.CmdSyncTerms, models.CommandParams{InitiatedBy: "ops"})
	s := New(testConfig(), r, q)

	s.ProcessCommands(context.Background())
	require.Eventually(t, func() bool { return len(r.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	// While the sync is blocked, new run triggers are refused.
	assert.False(t, s.RunBatch(context.Background()))
	q.add(2, models.CmdScrapeAll, models.CommandParams{})
	s.ProcessCommands(context.Background())
	assert.Equal(t, []int64{1}, q.processed, "scrape_all stays queued")

	close(r.block)
	s.Wait()

	s.ProcessCommands(context.Background())
	s.Wait()
	assert.Equal(t, []int64{1, 2}, q.processed)
	assert.Equal(t, []string{"sync:ops", "sync:command", "all:command"}, r.Calls())
}
