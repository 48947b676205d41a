package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusTransitions(t *testing.T) {
	assert.True(t, JobStatusPending.CanTransition(JobStatusRunning))
	assert.True(t, JobStatusRunning.CanTransition(JobStatusCompleted))
	assert.True(t, JobStatusRunning.CanTransition(JobStatusFailed))
	assert.True(t, JobStatusPending.CanTransition(JobStatusCancelled))

	assert.False(t, JobStatusPending.CanTransition(JobStatusCompleted), "must run before completing")
	assert.False(t, JobStatusRunning.CanTransition(JobStatusPending))
	for _, terminal := range []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
		assert.True(t, terminal.IsTerminal())
		assert.False(t, terminal.CanTransition(JobStatusRunning), "%s is terminal", terminal)
	}
	assert.False(t, JobStatusRunning.IsTerminal())
}

func TestNewJobProgress(t *testing.T) {
	assert.Equal(t, JobProgress{CurrentPage: 2, TotalPages: 5, Percentage: 40}, NewJobProgress(2, 5))
	assert.Equal(t, 33, NewJobProgress(1, 3).Percentage)
	assert.Equal(t, 0, NewJobProgress(0, 0).Percentage)
	assert.Equal(t, 100, NewJobProgress(7, 5).Percentage)
}

func TestFilterFieldsDedupe(t *testing.T) {
	ff := FilterFields{
		Universities: []string{"Istinye University", "Bahcesehir University", "Istinye University"},
		Degrees:      []string{"Bachelor", "Bachelor"},
	}.Dedupe()

	assert.Equal(t, []string{"Istinye University", "Bahcesehir University"}, ff.Universities)
	assert.Equal(t, []string{"Bachelor"}, ff.Degrees)
	assert.Empty(t, ff.Campuses)
	assert.NotNil(t, ff.Campuses)
}

func TestCommandTypeValid(t *testing.T) {
	assert.True(t, CmdScrapeAll.Valid())
	assert.False(t, CommandType("pause").Valid())
}
