package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ue_scraper/config"
	"ue_scraper/models"
)

func TestMaskConnectionString(t *testing.T) {
	assert.Equal(t, "postgres://ue:****@db:5432/ue", maskConnectionString("postgres://ue:secret@db:5432/ue"))
	assert.Equal(t, "postgres://ue:****@db/ue", maskConnectionString("postgres://ue:p@ss@db/ue"))
	assert.Equal(t, "postgres://db/ue", maskConnectionString("postgres://db/ue"))
	assert.Equal(t, "scraper.db", maskConnectionString("scraper.db"))
}

func TestBrowserConfig(t *testing.T) {
	bc := browserConfig(config.BrowserConfig{Headless: false, Timeout: 90 * time.Second, SlowMoMS: 250})
	assert.False(t, bc.Headless)
	assert.Equal(t, 90*time.Second, bc.Timeout)
	assert.Equal(t, 250*time.Millisecond, bc.SlowMo)
	assert.Equal(t, 1366, bc.ViewportWidth)
}

func TestSearchOptionsFlagsOverrideProfile(t *testing.T) {
	hi := 9000.0
	a := &app{cfg: &config.Config{Profiles: map[string]*config.Profile{
		"eng": {ID: "eng", Filters: config.ProfileFilter{Program: "Computer Engineering", Language: "Turkish", MaxPrice: &hi}},
	}}}

	t.Cleanup(func() { scrapeFilters.Language = "" })
	scrapeFilters.Language = "English"

	opts, err := searchOptions(a, "eng")
	assert.NoError(t, err)
	assert.Equal(t, "Computer Engineering", opts.Program)
	assert.Equal(t, "English", opts.Language)
	assert.Equal(t, 9000.0, *opts.MaxPrice)

	_, err = searchOptions(a, "missing")
	assert.Error(t, err)
}

func TestSearchOptionsEmpty(t *testing.T) {
	opts, err := searchOptions(&app{cfg: &config.Config{}}, "")
	assert.NoError(t, err)
	assert.Nil(t, opts)
}

func TestRenderTerms(t *testing.T) {
	var buf bytes.Buffer
	renderTerms(&buf, []models.Term{
		{TermID: "41", Name: "Fall 2026-2027", AcademicYear: "2026-2027", IsScraped: true, ProgramCount: 3},
	})

	out := buf.String()
	assert.Contains(t, out, "╭")
	assert.Contains(t, out, "LAST SCRAPED")
	assert.Contains(t, out, "Fall 2026-2027")
	assert.Contains(t, out, "2026-2027")
	assert.Contains(t, out, "true")
}

func TestRenderJobs(t *testing.T) {
	var buf bytes.Buffer
	renderJobs(&buf, []models.Job{
		{ID: "job-1", TermName: "Fall 2026-2027", Status: models.JobStatusFailed, Progress: models.JobProgress{Percentage: 50}, Error: "boom"},
	})

	out := buf.String()
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "-", "missing start time")
}
