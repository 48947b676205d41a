package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ue_scraper/config"
	"ue_scraper/models"
	"ue_scraper/search"
)

func TestNormalize(t *testing.T) {
	term := &models.Term{TermID: "41", Name: "Fall 2026-2027 Intake"}
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	cards := []search.Card{
		{ID: "P-1", ProgramName: "Medicine", TuitionFee: 25000, Currency: "EUR"},
		{ID: "", ProgramName: "Orphan"},
		{ID: "P-2", ProgramName: "Law", AcademicYear: "2027-2028"},
		{ID: "P-1", ProgramName: "Medicine (again)"},
	}

	programs := Normalize(cards, term, now)
	require.Len(t, programs, 2)

	assert.Equal(t, "Medicine", programs[0].ProgramName, "first occurrence wins")
	assert.Equal(t, "41", programs[0].TermID)
	assert.Equal(t, "2026-2027", programs[0].AcademicYear, "falls back to the term name")
	assert.Equal(t, "2027-2028", programs[1].AcademicYear)
	assert.Equal(t, now, programs[0].LastScraped)
	assert.True(t, programs[0].IsActive)
	assert.Len(t, programs[0].Fingerprint, 32)
	assert.NotEqual(t, programs[0].Fingerprint, programs[1].Fingerprint)
}

func TestNormalizeEmpty(t *testing.T) {
	programs := Normalize(nil, &models.Term{TermID: "41"}, time.Now())
	assert.NotNil(t, programs)
	assert.Empty(t, programs)
}

func TestProfileOptions(t *testing.T) {
	assert.Nil(t, ProfileOptions(nil))
	assert.Nil(t, ProfileOptions(&config.Profile{ID: "all"}), "a profile without filters searches everything")

	ceiling := 15000.0
	opts := ProfileOptions(&config.Profile{
		ID:      "engineering",
		Filters: config.ProfileFilter{Program: "Computer Engineering", Language: "English", MaxPrice: &ceiling},
	})
	require.NotNil(t, opts)
	assert.Equal(t, "Computer Engineering", opts.Program)
	assert.Equal(t, "English", opts.Language)
	require.NotNil(t, opts.MaxPrice)
	assert.Equal(t, 15000.0, *opts.MaxPrice)
	assert.Nil(t, opts.MinPrice)
}
