package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PROFILES_DIR", t.TempDir())
	for _, k := range []string{"PORTAL_EMAIL", "SCRAPER_EMAIL", "BROWSER_HEADLESS", "BROWSER_TIMEOUT", "TERM_DELAY_MS", "DATABASE_URL", "S3_BUCKET", "SCRAPE_INTERVAL", "PORTAL_LOGIN_URL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultLoginURL, cfg.Portal.LoginURL)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 60*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Scraper.TermDelay)
	assert.Equal(t, "scraper.db", cfg.Database.DBPath)
	assert.False(t, cfg.S3.Enabled())
	assert.Zero(t, cfg.Scheduler.Interval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROFILES_DIR", t.TempDir())
	t.Setenv("PORTAL_EMAIL", "")
	t.Setenv("SCRAPER_EMAIL", "ops@example.com")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("BROWSER_TIMEOUT", "45000")
	t.Setenv("TERM_DELAY_MS", "250")
	t.Setenv("SCRAPE_INTERVAL", "12h")
	t.Setenv("S3_BUCKET", "ue-artifacts")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ops@example.com", cfg.Portal.Email)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 45*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Scraper.TermDelay)
	assert.Equal(t, 12*time.Hour, cfg.Scheduler.Interval)
	assert.True(t, cfg.S3.Enabled())
}

func TestLoadZeroTermDelay(t *testing.T) {
	t.Setenv("PROFILES_DIR", t.TempDir())
	t.Setenv("TERM_DELAY_MS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Scraper.TermDelay)
}

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PROFILES_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "medicine.yaml"), []byte(`
name: Medicine in Istanbul
terms: ["Fall 2026-2027"]
filters:
  program: Medicine
  campus: Istanbul
  min_price: 10000
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Profiles, 1)

	p, err := cfg.Profile("medicine")
	require.NoError(t, err)
	assert.Equal(t, "Medicine", p.Filters.Program)
	require.NotNil(t, p.Filters.MinPrice)
	assert.Equal(t, 10000.0, *p.Filters.MinPrice)
	assert.Nil(t, p.Filters.MaxPrice)

	_, err = cfg.Profile("missing")
	assert.Error(t, err)
}
