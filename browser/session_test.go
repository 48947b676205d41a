package browser

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ue_scraper/scrapeerr"
)

func TestNewSessionAppliesDefaults(t *testing.T) {
	s := NewSession(Config{Headless: true})

	assert.Equal(t, 30*time.Second, s.Timeout())
	assert.Equal(t, 1366, s.cfg.ViewportWidth)
	assert.Equal(t, 768, s.cfg.ViewportHeight)
	assert.Contains(t, s.cfg.UserAgent, "Chrome/120")
	assert.Equal(t, "en-US,en;q=0.9", s.cfg.AcceptLanguage)
	assert.Contains(t, s.cfg.Args, "--disable-blink-features=AutomationControlled")
}

func TestOperationsRequireInitialize(t *testing.T) {
	s := NewSession(DefaultConfig())
	assert.False(t, s.IsReady())

	err := s.NavigateTo("https://partner.unitededucation.com/Account/Login/", WaitLoad)
	require.Error(t, err)
	assert.ErrorIs(t, err, scrapeerr.ErrInitialization)

	_, err = s.Content()
	assert.ErrorIs(t, err, scrapeerr.ErrInitialization)
	assert.ErrorIs(t, s.Click("#kt_sign_in_submit"), scrapeerr.ErrInitialization)
	assert.ErrorIs(t, s.WaitForSelector("#Email", WaitOptions{Visible: true}), scrapeerr.ErrInitialization)
	_, err = s.GetCookies()
	assert.ErrorIs(t, err, scrapeerr.ErrInitialization)
	assert.Equal(t, "", s.URL())
}

func TestScreenshotAndCloseAreSafe(t *testing.T) {
	s := NewSession(DefaultConfig())

	assert.NotPanics(t, func() { s.TakeScreenshot(filepath.Join(t.TempDir(), "x.png")) })
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.False(t, s.IsReady())
}
