package search

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ue_scraper/browser/browsertest"
	"ue_scraper/scrapeerr"
)

// sequence runs the next action on each call; calls past the end are no-ops.
func sequence(actions ...browsertest.Action) browsertest.Action {
	i := 0
	return func(p *browsertest.FakePage) error {
		if i >= len(actions) {
			return nil
		}
		a := actions[i]
		i++
		return a(p)
	}
}

func newPortal(t *testing.T) (*browsertest.FakePage, *Driver) {
	t.Helper()
	p := browsertest.New(map[string]string{
		DefaultSearchURL: string(loadFixture(t, "terms.html")),
	})
	require.NoError(t, p.Initialize())
	return p, NewDriver(p, Config{ScreenshotDir: "shots"})
}

func TestNavigateAndSelectTerm(t *testing.T) {
	p, d := newPortal(t)
	p.OnClick["#kt_button_1"] = browsertest.Render(string(loadFixture(t, "filters.html")))

	require.NoError(t, d.NavigateToProgramSearch())
	id, err := d.SelectTerm("Fall 2026-2027")

	require.NoError(t, err)
	assert.Equal(t, "41", id)
	assert.Equal(t, []string{`input[name="radio_buttons_2"][value="41"]`, "#kt_button_1"}, p.Clicks)
}

func TestSelectTermNotFoundListsLabels(t *testing.T) {
	p, d := newPortal(t)
	require.NoError(t, d.NavigateToProgramSearch())

	_, err := d.SelectTerm("Winter 2099")

	require.Error(t, err)
	assert.ErrorIs(t, err, scrapeerr.ErrScraping)
	assert.Contains(t, err.Error(), "Fall 2026-2027 Intake")
	assert.Contains(t, err.Error(), "Spring 2027")
	assert.Empty(t, p.Clicks)
}

func TestNavigateFailsWithoutStepper(t *testing.T) {
	p, d := newPortal(t)
	p.Pages[DefaultSearchURL] = `<html><body>maintenance</body></html>`

	err := d.NavigateToProgramSearch()
	assert.ErrorIs(t, err, scrapeerr.ErrNavigation)
	assert.ErrorIs(t, err, scrapeerr.ErrElementNotFound)
}

func TestGetFilterFields(t *testing.T) {
	p, d := newPortal(t)
	p.SetPage(DefaultSearchURL, string(loadFixture(t, "filters.html")))

	ff, err := d.GetFilterFields()
	require.NoError(t, err)

	assert.Equal(t, []string{"Istinye University", "Bahcesehir University"}, ff.Universities)
	assert.Equal(t, []string{"Medicine", "Computer Engineering"}, ff.Programs)
	assert.Equal(t, []string{"Bachelor", "Master"}, ff.Degrees)
	assert.Equal(t, []string{"English", "Turkish"}, ff.Languages)
	assert.Equal(t, []string{}, ff.Campuses, "missing dropdown yields an empty list")
}

func TestApplyFilters(t *testing.T) {
	p, d := newPortal(t)
	p.SetPage(DefaultSearchURL, string(loadFixture(t, "filters.html")))
	lo, hi := 5000.0, 12000.5

	err := d.ApplyFilters(Options{Degree: "Bachelor", Language: "English", MinPrice: &lo, MaxPrice: &hi})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"#selectdegree": "Bachelor", "#selectlang": "English"}, p.Selected)
	assert.Equal(t, "5000", p.Typed["#minp"])
	assert.Equal(t, "12000.5", p.Typed["#maxp"])
	assert.Contains(t, p.Clicks, "#kt_button_1")
	assert.Zero(t, p.Paused, "no fallback delay when network idles")
}

func TestApplyFiltersFallsBackToFixedDelay(t *testing.T) {
	p, d := newPortal(t)
	p.SetPage(DefaultSearchURL, string(loadFixture(t, "filters.html")))
	p.NetworkIdleErr = assert.AnError

	require.NoError(t, d.ApplyFilters(Options{University: "12"}))
	assert.Equal(t, settleFallback+resultsFallback, p.Paused)
}

func TestSearchFallsBackToEnter(t *testing.T) {
	p, d := newPortal(t)
	p.SetPage(DefaultSearchURL, `<html><body><select id="selectuniversity"></select></body></html>`)

	require.NoError(t, d.ApplyFilters(Options{}))
	assert.Equal(t, []string{"Enter"}, p.Pressed)
}

func TestScrapeAllProgramsAcrossPages(t *testing.T) {
	p, d := newPortal(t)
	p.SetPage(DefaultSearchURL, string(loadFixture(t, "filters.html")))
	p.OnClick["#kt_button_1"] = sequence(browsertest.Render(string(loadFixture(t, "results_page1.html"))))
	p.OnClick[".pagination li a|2"] = browsertest.Render(string(loadFixture(t, "results_page2.html")))

	var progress [][2]int
	res, err := d.ScrapeAllPrograms(nil, func(cur, total int) {
		progress = append(progress, [2]int{cur, total})
	})

	require.NoError(t, err)
	assert.Len(t, res.Programs, 5)
	assert.Equal(t, 2, res.Pagination.TotalPages)
	assert.Equal(t, 5, res.Pagination.TotalRecords)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, progress)
	assert.Equal(t, "P-2001", res.Programs[3].ID)
	assert.Nil(t, res.Filters)
	assert.False(t, res.Timestamp.IsZero())
}

func TestScrapeCurrentPageNoData(t *testing.T) {
	p, d := newPortal(t)
	p.SetPage(DefaultSearchURL, string(loadFixture(t, "no_data.html")))

	cards, err := d.ScrapeCurrentPage()
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestGoToPageClicksNextOnce(t *testing.T) {
	p, d := newPortal(t)
	p.SetPage(DefaultSearchURL, `<html><body>
<div id="page-info">Page 1 of 3</div>
<ul class="pagination"><li class="next"><a href="#">›</a></li></ul></body></html>`)
	p.OnClick[".pagination .next a"] = browsertest.Render(`<div id="page-info">Page 2 of 3</div>`)

	require.NoError(t, d.GoToPage(2))
	assert.Equal(t, []string{".pagination .next a"}, p.Clicks)
}

func TestGoToPageRepeatedNextFallback(t *testing.T) {
	p, d := newPortal(t)
	p.SetPage(DefaultSearchURL, `<html><body>
<div id="page-info">Page 1 of 4</div>
<div class="pagination"><a rel="next" href="#">›</a></div></body></html>`)

	require.NoError(t, d.GoToPage(3))
	assert.Equal(t, []string{`.pagination a[rel="next"]`, `.pagination a[rel="next"]`}, p.Clicks)
}

func TestGoToPageFailsForFarJump(t *testing.T) {
	p, d := newPortal(t)
	p.SetPage(DefaultSearchURL, `<html><body><div id="page-info">Page 1 of 10</div></body></html>`)

	err := d.GoToPage(8)

	require.Error(t, err)
	assert.ErrorIs(t, err, scrapeerr.ErrNavigation)
	assert.Equal(t, "Failed to navigate to page 8: could not find pagination controls", err.Error())
	assert.Equal(t, []string{"shots/pagination-error-page-8.png"}, p.Screenshots)
}

func TestGoToPageReportsQueryFailure(t *testing.T) {
	p, d := newPortal(t)
	p.SetPage(DefaultSearchURL, `<html><body>
<div id="page-info">Page 1 of 3</div>
<ul class="pagination"><li class="next"><a href="#">›</a></li></ul></body></html>`)
	p.QueryErr = errors.New("Target page, context or browser has been closed")

	err := d.GoToPage(2)

	require.Error(t, err)
	assert.ErrorIs(t, err, scrapeerr.ErrNavigation)
	assert.Contains(t, err.Error(), "has been closed")
	assert.Empty(t, p.Clicks, "no fallback to the next button")
}

func TestGoToPageAlreadyThere(t *testing.T) {
	p, d := newPortal(t)
	p.SetPage(DefaultSearchURL, string(loadFixture(t, "results_page1.html")))

	require.NoError(t, d.GoToPage(1))
	assert.Empty(t, p.Clicks)
}

func TestResetFilters(t *testing.T) {
	p, d := newPortal(t)
	p.SetPage(DefaultSearchURL, `<html><body><button id="kt_button_2">Reset</button></body></html>`)

	require.NoError(t, d.ResetFilters())
	assert.Equal(t, []string{"#kt_button_2"}, p.Clicks)

	p.SetPage(DefaultSearchURL, `<html><body></body></html>`)
	p.Clicks = nil
	require.NoError(t, d.ResetFilters(), "missing reset button is not an error")
	assert.Empty(t, p.Clicks)
}
