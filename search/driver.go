package search

import (
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ue_scraper/browser"
	"ue_scraper/logging"
	"ue_scraper/scrapeerr"
)

const DefaultSearchURL = "https://partner.unitededucation.com/Manage/ProgramSearch"

const (
	stepperTimeout     = 15 * time.Second
	termRadioTimeout   = 10 * time.Second
	filtersTimeout     = 10 * time.Second
	altFilterTimeout   = 2 * time.Second
	pageInfoTimeout    = 10 * time.Second
	networkIdleTimeout = 5 * time.Second
	settleFallback     = 1500 * time.Millisecond
	resultsFallback    = 3 * time.Second
	pageDelay          = time.Second
)

type Selectors struct {
	Stepper       string
	TermRadio     string
	ContinueBtn   string
	SearchBtn     string
	ResetBtn      string
	University    string
	Program       string
	Degree        string
	Language      string
	Campus        string
	MinPrice      string
	MaxPrice      string
	Cards         []string
	NoData        string
	PageInfo      string
	PageLinks     string
	Next          []string
	NextFallback  []string
	Placeholder   string
	ResultsMarker string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Stepper:     "#kt_stepper_example_basic",
		TermRadio:   `input[name="radio_buttons_2"]`,
		ContinueBtn: "#kt_button_1",
		SearchBtn:   "#kt_button_1",
		ResetBtn:    "#kt_button_2",
		University:  "#selectuniversity",
		Program:     "#selectprogram",
		Degree:      "#selectdegree",
		Language:    "#selectlang",
		Campus:      "#selectcampus",
		MinPrice:    "#minp",
		MaxPrice:    "#maxp",
		Cards: []string{
			"#cards-container .col-lg-4",
			"#cards-container .col-xl-3",
			"#cards-container .col-md-4",
			"#cards-container .card",
			".program-card",
		},
		NoData:    ".no-data-message",
		PageInfo:  "#page-info",
		PageLinks: ".pagination li a",
		Next: []string{
			".pagination .next a",
			".pagination li.next a",
			`[aria-label="Next"]`,
		},
		NextFallback: []string{
			".pagination .next a",
			".pagination li.next a",
			`a[aria-label="Next"]`,
			`.pagination a[rel="next"]`,
		},
		Placeholder:   "Please Select",
		ResultsMarker: "#cards-container, .no-data-message, #page-info",
	}
}

// Options narrows a program search. Empty strings and nil prices are not applied.
type Options struct {
	University string   `json:"university,omitempty"`
	Program    string   `json:"program,omitempty"`
	Degree     string   `json:"degree,omitempty"`
	Language   string   `json:"language,omitempty"`
	Campus     string   `json:"campus,omitempty"`
	MinPrice   *float64 `json:"min_price,omitempty"`
	MaxPrice   *float64 `json:"max_price,omitempty"`
}

func (o *Options) Empty() bool {
	return o == nil || (o.University == "" && o.Program == "" && o.Degree == "" &&
		o.Language == "" && o.Campus == "" && o.MinPrice == nil && o.MaxPrice == nil)
}

type FilterFields struct {
	Universities []string
	Programs     []string
	Degrees      []string
	Languages    []string
	Campuses     []string
}

type Result struct {
	Programs   []Card
	Pagination PaginationInfo
	Timestamp  time.Time
	Filters    *Options
}

type Config struct {
	SearchURL     string
	ScreenshotDir string
	Selectors     *Selectors
}

// Driver runs the program-search wizard on an authenticated page.
type Driver struct {
	page          browser.Controller
	sel           Selectors
	searchURL     string
	screenshotDir string
}

func NewDriver(page browser.Controller, cfg Config) *Driver {
	d := &Driver{
		page:          page,
		sel:           DefaultSelectors(),
		searchURL:     cfg.SearchURL,
		screenshotDir: cfg.ScreenshotDir,
	}
	if cfg.Selectors != nil {
		d.sel = *cfg.Selectors
	}
	if d.searchURL == "" {
		d.searchURL = DefaultSearchURL
	}
	return d
}

func (d *Driver) Selectors() Selectors { return d.sel }

func (d *Driver) NavigateToProgramSearch() error {
	log.Println("Navigating to Program Search page...")

	if err := d.page.NavigateTo(d.searchURL, browser.WaitDOMContentLoaded); err != nil {
		return scrapeerr.Navigation("Failed to navigate to Program Search", err)
	}
	if err := d.page.WaitForSelector(d.sel.Stepper, browser.WaitOptions{Timeout: stepperTimeout}); err != nil {
		return scrapeerr.Navigation("Failed to navigate to Program Search", err)
	}

	log.Println("Program Search page loaded")
	return nil
}

// ListTerms reads the term radio options without selecting one.
func (d *Driver) ListTerms() ([]TermOption, error) {
	if err := d.page.WaitForSelector(d.sel.TermRadio, browser.WaitOptions{Timeout: termRadioTimeout}); err != nil {
		return nil, scrapeerr.Scraping("Failed to list terms", err)
	}
	doc, err := d.document()
	if err != nil {
		return nil, scrapeerr.Scraping("Failed to list terms", err)
	}
	terms := ParseTermOptions(doc, d.sel.TermRadio)
	log.Printf("Found %d terms", len(terms))
	return terms, nil
}

// SelectTerm picks the first term whose label contains name and advances the
// wizard. It returns the selected option's value.
func (d *Driver) SelectTerm(name string) (string, error) {
	log.Printf("Selecting term: %s", name)

	terms, err := d.ListTerms()
	if err != nil {
		return "", err
	}

	term, ok := MatchTerm(terms, name)
	if !ok {
		labels := make([]string, 0, len(terms))
		for _, t := range terms {
			labels = append(labels, t.Label)
			logging.Debugf("Available term: value=%s label=%s", t.Value, t.Label)
		}
		log.Printf("Term %q not found among %d terms", name, len(terms))
		return "", scrapeerr.Scraping(fmt.Sprintf("Term '%s' not found. Available terms: %s", name, strings.Join(labels, ", ")), nil)
	}

	if err := d.clickTerm(term); err != nil {
		return "", scrapeerr.Scraping("Failed to select term", err)
	}

	if ok, _ := d.page.Exists(d.sel.ContinueBtn); ok {
		if err := d.page.Click(d.sel.ContinueBtn); err != nil {
			return "", scrapeerr.Scraping("Failed to select term", err)
		}
		if err := d.page.WaitForSelector(d.sel.University, browser.WaitOptions{Timeout: filtersTimeout}); err != nil {
			log.Println("Filters not immediately loaded, continuing...")
		} else {
			log.Println("Filters loaded")
		}
	}

	log.Printf("Selected term ID: %s", term.Value)
	return term.Value, nil
}

func (d *Driver) clickTerm(t TermOption) error {
	err := d.page.Click(fmt.Sprintf(`%s[value="%s"]`, d.sel.TermRadio, t.Value))
	if err == nil || t.ID == "" {
		return err
	}
	return d.page.Click(fmt.Sprintf(`label[for="%s"]`, t.ID))
}

func (d *Driver) waitForFilters() bool {
	if err := d.page.WaitForSelector(d.sel.University, browser.WaitOptions{Timeout: filtersTimeout}); err == nil {
		return true
	}
	log.Println("University filter not found, trying the other filters...")
	for _, s := range []string{d.sel.Program, d.sel.Degree, d.sel.Language, d.sel.Campus, d.sel.MinPrice, d.sel.MaxPrice} {
		if err := d.page.WaitForSelector(s, browser.WaitOptions{Timeout: altFilterTimeout}); err == nil {
			return true
		}
	}
	return false
}

// GetFilterFields extracts each dropdown's labels independently; a missing
// dropdown yields an empty list.
func (d *Driver) GetFilterFields() (FilterFields, error) {
	log.Println("Extracting filter fields...")

	if !d.waitForFilters() {
		log.Println("No filter controls found, returning empty filter fields")
	}
	doc, err := d.document()
	if err != nil {
		return FilterFields{}, scrapeerr.Scraping("Failed to extract filter fields", err)
	}

	extract := func(label, sel string) []string {
		if doc.Find(sel).Length() == 0 {
			log.Printf("Filter %s (%s) not present", label, sel)
			return []string{}
		}
		return ExtractSelectOptions(doc, sel, d.sel.Placeholder)
	}

	ff := FilterFields{
		Universities: extract("university", d.sel.University),
		Programs:     extract("program", d.sel.Program),
		Degrees:      extract("degree", d.sel.Degree),
		Languages:    extract("language", d.sel.Language),
		Campuses:     extract("campus", d.sel.Campus),
	}

	log.Printf("Filter fields: %d universities, %d programs, %d degrees, %d languages, %d campuses",
		len(ff.Universities), len(ff.Programs), len(ff.Degrees), len(ff.Languages), len(ff.Campuses))
	return ff, nil
}

func (d *Driver) ApplyFilters(opts Options) error {
	log.Printf("Applying filters: %+v", opts)

	if !d.waitForFilters() {
		return scrapeerr.Scraping("Failed to apply filters", scrapeerr.ElementNotFound("no filter controls on page", nil))
	}

	dropdowns := []struct {
		key, sel, value string
	}{
		{"university", d.sel.University, opts.University},
		{"program", d.sel.Program, opts.Program},
		{"degree", d.sel.Degree, opts.Degree},
		{"language", d.sel.Language, opts.Language},
		{"campus", d.sel.Campus, opts.Campus},
	}
	for _, f := range dropdowns {
		if f.value == "" {
			continue
		}
		log.Printf("Setting %s to: %s", f.key, f.value)
		if err := d.page.SelectOption(f.sel, f.value); err != nil {
			return scrapeerr.Scraping("Failed to apply filters", err)
		}
		d.settle("filter " + f.key)
	}

	if opts.MinPrice != nil {
		if err := d.page.Type(d.sel.MinPrice, formatPrice(*opts.MinPrice), 0); err != nil {
			return scrapeerr.Scraping("Failed to apply filters", err)
		}
	}
	if opts.MaxPrice != nil {
		if err := d.page.Type(d.sel.MaxPrice, formatPrice(*opts.MaxPrice), 0); err != nil {
			return scrapeerr.Scraping("Failed to apply filters", err)
		}
	}

	d.triggerSearch()
	d.waitForResults()
	log.Println("Filters applied")
	return nil
}

// ResetFilters clicks the wizard's reset button when it is present.
func (d *Driver) ResetFilters() error {
	ok, err := d.page.Exists(d.sel.ResetBtn)
	if err != nil {
		return scrapeerr.Scraping("Failed to reset filters", err)
	}
	if !ok {
		return nil
	}
	if err := d.page.Click(d.sel.ResetBtn); err != nil {
		return scrapeerr.Scraping("Failed to reset filters", err)
	}
	d.waitForResults()
	log.Println("Filters reset")
	return nil
}

// triggerSearch never fails the run; a missing button falls back to Enter.
func (d *Driver) triggerSearch() {
	if ok, _ := d.page.Exists(d.sel.SearchBtn); ok {
		log.Println("Clicking search button...")
		if err := d.page.Click(d.sel.SearchBtn); err != nil {
			log.Printf("Error triggering search: %v", err)
		}
		return
	}
	log.Println("No search button found, pressing Enter")
	if err := d.page.Press("Enter"); err != nil {
		log.Printf("Error triggering search: %v", err)
	}
}

func (d *Driver) settle(what string) {
	if err := d.page.WaitForNetworkIdle(networkIdleTimeout); err != nil {
		log.Printf("Network idle not reached after %s, falling back to %s delay", what, settleFallback)
		d.page.Pause(settleFallback)
	}
}

func (d *Driver) waitForResults() {
	if err := d.page.WaitForNetworkIdle(networkIdleTimeout); err != nil {
		log.Printf("Network idle not reached after search, falling back to %s delay", resultsFallback)
		d.page.Pause(resultsFallback)
	}
	if err := d.page.WaitForSelector(d.sel.ResultsMarker, browser.WaitOptions{Timeout: networkIdleTimeout}); err != nil {
		logging.Debugf("Results marker not found: %v", err)
	}
}

func (d *Driver) screenshot(name string) {
	d.page.TakeScreenshot(filepath.Join(d.screenshotDir, name))
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
