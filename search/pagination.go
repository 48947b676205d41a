package search

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ue_scraper/scrapeerr"
)

var (
	pageOfRegex       = regexp.MustCompile(`Page (\d+) of (\d+)`)
	totalRecordsRegex = regexp.MustCompile(`Total Records: (\d+)`)
)

type PaginationInfo struct {
	CurrentPage    int `json:"current_page"`
	TotalPages     int `json:"total_pages"`
	TotalRecords   int `json:"total_records"`
	RecordsPerPage int `json:"records_per_page"`
}

// ParsePageInfo reads "Page X of Y" and "Total Records: N" from the page-info
// text. Missing parts default to page 1 of 1 and zero records.
func ParsePageInfo(text string) PaginationInfo {
	info := PaginationInfo{CurrentPage: 1, TotalPages: 1}
	if m := pageOfRegex.FindStringSubmatch(text); m != nil {
		info.CurrentPage, _ = strconv.Atoi(m[1])
		info.TotalPages, _ = strconv.Atoi(m[2])
	}
	if m := totalRecordsRegex.FindStringSubmatch(text); m != nil {
		info.TotalRecords, _ = strconv.Atoi(m[1])
	}
	return info
}

// PaginationFromDocument falls back to the visible cards as a single page when
// the page-info node is absent.
func PaginationFromDocument(doc *goquery.Document, sel Selectors) PaginationInfo {
	cards, _ := FindCards(doc, sel.Cards)
	count := 0
	if cards != nil {
		count = cards.Length()
	}

	node := doc.Find(sel.PageInfo)
	if node.Length() == 0 {
		return PaginationInfo{CurrentPage: 1, TotalPages: 1, TotalRecords: count, RecordsPerPage: count}
	}
	info := ParsePageInfo(node.First().Text())
	info.RecordsPerPage = count
	return info
}

func (d *Driver) document() (*goquery.Document, error) {
	html, err := d.page.Content()
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (d *Driver) GetPaginationInfo() (PaginationInfo, error) {
	doc, err := d.document()
	if err != nil {
		return PaginationInfo{}, scrapeerr.Scraping("Failed to read pagination", err)
	}
	info := PaginationFromDocument(doc, d.sel)
	log.Printf("Pagination: page %d of %d (%d records)", info.CurrentPage, info.TotalPages, info.TotalRecords)
	return info, nil
}

func (d *Driver) ScrapeCurrentPage() ([]Card, error) {
	doc, err := d.document()
	if err != nil {
		d.screenshot(fmt.Sprintf("error-scraping-%d.png", time.Now().UnixMilli()))
		return nil, scrapeerr.Scraping("Failed to scrape programs", err)
	}

	if doc.Find(d.sel.NoData).Length() > 0 {
		log.Println("No data message displayed, returning empty page")
		return []Card{}, nil
	}

	cards, matched := FindCards(doc, d.sel.Cards)
	if cards == nil {
		log.Println("No program cards found with any selector")
		return []Card{}, nil
	}
	log.Printf("Found %d cards with selector: %s", cards.Length(), matched)

	out := ExtractCards(doc, d.sel.Cards)
	log.Printf("Scraped %d programs from current page", len(out))
	return out, nil
}

// GoToPage moves the result list to page n. It clicks the numbered link (or a
// single next control), and for short forward hops falls back to repeated
// next clicks.
func (d *Driver) GoToPage(n int) error {
	info, err := d.GetPaginationInfo()
	if err != nil {
		return d.pageError(n, err)
	}
	if info.CurrentPage == n {
		log.Printf("Already on page %d", n)
		return nil
	}

	log.Printf("Navigating from page %d to page %d", info.CurrentPage, n)

	clicked, err := d.clickPageLink(n)
	if err != nil {
		return d.pageError(n, err)
	}
	if clicked {
		d.waitForPage(n)
		return nil
	}

	if n > info.CurrentPage && n-info.CurrentPage <= 3 {
		log.Println("Using next button navigation...")
		for i := info.CurrentPage; i < n; i++ {
			ok, err := d.clickFirst(d.sel.NextFallback)
			if err != nil {
				return d.pageError(n, err)
			}
			if !ok {
				return d.pageError(n, errors.New("next button not found"))
			}
			d.settle("next page")
		}
		d.waitForPage(n)
		return nil
	}

	return d.pageError(n, errors.New("could not find pagination controls"))
}

func (d *Driver) clickPageLink(n int) (bool, error) {
	ok, err := d.page.ClickByText(d.sel.PageLinks, strconv.Itoa(n))
	if err != nil || ok {
		return ok, err
	}
	return d.clickFirst(d.sel.Next)
}

func (d *Driver) clickFirst(selectors []string) (bool, error) {
	for _, s := range selectors {
		ok, err := d.page.Exists(s)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		if err := d.page.Click(s); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (d *Driver) waitForPage(n int) {
	if err := d.page.WaitForText(d.sel.PageInfo, fmt.Sprintf("Page %d", n), pageInfoTimeout); err != nil {
		log.Println("Page info did not update, continuing anyway...")
		return
	}
	log.Printf("Navigated to page %d", n)
}

func (d *Driver) pageError(n int, cause error) error {
	log.Printf("Error navigating to page %d: %v", n, cause)
	d.screenshot(fmt.Sprintf("pagination-error-page-%d.png", n))
	return scrapeerr.Navigation(fmt.Sprintf("Failed to navigate to page %d", n), cause)
}

// ScrapeAllPrograms runs the search (with filters when given) and collects every
// page. onPage, if set, is called after each page with (current, total).
func (d *Driver) ScrapeAllPrograms(opts *Options, onPage func(current, total int)) (*Result, error) {
	log.Println("Starting to scrape all programs...")

	if !opts.Empty() {
		if err := d.ApplyFilters(*opts); err != nil {
			return nil, scrapeerr.Scraping("Failed to scrape all programs", err)
		}
	} else {
		d.triggerSearch()
		d.waitForResults()
	}

	pagination, err := d.GetPaginationInfo()
	if err != nil {
		return nil, scrapeerr.Scraping("Failed to scrape all programs", err)
	}
	log.Printf("Total pages to scrape: %d", pagination.TotalPages)

	var all []Card
	for p := 1; p <= pagination.TotalPages; p++ {
		if p > 1 {
			if err := d.GoToPage(p); err != nil {
				return nil, scrapeerr.Scraping("Failed to scrape all programs", err)
			}
		}

		log.Printf("Scraping page %d/%d...", p, pagination.TotalPages)
		cards, err := d.ScrapeCurrentPage()
		if err != nil {
			return nil, scrapeerr.Scraping("Failed to scrape all programs", err)
		}
		all = append(all, cards...)

		if onPage != nil {
			onPage(p, pagination.TotalPages)
		}
		if p < pagination.TotalPages {
			d.page.Pause(pageDelay)
		}
	}

	log.Printf("Total programs scraped: %d", len(all))
	return &Result{
		Programs:   all,
		Pagination: pagination,
		Timestamp:  time.Now(),
		Filters:    opts,
	}, nil
}
