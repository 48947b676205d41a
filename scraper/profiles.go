package scraper

import (
	"ue_scraper/config"
	"ue_scraper/search"
)

// ProfileOptions converts a configured search profile into driver filters.
// A nil profile means no filters.
func ProfileOptions(p *config.Profile) *search.Options {
	if p == nil {
		return nil
	}
	f := p.Filters
	opts := &search.Options{
		University: f.University,
		Program:    f.Program,
		Degree:     f.Degree,
		Language:   f.Language,
		Campus:     f.Campus,
		MinPrice:   f.MinPrice,
		MaxPrice:   f.MaxPrice,
	}
	if opts.Empty() {
		return nil
	}
	return opts
}
