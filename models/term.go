package models

import "time"

// Term is an academic intake period as the partner portal names it.
type Term struct {
	TermID        string     `json:"term_id" db:"term_id"`
	Name          string     `json:"name" db:"name"`
	AcademicYear  string     `json:"academic_year" db:"academic_year"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	IsScraped     bool       `json:"is_scraped" db:"is_scraped"`
	ProgramCount  int        `json:"program_count" db:"program_count"`
	LastScrapedAt *time.Time `json:"last_scraped_at" db:"last_scraped_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// FilterFields is the selectable vocabulary of a term's search form.
type FilterFields struct {
	TermID       string    `json:"term_id" db:"term_id"`
	Universities []string  `json:"universities" db:"universities"`
	Programs     []string  `json:"programs" db:"programs"`
	Degrees      []string  `json:"degrees" db:"degrees"`
	Languages    []string  `json:"languages" db:"languages"`
	Campuses     []string  `json:"campuses" db:"campuses"`
	LastUpdated  time.Time `json:"last_updated" db:"last_updated"`
}

// Dedupe collapses duplicates in every list, keeping first-seen order.
func (f FilterFields) Dedupe() FilterFields {
	f.Universities = uniqueStrings(f.Universities)
	f.Programs = uniqueStrings(f.Programs)
	f.Degrees = uniqueStrings(f.Degrees)
	f.Languages = uniqueStrings(f.Languages)
	f.Campuses = uniqueStrings(f.Campuses)
	return f
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
