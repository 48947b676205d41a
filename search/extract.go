package search

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ue_scraper/identity"
)

var (
	numberRegex   = regexp.MustCompile(`(?:\d[\d,]*)?\.?\d+`)
	currencyRegex = regexp.MustCompile(`[A-Z]{3}`)
)

// Card is one result card as the portal renders it, before normalization.
type Card struct {
	ID                     string
	ProgramName            string
	AlternativeProgramName string
	UniversityName         string
	UniversityLogo         string
	UniversityID           string
	ProgramDegree          string
	Language               string
	Campus                 string
	TuitionFee             float64
	DiscountedTuitionFee   float64
	Currency               string
	DepositPrice           float64
	PrepSchoolFee          float64
	CashPaymentFee         string
	QuotaFull              bool
	Semester               string
	TermSettings           string
	AcademicYear           string
}

type TermOption struct {
	Value string
	ID    string
	Label string
}

// Strategy extracts one value from a card, returning "" when it does not apply.
type Strategy func(card *goquery.Selection) string

// TextOf returns the trimmed text of the first element matching selector.
func TextOf(selector string) Strategy {
	return func(card *goquery.Selection) string {
		return identity.CleanText(card.Find(selector).First().Text())
	}
}

// AttrOf returns the trimmed attribute of the first element matching selector.
func AttrOf(selector, attr string) Strategy {
	return func(card *goquery.Selection) string {
		v, _ := card.Find(selector).First().Attr(attr)
		return strings.TrimSpace(v)
	}
}

// First tries strategies in order and keeps the first non-empty result.
func First(card *goquery.Selection, strategies []Strategy) string {
	for _, s := range strategies {
		if v := s(card); v != "" {
			return v
		}
	}
	return ""
}

var (
	logoStrategies = []Strategy{
		AttrOf(".plan-header img", "src"),
		AttrOf(".plan-header .plan-price img", "src"),
		AttrOf(".card-header img", "src"),
		AttrOf(".university-logo img", "src"),
	}
	universityStrategies = []Strategy{
		TextOf(".plan-header h4:nth-of-type(2)"),
		TextOf(".plan-header h4:not(:first-of-type)"),
		TextOf(".plan-header h4"),
		TextOf(".card-header h4"),
		TextOf(".university-name"),
	}
	programStrategies = []Strategy{
		TextOf(".plan-header h3"),
		TextOf(".card-title h3"),
		TextOf(".program-name"),
	}
	alternativeNameStrategies = []Strategy{
		TextOf(".plan-header p"),
	}
)

type marker int

const (
	markerNone marker = iota
	markerDiscount
	markerTuition
	markerDeposit
	markerPrep
	markerCampus
	markerQuota
	markerCash
)

// Discount is checked before tuition: "Discounted Tuition Fee" carries both words.
var markerKeywords = []struct {
	m        marker
	keywords []string
}{
	{markerDiscount, []string{"Discounted", "Discount"}},
	{markerTuition, []string{"Tuition Fee", "Tuition"}},
	{markerDeposit, []string{"Deposit", "Advance"}},
	{markerPrep, []string{"Prep School", "Foundation"}},
	{markerCampus, []string{"Campus"}},
	{markerQuota, []string{"Quota"}},
	{markerCash, []string{"Cash", "Payment"}},
}

const quotaFullText = "Quota Full"

// classify looks only at the label before the first colon. The keyword that
// starts earliest in the label wins; ties go to the earlier marker in the list.
func classify(text string) marker {
	label, _, _ := strings.Cut(text, ":")
	best, bestAt := markerNone, len(label)
	for _, mk := range markerKeywords {
		for _, kw := range mk.keywords {
			if i := strings.Index(label, kw); i >= 0 && i < bestAt {
				best, bestAt = mk.m, i
			}
		}
	}
	return best
}

// campusName strips the label and any trailing quota note.
func campusName(text string) string {
	name := strings.TrimSpace(strings.TrimPrefix(text, "Campus:"))
	if i := strings.Index(name, "Quota"); i >= 0 {
		name = strings.TrimRight(name[:i], " -|,")
	}
	return name
}

// ParseNumber takes the first numeric run in text with thousands separators
// stripped. Text without digits yields 0.
func ParseNumber(text string) float64 {
	run := numberRegex.FindString(text)
	if run == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(run, ",", ""), 64)
	if err != nil {
		return 0
	}
	return f
}

// ParseCurrency returns the first three-letter uppercase code in text.
func ParseCurrency(text string) string {
	return currencyRegex.FindString(text)
}

// FindCards returns the cards matched by the first selector that yields any,
// or nil when none does.
func FindCards(doc *goquery.Document, selectors []string) (*goquery.Selection, string) {
	for _, s := range selectors {
		if cards := doc.Find(s); cards.Length() > 0 {
			return cards, s
		}
	}
	return nil, ""
}

func ExtractCards(doc *goquery.Document, selectors []string) []Card {
	cards, _ := FindCards(doc, selectors)
	if cards == nil {
		return []Card{}
	}
	out := make([]Card, 0, cards.Length())
	cards.Each(func(_ int, s *goquery.Selection) {
		out = append(out, ExtractCard(s))
	})
	return out
}

func ExtractCard(card *goquery.Selection) Card {
	c := Card{
		UniversityLogo:         First(card, logoStrategies),
		UniversityName:         First(card, universityStrategies),
		ProgramName:            First(card, programStrategies),
		AlternativeProgramName: First(card, alternativeNameStrategies),
	}

	texts := map[marker]string{}
	card.Find("ul li").Each(func(_ int, li *goquery.Selection) {
		text := identity.CleanText(li.Text())
		if strings.Contains(text, quotaFullText) {
			c.QuotaFull = true
		}
		m := classify(text)
		if m == markerNone {
			return
		}
		if _, seen := texts[m]; !seen {
			texts[m] = text
		}
	})

	c.TuitionFee = ParseNumber(texts[markerTuition])
	c.DiscountedTuitionFee = ParseNumber(texts[markerDiscount])
	c.DepositPrice = ParseNumber(texts[markerDeposit])
	c.PrepSchoolFee = ParseNumber(texts[markerPrep])
	c.CashPaymentFee = texts[markerCash]
	c.Campus = campusName(texts[markerCampus])

	c.Currency = ParseCurrency(texts[markerDiscount])
	if c.Currency == "" {
		c.Currency = ParseCurrency(texts[markerTuition])
	}

	cb := card.Find(`input[type="checkbox"]`).First()
	attr := func(name string) string {
		v, _ := cb.Attr(name)
		return strings.TrimSpace(v)
	}
	c.ID = attr("value")
	c.UniversityID = attr("data-university")
	c.ProgramDegree = attr("data-degreec")
	c.Language = attr("data-lang")
	c.Semester = attr("data-semester")
	c.TermSettings = attr("data-term")
	c.AcademicYear = attr("data-academic")

	return c
}

// ParseTermOptions reads each term radio and the text of its label[for=id].
func ParseTermOptions(doc *goquery.Document, radioSelector string) []TermOption {
	var terms []TermOption
	doc.Find(radioSelector).Each(func(_ int, s *goquery.Selection) {
		t := TermOption{}
		t.Value, _ = s.Attr("value")
		t.ID, _ = s.Attr("id")
		if t.ID != "" {
			t.Label = identity.CleanText(doc.Find(fmt.Sprintf(`label[for="%s"]`, t.ID)).First().Text())
		}
		terms = append(terms, t)
	})
	return terms
}

// MatchTerm returns the first term whose label contains name.
func MatchTerm(terms []TermOption, name string) (TermOption, bool) {
	for _, t := range terms {
		if t.Label != "" && strings.Contains(t.Label, name) {
			return t, true
		}
	}
	return TermOption{}, false
}

// ExtractSelectOptions returns the option labels of a dropdown, skipping blanks
// and the placeholder, with duplicates collapsed.
func ExtractSelectOptions(doc *goquery.Document, selector, placeholder string) []string {
	out := []string{}
	seen := map[string]bool{}
	doc.Find(selector + " option").Each(func(_ int, s *goquery.Selection) {
		text := identity.CleanText(s.Text())
		if text == "" || seen[text] || (placeholder != "" && strings.Contains(text, placeholder)) {
			return
		}
		seen[text] = true
		out = append(out, text)
	})
	return out
}
