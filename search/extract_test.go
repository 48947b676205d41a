package search

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func loadDoc(t *testing.T, name string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(loadFixture(t, name)))
	if err != nil {
		t.Fatalf("failed to parse fixture %s: %v", name, err)
	}
	return doc
}

func TestParseNumber(t *testing.T) {
	cases := map[string]float64{
		"Tuition Fee: 12,500.00 USD": 12500,
		"Deposit: 2,000 USD":         2000,
		"Prep School Fee: 950":       950,
		"Quota Full":                 0,
		"Fee: .75 USD":               0.75,
		"Cash Payment: 5% extra":     5,
		"":                           0,
	}
	for in, want := range cases {
		if got := ParseNumber(in); got != want {
			t.Errorf("ParseNumber(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseCurrency(t *testing.T) {
	if got := ParseCurrency("Discounted Tuition Fee: 10,000.00 USD"); got != "USD" {
		t.Fatalf("expected USD, got %q", got)
	}
	if got := ParseCurrency("12,000 tl"); got != "" {
		t.Fatalf("expected no currency, got %q", got)
	}
}

func TestExtractCards_PlanHeaderLayout(t *testing.T) {
	doc := loadDoc(t, "results_page1.html")
	cards := ExtractCards(doc, DefaultSelectors().Cards)

	if len(cards) != 3 {
		t.Fatalf("expected 3 cards, got %d", len(cards))
	}

	c := cards[0]
	if c.ID != "P-1001" {
		t.Fatalf("expected id P-1001, got %q", c.ID)
	}
	if c.UniversityName != "Istinye University" {
		t.Fatalf("expected second h4 as university, got %q", c.UniversityName)
	}
	if c.ProgramName != "Computer Engineering" || c.AlternativeProgramName != "Bilgisayar Muhendisligi" {
		t.Fatalf("unexpected names %q / %q", c.ProgramName, c.AlternativeProgramName)
	}
	if c.UniversityLogo != "https://cdn.unitededucation.com/logos/istinye.png" {
		t.Fatalf("unexpected logo %q", c.UniversityLogo)
	}
	if c.TuitionFee != 12500 {
		t.Fatalf("expected tuition 12500, got %v", c.TuitionFee)
	}
	if c.DiscountedTuitionFee != 10000 {
		t.Fatalf("expected discounted 10000, got %v", c.DiscountedTuitionFee)
	}
	if c.DepositPrice != 1000 || c.PrepSchoolFee != 4000 {
		t.Fatalf("unexpected deposit/prep %v / %v", c.DepositPrice, c.PrepSchoolFee)
	}
	if c.Currency != "USD" || c.Campus != "Vadi Istanbul" || c.QuotaFull {
		t.Fatalf("unexpected currency/campus/quota %q %q %t", c.Currency, c.Campus, c.QuotaFull)
	}
	if c.CashPaymentFee != "Cash Payment: 5% extra discount" {
		t.Fatalf("unexpected cash payment %q", c.CashPaymentFee)
	}
	if c.UniversityID != "12" || c.ProgramDegree != "Bachelor" || c.Language != "English" {
		t.Fatalf("unexpected checkbox attributes %+v", c)
	}
	if c.Semester != "Fall" || c.TermSettings != "4 years" || c.AcademicYear != "2026-2027" {
		t.Fatalf("unexpected term attributes %+v", c)
	}

	if !cards[1].QuotaFull || cards[1].Currency != "EUR" {
		t.Fatalf("expected quota full EUR card, got %+v", cards[1])
	}
	if cards[2].ID != "" {
		t.Fatalf("expected card without checkbox to have empty id, got %q", cards[2].ID)
	}
}

func TestExtractCards_FallbackLayout(t *testing.T) {
	doc := loadDoc(t, "results_page2.html")
	cards := ExtractCards(doc, DefaultSelectors().Cards)

	if len(cards) != 2 {
		t.Fatalf("expected 2 cards from .col-xl-3, got %d", len(cards))
	}
	c := cards[0]
	if c.UniversityName != "Altinbas University" || c.ProgramName != "Dentistry" {
		t.Fatalf("card-header strategies not applied: %+v", c)
	}
	if c.UniversityLogo != "/img/altinbas.png" {
		t.Fatalf("unexpected logo %q", c.UniversityLogo)
	}
	if c.TuitionFee != 18000 || c.DepositPrice != 2000 || c.Currency != "USD" {
		t.Fatalf("unexpected fees %+v", c)
	}
}

func TestExtractCards_NoMatches(t *testing.T) {
	doc := loadDoc(t, "no_data.html")
	if cards := ExtractCards(doc, DefaultSelectors().Cards); len(cards) != 0 {
		t.Fatalf("expected no cards, got %d", len(cards))
	}
}

func TestParsePageInfo(t *testing.T) {
	info := ParsePageInfo("Page 2 of 5 - Total Records: 54")
	if info.CurrentPage != 2 || info.TotalPages != 5 || info.TotalRecords != 54 {
		t.Fatalf("unexpected pagination %+v", info)
	}

	info = ParsePageInfo("Showing results")
	if info.CurrentPage != 1 || info.TotalPages != 1 || info.TotalRecords != 0 {
		t.Fatalf("unexpected defaults %+v", info)
	}
}

func TestPaginationFromDocument_Absent(t *testing.T) {
	doc := loadDoc(t, "results_page1.html")
	doc.Find("#page-info").Remove()

	info := PaginationFromDocument(doc, DefaultSelectors())
	want := PaginationInfo{CurrentPage: 1, TotalPages: 1, TotalRecords: 3, RecordsPerPage: 3}
	if info != want {
		t.Fatalf("expected %+v, got %+v", want, info)
	}
}

func TestParseTermOptions(t *testing.T) {
	doc := loadDoc(t, "terms.html")
	terms := ParseTermOptions(doc, DefaultSelectors().TermRadio)

	if len(terms) != 2 {
		t.Fatalf("expected 2 terms, got %d", len(terms))
	}
	if terms[0].Label != "Fall 2026-2027 Intake" || terms[0].Value != "41" || terms[0].ID != "kt_radio_1" {
		t.Fatalf("unexpected first term %+v", terms[0])
	}

	if got, ok := MatchTerm(terms, "Fall 2026-2027"); !ok || got.Value != "41" {
		t.Fatalf("expected substring match on Fall term, got %+v %t", got, ok)
	}
	if _, ok := MatchTerm(terms, "Winter 2099"); ok {
		t.Fatal("expected no match for Winter 2099")
	}
}

func TestExtractSelectOptions(t *testing.T) {
	doc := loadDoc(t, "filters.html")

	got := ExtractSelectOptions(doc, "#selectuniversity", "Please Select")
	if len(got) != 2 || got[0] != "Istinye University" || got[1] != "Bahcesehir University" {
		t.Fatalf("unexpected universities %v", got)
	}

	langs := ExtractSelectOptions(doc, "#selectlang", "Please Select")
	if len(langs) != 2 {
		t.Fatalf("expected blank option dropped, got %v", langs)
	}
}

func cardFromHTML(t *testing.T, html string) Card {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		t.Fatalf("failed to parse card: %v", err)
	}
	cards := ExtractCards(doc, DefaultSelectors().Cards)
	if len(cards) != 1 {
		t.Fatalf("expected 1 card, got %d", len(cards))
	}
	return cards[0]
}

func TestExtractCard_ClassifiesByLabel(t *testing.T) {
	c := cardFromHTML(t, `<div id="cards-container"><div class="col-lg-4"><ul>
<li>Tuition Fee (Discount applies): 12,000 USD</li>
<li>Discounted Tuition Fee: 9,000 USD</li>
<li>Cash Payment: 5% extra discount</li>
<li>Advance Payment: 1,000 USD</li>
</ul></div></div>`)

	if c.TuitionFee != 12000 {
		t.Errorf("expected tuition 12000, got %v", c.TuitionFee)
	}
	if c.DiscountedTuitionFee != 9000 {
		t.Errorf("expected discounted 9000, got %v", c.DiscountedTuitionFee)
	}
	if c.DepositPrice != 1000 {
		t.Errorf("expected deposit 1000, got %v", c.DepositPrice)
	}
	if c.CashPaymentFee != "Cash Payment: 5% extra discount" {
		t.Errorf("unexpected cash payment %q", c.CashPaymentFee)
	}
}

func TestExtractCard_QuotaNoteOnCampusLine(t *testing.T) {
	c := cardFromHTML(t, `<div id="cards-container"><div class="col-lg-4"><ul>
<li>Tuition Fee: 8,000 USD</li>
<li>Campus: Main - Quota Full</li>
</ul></div></div>`)

	if !c.QuotaFull {
		t.Error("expected quota full")
	}
	if c.Campus != "Main" {
		t.Errorf("expected campus Main, got %q", c.Campus)
	}
}
