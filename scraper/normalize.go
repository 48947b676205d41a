package scraper

import (
	"time"

	"ue_scraper/identity"
	"ue_scraper/models"
	"ue_scraper/search"
)

// Normalize turns raw cards into program rows for term. Cards without a program
// id are dropped and repeated ids keep their first occurrence.
func Normalize(cards []search.Card, term *models.Term, scrapedAt time.Time) []models.Program {
	seen := make(map[string]bool, len(cards))
	programs := make([]models.Program, 0, len(cards))

	for _, c := range cards {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true

		p := models.Program{
			TermID:                 term.TermID,
			ProgramID:              c.ID,
			ProgramName:            c.ProgramName,
			AlternativeProgramName: c.AlternativeProgramName,
			UniversityName:         c.UniversityName,
			UniversityID:           c.UniversityID,
			UniversityLogo:         c.UniversityLogo,
			ProgramDegree:          c.ProgramDegree,
			Language:               c.Language,
			Campus:                 c.Campus,
			TuitionFee:             c.TuitionFee,
			DiscountedTuitionFee:   c.DiscountedTuitionFee,
			Currency:               c.Currency,
			DepositPrice:           c.DepositPrice,
			PrepSchoolFee:          c.PrepSchoolFee,
			CashPaymentFee:         c.CashPaymentFee,
			QuotaFull:              c.QuotaFull,
			Semester:               c.Semester,
			TermSettings:           c.TermSettings,
			AcademicYear:           c.AcademicYear,
			LastScraped:            scrapedAt,
			IsActive:               true,
		}
		if p.AcademicYear == "" {
			p.AcademicYear = term.AcademicYear
		}
		if p.AcademicYear == "" {
			p.AcademicYear = identity.AcademicYear(term.Name)
		}
		p.Fingerprint = identity.Fingerprint(&p)
		programs = append(programs, p)
	}
	return programs
}
