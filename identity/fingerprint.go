package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ue_scraper/models"
)

var (
	multiSpaceRegex   = regexp.MustCompile(`\s+`)
	nonAlnumRegex     = regexp.MustCompile(`[^a-z0-9\s]`)
	academicYearRegex = regexp.MustCompile(`\d{4}-\d{4}`)
)

// Fingerprint hashes the fee/quota facts of a program so unchanged rows can be
// recognized across scrapes.
func Fingerprint(p *models.Program) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%t",
		NormalizeLabel(p.ProgramName),
		NormalizeLabel(p.UniversityName),
		NormalizeLabel(p.ProgramDegree),
		NormalizeLabel(p.Language),
		NormalizeLabel(p.Campus),
		formatFee(p.TuitionFee),
		formatFee(p.DiscountedTuitionFee),
		formatFee(p.DepositPrice),
		formatFee(p.PrepSchoolFee),
		strings.ToUpper(p.Currency),
		p.QuotaFull,
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}

// NormalizeLabel lowercases, strips punctuation and collapses whitespace.
func NormalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnumRegex.ReplaceAllString(s, " ")
	s = multiSpaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CleanText collapses runs of whitespace the portal leaves in rendered labels.
func CleanText(s string) string {
	return strings.TrimSpace(multiSpaceRegex.ReplaceAllString(s, " "))
}

// AcademicYear pulls the first "YYYY-YYYY" run out of a term name.
func AcademicYear(termName string) string {
	return academicYearRegex.FindString(termName)
}

func formatFee(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
