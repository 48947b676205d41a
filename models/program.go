package models

import "time"

// Program is one degree offering at one university for one term.
// (TermID, ProgramID) is the natural key.
type Program struct {
	TermID                 string    `json:"term_id" db:"term_id"`
	ProgramID              string    `json:"program_id" db:"program_id"`
	ProgramName            string    `json:"program_name" db:"program_name"`
	AlternativeProgramName string    `json:"alternative_program_name" db:"alternative_program_name"`
	UniversityName         string    `json:"university_name" db:"university_name"`
	UniversityID           string    `json:"university_id" db:"university_id"`
	UniversityLogo         string    `json:"university_logo" db:"university_logo"`
	ProgramDegree          string    `json:"program_degree" db:"program_degree"`
	Language               string    `json:"language" db:"language"`
	Campus                 string    `json:"campus" db:"campus"`
	TuitionFee             float64   `json:"tuition_fee" db:"tuition_fee"`
	DiscountedTuitionFee   float64   `json:"discounted_tuition_fee" db:"discounted_tuition_fee"`
	Currency               string    `json:"currency" db:"currency"`
	DepositPrice           float64   `json:"deposit_price" db:"deposit_price"`
	PrepSchoolFee          float64   `json:"prep_school_fee" db:"prep_school_fee"`
	CashPaymentFee         string    `json:"cash_payment_fee" db:"cash_payment_fee"`
	QuotaFull              bool      `json:"quota_full" db:"quota_full"`
	Semester               string    `json:"semester" db:"semester"`
	TermSettings           string    `json:"term_settings" db:"term_settings"`
	AcademicYear           string    `json:"academic_year" db:"academic_year"`
	Fingerprint            string    `json:"fingerprint" db:"fingerprint"`
	LastScraped            time.Time `json:"last_scraped" db:"last_scraped"`
	IsActive               bool      `json:"is_active" db:"is_active"`
}

type UpsertResult struct {
	UpsertedCount int `json:"upserted_count"`
	ModifiedCount int `json:"modified_count"`
}
