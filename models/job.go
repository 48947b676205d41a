package models

import "time"

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// TermIDNone marks jobs that are not scoped to a single term (term discovery).
const TermIDNone = "N/A"

func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a job may move from s to next.
// pending -> running | cancelled | failed, running -> completed | failed | cancelled.
// Terminal states never move.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusCancelled || next == JobStatusFailed
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusCancelled
	}
	return false
}

type JobProgress struct {
	CurrentPage int `json:"current_page" db:"current_page"`
	TotalPages  int `json:"total_pages" db:"total_pages"`
	Percentage  int `json:"percentage" db:"percentage"`
}

func NewJobProgress(current, total int) JobProgress {
	p := JobProgress{CurrentPage: current, TotalPages: total}
	if total > 0 {
		p.Percentage = (current*100 + total/2) / total
	}
	if p.Percentage > 100 {
		p.Percentage = 100
	}
	return p
}

// LogLevel classifies a job log entry.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// JobLog is one timestamped line in a job's append-only log.
type JobLog struct {
	ID        int64     `json:"-" db:"id"`
	JobID     string    `json:"-" db:"job_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Level     LogLevel  `json:"level" db:"level"`
	Message   string    `json:"message" db:"message"`
}

// Job is one tracked scrape attempt for one term, or one term-discovery pass.
type Job struct {
	ID              string      `json:"id" db:"id"`
	TermID          string      `json:"term_id" db:"term_id"`
	TermName        string      `json:"term_name" db:"term_name"`
	Status          JobStatus   `json:"status" db:"status"`
	StartedAt       *time.Time  `json:"started_at" db:"started_at"`
	CompletedAt     *time.Time  `json:"completed_at" db:"completed_at"`
	ProgramsScraped int         `json:"programs_scraped" db:"programs_scraped"`
	Error           string      `json:"error,omitempty" db:"error"`
	Logs            []JobLog    `json:"logs"`
	Progress        JobProgress `json:"progress"`
	InitiatedBy     string      `json:"initiated_by" db:"initiated_by"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// LastLog returns the most recent log entry, if any.
func (j *Job) LastLog() (JobLog, bool) {
	if len(j.Logs) == 0 {
		return JobLog{}, false
	}
	return j.Logs[len(j.Logs)-1], true
}

type NewJob struct {
	TermID      string
	TermName    string
	InitiatedBy string
}
