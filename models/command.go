package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdSyncTerms  CommandType = "sync_terms"
	CmdScrapeTerm CommandType = "scrape_term"
	CmdScrapeAll  CommandType = "scrape_all"
	CmdCancelJob  CommandType = "cancel_job"
)

func (c CommandType) Valid() bool {
	switch c {
	case CmdSyncTerms, CmdScrapeTerm, CmdScrapeAll, CmdCancelJob:
		return true
	}
	return false
}

type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	TermID      string `json:"term_id,omitempty"`
	JobID       string `json:"job_id,omitempty"`
	Profile     string `json:"profile,omitempty"`
	InitiatedBy string `json:"initiated_by,omitempty"`
}
