package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"ue_scraper/models"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

func renderTerms(out io.Writer, terms []models.Term) {
	t := newTable(out)
	t.AppendHeader(table.Row{"ID", "Name", "Year", "Scraped", "Programs", "Last scraped"})
	for _, term := range terms {
		t.AppendRow(table.Row{term.TermID, term.Name, term.AcademicYear, term.IsScraped, term.ProgramCount, formatTime(term.LastScrapedAt)})
	}
	t.Render()
}

func renderJobs(out io.Writer, jobs []models.Job) {
	t := newTable(out)
	t.AppendHeader(table.Row{"ID", "Term", "Status", "Progress", "Programs", "Started", "Error"})
	for _, j := range jobs {
		t.AppendRow(table.Row{j.ID, j.TermName, j.Status, fmt.Sprintf("%d%%", j.Progress.Percentage), j.ProgramsScraped, formatTime(j.StartedAt), j.Error})
	}
	t.Render()
}
