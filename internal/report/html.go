package report

//go:generate templ generate -f report.templ

import (
	"strconv"
	"time"
)

// Meta describes the run that produced a report.
type Meta struct {
	RunID     string
	Command   string
	StartedAt time.Time
}

// summaryRow holds the counts of one category in the summary table.
type summaryRow struct {
	Category Category
	Errors   int
	Warnings int
}

// summaryRows lists the categories with at least one entry, in Categories order.
func summaryRows(r *Report) []summaryRow {
	errs, warns := r.Counts()
	var rows []summaryRow
	for _, c := range Categories {
		if errs[c] == 0 && warns[c] == 0 {
			continue
		}
		rows = append(rows, summaryRow{Category: c, Errors: errs[c], Warnings: warns[c]})
	}
	return rows
}

func pageTitle(meta Meta) string {
	if meta.Command == "" {
		return "transitcurate report"
	}
	return "transitcurate report – " + meta.Command
}

func startedAt(meta Meta) string {
	return meta.StartedAt.UTC().Format(time.RFC3339)
}

func countLabel(heading string, n int) string {
	return heading + " (" + strconv.Itoa(n) + ")"
}
