package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Category classifies a report entry.
type Category string

const (
	ObjectNotFound  Category = "ObjectNotFound"
	RuleNotApplied  Category = "RuleNotApplied"
	EmptyRule       Category = "EmptyRule"
	InvalidRow      Category = "InvalidRow"
	DuplicateObject Category = "DuplicateObject"
)

// Categories lists every category in display order.
var Categories = []Category{ObjectNotFound, RuleNotApplied, EmptyRule, InvalidRow, DuplicateObject}

// Entry is a single reported issue.
type Entry struct {
	Category Category `json:"category"`
	Message  string   `json:"message"`
}

// Report collects recoverable issues raised during a run. Adding to a report never fails.
type Report struct {
	Errors   []Entry `json:"errors"`
	Warnings []Entry `json:"warnings"`
}

// AddError records an error entry.
func (r *Report) AddError(message string, category Category) {
	r.Errors = append(r.Errors, Entry{Category: category, Message: message})
}

// AddWarning records a warning entry.
func (r *Report) AddWarning(message string, category Category) {
	r.Warnings = append(r.Warnings, Entry{Category: category, Message: message})
}

// Len returns the total number of entries.
func (r *Report) Len() int { return len(r.Errors) + len(r.Warnings) }

// Counts returns the number of errors and warnings per category.
func (r *Report) Counts() (errors, warnings map[Category]int) {
	errors = make(map[Category]int)
	warnings = make(map[Category]int)
	for _, e := range r.Errors {
		errors[e.Category]++
	}
	for _, w := range r.Warnings {
		warnings[w.Category]++
	}
	return errors, warnings
}

// HasError reports whether an error entry with the given category and message exists.
func (r *Report) HasError(category Category, message string) bool {
	for _, e := range r.Errors {
		if e.Category == category && e.Message == message {
			return true
		}
	}
	return false
}

// MarshalJSON always emits both lists, empty ones included.
func (r *Report) MarshalJSON() ([]byte, error) {
	type plain Report
	out := plain(*r)
	if out.Errors == nil {
		out.Errors = []Entry{}
	}
	if out.Warnings == nil {
		out.Warnings = []Entry{}
	}
	return json.Marshal(out)
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteFile writes the report as indented JSON to path.
func (r *Report) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := r.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
