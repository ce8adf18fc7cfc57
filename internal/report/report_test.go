package report

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestReport_EmptyJSON(t *testing.T) {
	var r Report
	var buf bytes.Buffer
	if err := r.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}

	var decoded map[string][]Entry
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	for _, key := range []string{"errors", "warnings"} {
		list, ok := decoded[key]
		if !ok {
			t.Errorf("key %q missing from %s", key, buf.String())
		}
		if len(list) != 0 {
			t.Errorf("%s = %v, want empty", key, list)
		}
	}
}

func TestReport_KeepsOrder(t *testing.T) {
	var r Report
	r.AddError("first", ObjectNotFound)
	r.AddError("second", RuleNotApplied)
	r.AddWarning("third", DuplicateObject)

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	if r.Errors[0].Message != "first" || r.Errors[1].Message != "second" {
		t.Errorf("errors out of order: %+v", r.Errors)
	}
	if !r.HasError(RuleNotApplied, "second") {
		t.Error("HasError(RuleNotApplied, second) should return true")
	}
	if r.HasError(ObjectNotFound, "second") {
		t.Error("HasError should match on category too")
	}

	var buf bytes.Buffer
	if err := r.WriteJSON(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"category": "ObjectNotFound"`) {
		t.Errorf("category not serialized by name: %s", buf.String())
	}
}

func TestReport_Counts(t *testing.T) {
	var r Report
	r.AddError("a", ObjectNotFound)
	r.AddError("b", ObjectNotFound)
	r.AddWarning("c", InvalidRow)

	errs, warns := r.Counts()
	if errs[ObjectNotFound] != 2 {
		t.Errorf("errors[ObjectNotFound] = %d, want 2", errs[ObjectNotFound])
	}
	if warns[InvalidRow] != 1 {
		t.Errorf("warnings[InvalidRow] = %d, want 1", warns[InvalidRow])
	}
}

func TestPage_EscapesMessages(t *testing.T) {
	var r Report
	r.AddError(`network_id <N5> not found`, ObjectNotFound)

	var buf bytes.Buffer
	meta := Meta{RunID: "run-1", Command: "farev2", StartedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	if err := Page(&r, meta).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	html := buf.String()
	if strings.Contains(html, "<N5>") {
		t.Error("message was not escaped")
	}
	if !strings.Contains(html, "&lt;N5&gt;") {
		t.Errorf("escaped message missing from %s", html)
	}
	if !strings.Contains(html, "run-1") {
		t.Error("run id missing from page")
	}
	if !strings.Contains(html, "Warnings (0)") {
		t.Error("empty warnings section missing")
	}
}

func TestPage_SummaryAndSections(t *testing.T) {
	var r Report
	r.AddError("network_id N5 not found", ObjectNotFound)
	r.AddError("network_id N6 not found", ObjectNotFound)
	r.AddWarning("bad row", InvalidRow)

	var buf bytes.Buffer
	if err := Page(&r, Meta{}).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	html := buf.String()
	for _, want := range []string{
		"<title>transitcurate report</title>",
		"<tr><td>ObjectNotFound</td><td>2</td><td>0</td></tr>",
		"<tr><td>InvalidRow</td><td>0</td><td>1</td></tr>",
		"<h2>Errors (2)</h2><ul><li><strong>ObjectNotFound</strong> network_id N5 not found</li>",
		"<h2>Warnings (1)</h2>",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("page is missing %q:\n%s", want, html)
		}
	}
	if strings.Contains(html, "<code>") {
		t.Error("run line should be omitted without a run id")
	}
	if strings.Contains(html, "None.") {
		t.Error("no section is empty")
	}
}

func TestSummaryRows_SkipsEmptyCategories(t *testing.T) {
	var r Report
	r.AddWarning("w", InvalidRow)
	rows := summaryRows(&r)
	if len(rows) != 1 || rows[0] != (summaryRow{Category: InvalidRow, Warnings: 1}) {
		t.Errorf("summaryRows() = %+v, want only InvalidRow", rows)
	}
}
