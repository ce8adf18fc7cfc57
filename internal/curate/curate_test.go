package curate

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"transitcurate/internal/model"
	"transitcurate/internal/ntfs"
	"transitcurate/internal/report"
	"transitcurate/internal/rules"
	"transitcurate/internal/source"
	"transitcurate/internal/storage"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newRunner(t *testing.T, opts ...Option) *Runner {
	t.Helper()
	fetcher, err := source.New(context.Background(), source.S3Config{}, t.TempDir(), discardLogger)
	if err != nil {
		t.Fatalf("source.New() error: %v", err)
	}
	return NewRunner(fetcher, "run-42", discardLogger, opts...)
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// ntfsInput has networks N1 and N2 with one line each.
func ntfsInput(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		ntfs.NetworksFile:        "network_id,network_name\nN1,One\nN2,Two\n",
		ntfs.CommercialModesFile: "commercial_mode_id,commercial_mode_name\nBus,Bus\n",
		ntfs.PhysicalModesFile:   "physical_mode_id,physical_mode_name\nBus,Bus\n",
		ntfs.LinesFile:           "line_id,line_name,network_id,commercial_mode_id\nL1,Line 1,N1,Bus\nL2,Line 2,N2,Bus\n",
		ntfs.TripsFile:           "trip_id,route_id,service_id,physical_mode_id\nVJ1,R1,S1,Bus\n",
		ntfs.StopsFile:           "stop_id,stop_name,stop_lat,stop_lon,location_type\nSA1,Central,48.85,2.35,1\nSA2,Station,48.86,2.36,1\n",
		"calendar.txt":           "service_id,monday\nS1,1\n",
	})
	return dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestRegroup_NTFSToNTFS(t *testing.T) {
	input := ntfsInput(t)
	work := t.TempDir()
	rulesPath := filepath.Join(work, "rules.json")
	writeFiles(t, work, map[string]string{
		"rules.json": `{"networks": [{"properties": {"network_id": "N3", "network_name": "Merged"}, "grouped_from": ["N1", "N2", "N9"]}]}`,
	})
	loc := Locations{
		Input:       input,
		Output:      filepath.Join(work, "out"),
		Report:      filepath.Join(work, "report.json"),
		ReportHTML:  filepath.Join(work, "report.html"),
		MetricsFile: filepath.Join(work, "transitcurate.prom"),
	}

	rep, err := newRunner(t).Regroup(context.Background(), loc, rulesPath)
	if err != nil {
		t.Fatalf("Regroup() error: %v", err)
	}
	if !rep.HasError(report.ObjectNotFound, `The identifier "N9" to regroup doesn't exist`) {
		t.Errorf("report errors = %+v, want N9 not found", rep.Errors)
	}

	c, err := ntfs.Read(loc.Output, discardLogger)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if c.Networks.Len() != 1 || !c.Networks.ContainsID("N3") {
		t.Errorf("networks = %+v, want only N3", c.Networks.Values())
	}
	for _, l := range c.Lines.Values() {
		if l.NetworkID != "N3" {
			t.Errorf("%s.network_id = %q, want N3", l.LineID, l.NetworkID)
		}
	}
	if got := readFile(t, filepath.Join(loc.Output, "calendar.txt")); got != "service_id,monday\nS1,1\n" {
		t.Errorf("calendar.txt = %q, want it copied unchanged", got)
	}
	if c.StopAreas.Len() != 2 {
		t.Errorf("stop areas = %d, want 2", c.StopAreas.Len())
	}

	if got := readFile(t, loc.Report); !strings.Contains(got, `"category": "ObjectNotFound"`) {
		t.Errorf("report.json = %s", got)
	}
	if got := readFile(t, loc.ReportHTML); !strings.Contains(got, "run-42") {
		t.Error("html report should carry the run id")
	}
	if got := readFile(t, loc.MetricsFile); !strings.Contains(got, `transitcurate_objects{collection="networks",command="regroup"} 1`) {
		t.Errorf("metrics file = %s", got)
	}
}

func TestRegroup_EmptyReportIsWritten(t *testing.T) {
	work := t.TempDir()
	writeFiles(t, work, map[string]string{"rules.json": `{}`})
	loc := Locations{
		Input:  ntfsInput(t),
		Output: filepath.Join(work, "out"),
		Report: filepath.Join(work, "report.json"),
	}

	rep, err := newRunner(t).Regroup(context.Background(), loc, filepath.Join(work, "rules.json"))
	if err != nil {
		t.Fatalf("Regroup() error: %v", err)
	}
	if rep.Len() != 0 {
		t.Errorf("report = %+v, want empty", rep)
	}
	got := readFile(t, loc.Report)
	if !strings.Contains(got, `"errors": []`) || !strings.Contains(got, `"warnings": []`) {
		t.Errorf("report.json = %s, want empty lists", got)
	}
}

func writeFareArchive(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	files := map[string]string{
		"fares/tickets.txt":     "ticket_id,ticket_name\nT1,Network pass\nT2,Ghost pass\n",
		"fares/ticket_uses.txt": "ticket_use_id,ticket_id\nTU1,T1\nTU2,T2\n",
		"fares/ticket_prices.txt": "ticket_id,ticket_price,ticket_currency,ticket_validity_start,ticket_validity_end\n" +
			"T1,2.5,EUR,20240101,20241231\nT2,1.0,EUR,20240101,20241231\n",
		"fares/ticket_use_perimeters.txt": "ticket_use_id,object_type,object_id,perimeter_action\nTU1,network,N1,1\nTU2,network,N5,1\n",
	}
	for name, content := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestEnrichFare_NTFSToSQLite(t *testing.T) {
	ctx := context.Background()
	work := t.TempDir()
	farePath := filepath.Join(work, "fare.zip")
	writeFareArchive(t, farePath)
	loc := Locations{
		Input:  ntfsInput(t),
		Output: filepath.Join(work, "dataset.db"),
		Report: filepath.Join(work, "report.json"),
	}

	rep, err := newRunner(t).EnrichFare(ctx, loc, farePath)
	if err != nil {
		t.Fatalf("EnrichFare() error: %v", err)
	}
	if !rep.HasError(report.ObjectNotFound, "network_id N5 not found") {
		t.Errorf("report errors = %+v, want N5 not found", rep.Errors)
	}

	db, err := storage.Open(loc.Output, discardLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	c, err := db.LoadCollections(ctx)
	if err != nil {
		t.Fatalf("LoadCollections() error: %v", err)
	}
	if c.Tickets.Len() != 2 {
		t.Errorf("tickets = %d, want 2", c.Tickets.Len())
	}
	if c.TicketPrices.Len() != 1 || c.TicketPrices.Index(0).TicketID != "T1" {
		t.Errorf("prices = %+v, want only T1", c.TicketPrices.Values())
	}
	if c.TicketUsePerimeters.Len() != 1 {
		t.Errorf("perimeters = %d, want 1", c.TicketUsePerimeters.Len())
	}
	if runID, _ := db.GetMetadata(ctx, storage.MetadataRunID); runID != "run-42" {
		t.Errorf("GetMetadata(run_id) = %q, want run-42", runID)
	}
}

func TestRegroup_SQLiteToNTFS(t *testing.T) {
	ctx := context.Background()
	work := t.TempDir()

	c, err := ntfs.Read(ntfsInput(t), discardLogger)
	if err != nil {
		t.Fatal(err)
	}
	input := filepath.Join(work, "input.sqlite")
	db, err := storage.Open(input, discardLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SaveCollections(ctx, &c, "seed"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	writeFiles(t, work, map[string]string{
		"rules.json": `{"commercial_modes": [{"properties": {"commercial_mode_id": "Coach", "commercial_mode_name": "Coach"}, "grouped_from": ["Bus"]}]}`,
	})
	loc := Locations{
		Input:  input,
		Output: filepath.Join(work, "out"),
		Report: filepath.Join(work, "report.json"),
	}
	if _, err := newRunner(t).Regroup(ctx, loc, filepath.Join(work, "rules.json")); err != nil {
		t.Fatalf("Regroup() error: %v", err)
	}

	out, err := ntfs.Read(loc.Output, discardLogger)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if l, _ := out.Lines.Get("L1"); l.CommercialModeID != "Coach" {
		t.Errorf("L1.commercial_mode_id = %q, want Coach", l.CommercialModeID)
	}
	if out.StopAreas.Len() != 2 {
		t.Errorf("stop areas = %d, want 2 written from the database", out.StopAreas.Len())
	}
}

func TestRun_FatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		rules   string
		lines   string
		output  string
		wantErr error
		wantMsg string
	}{
		{
			name:    "malformed rules",
			rules:   `{"networks": {}}`,
			wantErr: rules.ErrInvalidConfiguration,
		},
		{
			name:    "dangling input",
			rules:   `{}`,
			lines:   "line_id,network_id,commercial_mode_id\nL1,N7,Bus\n",
			wantErr: model.ErrDanglingReference,
		},
		{
			name:    "remote output",
			rules:   `{}`,
			output:  "s3://bucket/out",
			wantMsg: "only local outputs",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := ntfsInput(t)
			if tt.lines != "" {
				writeFiles(t, input, map[string]string{ntfs.LinesFile: tt.lines})
			}
			work := t.TempDir()
			writeFiles(t, work, map[string]string{"rules.json": tt.rules})
			loc := Locations{
				Input:  input,
				Output: filepath.Join(work, "out"),
				Report: filepath.Join(work, "report.json"),
			}
			if tt.output != "" {
				loc.Output = tt.output
			}

			_, err := newRunner(t).Regroup(context.Background(), loc, filepath.Join(work, "rules.json"))
			if err == nil {
				t.Fatal("Regroup() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Regroup() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Regroup() error = %v, want it to contain %q", err, tt.wantMsg)
			}
			if _, err := os.Stat(loc.Report); !os.IsNotExist(err) {
				t.Error("report should not be written on a fatal error")
			}
			if _, err := os.Stat(filepath.Join(work, "out")); !os.IsNotExist(err) {
				t.Error("output should not be written on a fatal error")
			}
		})
	}
}

func TestLoad_RejectsPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.zip")
	writeFiles(t, filepath.Dir(path), map[string]string{"dataset.zip": "PK"})
	if _, _, err := load(context.Background(), path, discardLogger); err == nil {
		t.Error("load() of a plain file should fail")
	}
	if _, _, err := load(context.Background(), filepath.Join(t.TempDir(), "missing.db"), discardLogger); err == nil {
		t.Error("load() of a missing database should fail")
	}
}

func TestRun_StampsCreationDatetime(t *testing.T) {
	ctx := context.Background()
	input := ntfsInput(t)
	writeFiles(t, input, map[string]string{
		ntfs.FeedInfosFile: "feed_info_param,feed_info_value\nfeed_creation_date,20190101\nfeed_creation_time,08:00:00\nfeed_license,ODbL\n",
	})
	work := t.TempDir()
	writeFiles(t, work, map[string]string{"rules.json": `{}`})
	created := time.Date(2024, 2, 29, 23, 59, 1, 0, time.UTC)
	runner := newRunner(t, WithCurrentDatetime(created))

	tests := []struct {
		name   string
		output string
		read   func(t *testing.T, output string) map[string]string
	}{
		{
			name:   "ntfs",
			output: filepath.Join(work, "out"),
			read: func(t *testing.T, output string) map[string]string {
				c, err := ntfs.Read(output, discardLogger)
				if err != nil {
					t.Fatal(err)
				}
				return c.FeedInfos
			},
		},
		{
			name:   "sqlite",
			output: filepath.Join(work, "out.db"),
			read: func(t *testing.T, output string) map[string]string {
				db, err := storage.OpenExisting(output, discardLogger)
				if err != nil {
					t.Fatal(err)
				}
				defer db.Close()
				c, err := db.LoadCollections(ctx)
				if err != nil {
					t.Fatal(err)
				}
				return c.FeedInfos
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := Locations{Input: input, Output: tt.output, Report: filepath.Join(work, tt.name+".json")}
			if _, err := runner.Regroup(ctx, loc, filepath.Join(work, "rules.json")); err != nil {
				t.Fatalf("Regroup() error: %v", err)
			}
			infos := tt.read(t, tt.output)
			if infos[model.FeedCreationDate] != "20240229" || infos[model.FeedCreationTime] != "23:59:01" {
				t.Errorf("feed infos = %v, want the creation stamped 20240229 23:59:01", infos)
			}
			if infos["feed_license"] != "ODbL" {
				t.Errorf("feed_license = %q, want it kept", infos["feed_license"])
			}
		})
	}
}
