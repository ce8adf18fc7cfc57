package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transitcurate.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("SlogLevel() = %v, want INFO", cfg.SlogLevel())
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
input: ./ntfs
output: ./out
rules: s3://rules/regroup.json
report: ./report.json
log_level: debug
s3:
  region: eu-west-3
  endpoint: http://localhost:9000
  path_style: true
`)
	t.Setenv("TRANSITCURATE_OUTPUT", "/srv/out")
	t.Setenv("TRANSITCURATE_S3_PATH_STYLE", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Input != "./ntfs" {
		t.Errorf("Input = %q, want ./ntfs", cfg.Input)
	}
	if cfg.Output != "/srv/out" {
		t.Errorf("Output = %q, want the environment value /srv/out", cfg.Output)
	}
	if cfg.S3.Region != "eu-west-3" || cfg.S3.Endpoint != "http://localhost:9000" {
		t.Errorf("S3 = %+v", cfg.S3)
	}
	if cfg.S3.PathStyle {
		t.Error("S3.PathStyle should be overridden by the environment")
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, want DEBUG", cfg.SlogLevel())
	}
	if err := cfg.Validate("regroup"); err != nil {
		t.Errorf("Validate(regroup) error: %v", err)
	}
	if err := cfg.Validate("farev2"); err == nil {
		t.Error("Validate(farev2) should fail without a fare location")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "bad yaml", content: "input: [", want: "parse config"},
		{name: "bad log level", content: "log_level: loud", want: "invalid config"},
		{name: "bad endpoint", content: "s3:\n  endpoint: not a url", want: "invalid config"},
		{name: "bad current datetime", content: "current_datetime: 2024-06-01 14:30", want: "invalid config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %q, want it to contain %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Input: "in", Output: "out", Report: "r.json", Fare: "fare.zip", LogLevel: "warn"}
	if err := cfg.Validate("farev2"); err != nil {
		t.Errorf("Validate(farev2) error: %v", err)
	}
	if err := cfg.Validate("regroup"); err == nil {
		t.Error("Validate(regroup) should fail without rules")
	}
	if err := cfg.Validate("other"); err == nil {
		t.Error("Validate(other) should fail")
	}
	cfg.Report = ""
	if err := cfg.Validate("farev2"); err == nil {
		t.Error("Validate(farev2) should fail without a report location")
	}
}

func TestCurrentTime(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantErr bool
	}{
		{name: "unset", value: "", want: now},
		{name: "set", value: "20240601T143000", want: time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC)},
		{name: "date only", value: "20240601", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{CurrentDatetime: tt.value}
			got, err := cfg.CurrentTime(now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CurrentTime() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("CurrentTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoad_CurrentDatetimeFromEnv(t *testing.T) {
	t.Setenv("TRANSITCURATE_CURRENT_DATETIME", "20230315T080910")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CurrentDatetime != "20230315T080910" {
		t.Errorf("CurrentDatetime = %q, want the environment value", cfg.CurrentDatetime)
	}
}
