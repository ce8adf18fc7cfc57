package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"transitcurate/internal/config"
)

func TestPrintErrorChain(t *testing.T) {
	base := errors.New("fare table not found")
	err := fmt.Errorf("farev2: %w", fmt.Errorf("%w: tickets.txt", base))

	var buf bytes.Buffer
	printErrorChain(&buf, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"error: farev2: fare table not found: tickets.txt",
		"caused by: fare table not found: tickets.txt",
		"caused by: fare table not found",
	}
	if len(lines) != len(want) {
		t.Fatalf("printErrorChain() wrote %q, want %d lines", buf.String(), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestApplyFlags_OverrideConfig(t *testing.T) {
	root := newRootCmd()
	cmd, _, err := root.Find([]string{"regroup"})
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.ParseFlags([]string{"--input", "/data/ntfs", "--report", "r.json"}); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{Input: "from-file", Output: "out", Rules: "rules.json", LogLevel: "info"}
	applyFlags(cmd, cfg)

	if cfg.Input != "/data/ntfs" {
		t.Errorf("Input = %q, want the flag value", cfg.Input)
	}
	if cfg.Output != "out" {
		t.Errorf("Output = %q, unset flags must keep the config value", cfg.Output)
	}
	if err := cfg.Validate("regroup"); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestRegroupCommand_MissingRules(t *testing.T) {
	dir := t.TempDir()
	root := newRootCmd()
	root.SetArgs([]string{"regroup",
		"--input", dir,
		"--output", filepath.Join(dir, "out"),
		"--report", filepath.Join(dir, "report.json"),
	})
	root.SetOut(&bytes.Buffer{})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "Rules") {
		t.Errorf("Execute() error = %v, want a missing rules error", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "report.json")); !os.IsNotExist(err) {
		t.Error("no report should be written when the configuration is invalid")
	}
}

func TestRegroupCommand_CurrentDatetime(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "long", args: []string{"--current-datetime", "20240601T143000"}, want: "20240601T143000"},
		{name: "short", args: []string{"-x", "20231231T235959"}, want: "20231231T235959"},
		{name: "malformed", args: []string{"-x", "2024-06-01"}, want: "2024-06-01", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _, err := newRootCmd().Find([]string{"regroup"})
			if err != nil {
				t.Fatal(err)
			}
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatal(err)
			}
			cfg := &config.Config{Input: "in", Output: "out", Rules: "rules.json", Report: "r.json", LogLevel: "info"}
			applyFlags(cmd, cfg)
			if cfg.CurrentDatetime != tt.want {
				t.Errorf("CurrentDatetime = %q, want %q", cfg.CurrentDatetime, tt.want)
			}
			if err := cfg.Validate("regroup"); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
