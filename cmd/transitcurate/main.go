package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"transitcurate/internal/config"
	"transitcurate/internal/curate"
	"transitcurate/internal/source"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printErrorChain(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "transitcurate",
		Short:         "Consolidate NTFS datasets and merge fare archives into them",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")

	root.AddCommand(
		newRunCmd("regroup", "Regroup networks, commercial modes and physical modes by object rules", "rules",
			"Object rules JSON file (local path, http(s):// or s3:// URL)", &configPath),
		newRunCmd("farev2", "Merge a fare v2 archive into the dataset", "fare",
			"Fare v2 zip archive (local path, http(s):// or s3:// URL)", &configPath),
	)
	return root
}

// newRunCmd builds a pipeline subcommand. extraFlag names the command specific
// location: rules for regroup, fare for farev2.
func newRunCmd(name, short, extraFlag, extraUsage string, configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg)
			if err := cfg.Validate(name); err != nil {
				return err
			}
			return run(cmd.Context(), name, cfg)
		},
	}

	cmd.Flags().String("input", "", "Input dataset: NTFS directory or SQLite file (.db, .sqlite)")
	cmd.Flags().String("output", "", "Output dataset: NTFS directory or SQLite file (.db, .sqlite)")
	cmd.Flags().String(extraFlag, "", extraUsage)
	cmd.Flags().String("report", "", "Report JSON file (local path or s3:// URL)")
	cmd.Flags().String("report-html", "", "Optional HTML rendering of the report")
	cmd.Flags().String("metrics-file", "", "Optional Prometheus textfile for run metrics")
	cmd.Flags().StringP("current-datetime", "x", "", "Creation date and time of the output, as YYYYMMDDTHHMMSS (default now)")
	return cmd
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	targets := map[string]*string{
		"input":            &cfg.Input,
		"output":           &cfg.Output,
		"rules":            &cfg.Rules,
		"fare":             &cfg.Fare,
		"report":           &cfg.Report,
		"report-html":      &cfg.ReportHTML,
		"metrics-file":     &cfg.MetricsFile,
		"log-level":        &cfg.LogLevel,
		"current-datetime": &cfg.CurrentDatetime,
	}
	for name, dst := range targets {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		*dst = f.Value.String()
	}
}

func run(ctx context.Context, command string, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})).With("run_id", runID)

	fetcher, err := source.New(ctx, source.S3Config{
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		PathStyle: cfg.S3.PathStyle,
	}, cfg.WorkDir, logger)
	if err != nil {
		return err
	}
	var opts []curate.Option
	if cfg.CurrentDatetime != "" {
		created, err := cfg.CurrentTime(time.Now())
		if err != nil {
			return err
		}
		opts = append(opts, curate.WithCurrentDatetime(created))
	}
	runner := curate.NewRunner(fetcher, runID, logger, opts...)

	loc := curate.Locations{
		Input:       cfg.Input,
		Output:      cfg.Output,
		Report:      cfg.Report,
		ReportHTML:  cfg.ReportHTML,
		MetricsFile: cfg.MetricsFile,
	}
	switch command {
	case "regroup":
		_, err = runner.Regroup(ctx, loc, cfg.Rules)
	case "farev2":
		_, err = runner.EnrichFare(ctx, loc, cfg.Fare)
	default:
		err = fmt.Errorf("unknown command %q", command)
	}
	return err
}

// printErrorChain writes err and each error it wraps on its own line.
func printErrorChain(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		fmt.Fprintf(w, "caused by: %v\n", cause)
	}
}
