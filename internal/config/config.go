package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// S3 configures access to s3:// locations.
type S3 struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint" validate:"omitempty,url"` // MinIO and other S3-compatible stores
	PathStyle bool   `yaml:"path_style"`
}

// Config holds the run configuration. Values come from defaults, then an
// optional YAML file, then TRANSITCURATE_* environment variables; command
// line flags are applied last by the caller.
type Config struct {
	Input       string `yaml:"input" validate:"required"`
	Output      string `yaml:"output" validate:"required"`
	Rules       string `yaml:"rules" validate:"required"`
	Fare        string `yaml:"fare" validate:"required"`
	Report      string `yaml:"report" validate:"required"`
	ReportHTML  string `yaml:"report_html"`
	MetricsFile string `yaml:"metrics_file"`
	WorkDir     string `yaml:"work_dir"` // Directory for downloaded inputs
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`
	S3          S3     `yaml:"s3"`

	// CurrentDatetime overrides the creation date and time written to the
	// output, as YYYYMMDDTHHMMSS. Empty means the start of the run.
	CurrentDatetime string `yaml:"current_datetime" validate:"omitempty,datetime=20060102T150405"`
}

// DatetimeLayout is the format of CurrentDatetime.
const DatetimeLayout = "20060102T150405"

var validate = validator.New()

// Load builds the configuration. path may be empty when there is no config file.
func Load(path string) (*Config, error) {
	cfg := &Config{LogLevel: "info"}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Input = envStr("TRANSITCURATE_INPUT", cfg.Input)
	cfg.Output = envStr("TRANSITCURATE_OUTPUT", cfg.Output)
	cfg.Rules = envStr("TRANSITCURATE_RULES", cfg.Rules)
	cfg.Fare = envStr("TRANSITCURATE_FARE", cfg.Fare)
	cfg.Report = envStr("TRANSITCURATE_REPORT", cfg.Report)
	cfg.ReportHTML = envStr("TRANSITCURATE_REPORT_HTML", cfg.ReportHTML)
	cfg.MetricsFile = envStr("TRANSITCURATE_METRICS_FILE", cfg.MetricsFile)
	cfg.WorkDir = envStr("TRANSITCURATE_WORK_DIR", cfg.WorkDir)
	cfg.LogLevel = envStr("TRANSITCURATE_LOG_LEVEL", cfg.LogLevel)
	cfg.CurrentDatetime = envStr("TRANSITCURATE_CURRENT_DATETIME", cfg.CurrentDatetime)
	cfg.S3.Region = envStr("TRANSITCURATE_S3_REGION", cfg.S3.Region)
	cfg.S3.Endpoint = envStr("TRANSITCURATE_S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.PathStyle = envBool("TRANSITCURATE_S3_PATH_STYLE", cfg.S3.PathStyle)

	if err := validate.StructPartial(cfg, "LogLevel", "S3.Endpoint", "CurrentDatetime"); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every location command needs is set.
func (c *Config) Validate(command string) error {
	fields := []string{"Input", "Output", "Report", "LogLevel", "S3.Endpoint", "CurrentDatetime"}
	switch command {
	case "regroup":
		fields = append(fields, "Rules")
	case "farev2":
		fields = append(fields, "Fare")
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	if err := validate.StructPartial(c, fields...); err != nil {
		return fmt.Errorf("invalid config for %s: %w", command, err)
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// CurrentTime returns the configured creation time, or now when none is set.
// The value carries no zone and is read as UTC.
func (c *Config) CurrentTime(now time.Time) (time.Time, error) {
	if c.CurrentDatetime == "" {
		return now, nil
	}
	t, err := time.Parse(DatetimeLayout, c.CurrentDatetime)
	if err != nil {
		return time.Time{}, fmt.Errorf("current datetime %q: want YYYYMMDDTHHMMSS: %w", c.CurrentDatetime, err)
	}
	return t, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
