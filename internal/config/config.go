package config

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Import
		Scheduler
		Tasks
		Log
		Audit
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Driver string // sqlite, postgres or mysql
		DSN    string
	}
	Import struct {
		UploadDir     string
		StylesheetDir string
		CSVDelimiter  string
		CSVQuote      string
		XSLTProcPath  string
	}
	Scheduler struct {
		Enabled         bool
		ProcessSchedule string // Cron format: "*/5 * * * *" = every 5 minutes
		ImportSchedule  string
	}
	Tasks struct {
		Enabled           bool
		Workers           int
		MaxRetries        int
		RetryDelay        time.Duration
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
	Log struct {
		Level      string
		Format     string // console or json
		File       string // empty logs to stderr only
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}
	Audit struct {
		RetentionDays int // Days to keep job history (default: 30)
	}
)

// NewConfig reads configuration from the environment. A .env file in the
// working directory is loaded first when present.
func NewConfig() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)
	v.SetDefault("database_driver", DriverSQLite)
	v.SetDefault("database_dsn", DefaultDatabasePath)
	v.SetDefault("import_upload_dir", DefaultUploadDir)
	v.SetDefault("import_stylesheet_dir", DefaultStylesheetDir)
	v.SetDefault("import_csv_delimiter", ",")
	v.SetDefault("import_csv_quote", `"`)
	v.SetDefault("import_xsltproc_path", "xsltproc")
	v.SetDefault("scheduler_enabled", false)
	v.SetDefault("scheduler_process_schedule", "*/5 * * * *")
	v.SetDefault("scheduler_import_schedule", "*/5 * * * *")
	v.SetDefault("audit_retention_days", 30)

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 5)
	v.SetDefault("log_max_age_days", 30)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 1)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "1m")
	v.SetDefault("task_timeout", "10m")
	v.SetDefault("task_release_after", "30m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Driver: v.GetString("DATABASE_DRIVER"),
			DSN:    v.GetString("DATABASE_DSN"),
		},
		Import: Import{
			UploadDir:     v.GetString("IMPORT_UPLOAD_DIR"),
			StylesheetDir: v.GetString("IMPORT_STYLESHEET_DIR"),
			CSVDelimiter:  v.GetString("IMPORT_CSV_DELIMITER"),
			CSVQuote:      v.GetString("IMPORT_CSV_QUOTE"),
			XSLTProcPath:  v.GetString("IMPORT_XSLTPROC_PATH"),
		},
		Scheduler: Scheduler{
			Enabled:         v.GetBool("SCHEDULER_ENABLED"),
			ProcessSchedule: v.GetString("SCHEDULER_PROCESS_SCHEDULE"),
			ImportSchedule:  v.GetString("SCHEDULER_IMPORT_SCHEDULE"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			MaxRetries:        v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("TASK_RETRY_DELAY"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Log: Log{
			Level:      v.GetString("LOG_LEVEL"),
			Format:     v.GetString("LOG_FORMAT"),
			File:       v.GetString("LOG_FILE"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
	}
}

// scheduleParser accepts plain five-field expressions, the same set the
// driver scheduler runs.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks settings that would otherwise fail deep inside a pass.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_DSN must not be empty")
	}
	if utf8.RuneCountInString(c.Import.CSVDelimiter) != 1 {
		return fmt.Errorf("IMPORT_CSV_DELIMITER must be a single character, got %q", c.Import.CSVDelimiter)
	}
	if utf8.RuneCountInString(c.Import.CSVQuote) != 1 {
		return fmt.Errorf("IMPORT_CSV_QUOTE must be a single character, got %q", c.Import.CSVQuote)
	}
	if c.Import.CSVQuote == c.Import.CSVDelimiter {
		return fmt.Errorf("IMPORT_CSV_QUOTE and IMPORT_CSV_DELIMITER must differ")
	}
	if c.Scheduler.Enabled {
		for name, spec := range map[string]string{
			"SCHEDULER_PROCESS_SCHEDULE": c.Scheduler.ProcessSchedule,
			"SCHEDULER_IMPORT_SCHEDULE":  c.Scheduler.ImportSchedule,
		} {
			if _, err := scheduleParser.Parse(spec); err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, spec, err)
			}
		}
	}
	return nil
}
