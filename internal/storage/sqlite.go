// Package storage keeps a dataset in a SQLite database file.
package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// DB is a dataset database. A dataset file is a published artifact, so the
// connection uses a rollback journal and leaves no -wal or -shm files behind.
type DB struct {
	*sql.DB
	path   string
	logger *slog.Logger
}

// Open opens the dataset at path, creating the file and its schema if needed.
func Open(path string, logger *slog.Logger) (*DB, error) {
	return open(path, "rwc", logger)
}

// OpenExisting opens a dataset that must already exist, as for a run input.
func OpenExisting(path string, logger *slog.Logger) (*DB, error) {
	return open(path, "rw", logger)
}

// dsn builds the go-sqlite3 connection string. Foreign keys are enforced so
// a dataset with dangling references cannot be saved.
func dsn(path, mode string) string {
	q := url.Values{}
	q.Set("mode", mode)
	q.Set("_journal_mode", "DELETE")
	q.Set("_synchronous", "FULL")
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", "5000")
	return "file:" + path + "?" + q.Encode()
}

func open(path, mode string, logger *slog.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", dsn(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	// One writer, and the pragmas above apply per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}

	db := &DB{DB: sqlDB, path: path, logger: logger}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate dataset %s: %w", path, err)
	}

	logger.Debug("dataset database opened", "path", path, "mode", mode)
	return db, nil
}
