package storage

import "fmt"

// migrate creates the dataset schema if it doesn't exist. Unmodelled
// columns of a row are kept as a JSON object in its extra column.
func (db *DB) migrate() error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	db.logger.Debug("database migrations applied")
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS networks (
		network_id         TEXT PRIMARY KEY,
		network_name       TEXT NOT NULL,
		network_url        TEXT NOT NULL DEFAULT '',
		network_timezone   TEXT NOT NULL DEFAULT '',
		network_lang       TEXT NOT NULL DEFAULT '',
		network_phone      TEXT NOT NULL DEFAULT '',
		network_address    TEXT NOT NULL DEFAULT '',
		network_fare_url   TEXT NOT NULL DEFAULT '',
		network_sort_order INTEGER,
		extra              TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS commercial_modes (
		commercial_mode_id   TEXT PRIMARY KEY,
		commercial_mode_name TEXT NOT NULL,
		extra                TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS physical_modes (
		physical_mode_id   TEXT PRIMARY KEY,
		physical_mode_name TEXT NOT NULL,
		co2_emission       REAL,
		extra              TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS lines (
		line_id            TEXT PRIMARY KEY,
		line_code          TEXT NOT NULL DEFAULT '',
		line_name          TEXT NOT NULL DEFAULT '',
		forward_line_name  TEXT NOT NULL DEFAULT '',
		forward_direction  TEXT NOT NULL DEFAULT '',
		backward_line_name TEXT NOT NULL DEFAULT '',
		backward_direction TEXT NOT NULL DEFAULT '',
		network_id         TEXT NOT NULL REFERENCES networks(network_id),
		commercial_mode_id TEXT NOT NULL REFERENCES commercial_modes(commercial_mode_id),
		line_color         TEXT NOT NULL DEFAULT '',
		line_text_color    TEXT NOT NULL DEFAULT '',
		line_sort_order    INTEGER,
		geometry_id        TEXT NOT NULL DEFAULT '',
		line_opening_time  TEXT NOT NULL DEFAULT '',
		line_closing_time  TEXT NOT NULL DEFAULT '',
		extra              TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS trips (
		trip_id          TEXT PRIMARY KEY,
		route_id         TEXT NOT NULL DEFAULT '',
		service_id       TEXT NOT NULL DEFAULT '',
		physical_mode_id TEXT NOT NULL REFERENCES physical_modes(physical_mode_id),
		company_id       TEXT NOT NULL DEFAULT '',
		dataset_id       TEXT NOT NULL DEFAULT '',
		trip_headsign    TEXT NOT NULL DEFAULT '',
		trip_short_name  TEXT NOT NULL DEFAULT '',
		block_id         TEXT NOT NULL DEFAULT '',
		direction_id     TEXT NOT NULL DEFAULT '',
		trip_property_id TEXT NOT NULL DEFAULT '',
		geometry_id      TEXT NOT NULL DEFAULT '',
		extra            TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS stop_areas (
		stop_id   TEXT PRIMARY KEY,
		stop_name TEXT NOT NULL DEFAULT '',
		stop_lat  REAL NOT NULL,
		stop_lon  REAL NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS tickets (
		ticket_id      TEXT PRIMARY KEY,
		ticket_name    TEXT NOT NULL DEFAULT '',
		ticket_comment TEXT NOT NULL DEFAULT '',
		extra          TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS ticket_uses (
		ticket_use_id        TEXT PRIMARY KEY,
		ticket_id            TEXT NOT NULL,
		max_transfers        INTEGER,
		boarding_time_limit  INTEGER,
		alighting_time_limit INTEGER,
		extra                TEXT NOT NULL DEFAULT ''
	)`,

	// Fare rows have no identifier of their own; seq keeps file order.
	`CREATE TABLE IF NOT EXISTS ticket_prices (
		seq                   INTEGER PRIMARY KEY,
		ticket_id             TEXT NOT NULL,
		ticket_price          REAL NOT NULL,
		ticket_currency       TEXT NOT NULL,
		ticket_validity_start TEXT NOT NULL,
		ticket_validity_end   TEXT NOT NULL,
		extra                 TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS ticket_use_perimeters (
		seq              INTEGER PRIMARY KEY,
		ticket_use_id    TEXT NOT NULL,
		object_type      TEXT NOT NULL,
		object_id        TEXT NOT NULL,
		perimeter_action INTEGER NOT NULL,
		extra            TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS ticket_use_restrictions (
		seq              INTEGER PRIMARY KEY,
		ticket_use_id    TEXT NOT NULL,
		restriction_type TEXT NOT NULL,
		use_origin       TEXT NOT NULL DEFAULT '',
		use_destination  TEXT NOT NULL DEFAULT '',
		extra            TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS feed_infos (
		feed_info_param TEXT PRIMARY KEY,
		feed_info_value TEXT NOT NULL DEFAULT ''
	)`,

	// Dataset metadata (run_id, saved_at)
	`CREATE TABLE IF NOT EXISTS dataset_metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_lines_network ON lines(network_id)`,
	`CREATE INDEX IF NOT EXISTS idx_lines_commercial_mode ON lines(commercial_mode_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trips_physical_mode ON trips(physical_mode_id)`,
}
