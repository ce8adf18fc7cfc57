package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"transitcurate/internal/model"
)

// Metadata keys of dataset_metadata.
const (
	MetadataRunID   = "run_id"
	MetadataSavedAt = "saved_at"
)

// GetMetadata retrieves a value from the dataset_metadata table.
func (db *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM dataset_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SaveCollections replaces the stored dataset with c. The entire operation
// runs in a single transaction.
func (db *DB) SaveCollections(ctx context.Context, c *model.Collections, runID string) error {
	start := time.Now()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := clearTables(ctx, tx); err != nil {
		return err
	}

	steps := []func() error{
		func() error {
			return insertAll(ctx, tx, "networks", []string{
				"network_id", "network_name", "network_url", "network_timezone",
				"network_lang", "network_phone", "network_address", "network_fare_url", "network_sort_order", "extra",
			}, c.Networks.Values(), func(n model.Network) []any {
				return []any{n.NetworkID, n.Name, n.URL, n.Timezone, n.Lang, n.Phone, n.Address, n.FareURL, n.SortOrder,
					extraJSON(n.Extra)}
			})
		},
		func() error {
			return insertAll(ctx, tx, "commercial_modes", []string{
				"commercial_mode_id", "commercial_mode_name", "extra",
			}, c.CommercialModes.Values(), func(m model.CommercialMode) []any {
				return []any{m.CommercialModeID, m.Name, extraJSON(m.Extra)}
			})
		},
		func() error {
			return insertAll(ctx, tx, "physical_modes", []string{
				"physical_mode_id", "physical_mode_name", "co2_emission", "extra",
			}, c.PhysicalModes.Values(), func(m model.PhysicalMode) []any {
				return []any{m.PhysicalModeID, m.Name, m.CO2Emission, extraJSON(m.Extra)}
			})
		},
		func() error {
			return insertAll(ctx, tx, "lines", []string{
				"line_id", "line_code", "line_name", "forward_line_name", "forward_direction",
				"backward_line_name", "backward_direction", "network_id", "commercial_mode_id",
				"line_color", "line_text_color", "line_sort_order", "geometry_id",
				"line_opening_time", "line_closing_time", "extra",
			}, c.Lines.Values(), func(l model.Line) []any {
				return []any{l.LineID, l.Code, l.Name, l.ForwardName, l.ForwardDirection,
					l.BackwardName, l.BackwardDirection, l.NetworkID, l.CommercialModeID,
					l.Color, l.TextColor, l.SortOrder, l.GeometryID,
					l.OpeningTime, l.ClosingTime, extraJSON(l.Extra)}
			})
		},
		func() error {
			return insertAll(ctx, tx, "trips", []string{
				"trip_id", "route_id", "service_id", "physical_mode_id", "company_id", "dataset_id",
				"trip_headsign", "trip_short_name", "block_id", "direction_id", "trip_property_id", "geometry_id", "extra",
			}, c.VehicleJourneys.Values(), func(vj model.VehicleJourney) []any {
				return []any{vj.TripID, vj.RouteID, vj.ServiceID, vj.PhysicalModeID, vj.CompanyID, vj.DatasetID,
					vj.Headsign, vj.ShortName, vj.BlockID, vj.DirectionID, vj.TripPropertyID, vj.GeometryID,
					extraJSON(vj.Extra)}
			})
		},
		func() error {
			return insertAll(ctx, tx, "stop_areas", []string{
				"stop_id", "stop_name", "stop_lat", "stop_lon",
			}, c.StopAreas.Values(), func(s model.StopArea) []any {
				return []any{s.StopID, s.Name, s.Lat, s.Lon}
			})
		},
		func() error {
			return insertAll(ctx, tx, "tickets", []string{
				"ticket_id", "ticket_name", "ticket_comment", "extra",
			}, c.Tickets.Values(), func(t model.Ticket) []any {
				return []any{t.TicketID, t.Name, t.Comment, extraJSON(t.Extra)}
			})
		},
		func() error {
			return insertAll(ctx, tx, "ticket_uses", []string{
				"ticket_use_id", "ticket_id", "max_transfers", "boarding_time_limit", "alighting_time_limit", "extra",
			}, c.TicketUses.Values(), func(t model.TicketUse) []any {
				return []any{t.TicketUseID, t.TicketID, t.MaxTransfers, t.BoardingTimeLimit, t.AlightingTimeLimit,
					extraJSON(t.Extra)}
			})
		},
		func() error {
			return insertAll(ctx, tx, "ticket_prices", []string{
				"ticket_id", "ticket_price", "ticket_currency", "ticket_validity_start", "ticket_validity_end", "extra",
			}, c.TicketPrices.Values(), func(p model.TicketPrice) []any {
				return []any{p.TicketID, p.Price, p.Currency, p.ValidityStart.String(), p.ValidityEnd.String(),
					extraJSON(p.Extra)}
			})
		},
		func() error {
			return insertAll(ctx, tx, "ticket_use_perimeters", []string{
				"ticket_use_id", "object_type", "object_id", "perimeter_action", "extra",
			}, c.TicketUsePerimeters.Values(), func(p model.TicketUsePerimeter) []any {
				return []any{p.TicketUseID, string(p.ObjectType), p.ObjectID, int(p.PerimeterAction), extraJSON(p.Extra)}
			})
		},
		func() error {
			return insertAll(ctx, tx, "ticket_use_restrictions", []string{
				"ticket_use_id", "restriction_type", "use_origin", "use_destination", "extra",
			}, c.TicketUseRestrictions.Values(), func(r model.TicketUseRestriction) []any {
				return []any{r.TicketUseID, string(r.RestrictionType), r.UseOrigin, r.UseDestination, extraJSON(r.Extra)}
			})
		},
		func() error {
			params := slices.Sorted(maps.Keys(c.FeedInfos))
			return insertAll(ctx, tx, "feed_infos", []string{
				"feed_info_param", "feed_info_value",
			}, params, func(param string) []any {
				return []any{param, c.FeedInfos[param]}
			})
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for key, value := range map[string]string{MetadataRunID: runID, MetadataSavedAt: now} {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO dataset_metadata (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	db.logger.Info("dataset saved",
		"path", db.path,
		"duration", time.Since(start).Round(time.Millisecond),
		"networks", c.Networks.Len(),
		"lines", c.Lines.Len(),
		"trips", c.VehicleJourneys.Len(),
	)
	return nil
}

func clearTables(ctx context.Context, tx *sql.Tx) error {
	// Dependents first, foreign keys are enforced.
	tables := []string{
		"ticket_use_restrictions", "ticket_use_perimeters", "ticket_prices", "ticket_uses", "tickets",
		"trips", "lines", "stop_areas", "physical_modes", "commercial_modes", "networks",
		"feed_infos", "dataset_metadata",
	}
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", t)); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}
	return nil
}

func insertAll[T any](ctx context.Context, tx *sql.Tx, table string, columns []string, rows []T, values func(T) []any) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare %s: %w", table, err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, values(row)...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", table, i, err)
		}
	}
	return nil
}

// LoadCollections reads the stored dataset.
func (db *DB) LoadCollections(ctx context.Context) (model.Collections, error) {
	var c model.Collections

	networks, err := queryAll(ctx, db, `SELECT network_id, network_name, network_url, network_timezone,
		network_lang, network_phone, network_address, network_fare_url, network_sort_order, extra
		FROM networks ORDER BY rowid`,
		func(rows *sql.Rows) (n model.Network, err error) {
			err = rows.Scan(&n.NetworkID, &n.Name, &n.URL, &n.Timezone, &n.Lang, &n.Phone, &n.Address,
				&n.FareURL, &n.SortOrder, extraScanner{&n.Extra})
			return n, err
		})
	if err != nil {
		return c, err
	}
	if err := c.Networks.Extend(networks); err != nil {
		return c, err
	}

	commercialModes, err := queryAll(ctx, db, `SELECT commercial_mode_id, commercial_mode_name, extra
		FROM commercial_modes ORDER BY rowid`,
		func(rows *sql.Rows) (m model.CommercialMode, err error) {
			err = rows.Scan(&m.CommercialModeID, &m.Name, extraScanner{&m.Extra})
			return m, err
		})
	if err != nil {
		return c, err
	}
	if err := c.CommercialModes.Extend(commercialModes); err != nil {
		return c, err
	}

	physicalModes, err := queryAll(ctx, db, `SELECT physical_mode_id, physical_mode_name, co2_emission, extra
		FROM physical_modes ORDER BY rowid`,
		func(rows *sql.Rows) (m model.PhysicalMode, err error) {
			err = rows.Scan(&m.PhysicalModeID, &m.Name, &m.CO2Emission, extraScanner{&m.Extra})
			return m, err
		})
	if err != nil {
		return c, err
	}
	if err := c.PhysicalModes.Extend(physicalModes); err != nil {
		return c, err
	}

	lines, err := queryAll(ctx, db, `SELECT line_id, line_code, line_name, forward_line_name, forward_direction,
		backward_line_name, backward_direction, network_id, commercial_mode_id, line_color, line_text_color,
		line_sort_order, geometry_id, line_opening_time, line_closing_time, extra FROM lines ORDER BY rowid`,
		func(rows *sql.Rows) (l model.Line, err error) {
			err = rows.Scan(&l.LineID, &l.Code, &l.Name, &l.ForwardName, &l.ForwardDirection,
				&l.BackwardName, &l.BackwardDirection, &l.NetworkID, &l.CommercialModeID, &l.Color, &l.TextColor,
				&l.SortOrder, &l.GeometryID, &l.OpeningTime, &l.ClosingTime, extraScanner{&l.Extra})
			return l, err
		})
	if err != nil {
		return c, err
	}
	if err := c.Lines.Extend(lines); err != nil {
		return c, err
	}

	trips, err := queryAll(ctx, db, `SELECT trip_id, route_id, service_id, physical_mode_id, company_id,
		dataset_id, trip_headsign, trip_short_name, block_id, direction_id, trip_property_id, geometry_id, extra
		FROM trips ORDER BY rowid`,
		func(rows *sql.Rows) (vj model.VehicleJourney, err error) {
			err = rows.Scan(&vj.TripID, &vj.RouteID, &vj.ServiceID, &vj.PhysicalModeID, &vj.CompanyID,
				&vj.DatasetID, &vj.Headsign, &vj.ShortName, &vj.BlockID, &vj.DirectionID,
				&vj.TripPropertyID, &vj.GeometryID, extraScanner{&vj.Extra})
			return vj, err
		})
	if err != nil {
		return c, err
	}
	if err := c.VehicleJourneys.Extend(trips); err != nil {
		return c, err
	}

	stopAreas, err := queryAll(ctx, db, `SELECT stop_id, stop_name, stop_lat, stop_lon FROM stop_areas ORDER BY rowid`,
		func(rows *sql.Rows) (s model.StopArea, err error) {
			err = rows.Scan(&s.StopID, &s.Name, &s.Lat, &s.Lon)
			return s, err
		})
	if err != nil {
		return c, err
	}
	if err := c.StopAreas.Extend(stopAreas); err != nil {
		return c, err
	}

	tickets, err := queryAll(ctx, db, `SELECT ticket_id, ticket_name, ticket_comment, extra FROM tickets ORDER BY rowid`,
		func(rows *sql.Rows) (t model.Ticket, err error) {
			err = rows.Scan(&t.TicketID, &t.Name, &t.Comment, extraScanner{&t.Extra})
			return t, err
		})
	if err != nil {
		return c, err
	}
	if err := c.Tickets.Extend(tickets); err != nil {
		return c, err
	}

	uses, err := queryAll(ctx, db, `SELECT ticket_use_id, ticket_id, max_transfers, boarding_time_limit,
		alighting_time_limit, extra FROM ticket_uses ORDER BY rowid`,
		func(rows *sql.Rows) (t model.TicketUse, err error) {
			err = rows.Scan(&t.TicketUseID, &t.TicketID, &t.MaxTransfers, &t.BoardingTimeLimit, &t.AlightingTimeLimit,
				extraScanner{&t.Extra})
			return t, err
		})
	if err != nil {
		return c, err
	}
	if err := c.TicketUses.Extend(uses); err != nil {
		return c, err
	}

	prices, err := queryAll(ctx, db, `SELECT ticket_id, ticket_price, ticket_currency, ticket_validity_start,
		ticket_validity_end, extra FROM ticket_prices ORDER BY seq`,
		func(rows *sql.Rows) (p model.TicketPrice, err error) {
			var start, end string
			if err = rows.Scan(&p.TicketID, &p.Price, &p.Currency, &start, &end, extraScanner{&p.Extra}); err != nil {
				return p, err
			}
			if err = p.ValidityStart.UnmarshalText([]byte(start)); err != nil {
				return p, err
			}
			err = p.ValidityEnd.UnmarshalText([]byte(end))
			return p, err
		})
	if err != nil {
		return c, err
	}
	c.TicketPrices = model.NewCollection(prices)

	perimeters, err := queryAll(ctx, db, `SELECT ticket_use_id, object_type, object_id, perimeter_action, extra
		FROM ticket_use_perimeters ORDER BY seq`,
		func(rows *sql.Rows) (p model.TicketUsePerimeter, err error) {
			var objectType string
			var action int
			if err = rows.Scan(&p.TicketUseID, &objectType, &p.ObjectID, &action, extraScanner{&p.Extra}); err != nil {
				return p, err
			}
			p.ObjectType = model.ObjectType(objectType)
			p.PerimeterAction = model.PerimeterAction(action)
			return p, nil
		})
	if err != nil {
		return c, err
	}
	c.TicketUsePerimeters = model.NewCollection(perimeters)

	restrictions, err := queryAll(ctx, db, `SELECT ticket_use_id, restriction_type, use_origin, use_destination, extra
		FROM ticket_use_restrictions ORDER BY seq`,
		func(rows *sql.Rows) (r model.TicketUseRestriction, err error) {
			var restrictionType string
			if err = rows.Scan(&r.TicketUseID, &restrictionType, &r.UseOrigin, &r.UseDestination, extraScanner{&r.Extra}); err != nil {
				return r, err
			}
			r.RestrictionType = model.RestrictionType(restrictionType)
			return r, nil
		})
	if err != nil {
		return c, err
	}
	c.TicketUseRestrictions = model.NewCollection(restrictions)

	type feedInfo struct{ param, value string }
	infos, err := queryAll(ctx, db, `SELECT feed_info_param, feed_info_value FROM feed_infos`,
		func(rows *sql.Rows) (f feedInfo, err error) {
			err = rows.Scan(&f.param, &f.value)
			return f, err
		})
	if err != nil {
		return c, err
	}
	if len(infos) > 0 {
		c.FeedInfos = make(map[string]string, len(infos))
		for _, f := range infos {
			c.FeedInfos[f.param] = f.value
		}
	}

	db.logger.Info("dataset loaded",
		"path", db.path,
		"networks", c.Networks.Len(),
		"lines", c.Lines.Len(),
		"trips", c.VehicleJourneys.Len(),
		"tickets", c.Tickets.Len(),
	)
	return c, nil
}

func queryAll[T any](ctx context.Context, db *DB, query string, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var results []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

// extraJSON encodes the unmodelled columns of a row, or '' when there are none.
func extraJSON(e model.Extra) string {
	if len(e) == 0 {
		return ""
	}
	b, _ := json.Marshal(e)
	return string(b)
}

// extraScanner decodes an extra column written by extraJSON.
type extraScanner struct{ dst *model.Extra }

func (s extraScanner) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("extra: unsupported type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, s.dst)
}
