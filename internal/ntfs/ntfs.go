// Package ntfs reads and writes the NTFS tables of a dataset directory.
package ntfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"transitcurate/internal/model"
)

// Table file names.
const (
	NetworksFile              = "networks.txt"
	CommercialModesFile       = "commercial_modes.txt"
	PhysicalModesFile         = "physical_modes.txt"
	LinesFile                 = "lines.txt"
	TripsFile                 = "trips.txt"
	StopsFile                 = "stops.txt"
	FeedInfosFile             = "feed_infos.txt"
	TicketsFile               = "tickets.txt"
	TicketUsesFile            = "ticket_uses.txt"
	TicketPricesFile          = "ticket_prices.txt"
	TicketUsePerimetersFile   = "ticket_use_perimeters.txt"
	TicketUseRestrictionsFile = "ticket_use_restrictions.txt"
)

// rewritten lists the tables Write produces from the collections.
// Any other file of a dataset directory is carried over as is.
var rewritten = map[string]bool{
	NetworksFile:              true,
	CommercialModesFile:       true,
	PhysicalModesFile:         true,
	LinesFile:                 true,
	TripsFile:                 true,
	TicketsFile:               true,
	TicketUsesFile:            true,
	TicketPricesFile:          true,
	TicketUsePerimetersFile:   true,
	TicketUseRestrictionsFile: true,
	FeedInfosFile:             true,
}

// stopRow is a stops.txt record. Only stop areas (location_type 1) are kept.
type stopRow struct {
	StopID       string  `csv:"stop_id" validate:"required"`
	Name         string  `csv:"stop_name"`
	Lat          float64 `csv:"stop_lat"`
	Lon          float64 `csv:"stop_lon"`
	LocationType string  `csv:"location_type"`
}

// feedInfoRow is a feed_infos.txt record.
type feedInfoRow struct {
	Param string `csv:"feed_info_param" validate:"required"`
	Value string `csv:"feed_info_value"`
}

// Read loads the NTFS directory dir. networks, commercial modes, physical
// modes, lines and trips are required; stops and fare tables are optional.
func Read(dir string, logger *slog.Logger) (model.Collections, error) {
	var c model.Collections
	var err error

	if c.Networks, err = readCollection[model.Network](dir, NetworksFile, true); err != nil {
		return c, err
	}
	if c.CommercialModes, err = readCollection[model.CommercialMode](dir, CommercialModesFile, true); err != nil {
		return c, err
	}
	if c.PhysicalModes, err = readCollection[model.PhysicalMode](dir, PhysicalModesFile, true); err != nil {
		return c, err
	}
	if c.Lines, err = readCollection[model.Line](dir, LinesFile, true); err != nil {
		return c, err
	}
	if c.VehicleJourneys, err = readCollection[model.VehicleJourney](dir, TripsFile, true); err != nil {
		return c, err
	}

	stops, err := readFile[stopRow](dir, StopsFile, false)
	if err != nil {
		return c, err
	}
	for _, s := range stops {
		if s.LocationType != "1" {
			continue
		}
		if _, err := c.StopAreas.Push(model.StopArea{StopID: s.StopID, Name: s.Name, Lat: s.Lat, Lon: s.Lon}); err != nil {
			return c, fmt.Errorf("parsing %s: %w", StopsFile, err)
		}
	}

	if c.Tickets, err = readCollection[model.Ticket](dir, TicketsFile, false); err != nil {
		return c, err
	}
	if c.TicketUses, err = readCollection[model.TicketUse](dir, TicketUsesFile, false); err != nil {
		return c, err
	}
	prices, err := readFile[model.TicketPrice](dir, TicketPricesFile, false)
	if err != nil {
		return c, err
	}
	c.TicketPrices = model.NewCollection(prices)
	perimeters, err := readFile[model.TicketUsePerimeter](dir, TicketUsePerimetersFile, false)
	if err != nil {
		return c, err
	}
	c.TicketUsePerimeters = model.NewCollection(perimeters)
	restrictions, err := readFile[model.TicketUseRestriction](dir, TicketUseRestrictionsFile, false)
	if err != nil {
		return c, err
	}
	c.TicketUseRestrictions = model.NewCollection(restrictions)

	infos, err := readFile[feedInfoRow](dir, FeedInfosFile, false)
	if err != nil {
		return c, err
	}
	if len(infos) > 0 {
		c.FeedInfos = make(map[string]string, len(infos))
		for _, f := range infos {
			c.FeedInfos[f.Param] = f.Value
		}
	}

	logger.Info("NTFS dataset read",
		"dir", dir,
		"networks", c.Networks.Len(),
		"commercial_modes", c.CommercialModes.Len(),
		"physical_modes", c.PhysicalModes.Len(),
		"lines", c.Lines.Len(),
		"trips", c.VehicleJourneys.Len(),
		"stop_areas", c.StopAreas.Len(),
		"tickets", c.Tickets.Len(),
	)
	return c, nil
}

func readFile[T any](dir, name string, required bool) ([]T, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	rows, err := ReadTable[T](f, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return rows, nil
}

func readCollection[T model.Identifier](dir, name string, required bool) (model.CollectionWithID[T], error) {
	rows, err := readFile[T](dir, name, required)
	if err != nil {
		return model.CollectionWithID[T]{}, err
	}
	c, err := model.NewCollectionWithID(rows)
	if err != nil {
		return c, fmt.Errorf("parsing %s: %w", name, err)
	}
	return c, nil
}

// Write stores the collections as NTFS tables in dir, creating it if needed.
// Fare tables are only written when they have rows. feed_infos.txt gets
// created as its creation date and time. stops.txt is never rewritten; use
// CopyUnmodelled to carry it over with the other tables.
func Write(dir string, c *model.Collections, created time.Time, logger *slog.Logger) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	if err := writeFile(dir, NetworksFile, c.Networks.Values()); err != nil {
		return err
	}
	if err := writeFile(dir, CommercialModesFile, c.CommercialModes.Values()); err != nil {
		return err
	}
	if err := writeFile(dir, PhysicalModesFile, c.PhysicalModes.Values()); err != nil {
		return err
	}
	if err := writeFile(dir, LinesFile, c.Lines.Values()); err != nil {
		return err
	}
	if err := writeFile(dir, TripsFile, c.VehicleJourneys.Values()); err != nil {
		return err
	}

	infos := model.StampCreation(c.FeedInfos, created)
	rows := make([]feedInfoRow, 0, len(infos))
	for _, param := range slices.Sorted(maps.Keys(infos)) {
		rows = append(rows, feedInfoRow{Param: param, Value: infos[param]})
	}
	if err := writeFile(dir, FeedInfosFile, rows); err != nil {
		return err
	}

	fares := []struct {
		name  string
		empty bool
		write func() error
	}{
		{TicketsFile, c.Tickets.Len() == 0, func() error { return writeFile(dir, TicketsFile, c.Tickets.Values()) }},
		{TicketUsesFile, c.TicketUses.Len() == 0, func() error { return writeFile(dir, TicketUsesFile, c.TicketUses.Values()) }},
		{TicketPricesFile, c.TicketPrices.Len() == 0, func() error { return writeFile(dir, TicketPricesFile, c.TicketPrices.Values()) }},
		{TicketUsePerimetersFile, c.TicketUsePerimeters.Len() == 0, func() error {
			return writeFile(dir, TicketUsePerimetersFile, c.TicketUsePerimeters.Values())
		}},
		{TicketUseRestrictionsFile, c.TicketUseRestrictions.Len() == 0, func() error {
			return writeFile(dir, TicketUseRestrictionsFile, c.TicketUseRestrictions.Values())
		}},
	}
	for _, f := range fares {
		if f.empty {
			if err := os.Remove(filepath.Join(dir, f.name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove stale %s: %w", f.name, err)
			}
			continue
		}
		if err := f.write(); err != nil {
			return err
		}
	}

	logger.Info("NTFS dataset written", "dir", dir)
	return nil
}

func writeFile[T any](dir, name string, rows []T) error {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if err := WriteTable(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}

// WriteStopAreas writes the stop areas as stops.txt. It is meant for datasets
// that were not read from an NTFS directory and so have no stops.txt to copy.
func WriteStopAreas(dir string, c *model.Collections) error {
	rows := make([]stopRow, 0, c.StopAreas.Len())
	for _, s := range c.StopAreas.Values() {
		rows = append(rows, stopRow{StopID: s.StopID, Name: s.Name, Lat: s.Lat, Lon: s.Lon, LocationType: "1"})
	}
	return writeFile(dir, StopsFile, rows)
}

// CopyUnmodelled copies every regular file of src that Write does not produce
// into dst. Nothing happens when both name the same directory.
func CopyUnmodelled(src, dst string) error {
	same, err := sameDir(src, dst)
	if err != nil || same {
		return err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || rewritten[e.Name()] {
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return fmt.Errorf("copy %s: %w", e.Name(), err)
		}
	}
	return nil
}

func sameDir(a, b string) (bool, error) {
	sa, err := os.Stat(a)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", a, err)
	}
	sb, err := os.Stat(b)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", b, err)
	}
	return os.SameFile(sa, sb), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
