// Package farev2 merges the fare tables of a zip archive into a dataset,
// checking every reference they make to it.
package farev2

import (
	"errors"
	"fmt"
	"log/slog"

	"transitcurate/internal/model"
	"transitcurate/internal/ntfs"
	"transitcurate/internal/report"
)

// ErrMissingTable is returned when a required fare table is absent from the archive.
var ErrMissingTable = errors.New("fare table not found")

// Merge reads the fare tables of archive, validates them against c and
// replaces the fare collections of c with the surviving rows. Missing
// required tables and duplicate identifiers abort without touching c;
// invalid rows and dangling references are added to rep and dropped.
func Merge(c *model.Collections, archive *Archive, rep *report.Report, logger *slog.Logger) error {
	logger.Info("reading fare v2 files")

	tickets, err := readTable[model.Ticket](archive, ntfs.TicketsFile, true, rep, logger)
	if err != nil {
		return err
	}
	ticketCollection, err := model.NewCollectionWithID(tickets)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", ntfs.TicketsFile, err)
	}

	uses, err := readTable[model.TicketUse](archive, ntfs.TicketUsesFile, true, rep, logger)
	if err != nil {
		return err
	}
	useCollection, err := model.NewCollectionWithID(uses)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", ntfs.TicketUsesFile, err)
	}

	prices, err := readTable[model.TicketPrice](archive, ntfs.TicketPricesFile, true, rep, logger)
	if err != nil {
		return err
	}

	perimeters, err := readTable[model.TicketUsePerimeter](archive, ntfs.TicketUsePerimetersFile, true, rep, logger)
	if err != nil {
		return err
	}
	perimeters = checkPerimeters(perimeters, c, &useCollection, rep)

	restrictions, err := readTable[model.TicketUseRestriction](archive, ntfs.TicketUseRestrictionsFile, false, rep, logger)
	if err != nil {
		return err
	}
	restrictions = checkRestrictions(restrictions, c, &useCollection, rep)

	priceCollection := model.NewCollection(prices)
	sanitizePrices(&priceCollection, &useCollection, perimeters, restrictions)

	c.Tickets = ticketCollection
	c.TicketUses = useCollection
	c.TicketPrices = priceCollection
	c.TicketUsePerimeters = model.NewCollection(perimeters)
	c.TicketUseRestrictions = model.NewCollection(restrictions)

	logger.Info("fare v2 merged",
		"tickets", c.Tickets.Len(),
		"ticket_uses", c.TicketUses.Len(),
		"ticket_prices", c.TicketPrices.Len(),
		"ticket_use_perimeters", c.TicketUsePerimeters.Len(),
		"ticket_use_restrictions", c.TicketUseRestrictions.Len(),
	)
	return nil
}

// readTable decodes one archive table, reporting malformed rows as InvalidRow.
// An absent optional table yields no rows.
func readTable[T any](archive *Archive, name string, required bool, rep *report.Report, logger *slog.Logger) ([]T, error) {
	rc, ok, err := archive.Open(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		if required {
			return nil, fmt.Errorf("%w: %s", ErrMissingTable, name)
		}
		logger.Info("optional fare table not found", "file", name)
		return nil, nil
	}
	defer rc.Close()

	logger.Info("reading fare table", "file", name)
	rows, err := ntfs.ReadTable[T](rc, func(e *ntfs.RowError) {
		rep.AddWarning(fmt.Sprintf("Problem reading %q: %v", name, e), report.InvalidRow)
	})
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return rows, nil
}

func checkTicketUse(id string, uses *model.CollectionWithID[model.TicketUse], rep *report.Report) bool {
	if uses.ContainsID(id) {
		return true
	}
	rep.AddError(fmt.Sprintf("ticket_use_id %s not found", id), report.ObjectNotFound)
	return false
}

// checkPerimeters keeps the perimeters whose ticket use and referenced
// object both exist. Network perimeters are checked against networks,
// every other object type against lines.
func checkPerimeters(perimeters []model.TicketUsePerimeter, c *model.Collections, uses *model.CollectionWithID[model.TicketUse], rep *report.Report) []model.TicketUsePerimeter {
	kept := perimeters[:0]
	for _, p := range perimeters {
		if !checkTicketUse(p.TicketUseID, uses, rep) {
			continue
		}
		switch p.ObjectType {
		case model.ObjectTypeNetwork:
			if !c.Networks.ContainsID(p.ObjectID) {
				rep.AddError(fmt.Sprintf("network_id %s not found", p.ObjectID), report.ObjectNotFound)
				continue
			}
		default:
			if !c.Lines.ContainsID(p.ObjectID) {
				rep.AddError(fmt.Sprintf("line_id %s not found", p.ObjectID), report.ObjectNotFound)
				continue
			}
		}
		kept = append(kept, p)
	}
	return kept
}

// checkRestrictions keeps zone restrictions and origin/destination
// restrictions whose two stop areas exist. Only the first missing end
// of a pair is reported.
func checkRestrictions(restrictions []model.TicketUseRestriction, c *model.Collections, uses *model.CollectionWithID[model.TicketUse], rep *report.Report) []model.TicketUseRestriction {
	kept := restrictions[:0]
	for _, r := range restrictions {
		if !checkTicketUse(r.TicketUseID, uses, rep) {
			continue
		}
		if r.RestrictionType == model.RestrictionOriginDestination {
			if !c.StopAreas.ContainsID(r.UseOrigin) {
				rep.AddError(fmt.Sprintf("origin %s not found", r.UseOrigin), report.ObjectNotFound)
				continue
			}
			if !c.StopAreas.ContainsID(r.UseDestination) {
				rep.AddError(fmt.Sprintf("destination %s not found", r.UseDestination), report.ObjectNotFound)
				continue
			}
		}
		kept = append(kept, r)
	}
	return kept
}

// sanitizePrices drops the prices of tickets that no surviving perimeter or
// restriction reaches through a ticket use.
func sanitizePrices(prices *model.Collection[model.TicketPrice], uses *model.CollectionWithID[model.TicketUse], perimeters []model.TicketUsePerimeter, restrictions []model.TicketUseRestriction) {
	reachable := make(map[string]bool)
	mark := func(useID string) {
		if use, ok := uses.Get(useID); ok {
			reachable[use.TicketID] = true
		}
	}
	for _, p := range perimeters {
		mark(p.TicketUseID)
	}
	for _, r := range restrictions {
		mark(r.TicketUseID)
	}
	prices.Retain(func(p *model.TicketPrice) bool { return reachable[p.TicketID] })
}
