package model

import (
	"errors"
	"fmt"
)

// ErrDanglingReference is returned by New when a foreign key does not resolve.
var ErrDanglingReference = errors.New("dangling reference")

// Collections is the mutable set of every entity collection of a dataset.
type Collections struct {
	Networks              CollectionWithID[Network]
	CommercialModes       CollectionWithID[CommercialMode]
	PhysicalModes         CollectionWithID[PhysicalMode]
	Lines                 CollectionWithID[Line]
	VehicleJourneys       CollectionWithID[VehicleJourney]
	StopAreas             CollectionWithID[StopArea]
	Tickets               CollectionWithID[Ticket]
	TicketUses            CollectionWithID[TicketUse]
	TicketPrices          Collection[TicketPrice]
	TicketUsePerimeters   Collection[TicketUsePerimeter]
	TicketUseRestrictions Collection[TicketUseRestriction]

	// FeedInfos holds the feed_infos.txt parameters.
	FeedInfos map[string]string
}

// Model is a read-only, integrity-checked view of Collections with
// reverse-reference indexes from referenced entities to their dependents.
type Model struct {
	collections Collections

	linesByNetwork        map[Idx[Network]][]Idx[Line]
	perimetersByNetwork   map[Idx[Network]][]Idx[TicketUsePerimeter]
	linesByCommercialMode map[Idx[CommercialMode]][]Idx[Line]
	vjsByPhysicalMode     map[Idx[PhysicalMode]][]Idx[VehicleJourney]
}

// New checks every modelled foreign key of c and builds the reverse-reference indexes.
func New(c Collections) (*Model, error) {
	m := &Model{
		collections:           c,
		linesByNetwork:        make(map[Idx[Network]][]Idx[Line]),
		perimetersByNetwork:   make(map[Idx[Network]][]Idx[TicketUsePerimeter]),
		linesByCommercialMode: make(map[Idx[CommercialMode]][]Idx[Line]),
		vjsByPhysicalMode:     make(map[Idx[PhysicalMode]][]Idx[VehicleJourney]),
	}
	col := &m.collections

	for idx, line := range col.Lines.All() {
		network, ok := col.Networks.GetIdx(line.NetworkID)
		if !ok {
			return nil, fmt.Errorf("%w: line %q references network %q", ErrDanglingReference, line.LineID, line.NetworkID)
		}
		m.linesByNetwork[network] = append(m.linesByNetwork[network], idx)

		mode, ok := col.CommercialModes.GetIdx(line.CommercialModeID)
		if !ok {
			return nil, fmt.Errorf("%w: line %q references commercial mode %q", ErrDanglingReference, line.LineID, line.CommercialModeID)
		}
		m.linesByCommercialMode[mode] = append(m.linesByCommercialMode[mode], idx)
	}

	for idx, vj := range col.VehicleJourneys.All() {
		mode, ok := col.PhysicalModes.GetIdx(vj.PhysicalModeID)
		if !ok {
			return nil, fmt.Errorf("%w: vehicle journey %q references physical mode %q", ErrDanglingReference, vj.TripID, vj.PhysicalModeID)
		}
		m.vjsByPhysicalMode[mode] = append(m.vjsByPhysicalMode[mode], idx)
	}

	for idx, p := range col.TicketUsePerimeters.All() {
		switch p.ObjectType {
		case ObjectTypeNetwork:
			network, ok := col.Networks.GetIdx(p.ObjectID)
			if !ok {
				return nil, fmt.Errorf("%w: ticket use perimeter %q references network %q", ErrDanglingReference, p.TicketUseID, p.ObjectID)
			}
			m.perimetersByNetwork[network] = append(m.perimetersByNetwork[network], idx)
		default:
			if !col.Lines.ContainsID(p.ObjectID) {
				return nil, fmt.Errorf("%w: ticket use perimeter %q references line %q", ErrDanglingReference, p.TicketUseID, p.ObjectID)
			}
		}
	}

	return m, nil
}

// Collections exposes the underlying collections for reading.
func (m *Model) Collections() *Collections { return &m.collections }

// IntoCollections hands the collections back for mutation. The Model must not be used afterwards.
func (m *Model) IntoCollections() Collections {
	c := m.collections
	m.collections = Collections{}
	return c
}

// LinesOfNetwork returns the lines referencing the network at idx.
func (m *Model) LinesOfNetwork(idx Idx[Network]) []Idx[Line] { return m.linesByNetwork[idx] }

// PerimetersOfNetwork returns the ticket use perimeters referencing the network at idx.
func (m *Model) PerimetersOfNetwork(idx Idx[Network]) []Idx[TicketUsePerimeter] {
	return m.perimetersByNetwork[idx]
}

// LinesOfCommercialMode returns the lines referencing the commercial mode at idx.
func (m *Model) LinesOfCommercialMode(idx Idx[CommercialMode]) []Idx[Line] {
	return m.linesByCommercialMode[idx]
}

// VehicleJourneysOfPhysicalMode returns the vehicle journeys referencing the physical mode at idx.
func (m *Model) VehicleJourneysOfPhysicalMode(idx Idx[PhysicalMode]) []Idx[VehicleJourney] {
	return m.vjsByPhysicalMode[idx]
}
