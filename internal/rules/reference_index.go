package rules

import "transitcurate/internal/model"

// ReferenceIndex maps the identifier of every consolidatable entity to the
// dependents referencing it. It is built once from a Model before any
// mutation and never updated afterwards. Entities without dependents are
// absent, and categories without rules are not indexed at all.
type ReferenceIndex struct {
	linesByNetwork        map[string][]model.Idx[model.Line]
	perimetersByNetwork   map[string][]model.Idx[model.TicketUsePerimeter]
	linesByCommercialMode map[string][]model.Idx[model.Line]
	vjsByPhysicalMode     map[string][]model.Idx[model.VehicleJourney]
}

// NewReferenceIndex indexes the categories that cfg has rules for.
func NewReferenceIndex(m *model.Model, cfg *Configuration) *ReferenceIndex {
	c := m.Collections()
	ri := &ReferenceIndex{}

	if cfg.Networks != nil {
		ri.linesByNetwork = make(map[string][]model.Idx[model.Line])
		ri.perimetersByNetwork = make(map[string][]model.Idx[model.TicketUsePerimeter])
		for idx, network := range c.Networks.All() {
			if lines := m.LinesOfNetwork(idx); len(lines) > 0 {
				ri.linesByNetwork[network.NetworkID] = lines
			}
			if perimeters := m.PerimetersOfNetwork(idx); len(perimeters) > 0 {
				ri.perimetersByNetwork[network.NetworkID] = perimeters
			}
		}
	}

	if cfg.CommercialModes != nil {
		ri.linesByCommercialMode = make(map[string][]model.Idx[model.Line])
		for idx, mode := range c.CommercialModes.All() {
			if lines := m.LinesOfCommercialMode(idx); len(lines) > 0 {
				ri.linesByCommercialMode[mode.CommercialModeID] = lines
			}
		}
	}

	if cfg.PhysicalModes != nil {
		ri.vjsByPhysicalMode = make(map[string][]model.Idx[model.VehicleJourney])
		for idx, mode := range c.PhysicalModes.All() {
			if vjs := m.VehicleJourneysOfPhysicalMode(idx); len(vjs) > 0 {
				ri.vjsByPhysicalMode[mode.PhysicalModeID] = vjs
			}
		}
	}

	return ri
}

// NetworkDependents returns the number of lines and perimeters referencing a network.
func (ri *ReferenceIndex) NetworkDependents(id string) (lines, perimeters int) {
	return len(ri.linesByNetwork[id]), len(ri.perimetersByNetwork[id])
}

// CommercialModeDependents returns the number of lines referencing a commercial mode.
func (ri *ReferenceIndex) CommercialModeDependents(id string) int {
	return len(ri.linesByCommercialMode[id])
}

// PhysicalModeDependents returns the number of vehicle journeys referencing a physical mode.
func (ri *ReferenceIndex) PhysicalModeDependents(id string) int {
	return len(ri.vjsByPhysicalMode[id])
}
