package rules

import (
	"fmt"
	"log/slog"

	"transitcurate/internal/model"
	"transitcurate/internal/report"
)

// ObjectRule applies a rule configuration to a dataset.
type ObjectRule struct {
	configuration *Configuration
	index         *ReferenceIndex
	logger        *slog.Logger
}

// New prepares cfg against m. The reference index is computed here, before any mutation.
func New(cfg *Configuration, m *model.Model, logger *slog.Logger) *ObjectRule {
	return &ObjectRule{
		configuration: cfg,
		index:         NewReferenceIndex(m, cfg),
		logger:        logger,
	}
}

// Index returns the reference index computed by New.
func (o *ObjectRule) Index() *ReferenceIndex { return o.index }

// Apply runs the network, commercial mode and physical mode rules, in that order.
// c must be the collections of the Model passed to New. Configuration errors abort;
// data inconsistencies are added to rep.
func (o *ObjectRule) Apply(c *model.Collections, rep *report.Report) error {
	if rules := o.configuration.Networks; rules != nil {
		o.logger.Info("checking networks rules", "rules", len(rules))
		cat := category[model.Network]{
			label:      "network",
			idKey:      "network_id",
			collection: &c.Networks,
			repoint:    o.repointNetwork(c),
		}
		if err := applyCategory(rules, cat, rep); err != nil {
			return fmt.Errorf("networks rules: %w", err)
		}
	}
	if rules := o.configuration.CommercialModes; rules != nil {
		o.logger.Info("checking commercial modes rules", "rules", len(rules))
		cat := category[model.CommercialMode]{
			label:      "commercial mode",
			idKey:      "commercial_mode_id",
			collection: &c.CommercialModes,
			repoint:    o.repointCommercialMode(c),
		}
		if err := applyCategory(rules, cat, rep); err != nil {
			return fmt.Errorf("commercial modes rules: %w", err)
		}
	}
	if rules := o.configuration.PhysicalModes; rules != nil {
		o.logger.Info("checking physical modes rules", "rules", len(rules))
		cat := category[model.PhysicalMode]{
			label:      "physical mode",
			idKey:      "physical_mode_id",
			collection: &c.PhysicalModes,
			repoint:    o.repointPhysicalMode(c),
		}
		if err := applyCategory(rules, cat, rep); err != nil {
			return fmt.Errorf("physical modes rules: %w", err)
		}
	}
	return nil
}

// repointNetwork moves lines and network perimeters of from onto to.
func (o *ObjectRule) repointNetwork(c *model.Collections) func(from, to string) bool {
	return func(from, to string) bool {
		lines := o.index.linesByNetwork[from]
		perimeters := o.index.perimetersByNetwork[from]
		for _, idx := range lines {
			c.Lines.IndexMut(idx).NetworkID = to
		}
		for _, idx := range perimeters {
			c.TicketUsePerimeters.IndexMut(idx).ObjectID = to
		}
		return len(lines) > 0 || len(perimeters) > 0
	}
}

func (o *ObjectRule) repointCommercialMode(c *model.Collections) func(from, to string) bool {
	return func(from, to string) bool {
		lines := o.index.linesByCommercialMode[from]
		for _, idx := range lines {
			c.Lines.IndexMut(idx).CommercialModeID = to
		}
		return len(lines) > 0
	}
}

func (o *ObjectRule) repointPhysicalMode(c *model.Collections) func(from, to string) bool {
	return func(from, to string) bool {
		vjs := o.index.vjsByPhysicalMode[from]
		for _, idx := range vjs {
			c.VehicleJourneys.IndexMut(idx).PhysicalModeID = to
		}
		return len(vjs) > 0
	}
}

// category binds the shared consolidation algorithm to one entity type.
type category[T model.Identifier] struct {
	label      string
	idKey      string
	collection *model.CollectionWithID[T]
	// repoint moves every dependent indexed under from onto to and
	// reports whether there was at least one.
	repoint func(from, to string) bool
}

func applyCategory[T model.Identifier](rules []ObjectProperties, cat category[T], rep *report.Report) error {
	var staged []T
	stagedIDs := make(map[string]bool)
	// holders[id] lists the index keys whose dependents currently point at id.
	// An identifier missing from holders still holds its own dependents.
	holders := make(map[string][]string)
	holdersOf := func(id string) []string {
		if keys, ok := holders[id]; ok {
			return keys
		}
		return []string{id}
	}

	for i := range rules {
		rule := &rules[i]
		targetID, err := rule.targetID(cat.idKey)
		if err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		if len(rule.GroupedFrom) == 0 {
			rep.AddError(
				fmt.Sprintf("The list to group by %q is empty for consolidation in %q", cat.idKey, targetID),
				report.EmptyRule,
			)
			continue
		}

		if !cat.collection.ContainsID(targetID) || rule.contains(targetID) {
			target, err := decodeTarget[T](rule)
			if err != nil {
				return fmt.Errorf("rule %d: %w", i, err)
			}
			if stagedIDs[targetID] {
				rep.AddWarning(
					fmt.Sprintf("The %s %q is already created by a previous rule", cat.label, targetID),
					report.DuplicateObject,
				)
			} else {
				staged = append(staged, target)
				stagedIDs[targetID] = true
			}
		}

		changed := false
		for _, regroupID := range rule.GroupedFrom {
			if !cat.collection.ContainsID(regroupID) {
				rep.AddError(
					fmt.Sprintf("The identifier %q to regroup doesn't exist", regroupID),
					report.ObjectNotFound,
				)
				continue
			}
			if regroupID == targetID {
				continue
			}
			keys := holdersOf(regroupID)
			for _, from := range keys {
				changed = cat.repoint(from, targetID) || changed
			}
			holders[targetID] = append(holdersOf(targetID), keys...)
			holders[regroupID] = []string{}
		}
		if !changed {
			rep.AddError(
				fmt.Sprintf("The rule on the %q %s was not applied", targetID, cat.label),
				report.RuleNotApplied,
			)
		}

		cat.collection.Retain(func(obj *T) bool { return !rule.contains((*obj).ID()) })
	}

	return cat.collection.Extend(staged)
}
