package model

import (
	"fmt"
	"strconv"
	"time"
)

// Extra holds the cells of a row whose column has no field of its own,
// keyed by column name. They are written back unchanged.
type Extra map[string]string

// Network is an operator network, networks.txt.
type Network struct {
	NetworkID string `json:"network_id" csv:"network_id" validate:"required"`
	Name      string `json:"network_name" csv:"network_name" validate:"required"`
	URL       string `json:"network_url,omitempty" csv:"network_url"`
	Timezone  string `json:"network_timezone,omitempty" csv:"network_timezone"`
	Lang      string `json:"network_lang,omitempty" csv:"network_lang"`
	Phone     string `json:"network_phone,omitempty" csv:"network_phone"`
	Address   string `json:"network_address,omitempty" csv:"network_address"`
	FareURL   string `json:"network_fare_url,omitempty" csv:"network_fare_url"`
	SortOrder *int   `json:"network_sort_order,omitempty" csv:"network_sort_order"`
	Extra     Extra  `json:"-" csv:"*"`
}

func (n Network) ID() string { return n.NetworkID }

// CommercialMode is the mode advertised to travellers, commercial_modes.txt.
type CommercialMode struct {
	CommercialModeID string `json:"commercial_mode_id" csv:"commercial_mode_id" validate:"required"`
	Name             string `json:"commercial_mode_name" csv:"commercial_mode_name" validate:"required"`
	Extra            Extra  `json:"-" csv:"*"`
}

func (m CommercialMode) ID() string { return m.CommercialModeID }

// PhysicalMode is the vehicle technology, physical_modes.txt.
type PhysicalMode struct {
	PhysicalModeID string   `json:"physical_mode_id" csv:"physical_mode_id" validate:"required"`
	Name           string   `json:"physical_mode_name" csv:"physical_mode_name" validate:"required"`
	CO2Emission    *float64 `json:"co2_emission,omitempty" csv:"co2_emission" validate:"omitempty,gte=0"`
	Extra          Extra    `json:"-" csv:"*"`
}

func (m PhysicalMode) ID() string { return m.PhysicalModeID }

// Line groups routes under a network and commercial mode, lines.txt.
type Line struct {
	LineID            string `csv:"line_id" validate:"required"`
	Code              string `csv:"line_code"`
	Name              string `csv:"line_name"`
	ForwardName       string `csv:"forward_line_name"`
	ForwardDirection  string `csv:"forward_direction"`
	BackwardName      string `csv:"backward_line_name"`
	BackwardDirection string `csv:"backward_direction"`
	NetworkID         string `csv:"network_id" validate:"required"`
	CommercialModeID  string `csv:"commercial_mode_id" validate:"required"`
	Color             string `csv:"line_color"`
	TextColor         string `csv:"line_text_color"`
	SortOrder         *int   `csv:"line_sort_order"`
	GeometryID        string `csv:"geometry_id"`
	OpeningTime       string `csv:"line_opening_time"`
	ClosingTime       string `csv:"line_closing_time"`
	Extra             Extra  `csv:"*"`
}

func (l Line) ID() string { return l.LineID }

// VehicleJourney is a single trip, trips.txt.
type VehicleJourney struct {
	TripID         string `csv:"trip_id" validate:"required"`
	RouteID        string `csv:"route_id"`
	ServiceID      string `csv:"service_id"`
	PhysicalModeID string `csv:"physical_mode_id" validate:"required"`
	CompanyID      string `csv:"company_id"`
	DatasetID      string `csv:"dataset_id"`
	Headsign       string `csv:"trip_headsign"`
	ShortName      string `csv:"trip_short_name"`
	BlockID        string `csv:"block_id"`
	DirectionID    string `csv:"direction_id"`
	TripPropertyID string `csv:"trip_property_id"`
	GeometryID     string `csv:"geometry_id"`
	Extra          Extra  `csv:"*"`
}

func (vj VehicleJourney) ID() string { return vj.TripID }

// StopArea is a stop with location_type 1, stops.txt.
type StopArea struct {
	StopID string  `csv:"stop_id" validate:"required"`
	Name   string  `csv:"stop_name"`
	Lat    float64 `csv:"stop_lat"`
	Lon    float64 `csv:"stop_lon"`
}

func (s StopArea) ID() string { return s.StopID }

// Ticket is a fare product, tickets.txt.
type Ticket struct {
	TicketID string `csv:"ticket_id" validate:"required"`
	Name     string `csv:"ticket_name"`
	Comment  string `csv:"ticket_comment"`
	Extra    Extra  `csv:"*"`
}

func (t Ticket) ID() string { return t.TicketID }

// TicketUse describes how a ticket may be used, ticket_uses.txt.
type TicketUse struct {
	TicketUseID        string  `csv:"ticket_use_id" validate:"required"`
	TicketID           string  `csv:"ticket_id" validate:"required"`
	MaxTransfers       *uint32 `csv:"max_transfers"`
	BoardingTimeLimit  *uint32 `csv:"boarding_time_limit"`
	AlightingTimeLimit *uint32 `csv:"alighting_time_limit"`
	Extra              Extra   `csv:"*"`
}

func (t TicketUse) ID() string { return t.TicketUseID }

// TicketPrice is the price of a ticket over a validity period, ticket_prices.txt.
type TicketPrice struct {
	TicketID      string  `csv:"ticket_id" validate:"required"`
	Price         float64 `csv:"ticket_price" validate:"gte=0"`
	Currency      string  `csv:"ticket_currency" validate:"required"`
	ValidityStart Date    `csv:"ticket_validity_start"`
	ValidityEnd   Date    `csv:"ticket_validity_end"`
	Extra         Extra   `csv:"*"`
}

// TicketUsePerimeter ties a ticket use to a network or line, ticket_use_perimeters.txt.
type TicketUsePerimeter struct {
	TicketUseID     string          `csv:"ticket_use_id" validate:"required"`
	ObjectType      ObjectType      `csv:"object_type"`
	ObjectID        string          `csv:"object_id" validate:"required"`
	PerimeterAction PerimeterAction `csv:"perimeter_action"`
	Extra           Extra           `csv:"*"`
}

// TicketUseRestriction limits a ticket use to a zone or an origin/destination pair,
// ticket_use_restrictions.txt.
type TicketUseRestriction struct {
	TicketUseID     string          `csv:"ticket_use_id" validate:"required"`
	RestrictionType RestrictionType `csv:"restriction_type"`
	UseOrigin       string          `csv:"use_origin"`
	UseDestination  string          `csv:"use_destination"`
	Extra           Extra           `csv:"*"`
}

// ObjectType names the kind of object a perimeter points at.
type ObjectType string

const (
	ObjectTypeNetwork        ObjectType = "network"
	ObjectTypeLine           ObjectType = "line"
	ObjectTypeRoute          ObjectType = "route"
	ObjectTypeStopArea       ObjectType = "stop_area"
	ObjectTypeStopPoint      ObjectType = "stop_point"
	ObjectTypeVehicleJourney ObjectType = "vehicle_journey"
)

func (o *ObjectType) UnmarshalText(text []byte) error {
	switch v := ObjectType(text); v {
	case ObjectTypeNetwork, ObjectTypeLine, ObjectTypeRoute, ObjectTypeStopArea,
		ObjectTypeStopPoint, ObjectTypeVehicleJourney:
		*o = v
		return nil
	default:
		return fmt.Errorf("unknown object_type %q", string(text))
	}
}

// RestrictionType is either a zone or an origin/destination restriction.
type RestrictionType string

const (
	RestrictionZone              RestrictionType = "zone"
	RestrictionOriginDestination RestrictionType = "od"
)

func (r *RestrictionType) UnmarshalText(text []byte) error {
	switch v := RestrictionType(text); v {
	case RestrictionZone, RestrictionOriginDestination:
		*r = v
		return nil
	default:
		return fmt.Errorf("unknown restriction_type %q", string(text))
	}
}

// PerimeterAction says whether the perimeter object is included (1) or excluded (2).
type PerimeterAction int

const (
	PerimeterIncluded PerimeterAction = 1
	PerimeterExcluded PerimeterAction = 2
)

func (p *PerimeterAction) UnmarshalText(text []byte) error {
	n, err := strconv.Atoi(string(text))
	if err != nil {
		return fmt.Errorf("perimeter_action: %w", err)
	}
	switch a := PerimeterAction(n); a {
	case PerimeterIncluded, PerimeterExcluded:
		*p = a
		return nil
	default:
		return fmt.Errorf("unknown perimeter_action %d", n)
	}
}

func (p PerimeterAction) MarshalText() ([]byte, error) {
	return []byte(strconv.Itoa(int(p))), nil
}

// Date is a calendar day serialized as YYYYMMDD.
type Date struct {
	time.Time
}

const dateLayout = "20060102"

// NewDate returns the Date for the given day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d *Date) UnmarshalText(text []byte) error {
	t, err := time.Parse(dateLayout, string(text))
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", string(text), err)
	}
	d.Time = t
	return nil
}

func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return nil, nil
	}
	return []byte(d.Format(dateLayout)), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}
