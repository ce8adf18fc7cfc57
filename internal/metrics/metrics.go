// Package metrics records run statistics for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"transitcurate/internal/model"
	"transitcurate/internal/report"
)

const namespace = "transitcurate"

// Run holds the metrics of one command run on a private registry.
type Run struct {
	registry *prometheus.Registry
	command  string

	reportEntries *prometheus.CounterVec
	objects       *prometheus.GaugeVec
	duration      prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// NewRun registers the run metrics for command.
func NewRun(command string) *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		command:  command,
		reportEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_entries_total",
			Help:      "Report entries produced by the run, by severity and category.",
		}, []string{"command", "severity", "category"}),
		objects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "objects",
			Help:      "Objects per collection in the written dataset.",
		}, []string{"command", "collection"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "run_duration_seconds",
			Help:        "Wall time of the run.",
			ConstLabels: prometheus.Labels{"command": command},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_success_timestamp_seconds",
			Help:        "Unix time at which the run completed.",
			ConstLabels: prometheus.Labels{"command": command},
		}),
	}
	r.registry.MustRegister(r.reportEntries, r.objects, r.duration, r.lastSuccess)
	return r
}

// ObserveReport counts every entry of rep.
func (r *Run) ObserveReport(rep *report.Report) {
	errs, warns := rep.Counts()
	for cat, n := range errs {
		r.reportEntries.WithLabelValues(r.command, "error", string(cat)).Add(float64(n))
	}
	for cat, n := range warns {
		r.reportEntries.WithLabelValues(r.command, "warning", string(cat)).Add(float64(n))
	}
}

// ObserveCollections records the size of every collection of c.
func (r *Run) ObserveCollections(c *model.Collections) {
	sizes := map[string]int{
		"networks":                c.Networks.Len(),
		"commercial_modes":        c.CommercialModes.Len(),
		"physical_modes":          c.PhysicalModes.Len(),
		"lines":                   c.Lines.Len(),
		"vehicle_journeys":        c.VehicleJourneys.Len(),
		"stop_areas":              c.StopAreas.Len(),
		"tickets":                 c.Tickets.Len(),
		"ticket_uses":             c.TicketUses.Len(),
		"ticket_prices":           c.TicketPrices.Len(),
		"ticket_use_perimeters":   c.TicketUsePerimeters.Len(),
		"ticket_use_restrictions": c.TicketUseRestrictions.Len(),
	}
	for name, n := range sizes {
		r.objects.WithLabelValues(r.command, name).Set(float64(n))
	}
}

// Finish records the run duration and completion time.
func (r *Run) Finish(started, now time.Time) {
	r.duration.Set(now.Sub(started).Seconds())
	r.lastSuccess.Set(float64(now.Unix()))
}

// WriteTextfile writes the metrics in the Prometheus text format to path.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
