// Package report builds month-bounded weighing summaries for the command line.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"weighbot/models"
	"weighbot/pkg/export"
	"weighbot/pkg/store"
)

type Source interface {
	Weighings(ctx context.Context, f store.WeighingFilter) ([]models.Weighing, error)
}

// maxRows bounds one month of weighings.
const maxRows = 5000

type Monthly struct {
	Month      string
	Start, End time.Time
	Count      int
	Manual     int
	Trucks     []export.TruckSummary
	Items      []models.Weighing
}

// MonthBounds parses YYYY-MM and returns [start, end) in loc.
func MonthBounds(month string, loc *time.Location) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01", month, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", month, err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0), nil
}

// Build collects the weighings of month, optionally for one truck.
func Build(ctx context.Context, src Source, month, truck string, loc *time.Location) (*Monthly, error) {
	if loc == nil {
		loc = time.Local
	}
	start, end, err := MonthBounds(month, loc)
	if err != nil {
		return nil, err
	}
	items, err := src.Weighings(ctx, store.WeighingFilter{Truck: truck, From: start, To: end, Limit: maxRows})
	if err != nil {
		return nil, fmt.Errorf("query weighings: %w", err)
	}
	m := &Monthly{Month: month, Start: start, End: end, Count: len(items), Items: items, Trucks: export.Summarize(items)}
	for _, w := range items {
		if w.ManualInput {
			m.Manual++
		}
	}
	return m, nil
}

// Print writes the summary and, with list set, one line per weighing.
func (m *Monthly) Print(w io.Writer, list bool) {
	fmt.Fprintf(w, "Report for month=%s (%s):\n", m.Month, m.Start.Location())
	fmt.Fprintf(w, "  weighings=%d manual=%d trucks=%d\n", m.Count, m.Manual, len(m.Trucks))
	for _, t := range m.Trucks {
		fmt.Fprintf(w, "  %-12s count=%d last=%.0f diff_total=%+.0f\n", t.TruckNumber, t.Count, t.LastWeight, t.TotalDifference)
	}
	if !list {
		return
	}
	for _, r := range m.Items {
		fmt.Fprintf(w, "%d|%s|%s|%s|%.0f|%+.0f|%t\n", r.ID, r.CreatedAt.In(m.Start.Location()).Format(time.RFC3339),
			r.TruckNumber, r.DriverName, r.CurrentWeight, r.WeightDifference, r.ManualInput)
	}
}
