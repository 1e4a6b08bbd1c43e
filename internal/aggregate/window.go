package aggregate

import (
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// WindowOf computes the half-open [start, end) window containing asOf
// for the given kind, in UTC. Daily windows are calendar days, weekly
// windows run Monday 00:00 UTC through the following Monday, monthly
// windows run first-of-month through first-of-next-month. Every instant
// belongs to exactly one window per kind.
func WindowOf(asOf time.Time, kind domain.WindowKind) (start, end time.Time) {
	t := asOf.UTC()

	switch kind {
	case domain.WindowWeekly:
		// time.Weekday has Sunday == 0; shift so Monday == 0.
		offset := (int(t.Weekday()) + 6) % 7
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		start = day.AddDate(0, 0, -offset)
		end = start.AddDate(0, 0, 7)

	case domain.WindowMonthly:
		start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)

	default: // daily
		start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 0, 1)
	}

	return start, end
}
