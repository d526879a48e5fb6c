/*
calendar.go - Day-type classification

PURPOSE:
  Decides whether a date is a Weekday, Weekend, or Holiday. Holiday wins
  over Weekend: a holiday falling on a Saturday is a Holiday. The Calendar
  value is a pure snapshot (weekend set + holiday dates) so classification
  inside a batch never touches the store; CalendarService builds snapshots
  from the holidays and configuration collections.

SEE ALSO:
  - accrual.go: consumes the DayType this file produces
  - config.go:  source of the weekend-day set
*/
package coc

import (
	"context"
	"time"
)

// =============================================================================
// CALENDAR SNAPSHOT - pure classification
// =============================================================================

// Calendar classifies dates without I/O. Build one per request covering
// the years the request touches.
type Calendar struct {
	weekend  map[time.Weekday]bool
	holidays map[string]HolidayEntry // ISO date -> entry
}

func NewCalendar(weekend map[time.Weekday]bool, holidays []HolidayEntry) Calendar {
	byDate := make(map[string]HolidayEntry, len(holidays))
	for _, h := range holidays {
		byDate[h.Date.ISO()] = h
	}
	return Calendar{weekend: weekend, holidays: byDate}
}

// DayType classifies a date. Holiday is tested before Weekend.
func (c Calendar) DayType(d Date) DayType {
	if _, ok := c.holidays[d.ISO()]; ok {
		return Holiday
	}
	if c.weekend[d.Weekday()] {
		return Weekend
	}
	return Weekday
}

// HolidayOn returns the holiday on a date, if any.
func (c Calendar) HolidayOn(d Date) (HolidayEntry, bool) {
	h, ok := c.holidays[d.ISO()]
	return h, ok
}

// =============================================================================
// CALENDAR SERVICE - snapshot construction
// =============================================================================

type CalendarService struct {
	holidays *HolidayStore
	config   *ConfigStore
}

func NewCalendarService(holidays *HolidayStore, config *ConfigStore) *CalendarService {
	return &CalendarService{holidays: holidays, config: config}
}

// Snapshot builds a Calendar for the given years using the stored weekend
// configuration. Duplicate years are fetched once.
func (s *CalendarService) Snapshot(ctx context.Context, settings Settings, years ...int) (Calendar, error) {
	seen := map[int]bool{}
	var all []HolidayEntry
	for _, y := range years {
		if seen[y] {
			continue
		}
		seen[y] = true
		hs, err := s.holidays.ByYear(ctx, y)
		if err != nil {
			return Calendar{}, err
		}
		all = append(all, hs...)
	}
	return NewCalendar(settings.WeekendDays, all), nil
}

// SetWeekendDays stores a new weekend-day set. Takes effect on the next
// request; already-written logs keep their recorded day type.
func (s *CalendarService) SetWeekendDays(ctx context.Context, days map[time.Weekday]bool) error {
	settings := Settings{WeekendDays: days}
	return s.config.Set(ctx, keyWeekendDays, settings.WeekendCSV(), "CSV of weekday numbers, 0=Sunday")
}
