/*
accrual.go - Day-type accrual rules (pure)

PURPOSE:
  Translates the four punch times of one logged day into credit-hours.
  This is a pure function of (day type, punches): no I/O, no clock, no
  store. Everything observable about the rules lives here.

RULES:
  Weekday:         credit window 17:00-19:00, rate 1.0, clamped at 2.0h
  Weekend/Holiday: credit windows 08:00-12:00 and 13:00-17:00, rate 1.5,
                   no per-day clamp (the monthly cap bounds the aggregate)

TIME PARSING:
  Punches are "HH:MM AM/PM" strings. An invalid or empty punch simply
  contributes nothing - bad input on one session never fails the day.
  12 AM parses to minute 0, 12 PM to minute 720. A session whose out is
  not after its in contributes nothing.

ROUNDING:
  Exactly one rounding, half away from zero to one decimal place, applied
  to the final day total - never per window or per session.

SEE ALSO:
  - calendar.go: produces the DayType input
  - validate.go: accumulates per-entry results against the caps
*/
package coc

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CREDIT WINDOWS - minutes since midnight
// =============================================================================

type creditWindow struct {
	start int
	end   int
}

var (
	weekdayWindows = []creditWindow{{17 * 60, 19 * 60}}
	weekendWindows = []creditWindow{{8 * 60, 12 * 60}, {13 * 60, 17 * 60}}

	weekdayClampMinutes = 2 * 60

	rateWeekday = decimal.NewFromInt(1)
	rateOffDay  = decimal.RequireFromString("1.5")

	sixty = decimal.NewFromInt(60)
)

// =============================================================================
// CLOCK PARSING
// =============================================================================

// ParseClock parses "HH:MM AM/PM" into minutes since midnight.
// Hours 1..12, minutes 0..59, marker case-insensitive. 12 AM is minute 0,
// 12 PM is minute 720. Returns ok=false for anything else.
func ParseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, false
	}

	marker := strings.ToUpper(fields[1])
	if marker != "AM" && marker != "PM" {
		return 0, false
	}

	hm := strings.Split(fields[0], ":")
	if len(hm) != 2 {
		return 0, false
	}

	hour, err := strconv.Atoi(hm[0])
	if err != nil || hour < 1 || hour > 12 {
		return 0, false
	}
	minute, err := strconv.Atoi(hm[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}

	if hour == 12 {
		hour = 0
	}
	if marker == "PM" {
		hour += 12
	}
	return hour*60 + minute, true
}

// =============================================================================
// ACCRUAL
// =============================================================================

// Punches holds the four optional punch times of one day.
type Punches struct {
	AMIn  string
	AMOut string
	PMIn  string
	PMOut string
}

type session struct {
	in  int
	out int
}

// sessions returns the valid sessions of the day. A session is dropped
// entirely when either punch fails to parse or out <= in.
func (p Punches) sessions() []session {
	var out []session
	for _, pair := range [][2]string{{p.AMIn, p.AMOut}, {p.PMIn, p.PMOut}} {
		in, okIn := ParseClock(pair[0])
		end, okOut := ParseClock(pair[1])
		if okIn && okOut && end > in {
			out = append(out, session{in: in, out: end})
		}
	}
	return out
}

// Accrue computes the credit-hours one day of punches earns under the
// given day type. Pure; same inputs always yield the same output.
func Accrue(dayType DayType, p Punches) Hours {
	var windows []creditWindow
	rate := rateWeekday
	clamp := 0

	switch dayType {
	case Weekday:
		windows = weekdayWindows
		clamp = weekdayClampMinutes
	case Weekend, Holiday:
		windows = weekendWindows
		rate = rateOffDay
	default:
		return Hours{}
	}

	minutes := 0
	for _, s := range p.sessions() {
		for _, w := range windows {
			minutes += overlap(s, w)
		}
	}
	if clamp > 0 && minutes > clamp {
		minutes = clamp
	}

	hours := decimal.NewFromInt(int64(minutes)).Div(sixty).Mul(rate)
	return hoursFromDecimal(hours).Round1()
}

func overlap(s session, w creditWindow) int {
	start := s.in
	if w.start > start {
		start = w.start
	}
	end := s.out
	if w.end < end {
		end = w.end
	}
	if end <= start {
		return 0
	}
	return end - start
}
