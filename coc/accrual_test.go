package coc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/govhr/coc-engine/coc"
)

// =============================================================================
// CLOCK PARSING
// =============================================================================

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		minutes int
		ok      bool
	}{
		{"8:00 AM", 480, true},
		{"08:00 AM", 480, true},
		{"12:00 AM", 0, true},
		{"12:00 PM", 720, true},
		{"12:30 AM", 30, true},
		{"5:33 pm", 1053, true},
		{"11:59 PM", 1439, true},
		{"  9:15 AM  ", 555, true},
		{"", 0, false},
		{"8:00", 0, false},
		{"13:00 PM", 0, false},
		{"0:30 AM", 0, false},
		{"8:60 AM", 0, false},
		{"8:00 XM", 0, false},
		{"eight AM", 0, false},
		{"8:00AM", 0, false},
	}
	for _, tc := range cases {
		got, ok := coc.ParseClock(tc.in)
		assert.Equal(t, tc.ok, ok, "ParseClock(%q) ok", tc.in)
		if tc.ok {
			assert.Equal(t, tc.minutes, got, "ParseClock(%q)", tc.in)
		}
	}
}

// =============================================================================
// ACCRUAL RULES
// =============================================================================

func TestAccrue_WeekdayEveningWindow(t *testing.T) {
	// GIVEN: a weekday shift running 8:00-12:00 and 13:00-18:30
	// WHEN: accruing credit
	// THEN: only the 17:00-18:30 overlap counts, at rate 1.0

	p := coc.Punches{AMIn: "8:00 AM", AMOut: "12:00 PM", PMIn: "1:00 PM", PMOut: "6:30 PM"}
	got := coc.Accrue(coc.Weekday, p)
	assert.True(t, got.Equal(hours(1.5)), "got %s", got)
}

func TestAccrue_WeekdayClampedAtTwoHours(t *testing.T) {
	// GIVEN: a weekday shift ending at 21:00, overlapping the whole
	//        17:00-19:00 window and beyond
	// THEN: credit clamps at 2.0

	p := coc.Punches{PMIn: "1:00 PM", PMOut: "9:00 PM"}
	got := coc.Accrue(coc.Weekday, p)
	assert.True(t, got.Equal(hours(2.0)), "got %s", got)
}

func TestAccrue_WeekendFullDay(t *testing.T) {
	// GIVEN: a full weekend day, 8:00-12:00 and 13:00-17:00
	// THEN: 8 hours at rate 1.5 = 12.0, no clamp

	p := coc.Punches{AMIn: "8:00 AM", AMOut: "12:00 PM", PMIn: "1:00 PM", PMOut: "5:00 PM"}
	got := coc.Accrue(coc.Weekend, p)
	assert.True(t, got.Equal(hours(12.0)), "got %s", got)
}

func TestAccrue_HolidaySameWindowsAsWeekend(t *testing.T) {
	p := coc.Punches{AMIn: "8:00 AM", AMOut: "12:00 PM", PMIn: "1:00 PM", PMOut: "5:00 PM"}
	assert.True(t, coc.Accrue(coc.Holiday, p).Equal(coc.Accrue(coc.Weekend, p)))
}

func TestAccrue_WeekendLunchHourNeverCounts(t *testing.T) {
	// A session spanning 11:00-14:00 only overlaps 11:00-12:00 and
	// 13:00-14:00; the 12:00-13:00 gap is outside both windows.
	p := coc.Punches{AMIn: "11:00 AM", AMOut: "2:00 PM"}
	got := coc.Accrue(coc.Weekend, p)
	assert.True(t, got.Equal(hours(3.0)), "got %s", got)
}

func TestAccrue_RoundsOnceHalfAwayFromZero(t *testing.T) {
	// 21 minutes on a weekday = 0.35h, rounding half away from zero
	// gives 0.4. A per-session rounding would give 0.4 too; the 33-minute
	// case (0.55 -> 0.6) pins the final-rounding behavior.
	p := coc.Punches{PMIn: "5:00 PM", PMOut: "5:21 PM"}
	assert.True(t, coc.Accrue(coc.Weekday, p).Equal(hours(0.4)))

	p = coc.Punches{PMIn: "5:00 PM", PMOut: "5:33 PM"}
	assert.True(t, coc.Accrue(coc.Weekday, p).Equal(hours(0.6)))
}

func TestAccrue_InvalidSessionContributesNothing(t *testing.T) {
	// GIVEN: a malformed AM punch pair and a valid PM session
	// THEN: only the PM session earns

	p := coc.Punches{AMIn: "nonsense", AMOut: "12:00 PM", PMIn: "1:00 PM", PMOut: "6:00 PM"}
	got := coc.Accrue(coc.Weekday, p)
	assert.True(t, got.Equal(hours(1.0)), "got %s", got)

	// Out before in drops the session entirely.
	p = coc.Punches{PMIn: "6:00 PM", PMOut: "5:00 PM"}
	assert.True(t, coc.Accrue(coc.Weekday, p).IsZero())
}

func TestAccrue_NoPunchesNoCredit(t *testing.T) {
	assert.True(t, coc.Accrue(coc.Weekday, coc.Punches{}).IsZero())
	assert.True(t, coc.Accrue(coc.Weekend, coc.Punches{}).IsZero())
}

func TestAccrue_PureSameInputsSameOutput(t *testing.T) {
	p := coc.Punches{AMIn: "8:00 AM", AMOut: "12:00 PM", PMIn: "1:00 PM", PMOut: "6:30 PM"}
	first := coc.Accrue(coc.Weekday, p)
	for i := 0; i < 10; i++ {
		assert.True(t, first.Equal(coc.Accrue(coc.Weekday, p)))
	}
}
