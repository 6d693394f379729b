// Package markethours knows the US equity session calendar in Eastern Time.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const (
	preMarketOpenMin = 4 * 60
	regularOpenMin   = 9*60 + 30
	regularCloseMin  = 16 * 60
	earlyCloseMin    = 13 * 60
	afterHoursEndMin = 20 * 60
)

// Eastern is the exchange time zone.
var Eastern = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("markethours: load %s: %v", name, err))
	}
	return loc
}

type dayKind int

const (
	dayRegular dayKind = iota
	dayClosed
	dayEarly
)

type holiday struct {
	kind dayKind
	name string
}

// NYSE/NASDAQ calendar, 2025 through 2028.
var holidays = map[string]holiday{
	"2025-01-01": {dayClosed, "New Year's Day"},
	"2025-01-20": {dayClosed, "Martin Luther King Jr. Day"},
	"2025-02-17": {dayClosed, "Presidents' Day"},
	"2025-04-18": {dayClosed, "Good Friday"},
	"2025-05-26": {dayClosed, "Memorial Day"},
	"2025-06-19": {dayClosed, "Juneteenth"},
	"2025-07-03": {dayEarly, "Independence Day Eve"},
	"2025-07-04": {dayClosed, "Independence Day"},
	"2025-09-01": {dayClosed, "Labor Day"},
	"2025-11-27": {dayClosed, "Thanksgiving"},
	"2025-11-28": {dayEarly, "Day after Thanksgiving"},
	"2025-12-24": {dayEarly, "Christmas Eve"},
	"2025-12-25": {dayClosed, "Christmas"},

	"2026-01-01": {dayClosed, "New Year's Day"},
	"2026-01-19": {dayClosed, "Martin Luther King Jr. Day"},
	"2026-02-16": {dayClosed, "Presidents' Day"},
	"2026-04-03": {dayClosed, "Good Friday"},
	"2026-05-25": {dayClosed, "Memorial Day"},
	"2026-06-19": {dayClosed, "Juneteenth"},
	"2026-07-03": {dayEarly, "Independence Day (observed) Eve"},
	"2026-07-04": {dayClosed, "Independence Day"},
	"2026-09-07": {dayClosed, "Labor Day"},
	"2026-11-26": {dayClosed, "Thanksgiving"},
	"2026-11-27": {dayEarly, "Day after Thanksgiving"},
	"2026-12-24": {dayEarly, "Christmas Eve"},
	"2026-12-25": {dayClosed, "Christmas"},

	"2027-01-01": {dayClosed, "New Year's Day"},
	"2027-01-18": {dayClosed, "Martin Luther King Jr. Day"},
	"2027-02-15": {dayClosed, "Presidents' Day"},
	"2027-03-26": {dayClosed, "Good Friday"},
	"2027-05-31": {dayClosed, "Memorial Day"},
	"2027-06-18": {dayClosed, "Juneteenth (observed)"},
	"2027-07-04": {dayClosed, "Independence Day"},
	"2027-07-05": {dayEarly, "Independence Day (observed)"},
	"2027-09-06": {dayClosed, "Labor Day"},
	"2027-11-25": {dayClosed, "Thanksgiving"},
	"2027-11-26": {dayEarly, "Day after Thanksgiving"},
	"2027-12-24": {dayEarly, "Christmas Eve"},
	"2027-12-25": {dayClosed, "Christmas"},

	"2028-01-01": {dayClosed, "New Year's Day"},
	"2028-01-17": {dayClosed, "Martin Luther King Jr. Day"},
	"2028-02-21": {dayClosed, "Presidents' Day"},
	"2028-04-14": {dayClosed, "Good Friday"},
	"2028-05-29": {dayClosed, "Memorial Day"},
	"2028-06-19": {dayClosed, "Juneteenth"},
	"2028-07-03": {dayEarly, "Independence Day Eve"},
	"2028-07-04": {dayClosed, "Independence Day"},
	"2028-09-04": {dayClosed, "Labor Day"},
	"2028-11-23": {dayClosed, "Thanksgiving"},
	"2028-11-24": {dayEarly, "Day after Thanksgiving"},
	"2028-12-25": {dayClosed, "Christmas"},
}

// State is the coarse session state.
type State string

const (
	StateOpen       State = "open"
	StatePreMarket  State = "pre-market"
	StateAfterHours State = "after-hours"
	StateClosed     State = "closed"
)

// Session qualifies the state.
type Session string

const (
	SessionRegular  Session = "regular"
	SessionExtended Session = "extended"
	SessionWeekend  Session = "weekend"
	SessionHoliday  Session = "holiday"
	SessionNone     Session = "none"
)

// Status describes the market at one instant.
type Status struct {
	State       State
	Session     Session
	HolidayName string
	// MinuteET is minutes since midnight Eastern.
	MinuteET int
	// CloseMinuteET is the regular close for the day (780 on early-close days).
	CloseMinuteET int
}

// ToEastern converts t to Eastern Time.
func ToEastern(t time.Time) time.Time { return t.In(Eastern) }

// SessionDate returns the Eastern calendar date of t as YYYY-MM-DD.
func SessionDate(t time.Time) string { return ToEastern(t).Format("2006-01-02") }

// SessionDay returns midnight Eastern of the day containing t.
func SessionDay(t time.Time) time.Time {
	et := ToEastern(t)
	return time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, Eastern)
}

// MinuteOfDay returns minutes since midnight Eastern.
func MinuteOfDay(t time.Time) int {
	et := ToEastern(t)
	return et.Hour()*60 + et.Minute()
}

// IsTradingDay is false on weekends and full-day holidays.
func IsTradingDay(t time.Time) bool {
	et := ToEastern(t)
	if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return holidays[et.Format("2006-01-02")].kind != dayClosed
}

// IsMarketOpen reports whether t falls in the regular session.
func IsMarketOpen(t time.Time) bool {
	return GetStatus(t).State == StateOpen
}

// GetStatus classifies t against the session calendar.
func GetStatus(t time.Time) Status {
	et := ToEastern(t)
	minute := et.Hour()*60 + et.Minute()
	st := Status{MinuteET: minute, CloseMinuteET: regularCloseMin}

	if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
		st.State, st.Session = StateClosed, SessionWeekend
		return st
	}
	h := holidays[et.Format("2006-01-02")]
	if h.kind == dayClosed {
		st.State, st.Session, st.HolidayName = StateClosed, SessionHoliday, h.name
		return st
	}
	if h.kind == dayEarly {
		st.CloseMinuteET = earlyCloseMin
		st.HolidayName = h.name
	}

	switch {
	case minute >= preMarketOpenMin && minute < regularOpenMin:
		st.State, st.Session = StatePreMarket, SessionExtended
	case minute >= regularOpenMin && minute <= st.CloseMinuteET:
		st.State, st.Session = StateOpen, SessionRegular
	case minute > st.CloseMinuteET && minute < afterHoursEndMin:
		st.State, st.Session = StateAfterHours, SessionExtended
	default:
		st.State, st.Session = StateClosed, SessionNone
	}
	return st
}
