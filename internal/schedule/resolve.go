// Package schedule resolves the effective working rules of a staff member
// from the shop settings and the staff schedule.
//
// Precedence, highest first:
//
//	working day:  staff day rule > staff weekly schedule > working
//	hours:        staff day rule > staff weekly schedule > shop hours > 09:00-19:00
//	lead time:    staff > shop > 1h
//	horizon, limits, slot interval: shop > defaults
//
// Whether the shop itself is open on the weekday is a separate check
// (ShopSettings.IsOpenOn) and is not folded into Working.
package schedule

import (
	"time"

	"barbershop/internal/model"

	"cloud.google.com/go/civil"
)

// Defaults used when nothing is configured.
const (
	DefaultStart                 = model.TimeOfDay(9 * 60)
	DefaultEnd                   = model.TimeOfDay(19 * 60)
	DefaultMinHoursBeforeBooking = 1
	DefaultMaxBookingDaysAhead   = 30
	DefaultMaxConcurrentBookings = 5
	DefaultMaxDailyBookings      = 2
	DefaultSlotIntervalMinutes   = 30
)

// Source names the configuration level a value was taken from.
type Source string

const (
	SourceDayRule Source = "staff_day_rule"
	SourceWeekly  Source = "staff_weekly"
	SourceShop    Source = "shop"
	SourceDefault Source = "default"
)

// Hours is a working window.
type Hours struct {
	Start model.TimeOfDay `json:"start"`
	End   model.TimeOfDay `json:"end"`
}

// Effective is the fully resolved configuration for one staff member on one weekday.
type Effective struct {
	Working               bool
	WorkingSource         Source
	Hours                 Hours
	HoursSource           Source
	MinLead               time.Duration
	MaxBookingDaysAhead   int
	MaxConcurrentBookings int
	MaxDailyBookings      int
	SlotInterval          int
}

// Resolve returns the effective configuration. Both arguments may be nil.
func Resolve(shop *model.ShopSettings, staff *model.StaffSchedule, day time.Weekday) Effective {
	eff := Effective{
		Working:       true,
		WorkingSource: SourceDefault,
		Hours:         Hours{Start: DefaultStart, End: DefaultEnd},
		HoursSource:   SourceDefault,
	}

	var rule *model.DayRule
	if staff != nil {
		if r, ok := staff.DayRules[day]; ok {
			rule = &r
		}
	}

	switch {
	case rule != nil:
		eff.Working, eff.WorkingSource = rule.IsWorking, SourceDayRule
	case staff != nil && staff.WorkingDays != nil:
		eff.Working, eff.WorkingSource = containsDay(staff.WorkingDays, day), SourceWeekly
	}

	switch {
	case rule != nil && validPair(rule.StartTime, rule.EndTime):
		eff.Hours, eff.HoursSource = Hours{*rule.StartTime, *rule.EndTime}, SourceDayRule
	case staff != nil && validPair(staff.StartTime, staff.EndTime):
		eff.Hours, eff.HoursSource = Hours{*staff.StartTime, *staff.EndTime}, SourceWeekly
	case shop != nil && validPair(shop.OpenTime, shop.CloseTime):
		eff.Hours, eff.HoursSource = Hours{*shop.OpenTime, *shop.CloseTime}, SourceShop
	}

	leadHours := DefaultMinHoursBeforeBooking
	switch {
	case staff != nil && staff.MinHoursBeforeBooking != nil && *staff.MinHoursBeforeBooking >= 0:
		leadHours = *staff.MinHoursBeforeBooking
	case shop != nil && shop.MinHoursBeforeBooking != nil && *shop.MinHoursBeforeBooking >= 0:
		leadHours = *shop.MinHoursBeforeBooking
	}
	eff.MinLead = time.Duration(leadHours) * time.Hour

	eff.MaxBookingDaysAhead = DefaultMaxBookingDaysAhead
	eff.MaxConcurrentBookings = DefaultMaxConcurrentBookings
	eff.MaxDailyBookings = DefaultMaxDailyBookings
	eff.SlotInterval = DefaultSlotIntervalMinutes
	if shop != nil {
		eff.MaxBookingDaysAhead = positiveOr(shop.MaxBookingDaysAhead, DefaultMaxBookingDaysAhead)
		eff.MaxConcurrentBookings = positiveOr(shop.MaxConcurrentBookings, DefaultMaxConcurrentBookings)
		eff.MaxDailyBookings = positiveOr(shop.MaxDailyBookings, DefaultMaxDailyBookings)
		eff.SlotInterval = positiveOr(shop.SlotIntervalMinutes, DefaultSlotIntervalMinutes)
	}

	return eff
}

// ResolveDate is Resolve for the weekday of a civil date.
func ResolveDate(shop *model.ShopSettings, staff *model.StaffSchedule, date civil.Date) Effective {
	return Resolve(shop, staff, model.Weekday(date))
}

// OnGrid reports whether t starts one of the day's slots: inside
// [Hours.Start, Hours.End) and a whole number of intervals after Start.
func (e Effective) OnGrid(t model.TimeOfDay) bool {
	if t < e.Hours.Start || t >= e.Hours.End {
		return false
	}
	interval := e.SlotInterval
	if interval <= 0 {
		interval = DefaultSlotIntervalMinutes
	}
	return int(t-e.Hours.Start)%interval == 0
}

// WorkHours returns the effective working window for a date, 09:00-19:00
// when nothing is configured.
func WorkHours(shop *model.ShopSettings, staff *model.StaffSchedule, date civil.Date) Hours {
	return ResolveDate(shop, staff, date).Hours
}

// Location loads the shop timezone, falling back to fallback when unset.
func Location(shop *model.ShopSettings, fallback *time.Location) (*time.Location, error) {
	if shop == nil || shop.Timezone == "" {
		return fallback, nil
	}
	return time.LoadLocation(shop.Timezone)
}

func validPair(start, end *model.TimeOfDay) bool {
	return start != nil && end != nil && *start < *end
}

func positiveOr(v *int, def int) int {
	if v == nil || *v <= 0 {
		return def
	}
	return *v
}

func containsDay(days []time.Weekday, d time.Weekday) bool {
	for _, wd := range days {
		if wd == d {
			return true
		}
	}
	return false
}
