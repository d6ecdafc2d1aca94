package model

import (
	"time"

	"cloud.google.com/go/civil"
)

// ShopSettings holds shop-wide configuration. Nil fields fall back to
// defaults during resolution.
type ShopSettings struct {
	Timezone              string         `json:"timezone,omitempty"`
	OpenTime              *TimeOfDay     `json:"openTime,omitempty"`
	CloseTime             *TimeOfDay     `json:"closeTime,omitempty"`
	OpenDays              []time.Weekday `json:"openDays,omitempty"` // empty = every day
	MaxBookingDaysAhead   *int           `json:"maxBookingDaysAhead,omitempty"`
	MinHoursBeforeBooking *int           `json:"minHoursBeforeBooking,omitempty"`
	MaxConcurrentBookings *int           `json:"maxConcurrentBookings,omitempty"`
	MaxDailyBookings      *int           `json:"maxDailyBookings,omitempty"`
	SlotIntervalMinutes   *int           `json:"slotIntervalMinutes,omitempty"`
}

// IsOpenOn reports whether the shop opens on weekday d.
func (s *ShopSettings) IsOpenOn(d time.Weekday) bool {
	if s == nil || len(s.OpenDays) == 0 {
		return true
	}
	for _, od := range s.OpenDays {
		if od == d {
			return true
		}
	}
	return false
}

// DayRule is a day-specific work rule of a staff member.
type DayRule struct {
	IsWorking bool       `json:"isWorking"`
	StartTime *TimeOfDay `json:"startTime,omitempty"`
	EndTime   *TimeOfDay `json:"endTime,omitempty"`
}

// StaffSchedule is the weekly schedule of one staff member. WorkingDays,
// StartTime and EndTime are the legacy weekly schedule; DayRules override it.
type StaffSchedule struct {
	StaffID               string                   `json:"staffId"`
	Name                  string                   `json:"name,omitempty"`
	WorkingDays           []time.Weekday           `json:"workingDays"`
	StartTime             *TimeOfDay               `json:"startTime,omitempty"`
	EndTime               *TimeOfDay               `json:"endTime,omitempty"`
	DayRules              map[time.Weekday]DayRule `json:"dayRules,omitempty"`
	MinHoursBeforeBooking *int                     `json:"minHoursBeforeBooking,omitempty"`
}

// ClosurePeriod closes the shop (StaffID empty) or a staff member for an
// inclusive range of civil dates.
type ClosurePeriod struct {
	ID        int64      `json:"id"`
	StaffID   string     `json:"staffId,omitempty"`
	StartDate civil.Date `json:"startDate"`
	EndDate   civil.Date `json:"endDate"`
	Reason    string     `json:"reason,omitempty"`
}

// Contains reports whether d falls within the closure.
func (c ClosurePeriod) Contains(d civil.Date) bool {
	return !d.Before(c.StartDate) && !d.After(c.EndDate)
}

// RecurringAppointment is a standing weekly booking.
type RecurringAppointment struct {
	ID            int64        `json:"id"`
	StaffID       string       `json:"staffId"`
	Weekday       time.Weekday `json:"weekday"`
	Time          TimeOfDay    `json:"time"`
	CustomerLabel string       `json:"customerLabel,omitempty"`
}

// Breakout types.
const (
	BreakoutSingle    = "single"
	BreakoutDateRange = "date_range"
	BreakoutRecurring = "recurring"
)

// Breakout blocks part of a staff member's working time.
type Breakout struct {
	ID        int64        `json:"id"`
	StaffID   string       `json:"staffId"`
	Type      string       `json:"type"`
	StartTime TimeOfDay    `json:"startTime"`
	EndTime   *TimeOfDay   `json:"endTime,omitempty"` // nil = until end of day
	StartDate *civil.Date  `json:"startDate,omitempty"`
	EndDate   *civil.Date  `json:"endDate,omitempty"`
	Weekday   time.Weekday `json:"weekday,omitempty"`
	IsActive  bool         `json:"isActive"`
	Reason    string       `json:"reason,omitempty"`
}

// AppliesOn reports whether the breakout's date rule matches d.
func (b Breakout) AppliesOn(d civil.Date) bool {
	if !b.IsActive {
		return false
	}
	switch b.Type {
	case BreakoutSingle:
		return b.StartDate != nil && d == *b.StartDate
	case BreakoutDateRange:
		return b.StartDate != nil && b.EndDate != nil &&
			!d.Before(*b.StartDate) && !d.After(*b.EndDate)
	case BreakoutRecurring:
		return Weekday(d) == b.Weekday
	default:
		return false
	}
}

// Covers reports whether [start, end) overlaps the breakout's time range.
func (b Breakout) Covers(start, end TimeOfDay) bool {
	until := EndOfDay
	if b.EndTime != nil {
		until = *b.EndTime
	}
	return start < until && b.StartTime < end
}

// Snapshot is the read-only constraint data for one staff member.
type Snapshot struct {
	Shop          ShopSettings           `json:"shop"`
	ShopClosures  []ClosurePeriod        `json:"shopClosures"`
	Staff         StaffSchedule          `json:"staff"`
	StaffClosures []ClosurePeriod        `json:"staffClosures"`
	Recurring     []RecurringAppointment `json:"recurring"`
	Breakouts     []Breakout             `json:"breakouts"`
	LoadedAt      time.Time              `json:"loadedAt"`
}
