// Package availability decides whether a whole calendar date is bookable.
package availability

import (
	"fmt"
	"time"

	"barbershop/internal/model"
	"barbershop/internal/schedule"

	"cloud.google.com/go/civil"
)

// Code identifies which check rejected a date.
type Code string

const (
	CodeAvailable     Code = "available"
	CodePast          Code = "past"
	CodeDayOver       Code = "day_over"
	CodeBeyondHorizon Code = "beyond_horizon"
	CodeShopClosedDay Code = "shop_closed_day"
	CodeShopClosure   Code = "shop_closure"
	CodeStaffDayOff   Code = "staff_day_off"
	CodeStaffClosure  Code = "staff_closure"
)

// Fallback reasons.
const (
	ReasonPast          = "date has passed"
	ReasonDayOver       = "working hours are over for today"
	ReasonShopClosed    = "shop closed"
	ReasonStaffOff      = "staff not working"
	ReasonStaffAway     = "staff unavailable"
	reasonHorizonFormat = "bookings are open only %d days ahead"
)

// Result is the outcome of IsDateAvailable.
type Result struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	Code      Code   `json:"code"`
}

func unavailable(code Code, reason string) Result {
	return Result{Available: false, Reason: reason, Code: code}
}

// IsDateAvailable runs the date checks in fixed order and returns the first
// failure. now must be expressed in the shop timezone: "today" is its civil date.
func IsDateAvailable(
	now time.Time,
	date civil.Date,
	shop *model.ShopSettings,
	shopClosures []model.ClosurePeriod,
	staff *model.StaffSchedule,
	staffClosures []model.ClosurePeriod,
) Result {
	today := civil.DateOf(now)
	eff := schedule.ResolveDate(shop, staff, date)

	if date.Before(today) {
		return unavailable(CodePast, ReasonPast)
	}

	if date == today && model.TimeOfDayOf(now) >= eff.Hours.End {
		return unavailable(CodeDayOver, ReasonDayOver)
	}

	if date.After(today.AddDays(eff.MaxBookingDaysAhead)) {
		return unavailable(CodeBeyondHorizon, fmt.Sprintf(reasonHorizonFormat, eff.MaxBookingDaysAhead))
	}

	if !shop.IsOpenOn(model.Weekday(date)) {
		return unavailable(CodeShopClosedDay, ReasonShopClosed)
	}

	if c, ok := findClosure(shopClosures, date); ok {
		return unavailable(CodeShopClosure, orDefault(c.Reason, ReasonShopClosed))
	}

	if !eff.Working {
		return unavailable(CodeStaffDayOff, ReasonStaffOff)
	}

	if c, ok := findClosure(staffClosures, date); ok {
		return unavailable(CodeStaffClosure, orDefault(c.Reason, ReasonStaffAway))
	}

	return Result{Available: true, Code: CodeAvailable}
}

// FromSnapshot is IsDateAvailable over a constraint snapshot.
func FromSnapshot(now time.Time, date civil.Date, snap *model.Snapshot) Result {
	return IsDateAvailable(now, date, &snap.Shop, snap.ShopClosures, &snap.Staff, snap.StaffClosures)
}

// LastBookableDay is the last civil date inside the booking horizon.
func LastBookableDay(now time.Time, shop *model.ShopSettings) civil.Date {
	eff := schedule.Resolve(shop, nil, now.Weekday())
	return civil.DateOf(now).AddDays(eff.MaxBookingDaysAhead)
}

func findClosure(closures []model.ClosurePeriod, date civil.Date) (model.ClosurePeriod, bool) {
	for _, c := range closures {
		if c.Contains(date) {
			return c, true
		}
	}
	return model.ClosurePeriod{}, false
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
