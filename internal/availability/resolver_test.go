package availability

import (
	"testing"
	"time"

	"barbershop/internal/model"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
)

var shopZone = time.FixedZone("shop", 3*60*60)

func tod(s string) *model.TimeOfDay {
	t := model.MustTimeOfDay(s)
	return &t
}

func intPtr(v int) *int { return &v }

func TestIsDateAvailable(t *testing.T) {
	// Tuesday 2026-10-20, 12:00 shop time.
	now := time.Date(2026, time.October, 20, 12, 0, 0, 0, shopZone)
	today := civil.DateOf(now)

	shop := &model.ShopSettings{
		OpenDays:            []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
		MaxBookingDaysAhead: intPtr(14),
	}
	staff := &model.StaffSchedule{
		StaffID:     "ivan",
		WorkingDays: []time.Weekday{time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
		DayRules:    map[time.Weekday]model.DayRule{time.Thursday: {IsWorking: false}},
	}

	tests := []struct {
		name          string
		now           time.Time
		date          civil.Date
		shopClosures  []model.ClosurePeriod
		staffClosures []model.ClosurePeriod
		wantCode      Code
		wantReason    string
	}{
		{
			name:       "yesterday",
			date:       today.AddDays(-1),
			wantCode:   CodePast,
			wantReason: ReasonPast,
		},
		{
			name:     "today before closing",
			date:     today,
			wantCode: CodeAvailable,
		},
		{
			name:       "today after closing",
			now:        time.Date(2026, time.October, 20, 19, 0, 0, 0, shopZone),
			date:       today,
			wantCode:   CodeDayOver,
			wantReason: ReasonDayOver,
		},
		{
			name:     "last day of horizon",
			date:     today.AddDays(14),
			wantCode: CodeAvailable,
		},
		{
			name:       "beyond horizon",
			date:       today.AddDays(15),
			wantCode:   CodeBeyondHorizon,
			wantReason: "bookings are open only 14 days ahead",
		},
		{
			name:       "shop closed on sunday",
			date:       today.AddDays(5),
			wantCode:   CodeShopClosedDay,
			wantReason: ReasonShopClosed,
		},
		{
			name:         "shop closure with reason",
			date:         today.AddDays(1),
			shopClosures: []model.ClosurePeriod{{StartDate: today.AddDays(1), EndDate: today.AddDays(2), Reason: "Renovation"}},
			wantCode:     CodeShopClosure,
			wantReason:   "Renovation",
		},
		{
			name:         "shop closure without reason",
			date:         today.AddDays(2),
			shopClosures: []model.ClosurePeriod{{StartDate: today.AddDays(1), EndDate: today.AddDays(2)}},
			wantCode:     CodeShopClosure,
			wantReason:   ReasonShopClosed,
		},
		{
			name:       "staff legacy day off",
			date:       today.AddDays(6), // Monday
			wantCode:   CodeStaffDayOff,
			wantReason: ReasonStaffOff,
		},
		{
			name:       "staff day rule overrides legacy",
			date:       today.AddDays(2), // Thursday
			wantCode:   CodeStaffDayOff,
			wantReason: ReasonStaffOff,
		},
		{
			name:          "staff closure without reason",
			date:          today.AddDays(1),
			staffClosures: []model.ClosurePeriod{{StaffID: "ivan", StartDate: today.AddDays(1), EndDate: today.AddDays(1)}},
			wantCode:      CodeStaffClosure,
			wantReason:    ReasonStaffAway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := tt.now
			if at.IsZero() {
				at = now
			}
			got := IsDateAvailable(at, tt.date, shop, tt.shopClosures, staff, tt.staffClosures)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantCode == CodeAvailable, got.Available)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestIsDateAvailable_ShopClosureBeatsStaffClosure(t *testing.T) {
	now := time.Date(2026, time.October, 20, 10, 0, 0, 0, shopZone)
	today := civil.DateOf(now)

	got := IsDateAvailable(now, today,
		&model.ShopSettings{},
		[]model.ClosurePeriod{{StartDate: today, EndDate: today, Reason: "Shop Holiday"}},
		&model.StaffSchedule{StaffID: "ivan"},
		[]model.ClosurePeriod{{StaffID: "ivan", StartDate: today, EndDate: today, Reason: "Barber Vacation"}},
	)

	assert.False(t, got.Available)
	assert.Equal(t, "Shop Holiday", got.Reason)
	assert.Equal(t, CodeShopClosure, got.Code)
}

func TestIsDateAvailable_DayOverUsesEffectiveHours(t *testing.T) {
	date := civil.Date{Year: 2026, Month: time.October, Day: 24} // Saturday
	staff := &model.StaffSchedule{
		StartTime: tod("10:00"),
		EndTime:   tod("20:00"),
		DayRules:  map[time.Weekday]model.DayRule{time.Saturday: {IsWorking: true, StartTime: tod("10:00"), EndTime: tod("14:00")}},
	}

	at := func(hhmm string) time.Time { return model.MustTimeOfDay(hhmm).On(date, shopZone) }

	assert.True(t, IsDateAvailable(at("13:59"), date, nil, nil, staff, nil).Available)
	assert.Equal(t, CodeDayOver, IsDateAvailable(at("14:00"), date, nil, nil, staff, nil).Code)
	assert.True(t, IsDateAvailable(at("18:59"), date, nil, nil, nil, nil).Available, "defaults close at 19:00")
	assert.Equal(t, CodeDayOver, IsDateAvailable(at("19:00"), date, nil, nil, nil, nil).Code)
}

func TestLastBookableDay(t *testing.T) {
	now := time.Date(2026, time.October, 20, 10, 0, 0, 0, shopZone)
	assert.Equal(t, civil.Date{Year: 2026, Month: time.November, Day: 19}, LastBookableDay(now, nil))
	assert.Equal(t, civil.Date{Year: 2026, Month: time.October, Day: 27}, LastBookableDay(now, &model.ShopSettings{MaxBookingDaysAhead: intPtr(7)}))
}
