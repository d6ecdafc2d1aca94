package schedule

import (
	"testing"
	"time"

	"barbershop/internal/model"

	"github.com/stretchr/testify/assert"
)

func tod(s string) *model.TimeOfDay {
	t := model.MustTimeOfDay(s)
	return &t
}

func intPtr(v int) *int { return &v }

func TestResolve_Hours(t *testing.T) {
	shop := &model.ShopSettings{OpenTime: tod("08:00"), CloseTime: tod("20:00")}

	tests := []struct {
		name       string
		shop       *model.ShopSettings
		staff      *model.StaffSchedule
		day        time.Weekday
		want       Hours
		wantSource Source
	}{
		{
			name:       "nothing configured",
			want:       Hours{DefaultStart, DefaultEnd},
			wantSource: SourceDefault,
		},
		{
			name:       "shop hours",
			shop:       shop,
			staff:      &model.StaffSchedule{},
			want:       Hours{model.MustTimeOfDay("08:00"), model.MustTimeOfDay("20:00")},
			wantSource: SourceShop,
		},
		{
			name:       "legacy weekly overrides shop",
			shop:       shop,
			staff:      &model.StaffSchedule{StartTime: tod("10:00"), EndTime: tod("18:00")},
			want:       Hours{model.MustTimeOfDay("10:00"), model.MustTimeOfDay("18:00")},
			wantSource: SourceWeekly,
		},
		{
			name: "day rule overrides legacy",
			shop: shop,
			staff: &model.StaffSchedule{
				StartTime: tod("10:00"),
				EndTime:   tod("18:00"),
				DayRules: map[time.Weekday]model.DayRule{
					time.Saturday: {IsWorking: true, StartTime: tod("11:00"), EndTime: tod("15:00")},
				},
			},
			day:        time.Saturday,
			want:       Hours{model.MustTimeOfDay("11:00"), model.MustTimeOfDay("15:00")},
			wantSource: SourceDayRule,
		},
		{
			name: "day rule without hours falls through",
			shop: shop,
			staff: &model.StaffSchedule{
				StartTime: tod("10:00"),
				EndTime:   tod("18:00"),
				DayRules:  map[time.Weekday]model.DayRule{time.Monday: {IsWorking: true}},
			},
			day:        time.Monday,
			want:       Hours{model.MustTimeOfDay("10:00"), model.MustTimeOfDay("18:00")},
			wantSource: SourceWeekly,
		},
		{
			name:       "inverted pair ignored",
			shop:       &model.ShopSettings{OpenTime: tod("20:00"), CloseTime: tod("08:00")},
			want:       Hours{DefaultStart, DefaultEnd},
			wantSource: SourceDefault,
		},
		{
			name:       "half configured pair ignored",
			shop:       &model.ShopSettings{OpenTime: tod("10:00")},
			want:       Hours{DefaultStart, DefaultEnd},
			wantSource: SourceDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eff := Resolve(tt.shop, tt.staff, tt.day)
			assert.Equal(t, tt.want, eff.Hours)
			assert.Equal(t, tt.wantSource, eff.HoursSource)
		})
	}
}

func TestResolve_WorkingDay(t *testing.T) {
	staff := &model.StaffSchedule{
		WorkingDays: []time.Weekday{time.Monday, time.Tuesday},
		DayRules: map[time.Weekday]model.DayRule{
			time.Tuesday:  {IsWorking: false},
			time.Saturday: {IsWorking: true},
		},
	}

	tests := []struct {
		name   string
		staff  *model.StaffSchedule
		day    time.Weekday
		want   bool
		source Source
	}{
		{"legacy working", staff, time.Monday, true, SourceWeekly},
		{"legacy off", staff, time.Wednesday, false, SourceWeekly},
		{"day rule turns off", staff, time.Tuesday, false, SourceDayRule},
		{"day rule turns on", staff, time.Saturday, true, SourceDayRule},
		{"no schedule", nil, time.Sunday, true, SourceDefault},
		{"explicit empty legacy", &model.StaffSchedule{WorkingDays: []time.Weekday{}}, time.Monday, false, SourceWeekly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eff := Resolve(nil, tt.staff, tt.day)
			assert.Equal(t, tt.want, eff.Working)
			assert.Equal(t, tt.source, eff.WorkingSource)
		})
	}
}

func TestResolve_Limits(t *testing.T) {
	eff := Resolve(nil, nil, time.Monday)
	assert.Equal(t, time.Hour, eff.MinLead)
	assert.Equal(t, DefaultMaxBookingDaysAhead, eff.MaxBookingDaysAhead)
	assert.Equal(t, 5, eff.MaxConcurrentBookings)
	assert.Equal(t, 2, eff.MaxDailyBookings)
	assert.Equal(t, 30, eff.SlotInterval)

	shop := &model.ShopSettings{
		MinHoursBeforeBooking: intPtr(3),
		MaxBookingDaysAhead:   intPtr(14),
		MaxConcurrentBookings: intPtr(1),
		MaxDailyBookings:      intPtr(0),
		SlotIntervalMinutes:   intPtr(20),
	}
	eff = Resolve(shop, &model.StaffSchedule{MinHoursBeforeBooking: intPtr(0)}, time.Monday)
	assert.Equal(t, time.Duration(0), eff.MinLead, "staff lead time wins, zero is a valid value")
	assert.Equal(t, 14, eff.MaxBookingDaysAhead)
	assert.Equal(t, 1, eff.MaxConcurrentBookings)
	assert.Equal(t, DefaultMaxDailyBookings, eff.MaxDailyBookings, "non-positive limit falls back")
	assert.Equal(t, 20, eff.SlotInterval)

	eff = Resolve(shop, &model.StaffSchedule{}, time.Monday)
	assert.Equal(t, 3*time.Hour, eff.MinLead)
}

func TestEffective_OnGrid(t *testing.T) {
	shop := &model.ShopSettings{OpenTime: tod("09:15"), CloseTime: tod("12:00"), SlotIntervalMinutes: intPtr(45)}
	eff := Resolve(shop, nil, time.Wednesday)

	tests := []struct {
		at   string
		want bool
	}{
		{"09:15", true},
		{"10:00", true},
		{"11:30", true},
		{"09:00", false},
		{"09:30", false},
		{"10:15", false},
		{"12:00", false},
		{"12:45", false},
	}
	for _, tt := range tests {
		t.Run(tt.at, func(t *testing.T) {
			assert.Equal(t, tt.want, eff.OnGrid(model.MustTimeOfDay(tt.at)))
		})
	}

	defaults := Resolve(nil, nil, time.Wednesday)
	assert.True(t, defaults.OnGrid(model.MustTimeOfDay("18:30")))
	assert.False(t, defaults.OnGrid(model.MustTimeOfDay("10:15")))
}
