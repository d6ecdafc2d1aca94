package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"barbershop/internal/model"

	"cloud.google.com/go/civil"
	"gopkg.in/yaml.v3"
)

var staffIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ShopSettingsConfig is the shop section of shop.yaml.
type ShopSettingsConfig struct {
	Timezone              string `yaml:"timezone"`
	OpenTime              string `yaml:"open_time,omitempty"`  // "09:00"
	CloseTime             string `yaml:"close_time,omitempty"` // "19:00"
	OpenDays              []int  `yaml:"open_days,omitempty"`  // 1=Mon, 7=Sun
	MaxBookingDaysAhead   *int   `yaml:"max_booking_days_ahead,omitempty"`
	MinHoursBeforeBooking *int   `yaml:"min_hours_before_booking,omitempty"`
	MaxConcurrentBookings *int   `yaml:"max_concurrent_bookings,omitempty"`
	MaxDailyBookings      *int   `yaml:"max_daily_bookings,omitempty"`
	SlotIntervalMinutes   *int   `yaml:"slot_interval_minutes,omitempty"`
}

// ClosureConfig is a closed date range.
type ClosureConfig struct {
	StartDate string `yaml:"start_date"` // "2026-12-31"
	EndDate   string `yaml:"end_date"`   // defaults to start_date
	Reason    string `yaml:"reason,omitempty"`
}

// DayRuleConfig overrides the weekly schedule for one weekday.
type DayRuleConfig struct {
	Day       int    `yaml:"day"` // 1=Mon, 7=Sun
	Working   bool   `yaml:"working"`
	StartTime string `yaml:"start_time,omitempty"`
	EndTime   string `yaml:"end_time,omitempty"`
}

// RecurringConfig is a standing weekly appointment.
type RecurringConfig struct {
	Day   int    `yaml:"day"`
	Time  string `yaml:"time"`
	Label string `yaml:"label,omitempty"`
}

// BreakoutConfig blocks part of the working time.
type BreakoutConfig struct {
	Type      string `yaml:"type"` // single, date_range, recurring
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time,omitempty"` // empty = until end of day
	StartDate string `yaml:"start_date,omitempty"`
	EndDate   string `yaml:"end_date,omitempty"`
	Day       int    `yaml:"day,omitempty"`
	Reason    string `yaml:"reason,omitempty"`
}

// StaffConfig represents a single staff member.
type StaffConfig struct {
	ID                    string            `yaml:"id"`
	Name                  string            `yaml:"name"`
	WorkingDays           []int             `yaml:"working_days,omitempty"`
	StartTime             string            `yaml:"start_time,omitempty"`
	EndTime               string            `yaml:"end_time,omitempty"`
	MinHoursBeforeBooking *int              `yaml:"min_hours_before_booking,omitempty"`
	DayRules              []DayRuleConfig   `yaml:"day_rules,omitempty"`
	Closures              []ClosureConfig   `yaml:"closures,omitempty"`
	Recurring             []RecurringConfig `yaml:"recurring,omitempty"`
	Breakouts             []BreakoutConfig  `yaml:"breakouts,omitempty"`
}

// ShopConfig is the root configuration for shop.yaml.
type ShopConfig struct {
	Shop     ShopSettingsConfig `yaml:"shop"`
	Closures []ClosureConfig    `yaml:"closures"`
	Staff    []StaffConfig      `yaml:"staff"`
}

// LoadShopConfig loads and validates shop configuration from YAML file.
func LoadShopConfig(path string) (*ShopConfig, error) {
	if path == "" {
		path = "configs/shop.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shop config: %w", err)
	}

	var cfg ShopConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse shop config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate shop config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *ShopConfig) Validate() error {
	s := c.Shop
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("shop.timezone: %w", err)
		}
	}
	if err := validateHours(s.OpenTime, s.CloseTime, "shop"); err != nil {
		return err
	}
	if err := validateDays(s.OpenDays, "shop.open_days"); err != nil {
		return err
	}
	for name, v := range map[string]*int{
		"max_booking_days_ahead":   s.MaxBookingDaysAhead,
		"min_hours_before_booking": s.MinHoursBeforeBooking,
		"max_concurrent_bookings":  s.MaxConcurrentBookings,
		"max_daily_bookings":       s.MaxDailyBookings,
		"slot_interval_minutes":    s.SlotIntervalMinutes,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("shop.%s cannot be negative", name)
		}
	}

	for i, cl := range c.Closures {
		if err := validateClosure(cl, fmt.Sprintf("closures[%d]", i)); err != nil {
			return err
		}
	}

	ids := make(map[string]bool)
	for i, st := range c.Staff {
		prefix := fmt.Sprintf("staff[%d]", i)
		if !staffIDPattern.MatchString(st.ID) {
			return fmt.Errorf("%s: invalid id '%s'", prefix, st.ID)
		}
		if ids[st.ID] {
			return fmt.Errorf("%s: duplicate id '%s'", prefix, st.ID)
		}
		ids[st.ID] = true

		if st.Name == "" {
			return fmt.Errorf("%s: name is required", prefix)
		}
		if err := validateDays(st.WorkingDays, prefix+".working_days"); err != nil {
			return err
		}
		if err := validateHours(st.StartTime, st.EndTime, prefix); err != nil {
			return err
		}
		if st.MinHoursBeforeBooking != nil && *st.MinHoursBeforeBooking < 0 {
			return fmt.Errorf("%s.min_hours_before_booking cannot be negative", prefix)
		}

		seenDays := make(map[int]bool)
		for j, r := range st.DayRules {
			rp := fmt.Sprintf("%s.day_rules[%d]", prefix, j)
			if r.Day < 1 || r.Day > 7 {
				return fmt.Errorf("%s: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", rp, r.Day)
			}
			if seenDays[r.Day] {
				return fmt.Errorf("%s: duplicate day %d", rp, r.Day)
			}
			seenDays[r.Day] = true
			if err := validateHours(r.StartTime, r.EndTime, rp); err != nil {
				return err
			}
		}

		for j, cl := range st.Closures {
			if err := validateClosure(cl, fmt.Sprintf("%s.closures[%d]", prefix, j)); err != nil {
				return err
			}
		}

		for j, r := range st.Recurring {
			rp := fmt.Sprintf("%s.recurring[%d]", prefix, j)
			if r.Day < 1 || r.Day > 7 {
				return fmt.Errorf("%s: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", rp, r.Day)
			}
			if _, err := model.ParseTimeOfDay(r.Time); err != nil {
				return fmt.Errorf("%s.time: invalid format '%s', expected HH:MM", rp, r.Time)
			}
		}

		for j, b := range st.Breakouts {
			if err := validateBreakout(b, fmt.Sprintf("%s.breakouts[%d]", prefix, j)); err != nil {
				return err
			}
		}
	}

	return nil
}

// validateHours accepts an empty pair or a complete pair with start before end.
func validateHours(start, end, prefix string) error {
	if start == "" && end == "" {
		return nil
	}
	if start == "" || end == "" {
		return fmt.Errorf("%s: start and end time must be set together", prefix)
	}
	s, err := model.ParseTimeOfDay(start)
	if err != nil {
		return fmt.Errorf("%s: invalid start time '%s', expected HH:MM", prefix, start)
	}
	e, err := model.ParseTimeOfDay(end)
	if err != nil {
		return fmt.Errorf("%s: invalid end time '%s', expected HH:MM", prefix, end)
	}
	if e <= s {
		return fmt.Errorf("%s: end time must be after start time", prefix)
	}
	return nil
}

func validateDays(days []int, prefix string) error {
	for i, d := range days {
		if d < 1 || d > 7 {
			return fmt.Errorf("%s[%d]: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", prefix, i, d)
		}
	}
	return nil
}

func validateClosure(c ClosureConfig, prefix string) error {
	start, err := civil.ParseDate(c.StartDate)
	if err != nil {
		return fmt.Errorf("%s: invalid start_date '%s', expected YYYY-MM-DD", prefix, c.StartDate)
	}
	if c.EndDate == "" {
		return nil
	}
	end, err := civil.ParseDate(c.EndDate)
	if err != nil {
		return fmt.Errorf("%s: invalid end_date '%s', expected YYYY-MM-DD", prefix, c.EndDate)
	}
	if end.Before(start) {
		return fmt.Errorf("%s: end_date must not be before start_date", prefix)
	}
	return nil
}

func validateBreakout(b BreakoutConfig, prefix string) error {
	start, err := model.ParseTimeOfDay(b.StartTime)
	if err != nil {
		return fmt.Errorf("%s: invalid start_time '%s', expected HH:MM", prefix, b.StartTime)
	}
	if b.EndTime != "" {
		end, err := model.ParseTimeOfDay(b.EndTime)
		if err != nil {
			return fmt.Errorf("%s: invalid end_time '%s', expected HH:MM", prefix, b.EndTime)
		}
		if end <= start {
			return fmt.Errorf("%s: end_time must be after start_time", prefix)
		}
	}

	switch b.Type {
	case model.BreakoutSingle:
		if _, err := civil.ParseDate(b.StartDate); err != nil {
			return fmt.Errorf("%s: single breakout needs start_date YYYY-MM-DD", prefix)
		}
	case model.BreakoutDateRange:
		return validateClosure(ClosureConfig{StartDate: b.StartDate, EndDate: b.EndDate}, prefix)
	case model.BreakoutRecurring:
		if b.Day < 1 || b.Day > 7 {
			return fmt.Errorf("%s: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", prefix, b.Day)
		}
	default:
		return fmt.Errorf("%s: unknown type '%s'", prefix, b.Type)
	}
	return nil
}

// Settings converts the shop section. The config must be valid.
func (c *ShopConfig) Settings() model.ShopSettings {
	s := c.Shop
	out := model.ShopSettings{
		Timezone:              s.Timezone,
		OpenTime:              timeOrNil(s.OpenTime),
		CloseTime:             timeOrNil(s.CloseTime),
		OpenDays:              weekdays(s.OpenDays),
		MaxBookingDaysAhead:   s.MaxBookingDaysAhead,
		MinHoursBeforeBooking: s.MinHoursBeforeBooking,
		MaxConcurrentBookings: s.MaxConcurrentBookings,
		MaxDailyBookings:      s.MaxDailyBookings,
		SlotIntervalMinutes:   s.SlotIntervalMinutes,
	}
	return out
}

// ShopClosures converts the shop-wide closures.
func (c *ShopConfig) ShopClosures() []model.ClosurePeriod {
	return closures("", c.Closures)
}

// Schedule converts a staff entry.
func (s *StaffConfig) Schedule() model.StaffSchedule {
	out := model.StaffSchedule{
		StaffID:               s.ID,
		Name:                  s.Name,
		WorkingDays:           weekdays(s.WorkingDays),
		StartTime:             timeOrNil(s.StartTime),
		EndTime:               timeOrNil(s.EndTime),
		MinHoursBeforeBooking: s.MinHoursBeforeBooking,
	}
	if len(s.DayRules) > 0 {
		out.DayRules = make(map[time.Weekday]model.DayRule, len(s.DayRules))
		for _, r := range s.DayRules {
			wd, _ := model.ISOWeekday(r.Day)
			out.DayRules[wd] = model.DayRule{
				IsWorking: r.Working,
				StartTime: timeOrNil(r.StartTime),
				EndTime:   timeOrNil(r.EndTime),
			}
		}
	}
	return out
}

// StaffClosures converts the staff closures.
func (s *StaffConfig) StaffClosures() []model.ClosurePeriod {
	return closures(s.ID, s.Closures)
}

// RecurringAppointments converts the standing appointments.
func (s *StaffConfig) RecurringAppointments() []model.RecurringAppointment {
	out := make([]model.RecurringAppointment, 0, len(s.Recurring))
	for _, r := range s.Recurring {
		wd, _ := model.ISOWeekday(r.Day)
		at, _ := model.ParseTimeOfDay(r.Time)
		out = append(out, model.RecurringAppointment{
			StaffID:       s.ID,
			Weekday:       wd,
			Time:          at,
			CustomerLabel: r.Label,
		})
	}
	return out
}

// BreakoutList converts the breakouts. Configured breakouts are always active.
func (s *StaffConfig) BreakoutList() []model.Breakout {
	out := make([]model.Breakout, 0, len(s.Breakouts))
	for _, b := range s.Breakouts {
		start, _ := model.ParseTimeOfDay(b.StartTime)
		mb := model.Breakout{
			StaffID:   s.ID,
			Type:      b.Type,
			StartTime: start,
			EndTime:   timeOrNil(b.EndTime),
			StartDate: dateOrNil(b.StartDate),
			EndDate:   dateOrNil(b.EndDate),
			IsActive:  true,
			Reason:    b.Reason,
		}
		if b.Type == model.BreakoutRecurring {
			mb.Weekday, _ = model.ISOWeekday(b.Day)
		}
		out = append(out, mb)
	}
	return out
}

// GetStaffByID returns staff config by ID.
func (c *ShopConfig) GetStaffByID(id string) *StaffConfig {
	for i := range c.Staff {
		if c.Staff[i].ID == id {
			return &c.Staff[i]
		}
	}
	return nil
}

// String returns a summary of the configuration.
func (c *ShopConfig) String() string {
	return fmt.Sprintf("ShopConfig: %d staff, %d shop closures", len(c.Staff), len(c.Closures))
}

func closures(staffID string, in []ClosureConfig) []model.ClosurePeriod {
	out := make([]model.ClosurePeriod, 0, len(in))
	for _, cl := range in {
		start, _ := civil.ParseDate(cl.StartDate)
		end := start
		if cl.EndDate != "" {
			end, _ = civil.ParseDate(cl.EndDate)
		}
		out = append(out, model.ClosurePeriod{
			StaffID:   staffID,
			StartDate: start,
			EndDate:   end,
			Reason:    cl.Reason,
		})
	}
	return out
}

// weekdays keeps nil distinct from an explicit empty list.
func weekdays(days []int) []time.Weekday {
	if days == nil {
		return nil
	}
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if wd, ok := model.ISOWeekday(d); ok {
			out = append(out, wd)
		}
	}
	return out
}

func timeOrNil(s string) *model.TimeOfDay {
	if s == "" {
		return nil
	}
	t, err := model.ParseTimeOfDay(s)
	if err != nil {
		return nil
	}
	return &t
}

func dateOrNil(s string) *civil.Date {
	if s == "" {
		return nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return nil
	}
	return &d
}
