package slots

import (
	"time"

	"barbershop/internal/model"
)

// Status is the classification of a candidate slot.
type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusRecurring Status = "recurring"
	StatusBreakout  Status = "breakout"
	StatusTooSoon   Status = "too_soon"
)

// ClassifiedSlot is a candidate slot with its classification.
type ClassifiedSlot struct {
	Key    model.SlotKey `json:"key"`
	At     time.Time     `json:"at"`
	Status Status        `json:"status"`
	Label  string        `json:"label,omitempty"`
}

// ClassifyInput holds everything Classify needs. Reservations, Recurring and
// Breakouts may contain entries for other staff members; they are filtered.
type ClassifyInput struct {
	StaffID      string
	Slots        []time.Time
	Reservations []model.Reservation
	Recurring    []model.RecurringAppointment
	Breakouts    []model.Breakout
	MinLead      time.Duration
	Interval     int
	Now          time.Time
	Location     *time.Location
}

// Classify annotates every slot. Per slot the first matching rule wins:
// reserved, recurring, breakout, too soon, available. Slot identity is always
// compared on the canonical SlotKey.
func Classify(in ClassifyInput) []ClassifiedSlot {
	loc := in.Location
	if loc == nil {
		loc = time.Local
	}
	interval := in.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	width := time.Duration(interval) * time.Minute

	reserved := make(map[model.SlotKey]struct{}, len(in.Reservations))
	for i := range in.Reservations {
		r := &in.Reservations[i]
		if r.StaffID != in.StaffID || !r.IsConfirmed() {
			continue
		}
		reserved[r.SlotKey] = struct{}{}
	}

	cutoff := in.Now.Add(in.MinLead)

	result := make([]ClassifiedSlot, 0, len(in.Slots))
	for _, at := range in.Slots {
		key := model.KeyOf(at, loc)
		start := key.Time
		end := start.Add(width)

		cs := ClassifiedSlot{Key: key, At: at, Status: StatusAvailable}
		if _, ok := reserved[key]; ok {
			cs.Status = StatusReserved
		} else if ra, ok := matchRecurring(in.Recurring, in.StaffID, key, start, end, width); ok {
			cs.Status, cs.Label = StatusRecurring, ra.CustomerLabel
		} else if b, ok := matchBreakout(in.Breakouts, in.StaffID, key, start, end); ok {
			cs.Status, cs.Label = StatusBreakout, b.Reason
		} else if at.Before(cutoff) {
			cs.Status = StatusTooSoon
		}
		result = append(result, cs)
	}
	return result
}

func matchRecurring(list []model.RecurringAppointment, staffID string, key model.SlotKey, start, end model.TimeOfDay, width time.Duration) (model.RecurringAppointment, bool) {
	wd := model.Weekday(key.Date)
	for _, ra := range list {
		if ra.StaffID != staffID || ra.Weekday != wd {
			continue
		}
		if ra.Time < end && start < ra.Time.Add(width) {
			return ra, true
		}
	}
	return model.RecurringAppointment{}, false
}

func matchBreakout(list []model.Breakout, staffID string, key model.SlotKey, start, end model.TimeOfDay) (model.Breakout, bool) {
	for _, b := range list {
		if b.StaffID != staffID || !b.AppliesOn(key.Date) {
			continue
		}
		if b.Covers(start, end) {
			return b, true
		}
	}
	return model.Breakout{}, false
}

// SlotInfo is a simplified representation for the UI.
type SlotInfo struct {
	Key    string `json:"key"`
	Start  string `json:"start"` // "10:00"
	End    string `json:"end"`   // "10:30"
	Status Status `json:"status"`
	Label  string `json:"label,omitempty"`
}

// ToSlotInfo converts classified slots for the UI.
func ToSlotInfo(slots []ClassifiedSlot, interval int) []SlotInfo {
	if interval <= 0 {
		interval = DefaultInterval
	}
	result := make([]SlotInfo, len(slots))
	for i, s := range slots {
		result[i] = SlotInfo{
			Key:    s.Key.String(),
			Start:  s.Key.Time.String(),
			End:    s.Key.Time.Add(time.Duration(interval) * time.Minute).String(),
			Status: s.Status,
			Label:  s.Label,
		}
	}
	return result
}

// AvailableOnly returns only available slots.
func AvailableOnly(slots []ClassifiedSlot) []ClassifiedSlot {
	var available []ClassifiedSlot
	for _, s := range slots {
		if s.Status == StatusAvailable {
			available = append(available, s)
		}
	}
	return available
}

// Summary counts slots per status.
func Summary(slots []ClassifiedSlot) map[Status]int {
	counts := make(map[Status]int, 5)
	for _, s := range slots {
		counts[s.Status]++
	}
	return counts
}
