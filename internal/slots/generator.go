package slots

import (
	"time"

	"barbershop/internal/model"

	"cloud.google.com/go/civil"
)

// DefaultInterval is the slot width in minutes.
const DefaultInterval = 30

// Generate returns slot instants on date's calendar day, one every interval
// minutes from start, strictly before end. Instants are built from wall-clock
// components in date's location so DST days keep their local grid.
func Generate(date time.Time, startHour, startMinute, endHour, endMinute, intervalMinutes int) []time.Time {
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultInterval
	}

	start := startHour*60 + startMinute
	end := endHour*60 + endMinute
	if end <= start {
		return nil
	}

	y, m, d := date.Date()
	loc := date.Location()

	slots := make([]time.Time, 0, (end-start+intervalMinutes-1)/intervalMinutes)
	for minute := start; minute < end; minute += intervalMinutes {
		slots = append(slots, time.Date(y, m, d, minute/60, minute%60, 0, 0, loc))
	}
	return slots
}

// GenerateWindow is Generate for a civil date and a TimeOfDay window.
func GenerateWindow(date civil.Date, loc *time.Location, start, end model.TimeOfDay, intervalMinutes int) []time.Time {
	return Generate(date.In(loc), start.Hour(), start.Minute(), end.Hour(), end.Minute(), intervalMinutes)
}
