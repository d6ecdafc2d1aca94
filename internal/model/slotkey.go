package model

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// SlotKey is the canonical identity of a slot: civil date and wall-clock
// time in the shop timezone. Two instants denote the same slot iff their
// keys are equal.
type SlotKey struct {
	Date civil.Date
	Time TimeOfDay
}

// KeyOf computes the key of instant t as seen in loc.
func KeyOf(t time.Time, loc *time.Location) SlotKey {
	local := t.In(loc)
	return SlotKey{Date: civil.DateOf(local), Time: TimeOfDayOf(local)}
}

// ParseSlotKey parses the "2006-01-02T15:04" form.
func ParseSlotKey(s string) (SlotKey, error) {
	datePart, timePart, ok := strings.Cut(s, "T")
	if !ok {
		return SlotKey{}, fmt.Errorf("invalid slot key %q", s)
	}
	d, err := civil.ParseDate(datePart)
	if err != nil {
		return SlotKey{}, fmt.Errorf("invalid slot key %q: %w", s, err)
	}
	t, err := ParseTimeOfDay(timePart)
	if err != nil {
		return SlotKey{}, fmt.Errorf("invalid slot key %q: %w", s, err)
	}
	return SlotKey{Date: d, Time: t}, nil
}

func (k SlotKey) String() string {
	return k.Date.String() + "T" + k.Time.String()
}

// In returns the instant of the slot in loc.
func (k SlotKey) In(loc *time.Location) time.Time {
	return k.Time.On(k.Date, loc)
}

func (k SlotKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *SlotKey) UnmarshalText(b []byte) error {
	v, err := ParseSlotKey(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
