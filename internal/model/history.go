package model

import "time"

// HistoryEntry is one recorded change of a reservation.
type HistoryEntry struct {
	ID            int64     `json:"id"`
	EventID       string    `json:"eventId"`
	ReservationID string    `json:"reservationId"`
	EventType     string    `json:"eventType"`
	Status        string    `json:"status"`
	Version       int64     `json:"version"`
	Actor         string    `json:"actor,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	RecordedAt    time.Time `json:"recordedAt"`
}
