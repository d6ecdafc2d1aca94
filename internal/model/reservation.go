package model

import (
	"time"

	"cloud.google.com/go/civil"
)

// Reservation statuses.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Who cancelled a reservation.
const (
	CancelledByCustomer = "customer"
	CancelledByBarber   = "barber"
	CancelledBySystem   = "system"
)

// Reservation is a booked slot with a staff member.
type Reservation struct {
	ID                 string    `json:"id"`
	StaffID            string    `json:"staffId"`
	ServiceID          string    `json:"serviceId"`
	CustomerID         string    `json:"customerId,omitempty"` // empty for walk-ins
	CustomerName       string    `json:"customerName"`
	CustomerPhone      string    `json:"customerPhone"`
	SlotKey            SlotKey   `json:"slotKey"`
	DateTimestamp      time.Time `json:"dateTimestamp"`
	TimeTimestamp      time.Time `json:"timeTimestamp"`
	DayName            string    `json:"dayName"`
	DayNum             int       `json:"dayNum"`
	Status             string    `json:"status"`
	CancelledBy        string    `json:"cancelledBy,omitempty"`
	CancellationReason string    `json:"cancellationReason,omitempty"`
	Version            int64     `json:"version"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// IsConfirmed reports whether the reservation still holds its slot.
func (r *Reservation) IsConfirmed() bool {
	return r.Status == StatusConfirmed
}

// ReservationPatch lists the mutable fields of a reservation. Nil fields are
// left untouched.
type ReservationPatch struct {
	ServiceID          *string `json:"serviceId,omitempty"`
	CustomerName       *string `json:"customerName,omitempty"`
	CustomerPhone      *string `json:"customerPhone,omitempty"`
	Status             *string `json:"status,omitempty"`
	CancelledBy        *string `json:"cancelledBy,omitempty"`
	CancellationReason *string `json:"cancellationReason,omitempty"`
}

// ApplyTo copies the set fields of p onto r.
func (p ReservationPatch) ApplyTo(r *Reservation) {
	if p.ServiceID != nil {
		r.ServiceID = *p.ServiceID
	}
	if p.CustomerName != nil {
		r.CustomerName = *p.CustomerName
	}
	if p.CustomerPhone != nil {
		r.CustomerPhone = *p.CustomerPhone
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.CancelledBy != nil {
		r.CancelledBy = *p.CancelledBy
	}
	if p.CancellationReason != nil {
		r.CancellationReason = *p.CancellationReason
	}
}

// IsEmpty reports whether the patch changes nothing.
func (p ReservationPatch) IsEmpty() bool {
	return p.ServiceID == nil && p.CustomerName == nil && p.CustomerPhone == nil &&
		p.Status == nil && p.CancelledBy == nil && p.CancellationReason == nil
}

// CustomerCounts are the confirmed future reservations of one customer.
type CustomerCounts struct {
	Future int `json:"future"`
	OnDay  int `json:"onDay"`
}

// CreateGuard carries the limits re-checked inside the create transaction.
type CreateGuard struct {
	// Shop feeds the slot grid check; nil means built-in defaults.
	Shop                  *ShopSettings
	Now                   time.Time
	LastBookableDay       civil.Date
	MaxConcurrentBookings int
	MaxDailyBookings      int
}
