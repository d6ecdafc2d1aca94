package model

import "errors"

var (
	ErrCustomerBlocked       = errors.New("customer is blocked")
	ErrMaxBookingsReached    = errors.New("booking limit reached")
	ErrSlotAlreadyTaken      = errors.New("slot already taken")
	ErrCustomerDoubleBooking = errors.New("customer already booked at this time")
	ErrDateOutOfRange        = errors.New("date is outside the booking window")
	ErrSlotNotOnGrid         = errors.New("time is not a bookable slot")
	ErrReservationNotFound   = errors.New("reservation not found")
	ErrStaffNotFound         = errors.New("staff not found")
	ErrConstraintNotFound    = errors.New("constraint not found")

	// ErrTransient marks storage failures that may succeed on retry.
	ErrTransient = errors.New("transient storage failure")
)
