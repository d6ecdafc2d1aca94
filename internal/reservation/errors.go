package reservation

import (
	"context"
	"errors"
	"fmt"

	"barbershop/internal/model"
)

// Code is a stable, client-facing error code.
type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeSlotTaken       Code = "SLOT_ALREADY_TAKEN"
	CodeDoubleBooking   Code = "CUSTOMER_DOUBLE_BOOKING"
	CodeMaxBookings     Code = "MAX_BOOKINGS_REACHED"
	CodeCustomerBlocked Code = "CUSTOMER_BLOCKED"
	CodeDateOutOfRange  Code = "DATE_OUT_OF_RANGE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeTransient       Code = "TRANSIENT_ERROR"
	CodeDatabase        Code = "DATABASE_ERROR"
	CodeUnknown         Code = "UNKNOWN_ERROR"
)

// Kind groups codes by how a caller should react.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindTransient
	KindDatabase
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindDatabase:
		return "database"
	default:
		return "unknown"
	}
}

var messages = map[Code]string{
	CodeValidation:      "The booking details are invalid.",
	CodeSlotTaken:       "This time slot has just been booked. Please choose another time.",
	CodeDoubleBooking:   "You already have a booking at this time.",
	CodeMaxBookings:     "You have reached the maximum number of bookings.",
	CodeCustomerBlocked: "Your account cannot make new bookings. Please contact the shop.",
	CodeDateOutOfRange:  "This date is outside the booking window.",
	CodeNotFound:        "Reservation not found.",
	CodeTransient:       "The service is busy. Please try again.",
	CodeDatabase:        "Could not save the booking. Please try again later.",
	CodeUnknown:         "Something went wrong. Please try again later.",
}

// Message returns the user-facing message for code. Unknown codes get the
// generic message.
func Message(code Code) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return messages[CodeUnknown]
}

// KindOf returns the kind of code.
func KindOf(code Code) Kind {
	switch code {
	case CodeValidation:
		return KindValidation
	case CodeSlotTaken, CodeDoubleBooking, CodeMaxBookings, CodeCustomerBlocked, CodeDateOutOfRange:
		return KindConflict
	case CodeNotFound:
		return KindNotFound
	case CodeTransient:
		return KindTransient
	case CodeDatabase:
		return KindDatabase
	default:
		return KindUnknown
	}
}

// Error is a classified reservation failure.
type Error struct {
	Code    Code
	Message string
	Field   string // set for validation errors
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = Message(e.Code)
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(field, msg string) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: msg}
}

// storageError marks a failure of the reservation store that is not one of
// the known domain errors.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) || isDomainErr(err) {
		return err
	}
	return &Error{Code: CodeDatabase, Err: fmt.Errorf("%s: %w", op, err)}
}

var sentinelCodes = []struct {
	err  error
	code Code
}{
	{model.ErrCustomerBlocked, CodeCustomerBlocked},
	{model.ErrMaxBookingsReached, CodeMaxBookings},
	{model.ErrSlotAlreadyTaken, CodeSlotTaken},
	{model.ErrCustomerDoubleBooking, CodeDoubleBooking},
	{model.ErrDateOutOfRange, CodeDateOutOfRange},
	{model.ErrSlotNotOnGrid, CodeValidation},
	{model.ErrReservationNotFound, CodeNotFound},
	{model.ErrStaffNotFound, CodeNotFound},
	{model.ErrTransient, CodeTransient},
}

func isDomainErr(err error) bool {
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return true
		}
	}
	return false
}

// CodeOf classifies any error. Nil maps to the empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTransient
	}
	return CodeUnknown
}

// IsRetryable reports whether err may succeed on a later attempt.
func IsRetryable(err error) bool {
	return CodeOf(err) == CodeTransient
}
