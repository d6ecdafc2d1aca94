package reservation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"barbershop/internal/model"

	"cloud.google.com/go/civil"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

const (
	minNameLen   = 2
	maxNameLen   = 100
	minPhoneLen  = 10
	maxPhoneLen  = 15
	maxReasonLen = 500
)

// Input is a create request as received from a client.
type Input struct {
	StaffID       string `json:"staffId"`
	ServiceID     string `json:"serviceId"`
	CustomerID    string `json:"customerId,omitempty"`
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	Date          string `json:"date"` // YYYY-MM-DD
	Time          string `json:"time"` // HH:MM
}

// validated is Input after normalisation.
type validated struct {
	staffID    string
	serviceID  string
	customerID string
	name       string
	phone      string
	key        model.SlotKey
}

func validate(in Input) (validated, error) {
	var v validated

	if !idPattern.MatchString(in.StaffID) {
		return v, validationError("staffId", "invalid staff id")
	}
	if !idPattern.MatchString(in.ServiceID) {
		return v, validationError("serviceId", "invalid service id")
	}
	if in.CustomerID != "" && !idPattern.MatchString(in.CustomerID) {
		return v, validationError("customerId", "invalid customer id")
	}

	name, err := normalizeName(in.CustomerName)
	if err != nil {
		return v, err
	}
	phone, err := NormalizePhone(in.CustomerPhone)
	if err != nil {
		return v, err
	}

	if strings.TrimSpace(in.Date) == "" {
		return v, validationError("date", "date is required")
	}
	if strings.TrimSpace(in.Time) == "" {
		return v, validationError("time", "time is required")
	}
	date, err := civil.ParseDate(strings.TrimSpace(in.Date))
	if err != nil {
		return v, validationError("date", "date must be YYYY-MM-DD")
	}
	tod, err := model.ParseTimeOfDay(strings.TrimSpace(in.Time))
	if err != nil {
		return v, validationError("time", "time must be HH:MM")
	}

	v.staffID = in.StaffID
	v.serviceID = in.ServiceID
	v.customerID = in.CustomerID
	v.name = name
	v.phone = phone
	v.key = model.SlotKey{Date: date, Time: tod}
	return v, nil
}

func normalizeName(s string) (string, error) {
	name := strings.Join(strings.Fields(s), " ")
	n := utf8.RuneCountInString(name)
	if n < minNameLen || n > maxNameLen {
		return "", validationError("customerName", "name must be 2 to 100 characters")
	}
	return name, nil
}

// NormalizePhone strips formatting from a phone number and returns its
// digits. A leading "+" and the usual separators are accepted.
func NormalizePhone(s string) (string, error) {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case unicode.IsDigit(r) && r < utf8.RuneSelf:
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", validationError("customerPhone", "phone contains invalid characters")
		}
	}
	digits := b.String()
	if len(digits) < minPhoneLen || len(digits) > maxPhoneLen {
		return "", validationError("customerPhone", "phone must have 10 to 15 digits")
	}
	return digits, nil
}

func validatePatch(p model.ReservationPatch) (model.ReservationPatch, error) {
	if p.ServiceID != nil && !idPattern.MatchString(*p.ServiceID) {
		return p, validationError("serviceId", "invalid service id")
	}
	if p.CustomerName != nil {
		name, err := normalizeName(*p.CustomerName)
		if err != nil {
			return p, err
		}
		p.CustomerName = &name
	}
	if p.CustomerPhone != nil {
		phone, err := NormalizePhone(*p.CustomerPhone)
		if err != nil {
			return p, err
		}
		p.CustomerPhone = &phone
	}
	if p.Status != nil && *p.Status != model.StatusCompleted && *p.Status != model.StatusCancelled {
		return p, validationError("status", "status can only change to completed or cancelled")
	}
	if p.CancelledBy != nil && !validCancelledBy(*p.CancelledBy) {
		return p, validationError("cancelledBy", "unknown cancelled_by")
	}
	if p.CancellationReason != nil && utf8.RuneCountInString(*p.CancellationReason) > maxReasonLen {
		return p, validationError("cancellationReason", "reason is too long")
	}
	return p, nil
}

func validCancelledBy(s string) bool {
	switch s {
	case model.CancelledByCustomer, model.CancelledByBarber, model.CancelledBySystem:
		return true
	}
	return false
}
