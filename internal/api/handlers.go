package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"barbershop/internal/cache"
	"barbershop/internal/metrics"
	"barbershop/internal/model"
	"barbershop/internal/reservation"
	"barbershop/internal/schedule"

	"cloud.google.com/go/civil"
)

// CreateReservationResponse is the response of POST /api/v1/reservations.
type CreateReservationResponse struct {
	Success       bool               `json:"success"`
	ReservationID string             `json:"reservationId,omitempty"`
	Reservation   *model.Reservation `json:"reservation,omitempty"`
	ErrorCode     reservation.Code   `json:"errorCode,omitempty"`
	Message       string             `json:"message,omitempty"`
	Field         string             `json:"field,omitempty"`
}

// CancelRequest is the body of POST /api/v1/reservations/{id}/cancel.
type CancelRequest struct {
	CancelledBy     string `json:"cancelledBy"`
	Reason          string `json:"reason,omitempty"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// UpdateRequest is the body of PATCH /api/v1/reservations/{id}.
type UpdateRequest struct {
	model.ReservationPatch
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// WorkHoursResponse is the response of GET .../work-hours.
type WorkHoursResponse struct {
	StaffID string         `json:"staffId"`
	Date    civil.Date     `json:"date"`
	Hours   schedule.Hours `json:"hours"`
}

// InvalidateRequest is the body of POST /api/v1/constraints/invalidate.
type InvalidateRequest struct {
	StaffID string `json:"staffId,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// GET /api/v1/staff/{staffID}/availability?date=YYYY-MM-DD
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")
	date, ok := requiredDate(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Engine.DateAvailability(r.Context(), r.PathValue("staffID"), date)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/v1/staff/{staffID}/work-hours?date=YYYY-MM-DD
func (s *HTTPServer) handleWorkHours(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("work_hours")
	date, ok := requiredDate(w, r)
	if !ok {
		return
	}
	staffID := r.PathValue("staffID")
	hours, err := s.deps.Engine.WorkHours(r.Context(), staffID, date)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WorkHoursResponse{StaffID: staffID, Date: date, Hours: hours})
}

// GET /api/v1/staff/{staffID}/slots?date=YYYY-MM-DD
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")
	date, ok := requiredDate(w, r)
	if !ok {
		return
	}
	day, err := s.deps.Engine.DaySlots(r.Context(), r.PathValue("staffID"), date)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

// GET /api/v1/customers/{customerID}/eligibility?date=YYYY-MM-DD
func (s *HTTPServer) handleEligibility(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("eligibility")
	var date civil.Date
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := civil.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
		date = d
	}
	res, err := s.deps.Eligibility.Check(r.Context(), r.PathValue("customerID"), date)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/v1/customers/{customerID}/reservations
func (s *HTTPServer) handleCustomerReservations(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("customer_reservations")
	list, err := s.deps.Customers.ListCustomerReservations(r.Context(), r.PathValue("customerID"), s.now())
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	if list == nil {
		list = []model.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": list})
}

// POST /api/v1/reservations
func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_reservation")

	var in reservation.Input
	if !decodeBody(w, r, &in) {
		return
	}

	res, err := s.deps.Reservations.Create(r.Context(), in)
	if err != nil {
		code := reservation.CodeOf(err)
		resp := CreateReservationResponse{
			Success:   false,
			ErrorCode: code,
			Message:   reservation.Message(code),
		}
		var re *reservation.Error
		if errors.As(err, &re) && re.Code == reservation.CodeValidation {
			resp.Field = re.Field
			if re.Message != "" {
				resp.Message = re.Message
			}
		}
		writeJSON(w, statusFor(code), resp)
		return
	}

	writeJSON(w, http.StatusCreated, CreateReservationResponse{
		Success:       true,
		ReservationID: res.ID,
		Reservation:   res,
	})
}

// GET /api/v1/reservations/{id}
func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_reservation")
	res, err := s.deps.Reservations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeReservationError(w, err)
		return
	}
	if res == nil {
		s.writeReservationError(w, model.ErrReservationNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/v1/reservations/{id}/cancel
func (s *HTTPServer) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel_reservation")
	var req CancelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := s.deps.Reservations.Cancel(r.Context(), r.PathValue("id"), req.CancelledBy, req.Reason, req.ExpectedVersion)
	if err != nil {
		s.writeReservationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// PATCH /api/v1/reservations/{id}
func (s *HTTPServer) handleUpdateReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("update_reservation")
	var req UpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := s.deps.Reservations.Update(r.Context(), r.PathValue("id"), req.ReservationPatch, req.ExpectedVersion)
	if err != nil {
		s.writeReservationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/reservations/{id}/history
func (s *HTTPServer) handleReservationHistory(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservation_history")
	history, err := s.deps.History.ListHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	if len(history) == 0 {
		s.writeReservationError(w, model.ErrReservationNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// POST /api/v1/constraints/invalidate
func (s *HTTPServer) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("invalidate")
	var req InvalidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "api"
	}
	inv := cache.Invalidation{StaffID: req.StaffID, Reason: req.Reason, At: s.now()}
	if err := s.deps.Notifier.Publish(r.Context(), inv); err != nil {
		s.logger.Error().Err(err).Msg("failed to publish invalidation")
		writeError(w, http.StatusServiceUnavailable, "could not publish invalidation")
		return
	}
	writeJSON(w, http.StatusAccepted, inv)
}

func (s *HTTPServer) writeReservationError(w http.ResponseWriter, err error) {
	code := reservation.CodeOf(err)
	if k := reservation.KindOf(code); k != reservation.KindValidation && k != reservation.KindNotFound {
		s.logger.Error().Err(err).Str("code", string(code)).Msg("reservation request failed")
	}
	msg := reservation.Message(code)
	var re *reservation.Error
	if errors.As(err, &re) && re.Code == reservation.CodeValidation && re.Message != "" {
		msg = re.Message
	}
	writeJSON(w, statusFor(code), map[string]any{
		"success":   false,
		"errorCode": code,
		"message":   msg,
	})
}

func (s *HTTPServer) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrStaffNotFound) {
		writeError(w, http.StatusNotFound, "staff not found")
		return
	}
	s.logger.Error().Err(err).Msg("lookup failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func statusFor(code reservation.Code) int {
	switch reservation.KindOf(code) {
	case reservation.KindValidation:
		return http.StatusBadRequest
	case reservation.KindConflict:
		return http.StatusConflict
	case reservation.KindNotFound:
		return http.StatusNotFound
	case reservation.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func requiredDate(w http.ResponseWriter, r *http.Request) (civil.Date, bool) {
	v := r.URL.Query().Get("date")
	if v == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return civil.Date{}, false
	}
	d, err := civil.ParseDate(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return civil.Date{}, false
	}
	return d, true
}

const maxBodyBytes = 64 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
