package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"barbershop/internal/cache"
	"barbershop/internal/metrics"
	"barbershop/internal/model"

	"cloud.google.com/go/civil"
)

// AdminStore backs the staff, blocklist and ad-hoc constraint endpoints.
// Closures and breakouts edited here last until the next shop.yaml sync.
type AdminStore interface {
	ListActiveStaffIDs(ctx context.Context) ([]string, error)
	ListBlockedCustomers(ctx context.Context) ([]model.BlockedCustomer, error)
	GetBlockedCustomer(ctx context.Context, customerID string) (*model.BlockedCustomer, error)
	BlockCustomer(ctx context.Context, customerID, reason, blockedBy string) error
	UnblockCustomer(ctx context.Context, customerID string) error
	ListClosures(ctx context.Context, staffID string) ([]model.ClosurePeriod, error)
	AddClosure(ctx context.Context, c model.ClosurePeriod) (int64, error)
	DeleteClosure(ctx context.Context, id int64) error
	SetBreakoutActive(ctx context.Context, id int64, active bool) error
}

// BlockRequest is the body of PUT /api/v1/customers/{customerID}/block.
type BlockRequest struct {
	Reason    string `json:"reason,omitempty"`
	BlockedBy string `json:"blockedBy,omitempty"`
}

// ClosureRequest is the body of POST /api/v1/closures. An empty staffId
// closes the whole shop.
type ClosureRequest struct {
	StaffID   string `json:"staffId,omitempty"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (s *HTTPServer) registerAdmin(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/staff", s.handleListStaff)
	mux.HandleFunc("GET /api/v1/customers/blocked", s.handleListBlocked)
	mux.HandleFunc("GET /api/v1/customers/{customerID}/block", s.handleGetBlock)
	mux.HandleFunc("PUT /api/v1/customers/{customerID}/block", s.handleBlock)
	mux.HandleFunc("DELETE /api/v1/customers/{customerID}/block", s.handleUnblock)
	mux.HandleFunc("GET /api/v1/closures", s.handleListClosures)
	mux.HandleFunc("POST /api/v1/closures", s.handleAddClosure)
	mux.HandleFunc("DELETE /api/v1/closures/{id}", s.handleDeleteClosure)
	mux.HandleFunc("PUT /api/v1/breakouts/{id}/active", s.handleSetBreakoutActive)
}

// GET /api/v1/staff
func (s *HTTPServer) handleListStaff(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_staff")
	ids, err := s.deps.Admin.ListActiveStaffIDs(r.Context())
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": ids})
}

// GET /api/v1/customers/blocked
func (s *HTTPServer) handleListBlocked(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_blocked")
	list, err := s.deps.Admin.ListBlockedCustomers(r.Context())
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	if list == nil {
		list = []model.BlockedCustomer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": list})
}

// GET /api/v1/customers/{customerID}/block
func (s *HTTPServer) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_block")
	bc, err := s.deps.Admin.GetBlockedCustomer(r.Context(), r.PathValue("customerID"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	if bc == nil {
		writeError(w, http.StatusNotFound, "customer is not blocked")
		return
	}
	writeJSON(w, http.StatusOK, bc)
}

// PUT /api/v1/customers/{customerID}/block
func (s *HTTPServer) handleBlock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("block_customer")
	customerID := r.PathValue("customerID")
	if len(customerID) > 64 {
		writeError(w, http.StatusBadRequest, "invalid customer id")
		return
	}
	var req BlockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.deps.Admin.BlockCustomer(r.Context(), customerID, req.Reason, req.BlockedBy); err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.logger.Info().Str("customer_id", customerID).Str("blocked_by", req.BlockedBy).Msg("customer blocked")
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/customers/{customerID}/block
func (s *HTTPServer) handleUnblock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("unblock_customer")
	customerID := r.PathValue("customerID")
	if err := s.deps.Admin.UnblockCustomer(r.Context(), customerID); err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.logger.Info().Str("customer_id", customerID).Msg("customer unblocked")
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/closures?staffId=
func (s *HTTPServer) handleListClosures(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_closures")
	list, err := s.deps.Admin.ListClosures(r.Context(), r.URL.Query().Get("staffId"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	if list == nil {
		list = []model.ClosurePeriod{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"closures": list})
}

// POST /api/v1/closures
func (s *HTTPServer) handleAddClosure(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("add_closure")
	var req ClosureRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start, err := civil.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid startDate; expected YYYY-MM-DD")
		return
	}
	end := start
	if req.EndDate != "" {
		if end, err = civil.ParseDate(req.EndDate); err != nil {
			writeError(w, http.StatusBadRequest, "invalid endDate; expected YYYY-MM-DD")
			return
		}
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "endDate is before startDate")
		return
	}

	c := model.ClosurePeriod{StaffID: req.StaffID, StartDate: start, EndDate: end, Reason: req.Reason}
	if c.ID, err = s.deps.Admin.AddClosure(r.Context(), c); err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.invalidate(r.Context(), c.StaffID, "closure added")
	writeJSON(w, http.StatusCreated, c)
}

// DELETE /api/v1/closures/{id}
func (s *HTTPServer) handleDeleteClosure(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("delete_closure")
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Admin.DeleteClosure(r.Context(), id); err != nil {
		s.writeConstraintError(w, err)
		return
	}
	s.invalidate(r.Context(), "", "closure deleted")
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/v1/breakouts/{id}/active
func (s *HTTPServer) handleSetBreakoutActive(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("breakout_active")
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.deps.Admin.SetBreakoutActive(r.Context(), id, req.Active); err != nil {
		s.writeConstraintError(w, err)
		return
	}
	s.invalidate(r.Context(), "", "breakout toggled")
	w.WriteHeader(http.StatusNoContent)
}

// invalidate broadcasts a constraint change. A failed publish is only logged:
// the write already happened and cached snapshots expire on their own.
func (s *HTTPServer) invalidate(ctx context.Context, staffID, reason string) {
	inv := cache.Invalidation{StaffID: staffID, Reason: reason, At: s.now()}
	if err := s.deps.Notifier.Publish(ctx, inv); err != nil {
		s.logger.Error().Err(err).Str("reason", reason).Msg("failed to publish invalidation")
	}
}

func (s *HTTPServer) writeConstraintError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrConstraintNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.writeLookupError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
