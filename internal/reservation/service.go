// Package reservation creates and mutates reservations. Creation re-checks
// every booking rule authoritatively in the store; later changes use
// optimistic concurrency on the reservation version.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"barbershop/internal/availability"
	"barbershop/internal/events"
	"barbershop/internal/metrics"
	"barbershop/internal/model"
	"barbershop/internal/schedule"

	"github.com/rs/zerolog"
)

// Store is the persistence the service depends on.
type Store interface {
	GetShopSettings(ctx context.Context) (*model.ShopSettings, error)
	CreateReservation(ctx context.Context, r *model.Reservation, g model.CreateGuard) error
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	UpdateReservationWithVersion(ctx context.Context, id string, version int64, patch model.ReservationPatch, now time.Time) (bool, error)
}

// Publisher receives reservation events.
type Publisher interface {
	PublishJSON(eventType string, payload any) error
}

// Outcome is the result of a versioned write. Changed is false when the
// expected version was stale or the reservation was no longer confirmed;
// Reservation then holds the current stored state.
type Outcome struct {
	Changed     bool               `json:"updated"`
	Reservation *model.Reservation `json:"reservation,omitempty"`
}

// Service implements reservation use cases.
type Service struct {
	store     Store
	loc       *time.Location
	now       func() time.Time
	retry     RetryConfig
	publisher Publisher
	logger    zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetry overrides the transient retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(s *Service) {
		s.retry = cfg
	}
}

// WithPublisher sends reservation events to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// NewService creates a service. loc is used when the shop has no timezone configured.
func NewService(store Store, loc *time.Location, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		loc:    loc,
		now:    time.Now,
		retry:  DefaultRetryConfig(),
		logger: logger.With().Str("component", "reservation").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates in and books the slot. Errors carry a Code; use CodeOf.
func (s *Service) Create(ctx context.Context, in Input) (*model.Reservation, error) {
	start := time.Now()
	r, err := s.create(ctx, in)
	metrics.ObserveCreate(time.Since(start))

	if err != nil {
		code := CodeOf(err)
		metrics.IncReservationCreate(string(code))
		ev := s.logger.Info()
		if k := KindOf(code); k == KindDatabase || k == KindUnknown || k == KindTransient {
			ev = s.logger.Error()
		}
		ev.Err(err).
			Str("code", string(code)).
			Str("staff_id", in.StaffID).
			Str("customer_id", in.CustomerID).
			Str("date", in.Date).
			Str("time", in.Time).
			Msg("reservation rejected")
		return nil, err
	}

	metrics.IncReservationCreate("OK")
	s.logger.Info().
		Str("reservation_id", r.ID).
		Str("staff_id", r.StaffID).
		Str("customer_id", r.CustomerID).
		Str("slot", r.SlotKey.String()).
		Msg("reservation created")
	s.publish(events.ReservationCreated, r)
	return r, nil
}

func (s *Service) create(ctx context.Context, in Input) (*model.Reservation, error) {
	v, err := validate(in)
	if err != nil {
		return nil, err
	}

	var r *model.Reservation
	err = s.withRetry(ctx, "create", func() error {
		shop, err := s.store.GetShopSettings(ctx)
		if err != nil {
			return storageError("load shop settings", err)
		}
		loc, err := schedule.Location(shop, s.loc)
		if err != nil {
			return &Error{Code: CodeUnknown, Err: fmt.Errorf("shop timezone: %w", err)}
		}

		now := s.now().In(loc)
		eff := schedule.ResolveDate(shop, nil, v.key.Date)
		guard := model.CreateGuard{
			Shop:                  shop,
			Now:                   now,
			LastBookableDay:       availability.LastBookableDay(now, shop),
			MaxConcurrentBookings: eff.MaxConcurrentBookings,
			MaxDailyBookings:      eff.MaxDailyBookings,
		}

		r = newReservation(v, loc)
		err = s.store.CreateReservation(ctx, r, guard)
		if errors.Is(err, model.ErrSlotNotOnGrid) {
			return &Error{Code: CodeValidation, Field: "time", Message: "time is not a bookable slot", Err: err}
		}
		return storageError("create reservation", err)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newReservation(v validated, loc *time.Location) *model.Reservation {
	at := v.key.In(loc)
	return &model.Reservation{
		StaffID:       v.staffID,
		ServiceID:     v.serviceID,
		CustomerID:    v.customerID,
		CustomerName:  v.name,
		CustomerPhone: v.phone,
		SlotKey:       v.key,
		DateTimestamp: v.key.Date.In(loc),
		TimeTimestamp: at,
		DayName:       at.Weekday().String(),
		DayNum:        at.Day(),
	}
}

// Get returns the reservation with id, or nil if there is none.
func (s *Service) Get(ctx context.Context, id string) (*model.Reservation, error) {
	if !idPattern.MatchString(id) {
		return nil, validationError("id", "invalid reservation id")
	}
	var r *model.Reservation
	err := s.withRetry(ctx, "get", func() error {
		var err error
		r, err = s.store.GetReservation(ctx, id)
		return storageError("get reservation", err)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Cancel cancels a confirmed reservation. With a nil expectedVersion the
// latest stored version is used.
func (s *Service) Cancel(ctx context.Context, id, cancelledBy, reason string, expectedVersion *int64) (Outcome, error) {
	if cancelledBy == "" {
		cancelledBy = model.CancelledByCustomer
	}
	if !validCancelledBy(cancelledBy) {
		return Outcome{}, validationError("cancelledBy", "unknown cancelled_by")
	}

	status := model.StatusCancelled
	patch := model.ReservationPatch{
		Status:      &status,
		CancelledBy: &cancelledBy,
	}
	if reason != "" {
		patch.CancellationReason = &reason
	}
	return s.write(ctx, "cancel", id, patch, expectedVersion)
}

// Update applies patch to a confirmed reservation. The status may only move
// to completed or cancelled.
func (s *Service) Update(ctx context.Context, id string, patch model.ReservationPatch, expectedVersion *int64) (Outcome, error) {
	if patch.IsEmpty() {
		return Outcome{}, validationError("patch", "nothing to update")
	}
	patch, err := validatePatch(patch)
	if err != nil {
		return Outcome{}, err
	}
	if patch.Status != nil && *patch.Status == model.StatusCancelled && patch.CancelledBy == nil {
		by := model.CancelledBySystem
		patch.CancelledBy = &by
	}
	return s.write(ctx, "update", id, patch, expectedVersion)
}

func (s *Service) write(ctx context.Context, op, id string, patch model.ReservationPatch, expectedVersion *int64) (Outcome, error) {
	if !idPattern.MatchString(id) {
		return Outcome{}, validationError("id", "invalid reservation id")
	}
	if expectedVersion != nil && *expectedVersion < 1 {
		return Outcome{}, validationError("version", "version must be positive")
	}

	var (
		version int64
		before  *model.Reservation
	)
	if expectedVersion != nil {
		version = *expectedVersion
	} else {
		current, err := s.Get(ctx, id)
		if err != nil {
			metrics.IncReservationWrite(op, "error")
			return Outcome{}, err
		}
		if current == nil {
			return Outcome{}, fmt.Errorf("%w: %s", model.ErrReservationNotFound, id)
		}
		version = current.Version
		before = current
	}

	var changed bool
	err := s.withRetry(ctx, op, func() error {
		var err error
		changed, err = s.store.UpdateReservationWithVersion(ctx, id, version, patch, s.now())
		return storageError(op+" reservation", err)
	})
	if err != nil {
		metrics.IncReservationWrite(op, "error")
		return Outcome{}, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		if !changed {
			return Outcome{}, err
		}
		// The write is committed; report it from what we know.
		current = written(id, version, patch, before, s.now())
		s.logger.Warn().Err(err).Str("reservation_id", id).Str("op", op).Msg("re-read after write failed")
	}
	if current == nil {
		return Outcome{}, fmt.Errorf("%w: %s", model.ErrReservationNotFound, id)
	}

	if !changed {
		metrics.IncReservationWrite(op, "stale")
		s.logger.Info().
			Str("reservation_id", id).
			Int64("expected_version", version).
			Int64("current_version", current.Version).
			Str("status", current.Status).
			Str("op", op).
			Msg("stale version, nothing updated")
		return Outcome{Changed: false, Reservation: current}, nil
	}

	metrics.IncReservationWrite(op, "changed")
	s.logger.Info().
		Str("reservation_id", id).
		Int64("version", current.Version).
		Str("status", current.Status).
		Str("op", op).
		Msg("reservation changed")

	eventType := events.ReservationUpdated
	if current.Status == model.StatusCancelled {
		eventType = events.ReservationCancelled
	}
	s.publish(eventType, current)
	return Outcome{Changed: true, Reservation: current}, nil
}

func (s *Service) publish(eventType string, r *model.Reservation) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(eventType, r); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

// written rebuilds the state of a reservation after a successful versioned
// write of patch, starting from before when it is known.
func written(id string, version int64, patch model.ReservationPatch, before *model.Reservation, now time.Time) *model.Reservation {
	r := model.Reservation{ID: id, Status: model.StatusConfirmed}
	if before != nil {
		r = *before
	}
	patch.ApplyTo(&r)
	r.Version = version + 1
	r.UpdatedAt = now
	return &r
}
