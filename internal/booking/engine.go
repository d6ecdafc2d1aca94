// Package booking answers the read-path questions: is a date bookable, what
// are the working hours and which slots can be offered. Answers are advisory;
// the reservation service re-checks everything when a slot is booked.
package booking

import (
	"context"
	"fmt"
	"time"

	"barbershop/internal/availability"
	"barbershop/internal/cache"
	"barbershop/internal/metrics"
	"barbershop/internal/model"
	"barbershop/internal/schedule"
	"barbershop/internal/slots"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
)

// Store provides constraint data and live reservations.
type Store interface {
	LoadSnapshot(ctx context.Context, staffID string) (*model.Snapshot, error)
	ListConfirmedForStaffOnDate(ctx context.Context, staffID string, date civil.Date) ([]model.Reservation, error)
}

// DaySlots is the slot grid of one staff member on one date.
type DaySlots struct {
	StaffID      string                 `json:"staffId"`
	Date         civil.Date             `json:"date"`
	Availability availability.Result    `json:"availability"`
	Hours        schedule.Hours         `json:"hours"`
	Interval     int                    `json:"intervalMinutes"`
	Slots        []slots.ClassifiedSlot `json:"slots"`
	Summary      map[slots.Status]int   `json:"summary"`
}

// Engine composes the resolver, generator and classifier over cached
// constraint snapshots.
type Engine struct {
	store  Store
	cache  cache.SnapshotCache
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine. loc is used when the shop has no timezone.
func NewEngine(store Store, c cache.SnapshotCache, loc *time.Location, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		cache:  c,
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("component", "booking").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot returns the constraint snapshot of staffID, loading it on a cache
// miss. Cache failures fall back to the store.
func (e *Engine) Snapshot(ctx context.Context, staffID string) (*model.Snapshot, error) {
	if e.cache != nil {
		snap, ok, err := e.cache.Get(ctx, staffID)
		if err != nil {
			e.logger.Warn().Err(err).Str("staff_id", staffID).Msg("snapshot cache read failed")
		}
		metrics.IncSnapshotCache(ok)
		if ok {
			return snap, nil
		}
	}

	snap, err := e.store.LoadSnapshot(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("load constraints for %s: %w", staffID, err)
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, staffID, snap); err != nil {
			e.logger.Warn().Err(err).Str("staff_id", staffID).Msg("snapshot cache write failed")
		}
	}
	return snap, nil
}

// DateAvailability reports whether date can be booked with staffID.
func (e *Engine) DateAvailability(ctx context.Context, staffID string, date civil.Date) (availability.Result, error) {
	snap, err := e.Snapshot(ctx, staffID)
	if err != nil {
		return availability.Result{}, err
	}
	return availability.FromSnapshot(e.shopNow(snap), date, snap), nil
}

// WorkHours returns the effective working window of staffID on date.
func (e *Engine) WorkHours(ctx context.Context, staffID string, date civil.Date) (schedule.Hours, error) {
	snap, err := e.Snapshot(ctx, staffID)
	if err != nil {
		return schedule.Hours{}, err
	}
	return schedule.WorkHours(&snap.Shop, &snap.Staff, date), nil
}

// DaySlots generates and classifies the slots of staffID on date. An
// unavailable date yields no slots.
func (e *Engine) DaySlots(ctx context.Context, staffID string, date civil.Date) (*DaySlots, error) {
	snap, err := e.Snapshot(ctx, staffID)
	if err != nil {
		return nil, err
	}

	now := e.shopNow(snap)
	loc := now.Location()
	eff := schedule.ResolveDate(&snap.Shop, &snap.Staff, date)

	out := &DaySlots{
		StaffID:      staffID,
		Date:         date,
		Availability: availability.FromSnapshot(now, date, snap),
		Hours:        eff.Hours,
		Interval:     eff.SlotInterval,
		Slots:        []slots.ClassifiedSlot{},
	}
	if !out.Availability.Available {
		out.Summary = slots.Summary(out.Slots)
		return out, nil
	}

	reservations, err := e.store.ListConfirmedForStaffOnDate(ctx, staffID, date)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	candidates := slots.GenerateWindow(date, loc, eff.Hours.Start, eff.Hours.End, eff.SlotInterval)
	out.Slots = slots.Classify(slots.ClassifyInput{
		StaffID:      staffID,
		Slots:        candidates,
		Reservations: reservations,
		Recurring:    snap.Recurring,
		Breakouts:    snap.Breakouts,
		MinLead:      eff.MinLead,
		Interval:     eff.SlotInterval,
		Now:          now,
		Location:     loc,
	})
	out.Summary = slots.Summary(out.Slots)
	return out, nil
}

// Invalidate drops cached snapshots. An empty staffID drops all of them.
func (e *Engine) Invalidate(ctx context.Context, inv cache.Invalidation) {
	metrics.IncInvalidation(inv.Reason)
	if e.cache == nil {
		return
	}

	var err error
	if inv.StaffID == "" {
		err = e.cache.Delete(ctx)
	} else {
		err = e.cache.Delete(ctx, inv.StaffID)
	}
	if err != nil {
		e.logger.Error().Err(err).Str("staff_id", inv.StaffID).Msg("failed to drop cached constraints")
		return
	}
	e.logger.Debug().Str("staff_id", inv.StaffID).Str("reason", inv.Reason).Msg("constraints invalidated")
}

// Watch applies invalidations from ch until it is closed or ctx is done.
func (e *Engine) Watch(ctx context.Context, ch <-chan cache.Invalidation) {
	for {
		select {
		case <-ctx.Done():
			return
		case inv, ok := <-ch:
			if !ok {
				return
			}
			e.Invalidate(ctx, inv)
		}
	}
}

func (e *Engine) shopNow(snap *model.Snapshot) time.Time {
	loc, err := schedule.Location(&snap.Shop, e.loc)
	if err != nil {
		e.logger.Warn().Err(err).Str("timezone", snap.Shop.Timezone).Msg("unknown shop timezone, using default")
		loc = e.loc
	}
	return e.now().In(loc)
}
