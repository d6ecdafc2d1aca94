// Package audit keeps a per-reservation history of changes published on the
// event bus.
package audit

import (
	"context"
	"fmt"
	"time"

	"barbershop/internal/events"
	"barbershop/internal/model"

	"github.com/rs/zerolog"
)

// Store persists history entries.
type Store interface {
	AppendHistory(ctx context.Context, e model.HistoryEntry) error
}

// Recorder writes a history entry for every reservation event.
type Recorder struct {
	store   Store
	timeout time.Duration
	logger  zerolog.Logger
}

func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		timeout: 2 * time.Second,
		logger:  logger.With().Str("component", "audit").Logger(),
	}
}

// Attach subscribes to reservation events and returns a func that detaches
// the recorder.
func (r *Recorder) Attach(bus *events.EventBus) func() {
	unsubs := []func(){
		bus.Subscribe(events.ReservationCreated, r.HandleEvent),
		bus.Subscribe(events.ReservationCancelled, r.HandleEvent),
		bus.Subscribe(events.ReservationUpdated, r.HandleEvent),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// HandleEvent stores the state the reservation reached with e.
func (r *Recorder) HandleEvent(e events.Event) error {
	var res model.Reservation
	if err := e.Decode(&res); err != nil {
		return fmt.Errorf("decode reservation: %w", err)
	}

	entry := model.HistoryEntry{
		EventID:       e.ID,
		ReservationID: res.ID,
		EventType:     e.Type,
		Status:        res.Status,
		Version:       res.Version,
		RecordedAt:    e.CreatedAt,
	}
	if res.Status == model.StatusCancelled {
		entry.Actor = res.CancelledBy
		entry.Reason = res.CancellationReason
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.store.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("append history for %s: %w", res.ID, err)
	}
	r.logger.Debug().Str("reservation_id", res.ID).Str("event", e.Type).Int64("version", res.Version).Msg("history recorded")
	return nil
}
