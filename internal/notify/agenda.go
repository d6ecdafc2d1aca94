package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"barbershop/internal/model"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
)

// AgendaConfig controls the daily staff agenda.
type AgendaConfig struct {
	// At is the shop-local time the agenda goes out.
	At model.TimeOfDay
	// DaysAhead selects the day listed: 0 for the same day, 1 for tomorrow.
	DaysAhead int
	// CheckInterval is how often the scheduler looks at the clock.
	CheckInterval time.Duration
}

// AgendaStore lists a staff member's confirmed reservations for a day.
type AgendaStore interface {
	ListConfirmedForStaffOnDate(ctx context.Context, staffID string, date civil.Date) ([]model.Reservation, error)
}

// Agenda sends every staff member with a chat the list of their bookings
// once a day.
type Agenda struct {
	cfg      AgendaConfig
	store    AgendaStore
	notifier *StaffNotifier
	now      func() time.Time
	logger   zerolog.Logger

	mu      sync.Mutex
	lastRun civil.Date
}

func NewAgenda(cfg AgendaConfig, store AgendaStore, notifier *StaffNotifier, logger zerolog.Logger) *Agenda {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	return &Agenda{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.With().Str("component", "agenda").Logger(),
	}
}

// Run checks the clock every CheckInterval until ctx is done.
func (a *Agenda) Run(ctx context.Context) {
	a.logger.Info().Str("at", a.cfg.At.String()).Int("days_ahead", a.cfg.DaysAhead).Msg("agenda scheduler started")

	ticker := time.NewTicker(a.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.checkAndRun(ctx)
		}
	}
}

// checkAndRun sends the agenda the first time it is called at or after the
// configured time on a given day.
func (a *Agenda) checkAndRun(ctx context.Context) bool {
	now := a.now().In(a.notifier.loc)
	today := civil.DateOf(now)

	a.mu.Lock()
	if a.lastRun == today || model.TimeOfDayOf(now) < a.cfg.At {
		a.mu.Unlock()
		return false
	}
	a.lastRun = today
	a.mu.Unlock()

	day := today.AddDays(a.cfg.DaysAhead)
	sent, err := a.Send(ctx, day)
	if err != nil {
		a.logger.Error().Err(err).Str("date", day.String()).Int("sent", sent).Msg("agenda incomplete")
		return true
	}
	a.logger.Info().Str("date", day.String()).Int("sent", sent).Msg("agenda sent")
	return true
}

// Send queues the agenda for day to every staff member that has a chat and
// at least one booking. It returns the number of queued messages.
func (a *Agenda) Send(ctx context.Context, day civil.Date) (int, error) {
	staffIDs := make([]string, 0, len(a.notifier.chats))
	for id, chat := range a.notifier.chats {
		if chat != 0 {
			staffIDs = append(staffIDs, id)
		}
	}
	sort.Strings(staffIDs)

	sent := 0
	for _, staffID := range staffIDs {
		list, err := a.store.ListConfirmedForStaffOnDate(ctx, staffID, day)
		if err != nil {
			return sent, fmt.Errorf("list %s bookings: %w", staffID, err)
		}
		if len(list) == 0 {
			continue
		}
		if err := a.notifier.enqueue(staffID, a.notifier.chats[staffID], formatAgenda(day, list)); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func formatAgenda(day civil.Date, list []model.Reservation) string {
	sort.Slice(list, func(i, j int) bool { return list[i].SlotKey.Time < list[j].SlotKey.Time })

	var b strings.Builder
	fmt.Fprintf(&b, "Bookings for %s:", day.In(time.UTC).Format("Mon 02.01.2006"))
	for _, r := range list {
		fmt.Fprintf(&b, "\n%s %s, +%s, %s", r.SlotKey.Time, r.CustomerName, r.CustomerPhone, r.ServiceID)
	}
	return b.String()
}
