// Package notify tells staff members about their new and cancelled
// reservations over Telegram.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"barbershop/internal/events"
	"barbershop/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	queueSize = 64

	// Telegram allows about 30 messages per second per bot.
	defaultMessagesPerSec = 20
	messageBurst          = 30
)

type telegramSender interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
}

type message struct {
	chatID int64
	text   string
}

// StaffNotifier forwards reservation events to the staff member's chat.
// Sending happens on the Run goroutine so event publishers never wait on
// Telegram.
type StaffNotifier struct {
	tg      telegramSender
	chats   map[string]int64
	loc     *time.Location
	queue   chan message
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// New connects to the Telegram bot API.
func New(token string, chats map[string]int64, loc *time.Location, logger zerolog.Logger) (*StaffNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewWithSender(api, chats, loc, logger), nil
}

// NewWithSender allows injecting a fake Telegram client for tests.
func NewWithSender(tg telegramSender, chats map[string]int64, loc *time.Location, logger zerolog.Logger) *StaffNotifier {
	return &StaffNotifier{
		tg:      tg,
		chats:   chats,
		loc:     loc,
		queue:   make(chan message, queueSize),
		limiter: rate.NewLimiter(defaultMessagesPerSec, messageBurst),
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// SetRate limits outgoing messages to perSec.
func (n *StaffNotifier) SetRate(perSec float64) {
	if perSec > 0 {
		n.limiter.SetLimit(rate.Limit(perSec))
	}
}

// Attach subscribes the notifier to reservation events and returns a func
// that detaches it.
func (n *StaffNotifier) Attach(bus *events.EventBus) func() {
	unsubCreated := bus.Subscribe(events.ReservationCreated, n.HandleEvent)
	unsubCancelled := bus.Subscribe(events.ReservationCancelled, n.HandleEvent)
	return func() {
		unsubCreated()
		unsubCancelled()
	}
}

// HandleEvent queues a message for the staff member of the reservation.
// Staff without a configured chat are skipped.
func (n *StaffNotifier) HandleEvent(e events.Event) error {
	var r model.Reservation
	if err := e.Decode(&r); err != nil {
		return fmt.Errorf("decode reservation: %w", err)
	}

	chatID, ok := n.chats[r.StaffID]
	if !ok || chatID == 0 {
		return nil
	}

	var text string
	switch e.Type {
	case events.ReservationCreated:
		text = n.formatCreated(&r)
	case events.ReservationCancelled:
		text = n.formatCancelled(&r)
	default:
		return nil
	}

	return n.enqueue(r.StaffID, chatID, text)
}

func (n *StaffNotifier) enqueue(staffID string, chatID int64, text string) error {
	select {
	case n.queue <- message{chatID: chatID, text: text}:
		return nil
	default:
		return fmt.Errorf("notification queue full, dropping message for %s", staffID)
	}
}

// Run sends queued messages until ctx is done.
func (n *StaffNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-n.queue:
			if err := n.limiter.Wait(ctx); err != nil {
				return
			}
			if _, err := n.tg.Send(tgbotapi.NewMessage(m.chatID, m.text)); err != nil {
				n.logger.Error().Err(err).Int64("chat_id", m.chatID).Msg("failed to notify staff")
				continue
			}
			n.logger.Debug().Int64("chat_id", m.chatID).Msg("staff notified")
		}
	}
}

func (n *StaffNotifier) slotTime(r *model.Reservation) string {
	return r.SlotKey.In(n.loc).Format("Mon 02.01.2006 15:04")
}

func (n *StaffNotifier) formatCreated(r *model.Reservation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New booking: %s\n", n.slotTime(r))
	fmt.Fprintf(&b, "Client: %s, +%s\n", r.CustomerName, r.CustomerPhone)
	fmt.Fprintf(&b, "Service: %s", r.ServiceID)
	if r.CustomerID == "" {
		b.WriteString("\nWalk-in")
	}
	return b.String()
}

func (n *StaffNotifier) formatCancelled(r *model.Reservation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Booking cancelled: %s\n", n.slotTime(r))
	fmt.Fprintf(&b, "Client: %s", r.CustomerName)
	if r.CancelledBy != "" {
		fmt.Fprintf(&b, "\nCancelled by: %s", r.CancelledBy)
	}
	if r.CancellationReason != "" {
		fmt.Fprintf(&b, "\nReason: %s", r.CancellationReason)
	}
	return b.String()
}
