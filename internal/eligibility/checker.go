// Package eligibility decides whether a customer may make a new booking.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"barbershop/internal/model"
	"barbershop/internal/schedule"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
)

// Limits are the booking limits applied to a customer.
type Limits struct {
	MaxConcurrentBookings int    `json:"maxConcurrentBookings"`
	MaxDailyBookings      int    `json:"maxDailyBookings"`
	Message               string `json:"message,omitempty"`
}

// Result is the outcome of an eligibility check.
type Result struct {
	Eligible  bool                 `json:"eligible"`
	IsBlocked bool                 `json:"isBlocked"`
	Limits    Limits               `json:"limits"`
	Counts    model.CustomerCounts `json:"counts"`
}

const (
	MessageBlocked = "Your account cannot make new bookings. Please contact the shop."
	messageMax     = "You already have %d upcoming bookings, the limit is %d."
	messageDaily   = "You already have %d bookings on this day, the limit is %d."
)

// Evaluate applies the rules to already collected facts. A new booking is
// allowed only if both counts stay within their limit after adding it.
func Evaluate(blocked bool, counts model.CustomerCounts, maxConcurrent, maxDaily int) Result {
	res := Result{
		IsBlocked: blocked,
		Counts:    counts,
		Limits: Limits{
			MaxConcurrentBookings: maxConcurrent,
			MaxDailyBookings:      maxDaily,
		},
	}

	switch {
	case blocked:
		res.Limits.Message = MessageBlocked
	case counts.Future >= maxConcurrent:
		res.Limits.Message = fmt.Sprintf(messageMax, counts.Future, maxConcurrent)
	case counts.OnDay >= maxDaily:
		res.Limits.Message = fmt.Sprintf(messageDaily, counts.OnDay, maxDaily)
	default:
		res.Eligible = true
	}
	return res
}

// Store provides the facts the checker needs.
type Store interface {
	GetShopSettings(ctx context.Context) (*model.ShopSettings, error)
	IsCustomerBlocked(ctx context.Context, customerID string) (bool, error)
	CountCustomerBookings(ctx context.Context, customerID string, now time.Time, day civil.Date) (model.CustomerCounts, error)
}

// Checker runs the advisory eligibility check. The authoritative check runs
// inside the create transaction with the same Evaluate rules.
type Checker struct {
	store  Store
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// NewChecker creates a checker evaluating dates in loc.
func NewChecker(store Store, loc *time.Location, logger zerolog.Logger, opts ...Option) *Checker {
	c := &Checker{
		store:  store,
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("component", "eligibility").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check evaluates customerID for a booking on day. A zero day means today.
func (c *Checker) Check(ctx context.Context, customerID string, day civil.Date) (Result, error) {
	now := c.now().In(c.loc)
	if day == (civil.Date{}) {
		day = civil.DateOf(now)
	}

	shop, err := c.store.GetShopSettings(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load shop settings: %w", err)
	}
	eff := schedule.Resolve(shop, nil, model.Weekday(day))

	blocked, err := c.store.IsCustomerBlocked(ctx, customerID)
	if err != nil {
		return Result{}, fmt.Errorf("check blocklist: %w", err)
	}

	var counts model.CustomerCounts
	if !blocked {
		counts, err = c.store.CountCustomerBookings(ctx, customerID, now, day)
		if err != nil {
			return Result{}, fmt.Errorf("count bookings: %w", err)
		}
	}

	res := Evaluate(blocked, counts, eff.MaxConcurrentBookings, eff.MaxDailyBookings)
	if !res.Eligible {
		c.logger.Debug().
			Str("customer_id", customerID).
			Bool("blocked", blocked).
			Int("future", counts.Future).
			Int("on_day", counts.OnDay).
			Msg("customer not eligible")
	}
	return res, nil
}
