// Package api exposes the booking engine and the reservation service over
// HTTP/JSON.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"barbershop/internal/availability"
	"barbershop/internal/booking"
	"barbershop/internal/cache"
	"barbershop/internal/eligibility"
	"barbershop/internal/model"
	"barbershop/internal/reservation"
	"barbershop/internal/schedule"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Engine is the read path.
type Engine interface {
	DateAvailability(ctx context.Context, staffID string, date civil.Date) (availability.Result, error)
	WorkHours(ctx context.Context, staffID string, date civil.Date) (schedule.Hours, error)
	DaySlots(ctx context.Context, staffID string, date civil.Date) (*booking.DaySlots, error)
}

// Reservations is the write path.
type Reservations interface {
	Create(ctx context.Context, in reservation.Input) (*model.Reservation, error)
	Get(ctx context.Context, id string) (*model.Reservation, error)
	Cancel(ctx context.Context, id, cancelledBy, reason string, expectedVersion *int64) (reservation.Outcome, error)
	Update(ctx context.Context, id string, patch model.ReservationPatch, expectedVersion *int64) (reservation.Outcome, error)
}

// Eligibility runs the advisory customer check.
type Eligibility interface {
	Check(ctx context.Context, customerID string, day civil.Date) (eligibility.Result, error)
}

// CustomerStore lists a customer's upcoming reservations.
type CustomerStore interface {
	ListCustomerReservations(ctx context.Context, customerID string, now time.Time) ([]model.Reservation, error)
}

// HistoryStore lists recorded reservation changes.
type HistoryStore interface {
	ListHistory(ctx context.Context, reservationID string) ([]model.HistoryEntry, error)
}

// Deps groups the services behind the API.
type Deps struct {
	Engine       Engine
	Reservations Reservations
	Eligibility  Eligibility
	Customers    CustomerStore
	Admin        AdminStore
	History      HistoryStore
	Notifier     cache.Notifier
}

// Config holds HTTP server settings.
type Config struct {
	Address      string
	APIKey       string
	BookingRPS   float64
	BookingBurst int
}

// HTTPServer serves the JSON API.
type HTTPServer struct {
	deps    Deps
	apiKey  string
	limiter *clientLimiter
	now     func() time.Time
	logger  zerolog.Logger
	server  *http.Server
}

// Option configures an HTTPServer.
type Option func(*HTTPServer)

// WithClock overrides time.Now for customer listings.
func WithClock(now func() time.Time) Option {
	return func(s *HTTPServer) {
		if now != nil {
			s.now = now
		}
	}
}

func NewHTTPServer(cfg Config, deps Deps, logger zerolog.Logger, opts ...Option) *HTTPServer {
	s := &HTTPServer{
		deps:    deps,
		apiKey:  cfg.APIKey,
		limiter: newClientLimiter(rate.Limit(cfg.BookingRPS), cfg.BookingBurst),
		now:     time.Now,
		logger:  logger.With().Str("component", "api").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/staff/{staffID}/availability", s.handleAvailability)
	mux.HandleFunc("GET /api/v1/staff/{staffID}/work-hours", s.handleWorkHours)
	mux.HandleFunc("GET /api/v1/staff/{staffID}/slots", s.handleSlots)
	mux.HandleFunc("GET /api/v1/customers/{customerID}/eligibility", s.handleEligibility)
	mux.HandleFunc("GET /api/v1/customers/{customerID}/reservations", s.handleCustomerReservations)
	mux.Handle("POST /api/v1/reservations", s.rateLimit(http.HandlerFunc(s.handleCreateReservation)))
	mux.HandleFunc("GET /api/v1/reservations/{id}", s.handleGetReservation)
	mux.HandleFunc("POST /api/v1/reservations/{id}/cancel", s.handleCancelReservation)
	mux.HandleFunc("PATCH /api/v1/reservations/{id}", s.handleUpdateReservation)
	mux.HandleFunc("GET /api/v1/reservations/{id}/history", s.handleReservationHistory)
	mux.HandleFunc("POST /api/v1/constraints/invalidate", s.handleInvalidate)
	s.registerAdmin(mux)

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.auth(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is done.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("address", s.server.Addr).Msg("HTTP API started")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			key := r.Header.Get("x-api-key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientID(r)
		if !s.limiter.allow(client) {
			s.logger.Warn().Str("client", client).Msg("booking rate limit exceeded")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientID identifies the caller for rate limiting: the first forwarded
// address if a proxy set one, otherwise the remote host.
func clientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client.
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	lastGC   time.Time
}

func newClientLimiter(limit rate.Limit, burst int) *clientLimiter {
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		lastGC:   time.Now(),
	}
}

func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastGC) > limiterIdle {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > limiterIdle {
				delete(l.limiters, k)
			}
		}
		l.lastGC = now
	}

	e, ok := l.limiters[client]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[client] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
