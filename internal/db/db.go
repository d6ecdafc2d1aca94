package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"barbershop/internal/model"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps the sqlite reservation store.
type DB struct {
	*sql.DB
	loc    *time.Location
	logger *zerolog.Logger
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewDB opens the database at path and creates tables if they don't exist.
// Times read back from storage are expressed in loc.
func NewDB(path string, loc *time.Location, logger *zerolog.Logger) (*DB, error) {
	if loc == nil {
		loc = time.Local
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN, so concurrent
	// creates are serialized for the whole check-and-insert.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: sqlDB, loc: loc, logger: logger}
	if err := instance.createTables(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("path", path).Msg("Database initialized")
	}
	return instance, nil
}

// Location returns the timezone used for stored instants.
func (db *DB) Location() *time.Location {
	return db.loc
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS shop_settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			timezone TEXT,
			open_time TEXT,
			close_time TEXT,
			open_days TEXT,
			max_booking_days_ahead INTEGER,
			min_hours_before_booking INTEGER,
			max_concurrent_bookings INTEGER,
			max_daily_bookings INTEGER,
			slot_interval_minutes INTEGER,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS staff (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			working_days TEXT,
			start_time TEXT,
			end_time TEXT,
			min_hours_before_booking INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// weekday: 1=Mon..7=Sun
		`CREATE TABLE IF NOT EXISTS staff_day_rules (
			staff_id TEXT NOT NULL,
			weekday INTEGER NOT NULL,
			is_working BOOLEAN NOT NULL,
			start_time TEXT,
			end_time TEXT,
			PRIMARY KEY (staff_id, weekday),
			FOREIGN KEY (staff_id) REFERENCES staff(id) ON DELETE CASCADE
		)`,
		// staff_id NULL = shop closure
		`CREATE TABLE IF NOT EXISTS closures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			staff_id TEXT,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS recurring_appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			staff_id TEXT NOT NULL,
			weekday INTEGER NOT NULL,
			time_of_day TEXT NOT NULL,
			customer_label TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS breakouts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			staff_id TEXT NOT NULL,
			breakout_type TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT,
			start_date TEXT,
			end_date TEXT,
			weekday INTEGER,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS blocked_customers (
			customer_id TEXT PRIMARY KEY,
			blocked_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			reason TEXT,
			blocked_by TEXT
		)`,
		// date_ts/time_ts are unix seconds for range queries; slot_key is the
		// slot identity.
		`CREATE TABLE IF NOT EXISTS reservations (
			id TEXT PRIMARY KEY,
			staff_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			customer_id TEXT,
			customer_name TEXT NOT NULL,
			customer_phone TEXT NOT NULL,
			slot_key TEXT NOT NULL,
			slot_date TEXT NOT NULL,
			date_ts INTEGER NOT NULL,
			time_ts INTEGER NOT NULL,
			day_name TEXT,
			day_num INTEGER,
			status TEXT NOT NULL DEFAULT 'confirmed',
			cancelled_by TEXT,
			cancellation_reason TEXT,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// event_id makes replays of the same bus event idempotent.
		`CREATE TABLE IF NOT EXISTS reservation_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			reservation_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			status TEXT NOT NULL,
			version INTEGER NOT NULL,
			actor TEXT,
			reason TEXT,
			recorded_at DATETIME NOT NULL
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS ux_reservations_staff_slot
			ON reservations(staff_id, slot_key) WHERE status = 'confirmed'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_reservations_customer_slot
			ON reservations(customer_id, slot_key) WHERE status = 'confirmed' AND customer_id IS NOT NULL`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_staff_date ON reservations(staff_id, slot_date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_customer ON reservations(customer_id, status, time_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_closures_staff ON closures(staff_id, start_date, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_recurring_staff ON recurring_appointments(staff_id, weekday)`,
		`CREATE INDEX IF NOT EXISTS idx_breakouts_staff ON breakouts(staff_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_blocked_customers_blocked_at ON blocked_customers(blocked_at)`,
		`CREATE INDEX IF NOT EXISTS idx_history_reservation ON reservation_history(reservation_id, id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// mapErr translates sqlite failures into domain errors: unique violations on
// the reservation indexes become conflicts, busy/locked become transient.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.Code == sqlite3.ErrConstraint && se.ExtendedCode == sqlite3.ErrConstraintUnique:
		msg := se.Error()
		if strings.Contains(msg, "reservations.customer_id") {
			return fmt.Errorf("%w: %w", model.ErrCustomerDoubleBooking, err)
		}
		if strings.Contains(msg, "reservations.staff_id") {
			return fmt.Errorf("%w: %w", model.ErrSlotAlreadyTaken, err)
		}
	case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
		return fmt.Errorf("%w: %w", model.ErrTransient, err)
	}
	return err
}
