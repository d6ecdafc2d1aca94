package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"barbershop/internal/eligibility"
	"barbershop/internal/model"
	"barbershop/internal/schedule"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

const reservationColumns = `id, staff_id, service_id, customer_id, customer_name, customer_phone,
	slot_key, date_ts, time_ts, day_name, day_num, status, cancelled_by, cancellation_reason,
	version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanReservation(row rowScanner) (*model.Reservation, error) {
	var (
		r           model.Reservation
		customerID  sql.NullString
		slotKey     string
		dateTS      int64
		timeTS      int64
		dayName     sql.NullString
		dayNum      sql.NullInt64
		cancelledBy sql.NullString
		cancelNote  sql.NullString
	)
	if err := row.Scan(
		&r.ID, &r.StaffID, &r.ServiceID, &customerID, &r.CustomerName, &r.CustomerPhone,
		&slotKey, &dateTS, &timeTS, &dayName, &dayNum, &r.Status, &cancelledBy, &cancelNote,
		&r.Version, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	key, err := model.ParseSlotKey(slotKey)
	if err != nil {
		return nil, fmt.Errorf("reservation %s: %w", r.ID, err)
	}
	r.SlotKey = key
	r.CustomerID = customerID.String
	r.DateTimestamp = time.Unix(dateTS, 0).In(db.loc)
	r.TimeTimestamp = time.Unix(timeTS, 0).In(db.loc)
	r.DayName = dayName.String
	r.DayNum = int(dayNum.Int64)
	r.CancelledBy = cancelledBy.String
	r.CancellationReason = cancelNote.String
	r.CreatedAt = r.CreatedAt.In(db.loc)
	r.UpdatedAt = r.UpdatedAt.In(db.loc)
	return &r, nil
}

// CreateReservation inserts r if every booking rule still holds. All checks
// and the insert run in one immediate transaction, so two callers racing for
// the same slot are serialized and only one of them commits.
//
// The staff member must be active and r.SlotKey.Time must start a slot of
// that staff member's grid for the date, so each booking holds exactly one
// slot key.
//
// On success r is filled with its id, status, version and timestamps.
func (db *DB) CreateReservation(ctx context.Context, r *model.Reservation, g model.CreateGuard) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapErr(err))
	}
	defer func() { _ = tx.Rollback() }()

	key := r.SlotKey.String()

	staff, err := getStaffSchedule(ctx, tx, r.StaffID)
	if err != nil {
		return err
	}
	if !schedule.ResolveDate(g.Shop, staff, r.SlotKey.Date).OnGrid(r.SlotKey.Time) {
		return model.ErrSlotNotOnGrid
	}

	if r.CustomerID != "" {
		blocked, err := isBlocked(ctx, tx, r.CustomerID)
		if err != nil {
			return fmt.Errorf("check blocklist: %w", err)
		}
		if blocked {
			return model.ErrCustomerBlocked
		}

		counts, err := countCustomerBookings(ctx, tx, r.CustomerID, g.Now, r.SlotKey.Date)
		if err != nil {
			return fmt.Errorf("count bookings: %w", err)
		}
		if !eligibility.Evaluate(false, counts, g.MaxConcurrentBookings, g.MaxDailyBookings).Eligible {
			return model.ErrMaxBookingsReached
		}
	}

	taken, err := exists(ctx, tx,
		`SELECT 1 FROM reservations WHERE staff_id = ? AND slot_key = ? AND status = 'confirmed' LIMIT 1`,
		r.StaffID, key)
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if taken {
		return model.ErrSlotAlreadyTaken
	}

	if r.CustomerID != "" {
		double, err := exists(ctx, tx,
			`SELECT 1 FROM reservations WHERE customer_id = ? AND slot_key = ? AND status = 'confirmed' LIMIT 1`,
			r.CustomerID, key)
		if err != nil {
			return fmt.Errorf("check customer slot: %w", err)
		}
		if double {
			return model.ErrCustomerDoubleBooking
		}
	}

	if !r.TimeTimestamp.After(g.Now) || r.SlotKey.Date.After(g.LastBookableDay) {
		return model.ErrDateOutOfRange
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Status = model.StatusConfirmed
	r.Version = 1
	r.CreatedAt = g.Now
	r.UpdatedAt = g.Now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reservations (
			id, staff_id, service_id, customer_id, customer_name, customer_phone,
			slot_key, slot_date, date_ts, time_ts, day_name, day_num,
			status, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StaffID, r.ServiceID, nullString(r.CustomerID), r.CustomerName, r.CustomerPhone,
		key, r.SlotKey.Date.String(), r.DateTimestamp.Unix(), r.TimeTimestamp.Unix(), r.DayName, r.DayNum,
		r.Status, r.Version, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", mapErr(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reservation: %w", mapErr(err))
	}
	return nil
}

// GetReservation returns the reservation with id, or nil if there is none.
func (db *DB) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := db.scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return r, nil
}

// UpdateReservationWithVersion applies patch only if the stored row still has
// the expected version and is confirmed. It reports whether a row changed; a
// false result with nil error means the caller's view is stale.
func (db *DB) UpdateReservationWithVersion(ctx context.Context, id string, version int64, patch model.ReservationPatch, now time.Time) (bool, error) {
	sets := []string{"version = version + 1", "updated_at = ?"}
	args := []any{now}

	add := func(column string, v *string) {
		if v != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *v)
		}
	}
	add("service_id", patch.ServiceID)
	add("customer_name", patch.CustomerName)
	add("customer_phone", patch.CustomerPhone)
	add("status", patch.Status)
	add("cancelled_by", patch.CancelledBy)
	add("cancellation_reason", patch.CancellationReason)

	args = append(args, id, version)
	res, err := db.ExecContext(ctx,
		`UPDATE reservations SET `+strings.Join(sets, ", ")+
			` WHERE id = ? AND version = ? AND status = 'confirmed'`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("update reservation: %w", mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListConfirmedForStaffOnDate returns the confirmed reservations of a staff
// member on date, ordered by slot.
func (db *DB) ListConfirmedForStaffOnDate(ctx context.Context, staffID string, date civil.Date) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		WHERE staff_id = ? AND slot_date = ? AND status = 'confirmed'
		ORDER BY slot_key`,
		staffID, date.String(),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		r, err := db.scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListCustomerReservations returns the upcoming confirmed reservations of a customer.
func (db *DB) ListCustomerReservations(ctx context.Context, customerID string, now time.Time) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		WHERE customer_id = ? AND status = 'confirmed' AND time_ts > ?
		ORDER BY time_ts`,
		customerID, now.Unix(),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		r, err := db.scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CountCustomerBookings counts the customer's confirmed reservations that
// are still ahead of now, in total and on day.
func (db *DB) CountCustomerBookings(ctx context.Context, customerID string, now time.Time, day civil.Date) (model.CustomerCounts, error) {
	return countCustomerBookings(ctx, db, customerID, now, day)
}

func countCustomerBookings(ctx context.Context, q queryer, customerID string, now time.Time, day civil.Date) (model.CustomerCounts, error) {
	var (
		c     model.CustomerCounts
		onDay sql.NullInt64
	)
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(CASE WHEN slot_date = ? THEN 1 ELSE 0 END)
		FROM reservations
		WHERE customer_id = ? AND status = 'confirmed' AND time_ts > ?`,
		day.String(), customerID, now.Unix(),
	).Scan(&c.Future, &onDay)
	if err != nil {
		return model.CustomerCounts{}, mapErr(err)
	}
	c.OnDay = int(onDay.Int64)
	return c, nil
}

func exists(ctx context.Context, q queryer, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapErr(err)
	}
	return true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
