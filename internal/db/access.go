package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"barbershop/internal/model"
)

// IsCustomerBlocked checks if a customer is on the blocklist.
func (db *DB) IsCustomerBlocked(ctx context.Context, customerID string) (bool, error) {
	return isBlocked(ctx, db, customerID)
}

func isBlocked(ctx context.Context, q queryer, customerID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM blocked_customers WHERE customer_id = ?",
		customerID,
	).Scan(&count)
	if err != nil {
		return false, mapErr(err)
	}
	return count > 0, nil
}

// GetBlockedCustomer returns blocklist details, nil if the customer is not blocked.
func (db *DB) GetBlockedCustomer(ctx context.Context, customerID string) (*model.BlockedCustomer, error) {
	var (
		bc        model.BlockedCustomer
		reason    sql.NullString
		blockedBy sql.NullString
	)
	err := db.QueryRowContext(ctx,
		"SELECT customer_id, blocked_at, reason, blocked_by FROM blocked_customers WHERE customer_id = ?",
		customerID,
	).Scan(&bc.CustomerID, &bc.BlockedAt, &reason, &blockedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	bc.Reason = reason.String
	bc.BlockedBy = blockedBy.String
	return &bc, nil
}

// BlockCustomer adds a customer to the blocklist.
func (db *DB) BlockCustomer(ctx context.Context, customerID, reason, blockedBy string) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO blocked_customers (customer_id, blocked_at, reason, blocked_by)
		VALUES (?, ?, ?, ?)`,
		customerID, time.Now().In(db.loc), reason, blockedBy,
	)
	return mapErr(err)
}

// UnblockCustomer removes a customer from the blocklist.
func (db *DB) UnblockCustomer(ctx context.Context, customerID string) error {
	_, err := db.ExecContext(ctx,
		"DELETE FROM blocked_customers WHERE customer_id = ?",
		customerID,
	)
	return mapErr(err)
}

// ListBlockedCustomers returns all blocked customers, newest first.
func (db *DB) ListBlockedCustomers(ctx context.Context) ([]model.BlockedCustomer, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT customer_id, blocked_at, reason, blocked_by FROM blocked_customers ORDER BY blocked_at DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []model.BlockedCustomer
	for rows.Next() {
		var (
			bc        model.BlockedCustomer
			reason    sql.NullString
			blockedBy sql.NullString
		)
		if err := rows.Scan(&bc.CustomerID, &bc.BlockedAt, &reason, &blockedBy); err != nil {
			return nil, err
		}
		bc.Reason = reason.String
		bc.BlockedBy = blockedBy.String
		customers = append(customers, bc)
	}
	return customers, rows.Err()
}
