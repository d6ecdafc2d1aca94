package db

import (
	"context"
	"database/sql"

	"barbershop/internal/model"
)

// AppendHistory records a reservation change. An entry whose event id is
// already stored is ignored.
func (db *DB) AppendHistory(ctx context.Context, e model.HistoryEntry) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reservation_history
			(event_id, reservation_id, event_type, status, version, actor, reason, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.ReservationID, e.EventType, e.Status, e.Version,
		nullString(e.Actor), nullString(e.Reason), e.RecordedAt.In(db.loc),
	)
	return mapErr(err)
}

// ListHistory returns the recorded changes of a reservation, oldest first.
func (db *DB) ListHistory(ctx context.Context, reservationID string) ([]model.HistoryEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, event_id, reservation_id, event_type, status, version, actor, reason, recorded_at
		FROM reservation_history WHERE reservation_id = ? ORDER BY id`,
		reservationID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		var (
			e             model.HistoryEntry
			actor, reason sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.ReservationID, &e.EventType, &e.Status, &e.Version, &actor, &reason, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Actor = actor.String
		e.Reason = reason.String
		e.RecordedAt = e.RecordedAt.In(db.loc)
		out = append(out, e)
	}
	return out, rows.Err()
}
