package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"barbershop/internal/model"

	"cloud.google.com/go/civil"
)

// GetShopSettings returns the stored shop settings. An empty settings value is
// returned when nothing has been saved yet, so every field falls back to defaults.
func (db *DB) GetShopSettings(ctx context.Context) (*model.ShopSettings, error) {
	var (
		s                                      model.ShopSettings
		tz, openTime, closeTime, openDays      sql.NullString
		daysAhead, minHours, maxConc, maxDaily sql.NullInt64
		interval                               sql.NullInt64
	)
	err := db.QueryRowContext(ctx, `
		SELECT timezone, open_time, close_time, open_days, max_booking_days_ahead,
		       min_hours_before_booking, max_concurrent_bookings, max_daily_bookings, slot_interval_minutes
		FROM shop_settings WHERE id = 1`,
	).Scan(&tz, &openTime, &closeTime, &openDays, &daysAhead, &minHours, &maxConc, &maxDaily, &interval)
	if errors.Is(err, sql.ErrNoRows) {
		return &s, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}

	s.Timezone = tz.String
	if s.OpenTime, err = parseNullTime(openTime); err != nil {
		return nil, fmt.Errorf("open_time: %w", err)
	}
	if s.CloseTime, err = parseNullTime(closeTime); err != nil {
		return nil, fmt.Errorf("close_time: %w", err)
	}
	if s.OpenDays, err = decodeDays(openDays); err != nil {
		return nil, fmt.Errorf("open_days: %w", err)
	}
	s.MaxBookingDaysAhead = nullInt(daysAhead)
	s.MinHoursBeforeBooking = nullInt(minHours)
	s.MaxConcurrentBookings = nullInt(maxConc)
	s.MaxDailyBookings = nullInt(maxDaily)
	s.SlotIntervalMinutes = nullInt(interval)
	return &s, nil
}

// SaveShopSettings replaces the shop settings row.
func (db *DB) SaveShopSettings(ctx context.Context, s *model.ShopSettings) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO shop_settings (
			id, timezone, open_time, close_time, open_days, max_booking_days_ahead,
			min_hours_before_booking, max_concurrent_bookings, max_daily_bookings,
			slot_interval_minutes, updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timezone = excluded.timezone,
			open_time = excluded.open_time,
			close_time = excluded.close_time,
			open_days = excluded.open_days,
			max_booking_days_ahead = excluded.max_booking_days_ahead,
			min_hours_before_booking = excluded.min_hours_before_booking,
			max_concurrent_bookings = excluded.max_concurrent_bookings,
			max_daily_bookings = excluded.max_daily_bookings,
			slot_interval_minutes = excluded.slot_interval_minutes,
			updated_at = excluded.updated_at`,
		nullString(s.Timezone), timeArg(s.OpenTime), timeArg(s.CloseTime), encodeDays(s.OpenDays),
		intArg(s.MaxBookingDaysAhead), intArg(s.MinHoursBeforeBooking),
		intArg(s.MaxConcurrentBookings), intArg(s.MaxDailyBookings),
		intArg(s.SlotIntervalMinutes), time.Now(),
	)
	return mapErr(err)
}

// GetStaffSchedule returns the schedule of an active staff member.
func (db *DB) GetStaffSchedule(ctx context.Context, staffID string) (*model.StaffSchedule, error) {
	return getStaffSchedule(ctx, db, staffID)
}

func getStaffSchedule(ctx context.Context, q queryer, staffID string) (*model.StaffSchedule, error) {
	var (
		s                       model.StaffSchedule
		workingDays, start, end sql.NullString
		minHours                sql.NullInt64
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, name, working_days, start_time, end_time, min_hours_before_booking
		FROM staff WHERE id = ? AND is_active = 1`,
		staffID,
	).Scan(&s.StaffID, &s.Name, &workingDays, &start, &end, &minHours)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrStaffNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}

	if s.WorkingDays, err = decodeDays(workingDays); err != nil {
		return nil, fmt.Errorf("staff %s working_days: %w", staffID, err)
	}
	if s.StartTime, err = parseNullTime(start); err != nil {
		return nil, fmt.Errorf("staff %s start_time: %w", staffID, err)
	}
	if s.EndTime, err = parseNullTime(end); err != nil {
		return nil, fmt.Errorf("staff %s end_time: %w", staffID, err)
	}
	s.MinHoursBeforeBooking = nullInt(minHours)

	rules, err := listDayRules(ctx, q, staffID)
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		s.DayRules = rules
	}
	return &s, nil
}

func listDayRules(ctx context.Context, q queryer, staffID string) (map[time.Weekday]model.DayRule, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT weekday, is_working, start_time, end_time FROM staff_day_rules WHERE staff_id = ?`,
		staffID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	rules := make(map[time.Weekday]model.DayRule)
	for rows.Next() {
		var (
			iso        int
			rule       model.DayRule
			start, end sql.NullString
		)
		if err := rows.Scan(&iso, &rule.IsWorking, &start, &end); err != nil {
			return nil, err
		}
		wd, ok := model.ISOWeekday(iso)
		if !ok {
			return nil, fmt.Errorf("staff %s: invalid weekday %d", staffID, iso)
		}
		if rule.StartTime, err = parseNullTime(start); err != nil {
			return nil, err
		}
		if rule.EndTime, err = parseNullTime(end); err != nil {
			return nil, err
		}
		rules[wd] = rule
	}
	return rules, rows.Err()
}

// UpsertStaff stores a staff schedule and replaces its day rules.
func (db *DB) UpsertStaff(ctx context.Context, s *model.StaffSchedule) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	// A nil WorkingDays stays NULL so the legacy schedule is treated as unset.
	var days sql.NullString
	if s.WorkingDays != nil {
		days = sql.NullString{String: joinDays(s.WorkingDays), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO staff (id, name, is_active, working_days, start_time, end_time, min_hours_before_booking, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_active = 1,
			working_days = excluded.working_days,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			min_hours_before_booking = excluded.min_hours_before_booking,
			updated_at = excluded.updated_at`,
		s.StaffID, s.Name, days, timeArg(s.StartTime), timeArg(s.EndTime), intArg(s.MinHoursBeforeBooking), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert staff %s: %w", s.StaffID, mapErr(err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM staff_day_rules WHERE staff_id = ?`, s.StaffID); err != nil {
		return fmt.Errorf("clear day rules: %w", mapErr(err))
	}
	for wd, rule := range s.DayRules {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO staff_day_rules (staff_id, weekday, is_working, start_time, end_time) VALUES (?, ?, ?, ?, ?)`,
			s.StaffID, model.ISODay(wd), rule.IsWorking, timeArg(rule.StartTime), timeArg(rule.EndTime),
		)
		if err != nil {
			return fmt.Errorf("insert day rule: %w", mapErr(err))
		}
	}

	return mapErr(tx.Commit())
}

// DeactivateStaffExcept marks every staff member not in keep as inactive.
func (db *DB) DeactivateStaffExcept(ctx context.Context, keep []string) (int64, error) {
	query := `UPDATE staff SET is_active = 0, updated_at = ? WHERE is_active = 1`
	args := []any{time.Now()}
	if len(keep) > 0 {
		query += ` AND id NOT IN (` + placeholders(len(keep)) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}

// ListActiveStaffIDs returns the ids of active staff members.
func (db *DB) ListActiveStaffIDs(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM staff WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListClosures returns closures of staffID, or shop closures when staffID is empty.
func (db *DB) ListClosures(ctx context.Context, staffID string) ([]model.ClosurePeriod, error) {
	query := `SELECT id, staff_id, start_date, end_date, reason FROM closures WHERE staff_id IS NULL ORDER BY start_date`
	var args []any
	if staffID != "" {
		query = `SELECT id, staff_id, start_date, end_date, reason FROM closures WHERE staff_id = ? ORDER BY start_date`
		args = append(args, staffID)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.ClosurePeriod
	for rows.Next() {
		var (
			c                model.ClosurePeriod
			staff, reason    sql.NullString
			startRaw, endRaw string
		)
		if err := rows.Scan(&c.ID, &staff, &startRaw, &endRaw, &reason); err != nil {
			return nil, err
		}
		if c.StartDate, err = civil.ParseDate(startRaw); err != nil {
			return nil, fmt.Errorf("closure %d start_date: %w", c.ID, err)
		}
		if c.EndDate, err = civil.ParseDate(endRaw); err != nil {
			return nil, fmt.Errorf("closure %d end_date: %w", c.ID, err)
		}
		c.StaffID = staff.String
		c.Reason = reason.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddClosure stores a closure and returns its id.
func (db *DB) AddClosure(ctx context.Context, c model.ClosurePeriod) (int64, error) {
	if c.EndDate.Before(c.StartDate) {
		return 0, fmt.Errorf("closure ends %s before it starts %s", c.EndDate, c.StartDate)
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO closures (staff_id, start_date, end_date, reason) VALUES (?, ?, ?, ?)`,
		nullString(c.StaffID), c.StartDate.String(), c.EndDate.String(), nullString(c.Reason),
	)
	if err != nil {
		return 0, mapErr(err)
	}
	return res.LastInsertId()
}

// DeleteClosure removes a closure.
func (db *DB) DeleteClosure(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM closures WHERE id = ?`, id)
	return affectedOne(res, err)
}

// ListRecurring returns the standing weekly appointments of a staff member.
func (db *DB) ListRecurring(ctx context.Context, staffID string) ([]model.RecurringAppointment, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, staff_id, weekday, time_of_day, customer_label
		FROM recurring_appointments WHERE staff_id = ? ORDER BY weekday, time_of_day`,
		staffID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.RecurringAppointment
	for rows.Next() {
		var (
			a     model.RecurringAppointment
			iso   int
			at    string
			label sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.StaffID, &iso, &at, &label); err != nil {
			return nil, err
		}
		wd, ok := model.ISOWeekday(iso)
		if !ok {
			return nil, fmt.Errorf("recurring %d: invalid weekday %d", a.ID, iso)
		}
		a.Weekday = wd
		if a.Time, err = model.ParseTimeOfDay(at); err != nil {
			return nil, fmt.Errorf("recurring %d: %w", a.ID, err)
		}
		a.CustomerLabel = label.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// AddRecurring stores a standing weekly appointment.
func (db *DB) AddRecurring(ctx context.Context, a model.RecurringAppointment) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO recurring_appointments (staff_id, weekday, time_of_day, customer_label) VALUES (?, ?, ?, ?)`,
		a.StaffID, model.ISODay(a.Weekday), a.Time.String(), nullString(a.CustomerLabel),
	)
	if err != nil {
		return 0, mapErr(err)
	}
	return res.LastInsertId()
}

// ListBreakouts returns the active breakouts of a staff member.
func (db *DB) ListBreakouts(ctx context.Context, staffID string) ([]model.Breakout, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, staff_id, breakout_type, start_time, end_time, start_date, end_date, weekday, is_active, reason
		FROM breakouts WHERE staff_id = ? AND is_active = 1 ORDER BY id`,
		staffID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.Breakout
	for rows.Next() {
		var (
			b                            model.Breakout
			start                        string
			end, startDate, endDate, why sql.NullString
			weekday                      sql.NullInt64
		)
		if err := rows.Scan(&b.ID, &b.StaffID, &b.Type, &start, &end, &startDate, &endDate, &weekday, &b.IsActive, &why); err != nil {
			return nil, err
		}
		if b.StartTime, err = model.ParseTimeOfDay(start); err != nil {
			return nil, fmt.Errorf("breakout %d: %w", b.ID, err)
		}
		if b.EndTime, err = parseNullTime(end); err != nil {
			return nil, fmt.Errorf("breakout %d: %w", b.ID, err)
		}
		if b.StartDate, err = parseNullDate(startDate); err != nil {
			return nil, fmt.Errorf("breakout %d: %w", b.ID, err)
		}
		if b.EndDate, err = parseNullDate(endDate); err != nil {
			return nil, fmt.Errorf("breakout %d: %w", b.ID, err)
		}
		if weekday.Valid {
			if wd, ok := model.ISOWeekday(int(weekday.Int64)); ok {
				b.Weekday = wd
			}
		}
		b.Reason = why.String
		out = append(out, b)
	}
	return out, rows.Err()
}

// AddBreakout stores a breakout.
func (db *DB) AddBreakout(ctx context.Context, b model.Breakout) (int64, error) {
	var weekday sql.NullInt64
	if b.Type == model.BreakoutRecurring {
		weekday = sql.NullInt64{Int64: int64(model.ISODay(b.Weekday)), Valid: true}
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO breakouts (staff_id, breakout_type, start_time, end_time, start_date, end_date, weekday, is_active, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.StaffID, b.Type, b.StartTime.String(), timeArg(b.EndTime), dateArg(b.StartDate), dateArg(b.EndDate),
		weekday, b.IsActive, nullString(b.Reason),
	)
	if err != nil {
		return 0, mapErr(err)
	}
	return res.LastInsertId()
}

// SetBreakoutActive toggles a breakout.
func (db *DB) SetBreakoutActive(ctx context.Context, id int64, active bool) error {
	res, err := db.ExecContext(ctx, `UPDATE breakouts SET is_active = ? WHERE id = ?`, active, id)
	return affectedOne(res, err)
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrConstraintNotFound
	}
	return nil
}

// ClearStaffConstraints removes closures, recurring appointments and
// breakouts of staffID, or shop closures when staffID is empty.
func (db *DB) ClearStaffConstraints(ctx context.Context, staffID string) error {
	if staffID == "" {
		_, err := db.ExecContext(ctx, `DELETE FROM closures WHERE staff_id IS NULL`)
		return mapErr(err)
	}
	for _, q := range []string{
		`DELETE FROM closures WHERE staff_id = ?`,
		`DELETE FROM recurring_appointments WHERE staff_id = ?`,
		`DELETE FROM breakouts WHERE staff_id = ?`,
	} {
		if _, err := db.ExecContext(ctx, q, staffID); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

// LoadSnapshot reads every constraint that shapes the availability of staffID.
func (db *DB) LoadSnapshot(ctx context.Context, staffID string) (*model.Snapshot, error) {
	shop, err := db.GetShopSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("shop settings: %w", err)
	}
	staff, err := db.GetStaffSchedule(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("staff schedule: %w", err)
	}
	shopClosures, err := db.ListClosures(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("shop closures: %w", err)
	}
	staffClosures, err := db.ListClosures(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("staff closures: %w", err)
	}
	recurring, err := db.ListRecurring(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("recurring: %w", err)
	}
	breakouts, err := db.ListBreakouts(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("breakouts: %w", err)
	}

	return &model.Snapshot{
		Shop:          *shop,
		ShopClosures:  shopClosures,
		Staff:         *staff,
		StaffClosures: staffClosures,
		Recurring:     recurring,
		Breakouts:     breakouts,
		LoadedAt:      time.Now().In(db.loc),
	}, nil
}

func parseNullTime(v sql.NullString) (*model.TimeOfDay, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := model.ParseTimeOfDay(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseNullDate(v sql.NullString) (*civil.Date, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func timeArg(t *model.TimeOfDay) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.String(), Valid: true}
}

func dateArg(d *civil.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func intArg(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// Weekday lists are stored as ISO day numbers, "1,2,3" for Mon-Wed.
func encodeDays(days []time.Weekday) sql.NullString {
	if len(days) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: joinDays(days), Valid: true}
}

func joinDays(days []time.Weekday) string {
	iso := make([]int, 0, len(days))
	for _, d := range days {
		iso = append(iso, model.ISODay(d))
	}
	sort.Ints(iso)
	parts := make([]string, len(iso))
	for i, n := range iso {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func decodeDays(v sql.NullString) ([]time.Weekday, error) {
	if !v.Valid {
		return nil, nil
	}
	days := []time.Weekday{}
	for _, p := range strings.Split(v.String, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parse weekday %q: %w", p, err)
		}
		wd, ok := model.ISOWeekday(n)
		if !ok {
			return nil, fmt.Errorf("invalid weekday %d", n)
		}
		days = append(days, wd)
	}
	return days, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
