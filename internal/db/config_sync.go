package db

import (
	"context"
	"fmt"

	"barbershop/internal/config"
)

// SyncShopFromConfig applies shop.yaml to the database. It replaces shop
// settings and closures, upserts every staff member with their closures,
// recurring appointments and breakouts, and marks missing staff inactive.
// Reservations are never touched.
func (db *DB) SyncShopFromConfig(ctx context.Context, cfg *config.ShopConfig) error {
	if cfg == nil {
		return fmt.Errorf("shop config is nil")
	}

	settings := cfg.Settings()
	if err := db.SaveShopSettings(ctx, &settings); err != nil {
		return fmt.Errorf("sync shop settings: %w", err)
	}

	if err := db.ClearStaffConstraints(ctx, ""); err != nil {
		return fmt.Errorf("clear shop closures: %w", err)
	}
	for _, c := range cfg.ShopClosures() {
		if _, err := db.AddClosure(ctx, c); err != nil {
			return fmt.Errorf("sync shop closure %s: %w", c.StartDate, err)
		}
	}

	keep := make([]string, 0, len(cfg.Staff))
	for i := range cfg.Staff {
		st := &cfg.Staff[i]
		sched := st.Schedule()
		if err := db.UpsertStaff(ctx, &sched); err != nil {
			return fmt.Errorf("sync staff %s: %w", st.ID, err)
		}
		if err := db.ClearStaffConstraints(ctx, st.ID); err != nil {
			return fmt.Errorf("clear staff %s constraints: %w", st.ID, err)
		}
		for _, c := range st.StaffClosures() {
			if _, err := db.AddClosure(ctx, c); err != nil {
				return fmt.Errorf("sync staff %s closure: %w", st.ID, err)
			}
		}
		for _, a := range st.RecurringAppointments() {
			if _, err := db.AddRecurring(ctx, a); err != nil {
				return fmt.Errorf("sync staff %s recurring: %w", st.ID, err)
			}
		}
		for _, b := range st.BreakoutList() {
			if _, err := db.AddBreakout(ctx, b); err != nil {
				return fmt.Errorf("sync staff %s breakout: %w", st.ID, err)
			}
		}
		keep = append(keep, st.ID)
	}

	// Deactivate staff that disappeared from config.
	n, err := db.DeactivateStaffExcept(ctx, keep)
	if err != nil {
		return fmt.Errorf("deactivate staff: %w", err)
	}

	if db.logger != nil {
		db.logger.Info().
			Int("staff", len(keep)).
			Int64("deactivated", n).
			Msg("Shop config synced")
	}
	return nil
}
