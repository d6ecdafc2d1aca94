package booking

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"barbershop/internal/availability"
	"barbershop/internal/cache"
	"barbershop/internal/config"
	"barbershop/internal/db"
	"barbershop/internal/model"
	"barbershop/internal/schedule"
	"barbershop/internal/slots"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testZone = time.FixedZone("shop", 3*60*60)

// Tuesday 2026-10-20 10:00 shop time.
var testNow = time.Date(2026, time.October, 20, 10, 0, 0, 0, testZone)

var (
	today    = civil.DateOf(testNow)
	tomorrow = today.AddDays(1)
)

func schedHours(start, end string) schedule.Hours {
	return schedule.Hours{Start: model.MustTimeOfDay(start), End: model.MustTimeOfDay(end)}
}

func testShop() *config.ShopConfig {
	return &config.ShopConfig{
		Closures: []config.ClosureConfig{{StartDate: "2026-10-22", Reason: "Inventory"}},
		Staff: []config.StaffConfig{
			{
				ID:        "ivan",
				Name:      "Ivan",
				Recurring: []config.RecurringConfig{{Day: 3, Time: "12:00", Label: "Petrov"}},
				Breakouts: []config.BreakoutConfig{
					{Type: model.BreakoutSingle, StartDate: "2026-10-21", StartTime: "15:00", EndTime: "16:00", Reason: "Dentist"},
				},
			},
			{
				ID:        "olga",
				Name:      "Olga",
				StartTime: "11:00",
				EndTime:   "17:00",
				DayRules:  []config.DayRuleConfig{{Day: 3, Working: false}},
			},
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, *db.DB, *cache.MemorySnapshotCache) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"), testZone, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.SyncShopFromConfig(context.Background(), testShop()))

	c := cache.NewMemorySnapshotCache(time.Hour)
	e := NewEngine(store, c, testZone, logger, WithClock(func() time.Time { return testNow }))
	return e, store, c
}

func TestEngine_DaySlots(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	key := model.SlotKey{Date: tomorrow, Time: model.MustTimeOfDay("10:00")}
	r := &model.Reservation{
		StaffID:       "ivan",
		ServiceID:     "haircut",
		CustomerID:    "c1",
		CustomerName:  "Anna",
		CustomerPhone: "79990001122",
		SlotKey:       key,
		DateTimestamp: tomorrow.In(testZone),
		TimeTimestamp: key.In(testZone),
	}
	require.NoError(t, store.CreateReservation(ctx, r, model.CreateGuard{
		Now:                   testNow,
		LastBookableDay:       today.AddDays(30),
		MaxConcurrentBookings: 5,
		MaxDailyBookings:      2,
	}))

	day, err := e.DaySlots(ctx, "ivan", tomorrow)
	require.NoError(t, err)
	assert.True(t, day.Availability.Available)
	assert.Equal(t, model.MustTimeOfDay("09:00"), day.Hours.Start)
	assert.Equal(t, model.MustTimeOfDay("19:00"), day.Hours.End)
	require.Len(t, day.Slots, 20)

	byTime := make(map[string]slots.ClassifiedSlot, len(day.Slots))
	for _, s := range day.Slots {
		byTime[s.Key.Time.String()] = s
	}
	assert.Equal(t, slots.StatusReserved, byTime["10:00"].Status)
	assert.Equal(t, slots.StatusRecurring, byTime["12:00"].Status)
	assert.Equal(t, "Petrov", byTime["12:00"].Label)
	assert.Equal(t, slots.StatusBreakout, byTime["15:00"].Status)
	assert.Equal(t, slots.StatusBreakout, byTime["15:30"].Status)
	assert.Equal(t, slots.StatusAvailable, byTime["16:00"].Status)
	assert.Equal(t, 16, day.Summary[slots.StatusAvailable])

	t.Run("today hides slots inside the lead time", func(t *testing.T) {
		day, err := e.DaySlots(ctx, "ivan", today)
		require.NoError(t, err)
		require.NotEmpty(t, day.Slots)
		assert.Equal(t, slots.StatusTooSoon, day.Slots[0].Status)
		for _, s := range day.Slots {
			if s.Key.Time >= model.MustTimeOfDay("11:00") {
				assert.Equal(t, slots.StatusAvailable, s.Status, s.Key.String())
			} else {
				assert.Equal(t, slots.StatusTooSoon, s.Status, s.Key.String())
			}
		}
	})

	t.Run("closed day has no slots", func(t *testing.T) {
		day, err := e.DaySlots(ctx, "ivan", today.AddDays(2))
		require.NoError(t, err)
		assert.False(t, day.Availability.Available)
		assert.Equal(t, availability.CodeShopClosure, day.Availability.Code)
		assert.Empty(t, day.Slots)
	})
}

func TestEngine_DateAvailability(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		staff string
		date  civil.Date
		code  availability.Code
	}{
		{"working day", "ivan", tomorrow, availability.CodeAvailable},
		{"yesterday", "ivan", today.AddDays(-1), availability.CodePast},
		{"shop closure", "ivan", today.AddDays(2), availability.CodeShopClosure},
		{"beyond horizon", "ivan", today.AddDays(31), availability.CodeBeyondHorizon},
		{"day rule off", "olga", tomorrow, availability.CodeStaffDayOff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.DateAvailability(ctx, tt.staff, tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.code, res.Code)
			assert.Equal(t, tt.code == availability.CodeAvailable, res.Available)
		})
	}

	_, err := e.DateAvailability(ctx, "ghost", tomorrow)
	assert.ErrorIs(t, err, model.ErrStaffNotFound)
}

func TestEngine_WorkHours(t *testing.T) {
	e, _, _ := newTestEngine(t)

	h, err := e.WorkHours(context.Background(), "olga", today)
	require.NoError(t, err)
	assert.Equal(t, schedHours("11:00", "17:00"), h)

	h, err = e.WorkHours(context.Background(), "ivan", today)
	require.NoError(t, err)
	assert.Equal(t, schedHours("09:00", "19:00"), h)
}

func TestEngine_InvalidateAndWatch(t *testing.T) {
	e, store, c := newTestEngine(t)
	ctx := context.Background()
	day := today.AddDays(5)

	res, err := e.DateAvailability(ctx, "ivan", day)
	require.NoError(t, err)
	require.True(t, res.Available)
	_, cached, _ := c.Get(ctx, "ivan")
	require.True(t, cached)

	_, err = store.AddClosure(ctx, model.ClosurePeriod{StaffID: "ivan", StartDate: day, EndDate: day, Reason: "Conference"})
	require.NoError(t, err)

	// The cached snapshot is served until it is invalidated.
	res, err = e.DateAvailability(ctx, "ivan", day)
	require.NoError(t, err)
	assert.True(t, res.Available)

	ch := make(chan cache.Invalidation, 1)
	ch <- cache.Invalidation{StaffID: "ivan", Reason: "closure added"}
	close(ch)
	e.Watch(ctx, ch)

	res, err = e.DateAvailability(ctx, "ivan", day)
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, availability.CodeStaffClosure, res.Code)
	assert.Equal(t, "Conference", res.Reason)

	_, err = e.DateAvailability(ctx, "olga", day)
	require.NoError(t, err)
	e.Invalidate(ctx, cache.Invalidation{Reason: "config reload"})
	_, cached, _ = c.Get(ctx, "olga")
	assert.False(t, cached)
}
