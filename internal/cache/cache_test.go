package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"barbershop/internal/events"
	"barbershop/internal/model"

	"cloud.google.com/go/civil"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func testSnapshot(staffID string) *model.Snapshot {
	open := model.MustTimeOfDay("10:00")
	closeAt := model.MustTimeOfDay("20:00")
	days := 14
	start := civil.Date{Year: 2026, Month: time.November, Day: 2}
	return &model.Snapshot{
		Shop: model.ShopSettings{
			Timezone:            "Europe/Moscow",
			OpenTime:            &open,
			CloseTime:           &closeAt,
			OpenDays:            []time.Weekday{time.Monday, time.Saturday},
			MaxBookingDaysAhead: &days,
		},
		ShopClosures: []model.ClosurePeriod{
			{ID: 1, StartDate: start, EndDate: start.AddDays(2), Reason: "renovation"},
		},
		Staff: model.StaffSchedule{
			StaffID:     staffID,
			WorkingDays: []time.Weekday{},
			DayRules: map[time.Weekday]model.DayRule{
				time.Saturday: {IsWorking: true, StartTime: &open, EndTime: &closeAt},
			},
		},
		Breakouts: []model.Breakout{
			{ID: 3, StaffID: staffID, Type: model.BreakoutRecurring, StartTime: model.MustTimeOfDay("13:00"), Weekday: time.Saturday, IsActive: true},
		},
		LoadedAt: time.Date(2026, time.October, 20, 7, 0, 0, 0, time.UTC),
	}
}

func TestRedisSnapshotCache(t *testing.T) {
	mr, rdb := newRedis(t)
	c := NewRedisSnapshotCache(rdb, time.Minute)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "ivan")
	require.NoError(t, err)
	assert.False(t, ok)

	want := testSnapshot("ivan")
	require.NoError(t, c.Set(ctx, "ivan", want))
	require.NoError(t, c.Set(ctx, "olga", testSnapshot("olga")))
	assert.True(t, mr.Exists("constraints:ivan"))

	got, ok, err := c.Get(ctx, "ivan")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Shop, got.Shop)
	assert.Equal(t, want.ShopClosures, got.ShopClosures)
	assert.Equal(t, want.Staff, got.Staff)
	assert.Equal(t, want.Breakouts, got.Breakouts)
	assert.NotNil(t, got.Staff.WorkingDays)
	assert.True(t, want.LoadedAt.Equal(got.LoadedAt))

	t.Run("expires", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		_, ok, err := c.Get(ctx, "ivan")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete one", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "ivan", want))
		require.NoError(t, c.Set(ctx, "olga", want))
		require.NoError(t, c.Delete(ctx, "ivan"))
		assert.False(t, mr.Exists("constraints:ivan"))
		assert.True(t, mr.Exists("constraints:olga"))
	})

	t.Run("delete all keeps other keys", func(t *testing.T) {
		require.NoError(t, mr.Set("session:1", "x"))
		require.NoError(t, c.Set(ctx, "ivan", want))
		require.NoError(t, c.Delete(ctx))
		assert.False(t, mr.Exists("constraints:ivan"))
		assert.False(t, mr.Exists("constraints:olga"))
		assert.True(t, mr.Exists("session:1"))
		require.NoError(t, c.Delete(ctx))
	})

	t.Run("corrupt entry is a miss", func(t *testing.T) {
		require.NoError(t, mr.Set("constraints:bad", "{"))
		_, ok, err := c.Get(ctx, "bad")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemorySnapshotCache(t *testing.T) {
	c := NewMemorySnapshotCache(time.Minute)
	now := time.Date(2026, time.October, 20, 7, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	snap := testSnapshot("ivan")
	require.NoError(t, c.Set(ctx, "ivan", snap))
	require.NoError(t, c.Set(ctx, "olga", snap))

	got, ok, err := c.Get(ctx, "ivan")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, snap, got)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "ivan")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "ivan", snap))
	require.NoError(t, c.Delete(ctx, "ivan"))
	_, ok, _ = c.Get(ctx, "ivan")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "ivan", snap))
	require.NoError(t, c.Delete(ctx))
	_, ok, _ = c.Get(ctx, "ivan")
	assert.False(t, ok)
}

func TestRedisNotifier(t *testing.T) {
	_, rdb := newRedis(t)
	logger := zerolog.New(io.Discard)
	n := NewRedisNotifier(rdb, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := n.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, rdb.Publish(ctx, Channel, "not json").Err())
	require.NoError(t, n.Publish(ctx, Invalidation{StaffID: "ivan", Reason: "closure added"}))

	select {
	case inv := <-ch:
		assert.Equal(t, "ivan", inv.StaffID)
		assert.Equal(t, "closure added", inv.Reason)
		assert.False(t, inv.At.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("invalidation not delivered")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLocalNotifier(t *testing.T) {
	bus := events.NewEventBus(zerolog.New(io.Discard))
	n := NewLocalNotifier(bus)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := n.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, n.Publish(ctx, Invalidation{Reason: "config reload"}))
	inv := <-ch
	assert.Empty(t, inv.StaffID)
	assert.Equal(t, "config reload", inv.Reason)

	cancel()
	_, ok := <-ch
	for ok {
		_, ok = <-ch
	}
	// Publishing after the subscriber is gone must not panic.
	require.NoError(t, n.Publish(context.Background(), Invalidation{Reason: "late"}))
}
