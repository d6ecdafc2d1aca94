package reservation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"barbershop/internal/db"
	"barbershop/internal/events"
	"barbershop/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testZone = time.FixedZone("shop", 3*60*60)

// Tuesday 2026-10-20 10:00 shop time.
var testNow = time.Date(2026, time.October, 20, 10, 0, 0, 0, testZone)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetShopSettings(ctx context.Context) (*model.ShopSettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ShopSettings), args.Error(1)
}

func (m *mockStore) CreateReservation(ctx context.Context, r *model.Reservation, g model.CreateGuard) error {
	return m.Called(ctx, r, g).Error(0)
}

func (m *mockStore) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Reservation), args.Error(1)
}

func (m *mockStore) UpdateReservationWithVersion(ctx context.Context, id string, version int64, patch model.ReservationPatch, now time.Time) (bool, error) {
	args := m.Called(ctx, id, version, patch, now)
	return args.Bool(0), args.Error(1)
}

type capture struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capture) handler(e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capture) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *db.DB, *capture) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"), testZone, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	for _, id := range []string{"ivan", "olga"} {
		require.NoError(t, store.UpsertStaff(context.Background(), &model.StaffSchedule{StaffID: id, Name: id}))
	}

	bus := events.NewEventBus(logger)
	c := &capture{}
	bus.Subscribe(events.ReservationCreated, c.handler)
	bus.Subscribe(events.ReservationCancelled, c.handler)
	bus.Subscribe(events.ReservationUpdated, c.handler)

	svc := NewService(store, testZone, logger,
		WithClock(func() time.Time { return testNow }),
		WithPublisher(bus),
	)
	return svc, store, c
}

func validInput() Input {
	return Input{
		StaffID:       "ivan",
		ServiceID:     "haircut",
		CustomerID:    "c1",
		CustomerName:  "  Anna   Petrova ",
		CustomerPhone: "+7 (999) 000-11-22",
		Date:          "2026-10-21",
		Time:          "10:00",
	}
}

func TestService_Create(t *testing.T) {
	svc, _, captured := newTestService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, int64(1), r.Version)
	assert.Equal(t, model.StatusConfirmed, r.Status)
	assert.Equal(t, "Anna Petrova", r.CustomerName)
	assert.Equal(t, "79990001122", r.CustomerPhone)
	assert.Equal(t, "2026-10-21T10:00", r.SlotKey.String())
	assert.Equal(t, "Wednesday", r.DayName)
	assert.Equal(t, 21, r.DayNum)
	assert.Equal(t, []string{events.ReservationCreated}, captured.types())

	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.ID, got.ID)
}

func TestService_Create_Conflicts(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	tests := []struct {
		name  string
		setup func(t *testing.T)
		input func() Input
		code  Code
	}{
		{
			name: "slot taken by another customer",
			input: func() Input {
				in := validInput()
				in.CustomerID = "c2"
				return in
			},
			code: CodeSlotTaken,
		},
		{
			name: "same customer with another barber",
			input: func() Input {
				in := validInput()
				in.StaffID = "olga"
				return in
			},
			code: CodeDoubleBooking,
		},
		{
			name: "walk-in on a taken slot",
			input: func() Input {
				in := validInput()
				in.CustomerID = ""
				return in
			},
			code: CodeSlotTaken,
		},
		{
			name: "daily limit",
			setup: func(t *testing.T) {
				in := validInput()
				in.Time = "12:00"
				_, err := svc.Create(ctx, in)
				require.NoError(t, err)
			},
			input: func() Input {
				in := validInput()
				in.Time = "15:00"
				return in
			},
			code: CodeMaxBookings,
		},
		{
			name: "blocked customer",
			setup: func(t *testing.T) {
				require.NoError(t, store.BlockCustomer(ctx, "bad", "no-show", "admin"))
			},
			input: func() Input {
				in := validInput()
				in.CustomerID = "bad"
				in.Time = "17:00"
				return in
			},
			code: CodeCustomerBlocked,
		},
		{
			name: "slot in the past",
			input: func() Input {
				in := validInput()
				in.CustomerID = "c3"
				in.Date = "2026-10-20"
				in.Time = "09:30"
				return in
			},
			code: CodeDateOutOfRange,
		},
		{
			name: "beyond horizon",
			input: func() Input {
				in := validInput()
				in.CustomerID = "c3"
				in.Date = "2026-12-20"
				return in
			},
			code: CodeDateOutOfRange,
		},
		{
			name: "time between slots",
			input: func() Input {
				in := validInput()
				in.CustomerID = "c4"
				in.Time = "10:15"
				return in
			},
			code: CodeValidation,
		},
		{
			name: "unknown barber",
			input: func() Input {
				in := validInput()
				in.StaffID = "nobody"
				in.CustomerID = "c4"
				in.Time = "11:00"
				return in
			},
			code: CodeNotFound,
		},
		{
			name: "invalid phone",
			input: func() Input {
				in := validInput()
				in.CustomerPhone = "12-34"
				return in
			},
			code: CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup(t)
			}
			r, err := svc.Create(ctx, tt.input())
			require.Error(t, err)
			assert.Nil(t, r)
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestService_Create_OffGridField(t *testing.T) {
	svc, _, captured := newTestService(t)

	in := validInput()
	in.Time = "10:15"
	r, err := svc.Create(context.Background(), in)
	require.Error(t, err)
	assert.Nil(t, r)

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, CodeValidation, re.Code)
	assert.Equal(t, "time", re.Field)
	assert.ErrorIs(t, err, model.ErrSlotNotOnGrid)
	assert.Empty(t, captured.types())
}

func TestService_Cancel_OptimisticLock(t *testing.T) {
	svc, _, captured := newTestService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	require.Equal(t, int64(1), r.Version)

	stale := r.Version + 100
	out, err := svc.Cancel(ctx, r.ID, model.CancelledByCustomer, "", &stale)
	require.NoError(t, err)
	assert.False(t, out.Changed)
	require.NotNil(t, out.Reservation)
	assert.Equal(t, model.StatusConfirmed, out.Reservation.Status)
	assert.Equal(t, int64(1), out.Reservation.Version)

	version := int64(1)
	out, err = svc.Cancel(ctx, r.ID, model.CancelledByBarber, "sick", &version)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, model.StatusCancelled, out.Reservation.Status)
	assert.Equal(t, model.CancelledByBarber, out.Reservation.CancelledBy)
	assert.Equal(t, "sick", out.Reservation.CancellationReason)
	assert.Equal(t, int64(2), out.Reservation.Version)

	// A second cancel with the new version is a no-op: the row is no longer confirmed.
	version = 2
	out, err = svc.Cancel(ctx, r.ID, "", "", &version)
	require.NoError(t, err)
	assert.False(t, out.Changed)

	assert.Equal(t, []string{events.ReservationCreated, events.ReservationCancelled}, captured.types())

	// The slot is free again.
	in := validInput()
	in.CustomerID = "c2"
	_, err = svc.Create(ctx, in)
	assert.NoError(t, err)
}

func TestService_Cancel_ConcurrentSameVersion(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	const workers = 5
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := int64(1)
			out, err := svc.Cancel(ctx, r.ID, model.CancelledByCustomer, "", &v)
			assert.NoError(t, err)
			if out.Changed {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, changed)
	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestService_Cancel_LatestVersion(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	out, err := svc.Cancel(ctx, r.ID, "", "", nil)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, model.CancelledByCustomer, out.Reservation.CancelledBy)

	_, err = svc.Cancel(ctx, "missing", "", "", nil)
	assert.Equal(t, CodeNotFound, CodeOf(err))

	v := int64(3)
	_, err = svc.Cancel(ctx, "missing", "", "", &v)
	assert.Equal(t, CodeNotFound, CodeOf(err))

	_, err = svc.Cancel(ctx, r.ID, "robot", "", nil)
	assert.Equal(t, CodeValidation, CodeOf(err))
}

func TestService_Update(t *testing.T) {
	svc, _, captured := newTestService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	t.Run("rejects invalid patches", func(t *testing.T) {
		confirmed := model.StatusConfirmed
		bad := "x"
		for _, p := range []model.ReservationPatch{
			{},
			{Status: &confirmed},
			{CustomerName: &bad},
		} {
			_, err := svc.Update(ctx, r.ID, p, nil)
			assert.Equal(t, CodeValidation, CodeOf(err))
		}
	})

	t.Run("changes fields and bumps version", func(t *testing.T) {
		service := "beard"
		phone := "8 999 111 22 33"
		v := int64(1)
		out, err := svc.Update(ctx, r.ID, model.ReservationPatch{ServiceID: &service, CustomerPhone: &phone}, &v)
		require.NoError(t, err)
		assert.True(t, out.Changed)
		assert.Equal(t, "beard", out.Reservation.ServiceID)
		assert.Equal(t, "89991112233", out.Reservation.CustomerPhone)
		assert.Equal(t, int64(2), out.Reservation.Version)
	})

	t.Run("completes", func(t *testing.T) {
		completed := model.StatusCompleted
		out, err := svc.Update(ctx, r.ID, model.ReservationPatch{Status: &completed}, nil)
		require.NoError(t, err)
		assert.True(t, out.Changed)
		assert.Equal(t, model.StatusCompleted, out.Reservation.Status)

		out, err = svc.Update(ctx, r.ID, model.ReservationPatch{Status: &completed}, nil)
		require.NoError(t, err)
		assert.False(t, out.Changed)
	})

	assert.Equal(t, []string{
		events.ReservationCreated,
		events.ReservationUpdated,
		events.ReservationUpdated,
	}, captured.types())
}

func TestService_Get(t *testing.T) {
	svc, _, _ := newTestService(t)

	r, err := svc.Get(context.Background(), "unknown-id")
	assert.NoError(t, err)
	assert.Nil(t, r)

	_, err = svc.Get(context.Background(), "bad id!")
	assert.Equal(t, CodeValidation, CodeOf(err))
}

func TestService_Create_Retry(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()
	busy := fmt.Errorf("%w: database is locked", model.ErrTransient)
	retry := RetryConfig{MaxRetries: 2, RetryDelays: []time.Duration{time.Millisecond}}

	tests := []struct {
		name      string
		results   []error
		wantCode  Code
		wantCalls int
	}{
		{
			name:      "recovers after transient errors",
			results:   []error{busy, busy, nil},
			wantCalls: 3,
		},
		{
			name:      "gives up after max retries",
			results:   []error{busy, busy, busy},
			wantCode:  CodeTransient,
			wantCalls: 3,
		},
		{
			name:      "conflicts are not retried",
			results:   []error{model.ErrSlotAlreadyTaken},
			wantCode:  CodeSlotTaken,
			wantCalls: 1,
		},
		{
			name:      "other storage errors",
			results:   []error{errors.New("disk I/O error")},
			wantCode:  CodeDatabase,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mockStore)
			store.On("GetShopSettings", mock.Anything).Return(&model.ShopSettings{}, nil)
			for _, res := range tt.results {
				store.On("CreateReservation", mock.Anything, mock.Anything, mock.Anything).Return(res).Once()
			}

			svc := NewService(store, testZone, logger,
				WithClock(func() time.Time { return testNow }),
				WithRetry(retry),
			)
			_, err := svc.Create(ctx, validInput())
			if tt.wantCode == "" {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.wantCode, CodeOf(err))
			}
			store.AssertNumberOfCalls(t, "CreateReservation", tt.wantCalls)
		})
	}
}

func TestService_Create_GuardFromShopSettings(t *testing.T) {
	logger := zerolog.New(io.Discard)
	store := new(mockStore)

	days, maxConcurrent, maxDaily := 7, 3, 1
	store.On("GetShopSettings", mock.Anything).Return(&model.ShopSettings{
		Timezone:              "UTC",
		MaxBookingDaysAhead:   &days,
		MaxConcurrentBookings: &maxConcurrent,
		MaxDailyBookings:      &maxDaily,
	}, nil)

	var guard model.CreateGuard
	store.On("CreateReservation", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			guard = args.Get(2).(model.CreateGuard)
		}).
		Return(nil).Once()

	svc := NewService(store, testZone, logger, WithClock(func() time.Time { return testNow }))
	r, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, time.UTC, guard.Now.Location())
	assert.Equal(t, "2026-10-27", guard.LastBookableDay.String())
	assert.Equal(t, 3, guard.MaxConcurrentBookings)
	assert.Equal(t, 1, guard.MaxDailyBookings)
	assert.Equal(t, time.UTC, r.TimeTimestamp.Location())
	store.AssertExpectations(t)
}

func TestService_UpdateStaleDoesNotRetry(t *testing.T) {
	logger := zerolog.New(io.Discard)
	store := new(mockStore)
	current := &model.Reservation{ID: "r1", Status: model.StatusConfirmed, Version: 4}

	store.On("UpdateReservationWithVersion", mock.Anything, "r1", int64(3), mock.Anything, testNow).Return(false, nil).Once()
	store.On("GetReservation", mock.Anything, "r1").Return(current, nil).Once()

	svc := NewService(store, testZone, logger, WithClock(func() time.Time { return testNow }))
	v := int64(3)
	out, err := svc.Cancel(context.Background(), "r1", "", "", &v)
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, int64(4), out.Reservation.Version)
	store.AssertExpectations(t)
}

func TestService_Cancel_PublishesWhenReReadFails(t *testing.T) {
	logger := zerolog.New(io.Discard)
	store := new(mockStore)
	before := &model.Reservation{
		ID:           "r1",
		StaffID:      "ivan",
		CustomerName: "Anna",
		Status:       model.StatusConfirmed,
		Version:      2,
	}

	store.On("GetReservation", mock.Anything, "r1").Return(before, nil).Once()
	store.On("UpdateReservationWithVersion", mock.Anything, "r1", int64(2), mock.Anything, testNow).Return(true, nil).Once()
	store.On("GetReservation", mock.Anything, "r1").Return(nil, errors.New("disk I/O error")).Once()

	bus := events.NewEventBus(logger)
	c := &capture{}
	bus.Subscribe(events.ReservationCancelled, c.handler)

	svc := NewService(store, testZone, logger, WithClock(func() time.Time { return testNow }), WithPublisher(bus))
	out, err := svc.Cancel(context.Background(), "r1", model.CancelledByBarber, "sick", nil)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	require.NotNil(t, out.Reservation)
	assert.Equal(t, int64(3), out.Reservation.Version)
	assert.Equal(t, model.StatusCancelled, out.Reservation.Status)
	assert.Equal(t, model.CancelledByBarber, out.Reservation.CancelledBy)
	assert.Equal(t, "sick", out.Reservation.CancellationReason)
	assert.Equal(t, "ivan", out.Reservation.StaffID)

	require.Equal(t, []string{events.ReservationCancelled}, c.types())
	var published model.Reservation
	require.NoError(t, c.events[0].Decode(&published))
	assert.Equal(t, int64(3), published.Version)
	assert.Equal(t, "Anna", published.CustomerName)
	store.AssertExpectations(t)
}
