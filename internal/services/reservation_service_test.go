package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sawaari/driveshare-backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.SeatEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.SeatEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []models.SeatEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.SeatEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	store   *memoryStore
	clock   *testClock
	events  *recordingPublisher
	sweeper *ExpirySweeper
	service *ReservationService
	owner   models.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		store:  newMemoryStore(),
		clock:  &testClock{now: time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)},
		events: &recordingPublisher{},
		owner:  models.Actor{UserID: uuid.New(), Role: models.RoleDriver, Gender: "female"},
	}
	f.sweeper = NewExpirySweeper(f.store, f.events, f.clock.Now, logger)

	config := DefaultReservationConfig()
	config.Now = f.clock.Now
	f.service = NewReservationService(f.store, f.sweeper, DefaultAccessPolicy{}, f.events, config, logger)
	return f
}

func (f *fixture) newTrip(capacity int, pink bool) models.Trip {
	return f.store.addTrip(models.Trip{
		OwnerID:        f.owner.UserID,
		Source:         "Pune",
		Destination:    "Mumbai",
		TripDate:       time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		TripTime:       "08:30",
		Capacity:       capacity,
		AvailableSeats: capacity,
		PricePerSeat:   249.5,
		Status:         models.TripStatusOpen,
		PinkMode:       pink,
	})
}

func rider(gender string) models.Actor {
	return models.Actor{UserID: uuid.New(), Role: models.RoleRider, Gender: gender}
}

func (f *fixture) assertInvariant(t *testing.T, tripID uuid.UUID) {
	t.Helper()
	report, err := f.store.CheckConsistency(context.Background(), tripID)
	require.NoError(t, err)
	assert.True(t, report.Consistent, "seat ledger drifted: %+v", report)
}

func TestCreateBooking_CapacityScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	trip := f.newTrip(3, false)
	riderA, riderB := rider("male"), rider("female")

	// A holds 2 of 3
	resA, err := f.service.CreateBooking(ctx, trip.ID, riderA, 2)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, resA.Status)
	assert.Equal(t, f.clock.Now().Add(30*time.Second), resA.Deadline)
	assert.Equal(t, 30, resA.ExpiresInSeconds)
	assert.Equal(t, 499.0, resA.TotalAmount)
	assert.Equal(t, "INR", resA.Currency)
	assert.Equal(t, 1, f.store.trip(trip.ID).AvailableSeats)
	assert.Equal(t, models.TripStatusOpen, f.store.trip(trip.ID).Status)
	f.assertInvariant(t, trip.ID)

	// B asks for 2, only 1 left
	_, err = f.service.CreateBooking(ctx, trip.ID, riderB, 2)
	assert.True(t, errors.Is(err, models.ErrInsufficientSeats))
	assert.Contains(t, err.Error(), "only 1 available")
	f.assertInvariant(t, trip.ID)

	// B takes the last seat 10s later
	f.clock.Advance(10 * time.Second)
	resB, err := f.service.CreateBooking(ctx, trip.ID, riderB, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, f.store.trip(trip.ID).AvailableSeats)
	assert.Equal(t, models.TripStatusFull, f.store.trip(trip.ID).Status)
	f.assertInvariant(t, trip.ID)

	// A's window lapses, B's has 9s left; the next read sweeps
	f.clock.Advance(21 * time.Second)
	details, err := f.service.SweepAndList(ctx, ScopeTrip(trip.ID), f.owner)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, 2, details[0].Trip.AvailableSeats)
	assert.Equal(t, models.TripStatusOpen, details[0].Trip.Status)
	f.assertInvariant(t, trip.ID)

	expired := f.store.booking(resA.BookingID)
	assert.Equal(t, models.BookingStatusCancelled, expired.Status)
	assert.True(t, expired.WasExpired())
	assert.Nil(t, expired.ExpiresAt)

	held := f.store.booking(resB.BookingID)
	assert.Equal(t, models.BookingStatusPending, held.Status)
	assert.False(t, held.WasExpired())
}

// memoryStore serialises whole transactions, so this covers the service flow only.
// The SQL conditional update under contention is covered by the integration-tagged
// TestReserveSeats_ConcurrentRidersOnPostgres in internal/database.
func TestCreateBooking_NoOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	trip := f.newTrip(1, false)

	const attempts = 20
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		successes    int
		insufficient int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.CreateBooking(ctx, trip.ID, rider("female"), 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, models.ErrInsufficientSeats):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, insufficient)
	assert.Equal(t, 0, f.store.trip(trip.ID).AvailableSeats)
	assert.Equal(t, models.TripStatusFull, f.store.trip(trip.ID).Status)
	f.assertInvariant(t, trip.ID)
}

func TestCreateBooking_Duplicate(t *testing.T) {
	ctx := context.Background()

	t.Run("Sequential", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(4, false)
		r := rider("male")

		_, err := f.service.CreateBooking(ctx, trip.ID, r, 1)
		require.NoError(t, err)

		_, err = f.service.CreateBooking(ctx, trip.ID, r, 1)
		assert.True(t, errors.Is(err, models.ErrDuplicateBooking))
		assert.Equal(t, 3, f.store.trip(trip.ID).AvailableSeats)
	})

	t.Run("Concurrent", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(5, false)
		r := rider("male")

		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			successes  int
			duplicates int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.service.CreateBooking(ctx, trip.ID, r, 1)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
				} else if errors.Is(err, models.ErrDuplicateBooking) {
					duplicates++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, 9, duplicates)
		assert.Equal(t, 4, f.store.trip(trip.ID).AvailableSeats)
		f.assertInvariant(t, trip.ID)
	})

	t.Run("Allowed Again After Cancel", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(2, false)
		r := rider("male")

		res, err := f.service.CreateBooking(ctx, trip.ID, r, 1)
		require.NoError(t, err)
		require.NoError(t, f.service.CancelBooking(ctx, res.BookingID, r))

		_, err = f.service.CreateBooking(ctx, trip.ID, r, 2)
		require.NoError(t, err)
		f.assertInvariant(t, trip.ID)
	})
}

func TestCreateBooking_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(f *fixture) (uuid.UUID, models.Actor, int)
		want  error
	}{
		{
			name: "Pink Mode Male Rider",
			setup: func(f *fixture) (uuid.UUID, models.Actor, int) {
				return f.newTrip(3, true).ID, rider("male"), 1
			},
			want: models.ErrAccessDenied,
		},
		{
			name: "Driver Role",
			setup: func(f *fixture) (uuid.UUID, models.Actor, int) {
				return f.newTrip(3, false).ID, models.Actor{UserID: uuid.New(), Role: models.RoleDriver}, 1
			},
			want: models.ErrAccessDenied,
		},
		{
			name: "Own Trip",
			setup: func(f *fixture) (uuid.UUID, models.Actor, int) {
				owner := f.owner
				owner.Role = models.RoleRider
				return f.newTrip(3, false).ID, owner, 1
			},
			want: models.ErrAccessDenied,
		},
		{
			name: "Cancelled Trip",
			setup: func(f *fixture) (uuid.UUID, models.Actor, int) {
				trip := f.newTrip(3, false)
				trip.Status = models.TripStatusCancelled
				f.store.addTrip(trip)
				return trip.ID, rider("female"), 1
			},
			want: models.ErrTripUnavailable,
		},
		{
			name: "Completed Trip",
			setup: func(f *fixture) (uuid.UUID, models.Actor, int) {
				trip := f.newTrip(3, false)
				trip.Status = models.TripStatusCompleted
				f.store.addTrip(trip)
				return trip.ID, rider("female"), 1
			},
			want: models.ErrTripUnavailable,
		},
		{
			name: "Unknown Trip",
			setup: func(f *fixture) (uuid.UUID, models.Actor, int) {
				return uuid.New(), rider("female"), 1
			},
			want: models.ErrNotFound,
		},
		{
			name: "Zero Seats",
			setup: func(f *fixture) (uuid.UUID, models.Actor, int) {
				return f.newTrip(3, false).ID, rider("female"), 0
			},
			want: models.ErrInvalidRequest,
		},
		{
			name: "More Than Capacity",
			setup: func(f *fixture) (uuid.UUID, models.Actor, int) {
				return f.newTrip(3, false).ID, rider("female"), 4
			},
			want: models.ErrInsufficientSeats,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tripID, actor, seats := tt.setup(f)

			res, err := f.service.CreateBooking(ctx, tripID, actor, seats)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			if trip := f.store.trip(tripID); trip.ID != uuid.Nil {
				assert.Equal(t, trip.Capacity, trip.AvailableSeats)
			}
		})
	}

	t.Run("Pink Mode Female Rider", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(3, true)

		_, err := f.service.CreateBooking(ctx, trip.ID, rider("Female"), 1)
		require.NoError(t, err)
	})
}

func TestCreateBooking_RollsBackOnInsertFailure(t *testing.T) {
	f := newFixture(t)
	trip := f.newTrip(3, false)
	f.store.insertErr = errors.New("connection reset")

	_, err := f.service.CreateBooking(context.Background(), trip.ID, rider("female"), 2)
	require.Error(t, err)
	assert.Empty(t, models.KindOf(err))
	assert.Equal(t, 3, f.store.trip(trip.ID).AvailableSeats)
	f.assertInvariant(t, trip.ID)
}

func TestSweepTrip(t *testing.T) {
	ctx := context.Background()

	t.Run("Restores Seats And Reopens", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(2, false)

		res, err := f.service.CreateBooking(ctx, trip.ID, rider("female"), 2)
		require.NoError(t, err)
		assert.Equal(t, models.TripStatusFull, f.store.trip(trip.ID).Status)

		f.clock.Advance(30 * time.Second)
		result, err := f.sweeper.SweepTrip(ctx, trip.ID)
		require.NoError(t, err)
		assert.Empty(t, result.Expired, "deadline itself is not lapsed")

		f.clock.Advance(time.Second)
		result, err = f.sweeper.SweepTrip(ctx, trip.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{res.BookingID}, result.Expired)
		assert.Equal(t, 2, result.SeatsReleased)
		assert.Equal(t, 2, f.store.trip(trip.ID).AvailableSeats)
		assert.Equal(t, models.TripStatusOpen, f.store.trip(trip.ID).Status)
		f.assertInvariant(t, trip.ID)
		assert.Contains(t, f.events.types(), models.EventBookingExpired)
	})

	t.Run("Idempotent", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(3, false)

		_, err := f.service.CreateBooking(ctx, trip.ID, rider("female"), 2)
		require.NoError(t, err)
		f.clock.Advance(time.Minute)

		first, err := f.sweeper.SweepTrip(ctx, trip.ID)
		require.NoError(t, err)
		assert.Len(t, first.Expired, 1)
		after := f.store.trip(trip.ID)

		second, err := f.sweeper.SweepTrip(ctx, trip.ID)
		require.NoError(t, err)
		assert.Empty(t, second.Expired)
		assert.Zero(t, second.SeatsReleased)
		assert.Equal(t, after, f.store.trip(trip.ID))
		f.assertInvariant(t, trip.ID)
	})

	t.Run("Leaves Confirmed Bookings", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(3, false)
		r := rider("female")

		res, err := f.service.CreateBooking(ctx, trip.ID, r, 2)
		require.NoError(t, err)
		_, err = f.service.ConfirmBooking(ctx, res.BookingID, r.UserID, models.PaymentDetails{})
		require.NoError(t, err)

		f.clock.Advance(time.Hour)
		result, err := f.sweeper.SweepTrip(ctx, trip.ID)
		require.NoError(t, err)
		assert.Empty(t, result.Expired)
		assert.Equal(t, 1, f.store.trip(trip.ID).AvailableSeats)
	})

	t.Run("Unknown Trip", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.sweeper.SweepTrip(ctx, uuid.New())
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})
}

func TestSweepAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first, second, idle := f.newTrip(2, false), f.newTrip(3, false), f.newTrip(1, false)

	past := f.newTrip(2, false)
	past.TripDate = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	f.store.addTrip(past)

	_, err := f.service.CreateBooking(ctx, first.ID, rider("female"), 2)
	require.NoError(t, err)
	_, err = f.service.CreateBooking(ctx, second.ID, rider("female"), 1)
	require.NoError(t, err)
	_, err = f.service.CreateBooking(ctx, second.ID, rider("male"), 1)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	result, err := f.sweeper.SweepAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TripsSwept)
	assert.Len(t, result.Expired, 3)
	assert.Equal(t, 4, result.SeatsReleased)
	assert.Equal(t, int64(1), result.TripsCompleted)
	assert.Equal(t, models.TripStatusCompleted, f.store.trip(past.ID).Status)
	for _, id := range []uuid.UUID{first.ID, second.ID, idle.ID} {
		f.assertInvariant(t, id)
	}
}

func TestConfirmBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("Success With Payment Defaults", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(3, false)
		r := rider("female")
		res, err := f.service.CreateBooking(ctx, trip.ID, r, 2)
		require.NoError(t, err)

		f.clock.Advance(29 * time.Second)
		conf, err := f.service.ConfirmBooking(ctx, res.BookingID, r.UserID, models.PaymentDetails{})
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusConfirmed, conf.Status)
		require.NotNil(t, conf.Payment)
		assert.Equal(t, 499.0, conf.Payment.Amount)
		assert.Equal(t, models.PaymentModeUPI, conf.Payment.Mode)
		assert.Regexp(t, `^TXN-[0-9A-F]{8}$`, conf.Payment.Reference)

		booking := f.store.booking(res.BookingID)
		assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
		assert.Nil(t, booking.ExpiresAt)
		assert.Equal(t, 1, f.store.trip(trip.ID).AvailableSeats)
		f.assertInvariant(t, trip.ID)
	})

	t.Run("Explicit Payment Details", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(3, false)
		r := rider("female")
		res, err := f.service.CreateBooking(ctx, trip.ID, r, 1)
		require.NoError(t, err)

		conf, err := f.service.ConfirmBooking(ctx, res.BookingID, r.UserID, models.PaymentDetails{
			Amount: 200, Mode: models.PaymentModeCard, Reference: "pay_123",
		})
		require.NoError(t, err)
		assert.Equal(t, 200.0, conf.Payment.Amount)
		assert.Equal(t, models.PaymentModeCard, conf.Payment.Mode)
		assert.Equal(t, "pay_123", conf.Payment.Reference)
	})

	t.Run("After Expiry", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(2, false)
		r := rider("female")
		res, err := f.service.CreateBooking(ctx, trip.ID, r, 2)
		require.NoError(t, err)

		f.clock.Advance(31 * time.Second)
		conf, err := f.service.ConfirmBooking(ctx, res.BookingID, r.UserID, models.PaymentDetails{})
		assert.Nil(t, conf)
		assert.True(t, errors.Is(err, models.ErrBookingExpired))

		booking := f.store.booking(res.BookingID)
		assert.Equal(t, models.BookingStatusCancelled, booking.Status)
		assert.True(t, booking.WasExpired())
		assert.Empty(t, f.store.paymentsFor(res.BookingID))
		assert.Equal(t, 2, f.store.trip(trip.ID).AvailableSeats)
		assert.Equal(t, models.TripStatusOpen, f.store.trip(trip.ID).Status)
		f.assertInvariant(t, trip.ID)

		// Retried confirm keeps reporting expiry
		_, err = f.service.ConfirmBooking(ctx, res.BookingID, r.UserID, models.PaymentDetails{})
		assert.True(t, errors.Is(err, models.ErrBookingExpired))
	})

	t.Run("Already Confirmed", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(2, false)
		r := rider("female")
		res, err := f.service.CreateBooking(ctx, trip.ID, r, 1)
		require.NoError(t, err)
		_, err = f.service.ConfirmBooking(ctx, res.BookingID, r.UserID, models.PaymentDetails{})
		require.NoError(t, err)

		_, err = f.service.ConfirmBooking(ctx, res.BookingID, r.UserID, models.PaymentDetails{})
		assert.True(t, errors.Is(err, models.ErrInvalidState))
		assert.Len(t, f.store.paymentsFor(res.BookingID), 1)
	})

	t.Run("Cancelled By Rider", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(2, false)
		r := rider("female")
		res, err := f.service.CreateBooking(ctx, trip.ID, r, 1)
		require.NoError(t, err)
		require.NoError(t, f.service.CancelBooking(ctx, res.BookingID, r))

		_, err = f.service.ConfirmBooking(ctx, res.BookingID, r.UserID, models.PaymentDetails{})
		assert.True(t, errors.Is(err, models.ErrInvalidState))
	})

	t.Run("Another Rider", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(2, false)
		res, err := f.service.CreateBooking(ctx, trip.ID, rider("female"), 1)
		require.NoError(t, err)

		_, err = f.service.ConfirmBooking(ctx, res.BookingID, uuid.New(), models.PaymentDetails{})
		assert.True(t, errors.Is(err, models.ErrNotFound))
		assert.Equal(t, models.BookingStatusPending, f.store.booking(res.BookingID).Status)
	})

	t.Run("Unknown Booking", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.ConfirmBooking(ctx, uuid.New(), uuid.New(), models.PaymentDetails{})
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})
}

func TestCancelBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("Rider Cancels Confirmed Booking", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(2, false)
		r := rider("female")
		res, err := f.service.CreateBooking(ctx, trip.ID, r, 2)
		require.NoError(t, err)
		_, err = f.service.ConfirmBooking(ctx, res.BookingID, r.UserID, models.PaymentDetails{})
		require.NoError(t, err)
		assert.Equal(t, models.TripStatusFull, f.store.trip(trip.ID).Status)

		require.NoError(t, f.service.CancelBooking(ctx, res.BookingID, r))

		booking := f.store.booking(res.BookingID)
		assert.Equal(t, models.BookingStatusCancelled, booking.Status)
		require.NotNil(t, booking.CancelReason)
		assert.Equal(t, models.CancelReasonRider, *booking.CancelReason)
		assert.Equal(t, 2, f.store.trip(trip.ID).AvailableSeats)
		assert.Equal(t, models.TripStatusOpen, f.store.trip(trip.ID).Status)

		payments := f.store.paymentsFor(res.BookingID)
		require.Len(t, payments, 1)
		assert.Equal(t, models.PaymentStatusRefunded, payments[0].Status)
		assert.NotNil(t, payments[0].RefundedAt)
		f.assertInvariant(t, trip.ID)
	})

	t.Run("Owner Cancels Pending Booking", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(3, false)
		res, err := f.service.CreateBooking(ctx, trip.ID, rider("female"), 1)
		require.NoError(t, err)

		require.NoError(t, f.service.CancelBooking(ctx, res.BookingID, f.owner))
		assert.Equal(t, models.CancelReasonOwner, *f.store.booking(res.BookingID).CancelReason)
		f.assertInvariant(t, trip.ID)
	})

	t.Run("Stranger Denied", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(3, false)
		res, err := f.service.CreateBooking(ctx, trip.ID, rider("female"), 1)
		require.NoError(t, err)

		err = f.service.CancelBooking(ctx, res.BookingID, rider("female"))
		assert.True(t, errors.Is(err, models.ErrAccessDenied))
		assert.Equal(t, models.BookingStatusPending, f.store.booking(res.BookingID).Status)
		assert.Equal(t, 2, f.store.trip(trip.ID).AvailableSeats)
	})

	t.Run("Already Cancelled", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(3, false)
		r := rider("female")
		res, err := f.service.CreateBooking(ctx, trip.ID, r, 1)
		require.NoError(t, err)
		require.NoError(t, f.service.CancelBooking(ctx, res.BookingID, r))

		err = f.service.CancelBooking(ctx, res.BookingID, r)
		assert.True(t, errors.Is(err, models.ErrInvalidState))
		assert.Equal(t, 3, f.store.trip(trip.ID).AvailableSeats)
		f.assertInvariant(t, trip.ID)
	})

	t.Run("Unknown Booking", func(t *testing.T) {
		f := newFixture(t)
		err := f.service.CancelBooking(ctx, uuid.New(), rider("female"))
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})
}

func TestCancelTrip(t *testing.T) {
	ctx := context.Background()

	t.Run("Owner Cancels Trip", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(3, false)
		paid, pending := rider("female"), rider("male")

		resPaid, err := f.service.CreateBooking(ctx, trip.ID, paid, 2)
		require.NoError(t, err)
		_, err = f.service.ConfirmBooking(ctx, resPaid.BookingID, paid.UserID, models.PaymentDetails{})
		require.NoError(t, err)
		resPending, err := f.service.CreateBooking(ctx, trip.ID, pending, 1)
		require.NoError(t, err)

		result, err := f.service.CancelTrip(ctx, trip.ID, f.owner)
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{resPaid.BookingID, resPending.BookingID}, result.CancelledBookings)
		assert.Equal(t, 3, result.SeatsReleased)
		assert.Equal(t, int64(1), result.PaymentsRefunded)

		stored := f.store.trip(trip.ID)
		assert.Equal(t, models.TripStatusCancelled, stored.Status)
		assert.Equal(t, 3, stored.AvailableSeats)
		for _, id := range result.CancelledBookings {
			assert.Equal(t, models.CancelReasonTripCancelled, *f.store.booking(id).CancelReason)
		}
		f.assertInvariant(t, trip.ID)
		assert.Contains(t, f.events.types(), models.EventTripCancelled)

		_, err = f.service.CreateBooking(ctx, trip.ID, rider("female"), 1)
		assert.True(t, errors.Is(err, models.ErrTripUnavailable))

		_, err = f.service.CancelTrip(ctx, trip.ID, f.owner)
		assert.True(t, errors.Is(err, models.ErrInvalidState))
	})

	t.Run("Non Owner Denied", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(3, false)

		_, err := f.service.CancelTrip(ctx, trip.ID, models.Actor{UserID: uuid.New(), Role: models.RoleDriver})
		assert.True(t, errors.Is(err, models.ErrAccessDenied))
		assert.Equal(t, models.TripStatusOpen, f.store.trip(trip.ID).Status)
	})

	t.Run("Admin Allowed", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(3, false)

		result, err := f.service.CancelTrip(ctx, trip.ID, models.Actor{UserID: uuid.New(), Role: models.RoleAdmin})
		require.NoError(t, err)
		assert.Empty(t, result.CancelledBookings)
	})
}

func TestSweepAndList(t *testing.T) {
	ctx := context.Background()

	t.Run("All Trips Hides Pink Mode From Male Viewers", func(t *testing.T) {
		f := newFixture(t)
		open := f.newTrip(3, false)
		pink := f.newTrip(3, true)

		male, err := f.service.SweepAndList(ctx, ScopeAll, rider("male"))
		require.NoError(t, err)
		require.Len(t, male, 1)
		assert.Equal(t, open.ID, male[0].Trip.ID)

		female, err := f.service.SweepAndList(ctx, ScopeAll, rider("female"))
		require.NoError(t, err)
		assert.Len(t, female, 2)

		_, err = f.service.SweepAndList(ctx, ScopeTrip(pink.ID), rider("male"))
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})

	t.Run("All Trips Sweeps First", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(1, false)
		_, err := f.service.CreateBooking(ctx, trip.ID, rider("female"), 1)
		require.NoError(t, err)

		f.clock.Advance(time.Minute)
		details, err := f.service.SweepAndList(ctx, ScopeAll, rider("male"))
		require.NoError(t, err)
		require.Len(t, details, 1)
		assert.Equal(t, 1, details[0].Trip.AvailableSeats)
		assert.Equal(t, models.TripStatusOpen, details[0].Trip.Status)
	})

	t.Run("Trip Scope Shows Riders Only Their Own Bookings", func(t *testing.T) {
		f := newFixture(t)
		trip := f.newTrip(3, false)
		a, b := rider("female"), rider("male")
		_, err := f.service.CreateBooking(ctx, trip.ID, a, 1)
		require.NoError(t, err)
		_, err = f.service.CreateBooking(ctx, trip.ID, b, 1)
		require.NoError(t, err)

		asRider, err := f.service.SweepAndList(ctx, ScopeTrip(trip.ID), a)
		require.NoError(t, err)
		require.Len(t, asRider[0].Bookings, 1)
		assert.Equal(t, a.UserID, asRider[0].Bookings[0].RiderID)

		asOwner, err := f.service.SweepAndList(ctx, ScopeTrip(trip.ID), f.owner)
		require.NoError(t, err)
		assert.Len(t, asOwner[0].Bookings, 2)
	})

	t.Run("Search Filters", func(t *testing.T) {
		f := newFixture(t)
		pune := f.newTrip(3, false)
		pink := f.newTrip(2, true)
		nashik := f.newTrip(3, false)
		nashik.Source = "Nashik Road"
		f.store.addTrip(nashik)

		cases := []struct {
			name   string
			filter models.TripFilter
			viewer models.Actor
			want   []uuid.UUID
		}{
			{"query contains place", models.TripFilter{Source: "pune station"}, rider("female"), []uuid.UUID{pune.ID, pink.ID}},
			{"place contains query", models.TripFilter{Source: "NASHIK", Destination: "mum"}, rider("female"), []uuid.UUID{nashik.ID}},
			{"no match", models.TripFilter{Destination: "Goa"}, rider("female"), nil},
			{"pink only", models.TripFilter{PinkOnly: true}, rider("female"), []uuid.UUID{pink.ID}},
			{"pink only still hidden from male viewers", models.TripFilter{PinkOnly: true}, rider("male"), nil},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				details, err := f.service.SweepAndList(ctx, ScopeSearch(tc.filter), tc.viewer)
				require.NoError(t, err)
				got := make([]uuid.UUID, 0, len(details))
				for _, d := range details {
					got = append(got, d.Trip.ID)
				}
				assert.ElementsMatch(t, tc.want, got)
			})
		}
	})
}

func TestDriverStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	upcoming := f.newTrip(3, false)
	todays := f.newTrip(2, false)
	todays.TripDate = time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	f.store.addTrip(todays)
	past := f.newTrip(2, false)
	past.TripDate = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	f.store.addTrip(past)
	f.store.addTrip(models.Trip{
		OwnerID: uuid.New(), Source: "Pune", Destination: "Goa", TripDate: upcoming.TripDate,
		Capacity: 2, AvailableSeats: 2, PricePerSeat: 900, Status: models.TripStatusOpen,
	})

	// paid: 2 x 249.5
	paid := rider("female")
	res, err := f.service.CreateBooking(ctx, upcoming.ID, paid, 2)
	require.NoError(t, err)
	_, err = f.service.ConfirmBooking(ctx, res.BookingID, paid.UserID, models.PaymentDetails{})
	require.NoError(t, err)

	// refunded payments do not count
	refunded := rider("male")
	res, err = f.service.CreateBooking(ctx, todays.ID, refunded, 1)
	require.NoError(t, err)
	_, err = f.service.ConfirmBooking(ctx, res.BookingID, refunded.UserID, models.PaymentDetails{})
	require.NoError(t, err)
	require.NoError(t, f.service.CancelBooking(ctx, res.BookingID, refunded))

	stats, err := f.service.DriverStats(ctx, f.owner.UserID)
	require.NoError(t, err)

	assert.Equal(t, 499.0, stats.Earnings)
	assert.Equal(t, 2, stats.TotalTrips)
	require.Len(t, stats.TodaysTrips, 1)
	assert.Equal(t, todays.ID, stats.TodaysTrips[0].ID)
	require.Len(t, stats.UpcomingTrips, 1)
	assert.Equal(t, upcoming.ID, stats.UpcomingTrips[0].ID)
	assert.Equal(t, models.TripStatusCompleted, f.store.trip(past.ID).Status)
}

func TestListBookings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	trip := f.newTrip(3, false)
	r := rider("female")

	res, err := f.service.CreateBooking(ctx, trip.ID, r, 1)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	mine, err := f.service.ListRiderBookings(ctx, r.UserID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, res.BookingID, mine[0].ID)
	assert.Equal(t, models.BookingStatusCancelled, mine[0].Status)
	assert.Equal(t, "Pune", mine[0].Source)

	owned, err := f.service.ListOwnerBookings(ctx, f.owner.UserID)
	require.NoError(t, err)
	assert.Len(t, owned, 1)
}

func TestGetReceipt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	trip := f.newTrip(3, false)
	r := rider("female")

	res, err := f.service.CreateBooking(ctx, trip.ID, r, 2)
	require.NoError(t, err)

	_, err = f.service.GetReceipt(ctx, res.BookingID, r)
	assert.True(t, errors.Is(err, models.ErrInvalidState))

	_, err = f.service.ConfirmBooking(ctx, res.BookingID, r.UserID, models.PaymentDetails{})
	require.NoError(t, err)

	receipt, err := f.service.GetReceipt(ctx, res.BookingID, r)
	require.NoError(t, err)
	assert.Equal(t, trip.ID, receipt.Trip.ID)
	assert.Equal(t, 499.0, receipt.Payment.Amount)
	assert.Equal(t, "INR", receipt.Currency)

	_, err = f.service.GetReceipt(ctx, res.BookingID, rider("male"))
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
