package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sawaari/driveshare-backend/internal/database"
	"github.com/sawaari/driveshare-backend/internal/models"
)

// memoryStore is a serialisable in-memory ReservationStore. A transaction holds
// the store mutex for its whole duration and works on a copy of the state that
// replaces the original only when fn returns nil.
type memoryStore struct {
	mu    sync.Mutex
	state *memState

	// insertErr makes the next InsertBooking fail
	insertErr error
}

type memState struct {
	trips    map[uuid.UUID]models.Trip
	bookings map[uuid.UUID]models.Booking
	payments []models.Payment
}

func newMemoryStore() *memoryStore {
	return &memoryStore{state: &memState{
		trips:    map[uuid.UUID]models.Trip{},
		bookings: map[uuid.UUID]models.Booking{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		trips:    make(map[uuid.UUID]models.Trip, len(s.trips)),
		bookings: make(map[uuid.UUID]models.Booking, len(s.bookings)),
		payments: append([]models.Payment(nil), s.payments...),
	}
	for k, v := range s.trips {
		c.trips[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	return c
}

func (m *memoryStore) addTrip(trip models.Trip) models.Trip {
	m.mu.Lock()
	defer m.mu.Unlock()
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}
	m.state.trips[trip.ID] = trip
	return trip
}

func (m *memoryStore) trip(id uuid.UUID) models.Trip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.trips[id]
}

func (m *memoryStore) booking(id uuid.UUID) models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.bookings[id]
}

func (m *memoryStore) paymentsFor(bookingID uuid.UUID) []models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.state.payments {
		if p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	return out
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(tx database.ReservationTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{store: m, state: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memoryStore) GetTrip(ctx context.Context, tripID uuid.UUID) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getTrip(tripID)
}

func (m *memoryStore) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getBooking(bookingID)
}

func (m *memoryStore) GetPayment(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.state.payments) - 1; i >= 0; i-- {
		if m.state.payments[i].BookingID == bookingID {
			p := m.state.payments[i]
			return &p, nil
		}
	}
	return nil, models.NewReservationError(models.KindNotFound, "no payment recorded for booking %s", bookingID)
}

func (m *memoryStore) ListBookableTrips(ctx context.Context) ([]models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trips := []models.Trip{}
	for _, t := range m.state.trips {
		if t.Status.AcceptsBookings() {
			trips = append(trips, t)
		}
	}
	sort.Slice(trips, func(i, j int) bool { return trips[i].TripDate.Before(trips[j].TripDate) })
	return trips, nil
}

func (m *memoryStore) ListTripBookings(ctx context.Context, tripID uuid.UUID) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.bookingsWhere(func(b models.Booking) bool { return b.TripID == tripID }), nil
}

func (m *memoryStore) ListRiderBookings(ctx context.Context, riderID uuid.UUID) ([]models.BookingWithTrip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.withTrips(func(b models.Booking, t models.Trip) bool { return b.RiderID == riderID }), nil
}

func (m *memoryStore) ListOwnerBookings(ctx context.Context, ownerID uuid.UUID) ([]models.BookingWithTrip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.withTrips(func(b models.Booking, t models.Trip) bool { return t.OwnerID == ownerID }), nil
}

func (m *memoryStore) ListOwnerTrips(ctx context.Context, ownerID uuid.UUID) ([]models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trips := []models.Trip{}
	for _, t := range m.state.trips {
		if t.OwnerID == ownerID && t.Status.AcceptsBookings() {
			trips = append(trips, t)
		}
	}
	sort.Slice(trips, func(i, j int) bool { return trips[i].TripDate.Before(trips[j].TripDate) })
	return trips, nil
}

func (m *memoryStore) OwnerEarnings(ctx context.Context, ownerID uuid.UUID) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, p := range m.state.payments {
		b := m.state.bookings[p.BookingID]
		if p.Status == models.PaymentStatusCompleted && m.state.trips[b.TripID].OwnerID == ownerID {
			total += p.Amount
		}
	}
	return total, nil
}

func (m *memoryStore) TripsWithLapsedHolds(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	ids := []uuid.UUID{}
	for _, b := range m.state.bookings {
		if b.Lapsed(now) && !seen[b.TripID] {
			seen[b.TripID] = true
			ids = append(ids, b.TripID)
		}
	}
	return ids, nil
}

func (m *memoryStore) CompletePastTrips(ctx context.Context, today time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := today.Format("2006-01-02")
	var n int64
	for id, t := range m.state.trips {
		if t.Status.AcceptsBookings() && t.TripDate.Format("2006-01-02") < cutoff {
			t.Status = models.TripStatusCompleted
			m.state.trips[id] = t
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) CheckConsistency(ctx context.Context, tripID uuid.UUID) (*models.ConsistencyReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, err := m.state.getTrip(tripID)
	if err != nil {
		return nil, err
	}
	held := 0
	for _, b := range m.state.bookings {
		if b.TripID == tripID && b.Status.IsActive() {
			held += b.SeatsBooked
		}
	}
	report := &models.ConsistencyReport{
		TripID:            tripID,
		Capacity:          trip.Capacity,
		AvailableSeats:    trip.AvailableSeats,
		HeldSeats:         held,
		ExpectedAvailable: trip.Capacity - held,
		Status:            trip.Status,
	}
	report.ExpectedStatus = models.ExpectedStatus(trip.Status, report.ExpectedAvailable)
	report.Consistent = report.AvailableSeats == report.ExpectedAvailable && report.Status == report.ExpectedStatus
	return report, nil
}

func (s *memState) getTrip(id uuid.UUID) (*models.Trip, error) {
	t, ok := s.trips[id]
	if !ok {
		return nil, models.NewReservationError(models.KindNotFound, "trip %s not found", id)
	}
	return &t, nil
}

func (s *memState) getBooking(id uuid.UUID) (*models.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return nil, models.NewReservationError(models.KindNotFound, "booking not found")
	}
	return &b, nil
}

func (s *memState) bookingsWhere(match func(models.Booking) bool) []models.Booking {
	out := []models.Booking{}
	for _, b := range s.bookings {
		if match(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *memState) withTrips(match func(models.Booking, models.Trip) bool) []models.BookingWithTrip {
	out := []models.BookingWithTrip{}
	for _, b := range s.bookings {
		t := s.trips[b.TripID]
		if match(b, t) {
			out = append(out, models.BookingWithTrip{
				Booking:      b,
				Source:       t.Source,
				Destination:  t.Destination,
				TripDate:     t.TripDate,
				TripTime:     t.TripTime,
				PricePerSeat: t.PricePerSeat,
				TripStatus:   t.Status,
				OwnerID:      t.OwnerID,
			})
		}
	}
	return out
}

type memTx struct {
	store *memoryStore
	state *memState
}

func (tx *memTx) LockTrip(ctx context.Context, tripID uuid.UUID) (*models.Trip, error) {
	return tx.state.getTrip(tripID)
}

func (tx *memTx) ReserveSeats(ctx context.Context, tripID uuid.UUID, n int) error {
	if n < 1 {
		return models.NewReservationError(models.KindInvalidRequest, "seats must be at least 1")
	}
	t, ok := tx.state.trips[tripID]
	switch {
	case !ok:
		return models.NewReservationError(models.KindNotFound, "trip %s not found", tripID)
	case !t.Status.AcceptsBookings():
		return models.NewReservationError(models.KindTripUnavailable, "trip is %s", t.Status)
	case t.AvailableSeats < n:
		return models.NewReservationError(models.KindInsufficientSeats,
			"requested %d seat(s), only %d available", n, t.AvailableSeats)
	}
	t.AvailableSeats -= n
	if t.AvailableSeats == 0 {
		t.Status = models.TripStatusFull
	}
	tx.state.trips[tripID] = t
	return nil
}

func (tx *memTx) ReleaseSeats(ctx context.Context, tripID uuid.UUID, n int) error {
	if n < 1 {
		return nil
	}
	t := tx.state.trips[tripID]
	if t.AvailableSeats+n > t.Capacity {
		return fmt.Errorf("ledger: releasing %d seat(s) on trip %s would exceed capacity", n, tripID)
	}
	t.AvailableSeats += n
	if t.Status == models.TripStatusFull {
		t.Status = models.TripStatusOpen
	}
	tx.state.trips[tripID] = t
	return nil
}

func (tx *memTx) MarkTripCancelled(ctx context.Context, tripID uuid.UUID) error {
	t := tx.state.trips[tripID]
	if !t.Status.AcceptsBookings() {
		return models.NewReservationError(models.KindInvalidState, "trip %s can no longer be cancelled", tripID)
	}
	t.Status = models.TripStatusCancelled
	tx.state.trips[tripID] = t
	return nil
}

func (tx *memTx) FindActiveBooking(ctx context.Context, tripID, riderID uuid.UUID) (*models.Booking, error) {
	for _, b := range tx.state.bookings {
		if b.TripID == tripID && b.RiderID == riderID && b.Status.IsActive() {
			return &b, nil
		}
	}
	return nil, nil
}

func (tx *memTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	if err := tx.store.insertErr; err != nil {
		tx.store.insertErr = nil
		return err
	}
	tx.state.bookings[booking.ID] = *booking
	return nil
}

func (tx *memTx) LockBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	return tx.state.getBooking(bookingID)
}

func (tx *memTx) ConfirmPendingBooking(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	b, ok := tx.state.bookings[bookingID]
	if !ok || b.Status != models.BookingStatusPending {
		return false, nil
	}
	b.Status = models.BookingStatusConfirmed
	b.ExpiresAt = nil
	tx.state.bookings[bookingID] = b
	return true, nil
}

func (tx *memTx) CancelBooking(ctx context.Context, bookingID uuid.UUID, reason string, at time.Time, from ...models.BookingStatus) (bool, error) {
	if len(from) == 0 {
		from = []models.BookingStatus{models.BookingStatusPending, models.BookingStatusConfirmed}
	}
	b, ok := tx.state.bookings[bookingID]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if b.Status == status {
			r := reason
			b.Status = models.BookingStatusCancelled
			b.ExpiresAt = nil
			b.CancelReason = &r
			b.CancelledAt = &at
			tx.state.bookings[bookingID] = b
			return true, nil
		}
	}
	return false, nil
}

func (tx *memTx) LapsedPendingBookings(ctx context.Context, tripID uuid.UUID, now time.Time) ([]models.Booking, error) {
	return tx.state.bookingsWhere(func(b models.Booking) bool {
		return b.TripID == tripID && b.Lapsed(now)
	}), nil
}

func (tx *memTx) ActiveBookings(ctx context.Context, tripID uuid.UUID) ([]models.Booking, error) {
	return tx.state.bookingsWhere(func(b models.Booking) bool {
		return b.TripID == tripID && b.Status.IsActive()
	}), nil
}

func (tx *memTx) InsertPayment(ctx context.Context, payment *models.Payment) error {
	tx.state.payments = append(tx.state.payments, *payment)
	return nil
}

func (tx *memTx) RefundPayments(ctx context.Context, bookingID uuid.UUID, at time.Time) (int64, error) {
	var n int64
	for i, p := range tx.state.payments {
		if p.BookingID == bookingID && p.Status == models.PaymentStatusCompleted {
			refundedAt := at
			tx.state.payments[i].Status = models.PaymentStatusRefunded
			tx.state.payments[i].RefundedAt = &refundedAt
			n++
		}
	}
	return n, nil
}
