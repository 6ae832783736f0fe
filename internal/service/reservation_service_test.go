package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quickcourt/internal/database"
	"quickcourt/internal/domain"
	"quickcourt/internal/models"
	"quickcourt/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBookings struct {
	mock.Mock
}

func (m *mockBookings) CreateBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockBookings) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBookings) GetBookingByRef(ctx context.Context, ref string) (*models.Booking, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBookings) UpdateBookingStatusWithVersion(ctx context.Context, id, v int64, s string) error {
	return m.Called(ctx, id, v, s).Error(0)
}
func (m *mockBookings) UpdatePaymentStatus(ctx context.Context, id int64, ps string) error {
	return m.Called(ctx, id, ps).Error(0)
}
func (m *mockBookings) GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookings) GetBookingsByDateRange(ctx context.Context, s, e time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookings) GetDailyBookings(ctx context.Context, s, e time.Time) (map[string][]*models.Booking, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]*models.Booking), args.Error(1)
}

type mockRefs struct {
	mock.Mock
}

func (m *mockRefs) NextBookingRef(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) Charge(ctx context.Context, amount int64, payerID string) (string, string, error) {
	args := m.Called(ctx, amount, payerID)
	return args.String(0), args.String(1), args.Error(2)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, tt string, bid int64, b *models.Booking, s string) error {
	return m.Called(ctx, tt, bid, b, s).Error(0)
}

func testVenues() []models.Venue {
	return []models.Venue{
		{ID: 1, Name: "Elite Sports Arena", PricePerHour: 200, Sports: []string{"badminton", "tennis"}, IsActive: true},
		{ID: 2, Name: "Closed Court", PricePerHour: 150, Sports: []string{"squash"}, IsActive: false},
	}
}

type reservationFixture struct {
	slots    *repository.MemoryAvailability
	bookings *mockBookings
	refs     *mockRefs
	payments *mockPayments
	bus      *mockEventBus
	worker   *mockWorker
	svc      *Reservation
}

func newReservationFixture(t *testing.T) *reservationFixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	f := &reservationFixture{
		slots:    repository.NewMemoryAvailability(),
		bookings: new(mockBookings),
		refs:     new(mockRefs),
		payments: new(mockPayments),
		bus:      new(mockEventBus),
		worker:   new(mockWorker),
	}
	venues := NewVenueCatalog(testVenues(), &logger)
	f.svc = NewReservation(f.slots, f.bookings, f.refs, f.payments, venues, f.bus, f.worker,
		[]string{"manager-1"}, 90, &logger)
	return f
}

func validRequest(date time.Time) *domain.ReserveRequest {
	return &domain.ReserveRequest{
		UserID:      "user-1",
		UserName:    "Asha",
		VenueID:     1,
		Date:        date,
		Slots:       []string{"10:00", "11:00"},
		Sport:       "badminton",
		PlayerCount: 4,
	}
}

func TestReservationValidateBookingDate(t *testing.T) {
	f := newReservationFixture(t)
	now := time.Now()

	assert.ErrorIs(t, f.svc.ValidateBookingDate(now.AddDate(0, 0, -2)), ErrPastDate)
	assert.ErrorIs(t, f.svc.ValidateBookingDate(now.AddDate(0, 0, 91)), ErrDateTooFar)
	assert.NoError(t, f.svc.ValidateBookingDate(now))
	assert.NoError(t, f.svc.ValidateBookingDate(now.AddDate(0, 0, 30)))

	// Граница: вчера уже недоступно, сегодня ещё доступно
	yesterday := now.AddDate(0, 0, -1)
	assert.ErrorIs(t, f.svc.ValidateBookingDate(yesterday), ErrPastDate)

	yesterdayParsed, err := time.Parse(models.DateLayout, yesterday.UTC().Format(models.DateLayout))
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.ValidateBookingDate(yesterdayParsed), ErrPastDate)

	todayParsed, err := time.Parse(models.DateLayout, now.UTC().Format(models.DateLayout))
	require.NoError(t, err)
	assert.NoError(t, f.svc.ValidateBookingDate(todayParsed))
}

func TestReservationCheckAvailability(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 5)

	_, err := f.slots.ConditionalClaim(ctx, models.SlotKeys(1, date, []string{"10:00"}), "QC000007")
	require.NoError(t, err)

	availability, err := f.svc.CheckAvailability(ctx, 1, date)
	require.NoError(t, err)
	require.Len(t, availability, len(models.DailySlots))

	for _, row := range availability {
		if row.Slot == "10:00" {
			assert.False(t, row.Free)
		} else {
			assert.True(t, row.Free, "slot %s should be free", row.Slot)
		}
	}

	_, err = f.svc.CheckAvailability(ctx, 99, date)
	assert.ErrorIs(t, err, ErrUnknownVenue)

	_, err = f.svc.CheckAvailability(ctx, 1, time.Now().AddDate(0, 0, -3))
	assert.ErrorIs(t, err, ErrPastDate)
}

func TestReserve(t *testing.T) {
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 5)

	t.Run("Success", func(t *testing.T) {
		f := newReservationFixture(t)
		req := validRequest(date)

		f.refs.On("NextBookingRef", ctx).Return("QC000042", nil).Once()
		f.payments.On("Charge", ctx, int64(420), "user-1").Return("pay-1", models.PaymentStatusCompleted, nil).Once()
		f.bookings.On("CreateBooking", ctx, mock.AnythingOfType("*models.Booking")).Return(nil).Once()
		f.bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil).Once()
		f.worker.On("EnqueueTask", ctx, "upsert", mock.Anything, mock.Anything, "").Return(nil).Once()
		f.worker.On("EnqueueTask", ctx, "sync_schedule", int64(0), (*models.Booking)(nil), "").Return(nil).Once()

		booking, err := f.svc.Reserve(ctx, req)
		require.NoError(t, err)

		// 2 slots x 200 per hour, 5% platform fee.
		assert.Equal(t, "QC000042", booking.Ref)
		assert.Equal(t, int64(400), booking.TotalAmount)
		assert.Equal(t, int64(20), booking.PlatformFee)
		assert.Equal(t, int64(420), booking.FinalAmount)
		assert.Equal(t, models.StatusConfirmed, booking.Status)
		assert.Equal(t, models.PaymentStatusCompleted, booking.PaymentStatus)
		assert.Equal(t, "pay-1", booking.PaymentID)
		assert.Equal(t, "Elite Sports Arena", booking.VenueName)

		records, err := f.slots.GetSlotRecords(ctx, 1, date)
		require.NoError(t, err)
		assert.Equal(t, "QC000042", records["10:00"])
		assert.Equal(t, "QC000042", records["11:00"])

		f.bookings.AssertExpectations(t)
		f.payments.AssertExpectations(t)
		f.worker.AssertExpectations(t)
	})

	t.Run("ValidationRejectsBeforeAnySideEffect", func(t *testing.T) {
		cases := []struct {
			name    string
			mutate  func(*domain.ReserveRequest)
			wantErr error
		}{
			{"EmptySlots", func(r *domain.ReserveRequest) { r.Slots = nil }, ErrEmptySlots},
			{"UnknownSlot", func(r *domain.ReserveRequest) { r.Slots = []string{"23:30"} }, ErrUnknownSlot},
			{"DuplicateSlot", func(r *domain.ReserveRequest) { r.Slots = []string{"10:00", "10:00"} }, ErrUnknownSlot},
			{"NoPlayers", func(r *domain.ReserveRequest) { r.PlayerCount = 0 }, ErrInvalidPlayers},
			{"UnknownVenue", func(r *domain.ReserveRequest) { r.VenueID = 99 }, ErrUnknownVenue},
			{"InactiveVenue", func(r *domain.ReserveRequest) { r.VenueID = 2 }, ErrUnknownVenue},
			{"UnsupportedSport", func(r *domain.ReserveRequest) { r.Sport = "cricket" }, ErrUnsupportedSport},
			{"PastDate", func(r *domain.ReserveRequest) { r.Date = time.Now().AddDate(0, 0, -3) }, ErrPastDate},
			{"DateTooFar", func(r *domain.ReserveRequest) { r.Date = time.Now().AddDate(0, 0, 120) }, ErrDateTooFar},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				f := newReservationFixture(t)
				req := validRequest(date)
				tc.mutate(req)

				_, err := f.svc.Reserve(ctx, req)
				assert.ErrorIs(t, err, tc.wantErr)

				f.refs.AssertNotCalled(t, "NextBookingRef", mock.Anything)
				records, _ := f.slots.GetSlotRecords(ctx, 1, date)
				assert.Empty(t, records)
			})
		}
	})

	t.Run("ConflictRejectsWholeRequest", func(t *testing.T) {
		f := newReservationFixture(t)
		req := validRequest(date)

		_, err := f.slots.ConditionalClaim(ctx, models.SlotKeys(1, date, []string{"11:00"}), "QC000001")
		require.NoError(t, err)

		f.refs.On("NextBookingRef", ctx).Return("QC000043", nil).Once()

		_, err = f.svc.Reserve(ctx, req)
		var conflictErr *SlotConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, []string{"11:00"}, conflictErr.Slots)

		// The free slot in the request must not have been claimed.
		records, err := f.slots.GetSlotRecords(ctx, 1, date)
		require.NoError(t, err)
		assert.NotContains(t, records, "10:00")

		f.payments.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything, mock.Anything)
		f.bookings.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})

	t.Run("PaymentFailureReleasesClaim", func(t *testing.T) {
		f := newReservationFixture(t)
		req := validRequest(date)

		f.refs.On("NextBookingRef", ctx).Return("QC000044", nil).Once()
		f.payments.On("Charge", ctx, int64(420), "user-1").Return("", "", errors.New("card declined")).Once()

		_, err := f.svc.Reserve(ctx, req)
		var payErr *PaymentError
		require.ErrorAs(t, err, &payErr)

		records, err := f.slots.GetSlotRecords(ctx, 1, date)
		require.NoError(t, err)
		assert.Empty(t, records)

		f.bookings.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})

	t.Run("PersistFailureReleasesClaim", func(t *testing.T) {
		f := newReservationFixture(t)
		req := validRequest(date)

		f.refs.On("NextBookingRef", ctx).Return("QC000045", nil).Once()
		f.payments.On("Charge", ctx, int64(420), "user-1").Return("pay-2", models.PaymentStatusCompleted, nil).Once()
		f.bookings.On("CreateBooking", ctx, mock.Anything).Return(errors.New("disk full")).Once()

		_, err := f.svc.Reserve(ctx, req)
		var persistErr *PersistenceError
		require.ErrorAs(t, err, &persistErr)

		records, err := f.slots.GetSlotRecords(ctx, 1, date)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 5)

	confirmedBooking := func(ref string) *models.Booking {
		return &models.Booking{
			ID:      7,
			Ref:     ref,
			UserID:  "user-1",
			VenueID: 1,
			Date:    date,
			Slots:   []string{"10:00", "11:00"},
			Status:  models.StatusConfirmed,
			Version: 3,
		}
	}

	t.Run("OwnerCancelFreesSlots", func(t *testing.T) {
		f := newReservationFixture(t)
		booking := confirmedBooking("QC000050")

		_, err := f.slots.ConditionalClaim(ctx, models.SlotKeys(1, date, booking.Slots), booking.Ref)
		require.NoError(t, err)

		f.bookings.On("GetBookingByRef", ctx, "QC000050").Return(booking, nil).Once()
		f.bookings.On("UpdateBookingStatusWithVersion", ctx, int64(7), int64(3), models.StatusCancelled).Return(nil).Once()
		f.bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil).Once()
		f.worker.On("EnqueueTask", ctx, "update_status", int64(7), mock.Anything, models.StatusCancelled).Return(nil).Once()
		f.worker.On("EnqueueTask", ctx, "sync_schedule", int64(0), (*models.Booking)(nil), "").Return(nil).Once()

		require.NoError(t, f.svc.Cancel(ctx, "QC000050", "user-1"))

		records, err := f.slots.GetSlotRecords(ctx, 1, date)
		require.NoError(t, err)
		assert.Empty(t, records)
		f.bookings.AssertExpectations(t)
		f.worker.AssertExpectations(t)
	})

	t.Run("ManagerMayCancel", func(t *testing.T) {
		f := newReservationFixture(t)
		booking := confirmedBooking("QC000051")

		f.bookings.On("GetBookingByRef", ctx, "QC000051").Return(booking, nil).Once()
		f.bookings.On("UpdateBookingStatusWithVersion", ctx, int64(7), int64(3), models.StatusCancelled).Return(nil).Once()
		f.bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil).Once()
		f.worker.On("EnqueueTask", ctx, "update_status", int64(7), mock.Anything, models.StatusCancelled).Return(nil).Once()
		f.worker.On("EnqueueTask", ctx, "sync_schedule", int64(0), (*models.Booking)(nil), "").Return(nil).Once()

		assert.NoError(t, f.svc.Cancel(ctx, "QC000051", "manager-1"))
	})

	t.Run("StrangerIsRejected", func(t *testing.T) {
		f := newReservationFixture(t)
		booking := confirmedBooking("QC000052")

		f.bookings.On("GetBookingByRef", ctx, "QC000052").Return(booking, nil).Once()

		err := f.svc.Cancel(ctx, "QC000052", "user-2")
		assert.ErrorIs(t, err, ErrUnauthorized)
		f.bookings.AssertNotCalled(t, "UpdateBookingStatusWithVersion", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("CancelledTwiceIsNoop", func(t *testing.T) {
		f := newReservationFixture(t)
		booking := confirmedBooking("QC000053")
		booking.Status = models.StatusCancelled

		// A prior attempt may have updated the status but crashed before
		// releasing; the retry must still free the slots.
		_, err := f.slots.ConditionalClaim(ctx, models.SlotKeys(1, date, booking.Slots), booking.Ref)
		require.NoError(t, err)

		f.bookings.On("GetBookingByRef", ctx, "QC000053").Return(booking, nil).Once()

		require.NoError(t, f.svc.Cancel(ctx, "QC000053", "user-1"))

		records, err := f.slots.GetSlotRecords(ctx, 1, date)
		require.NoError(t, err)
		assert.Empty(t, records)
		f.bookings.AssertNotCalled(t, "UpdateBookingStatusWithVersion", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("CompletedIsNoop", func(t *testing.T) {
		f := newReservationFixture(t)
		booking := confirmedBooking("QC000054")
		booking.Status = models.StatusCompleted

		_, err := f.slots.ConditionalClaim(ctx, models.SlotKeys(1, date, booking.Slots), booking.Ref)
		require.NoError(t, err)

		f.bookings.On("GetBookingByRef", ctx, "QC000054").Return(booking, nil).Once()

		require.NoError(t, f.svc.Cancel(ctx, "QC000054", "user-1"))

		// Completed bookings keep their history; slots stay claimed.
		records, err := f.slots.GetSlotRecords(ctx, 1, date)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("UnknownRef", func(t *testing.T) {
		f := newReservationFixture(t)
		f.bookings.On("GetBookingByRef", ctx, "QC999999").Return(nil, database.ErrNotFound).Once()

		err := f.svc.Cancel(ctx, "QC999999", "user-1")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("ConcurrentModification", func(t *testing.T) {
		f := newReservationFixture(t)
		booking := confirmedBooking("QC000055")

		f.bookings.On("GetBookingByRef", ctx, "QC000055").Return(booking, nil).Once()
		f.bookings.On("UpdateBookingStatusWithVersion", ctx, int64(7), int64(3), models.StatusCancelled).
			Return(database.ErrConcurrentModification).Once()

		err := f.svc.Cancel(ctx, "QC000055", "user-1")
		assert.ErrorIs(t, err, database.ErrConcurrentModification)
	})
}

// seqRefs and the fakes below keep the concurrent test free of testify mock
// bookkeeping, which is not expectation-safe under parallel callers.
type seqRefs struct {
	n atomic.Int64
}

func (r *seqRefs) NextBookingRef(ctx context.Context) (string, error) {
	return fmt.Sprintf("QC%06d", r.n.Add(1)), nil
}

type okPayments struct{}

func (okPayments) Charge(ctx context.Context, amount int64, payerID string) (string, string, error) {
	return "pay-ok", models.PaymentStatusCompleted, nil
}

type collectBookings struct {
	mu       sync.Mutex
	bookings []*models.Booking
}

func (s *collectBookings) CreateBooking(ctx context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = append(s.bookings, b)
	return nil
}
func (s *collectBookings) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return nil, database.ErrNotFound
}
func (s *collectBookings) GetBookingByRef(ctx context.Context, ref string) (*models.Booking, error) {
	return nil, database.ErrNotFound
}
func (s *collectBookings) UpdateBookingStatusWithVersion(ctx context.Context, id, v int64, st string) error {
	return nil
}
func (s *collectBookings) UpdatePaymentStatus(ctx context.Context, id int64, ps string) error {
	return nil
}
func (s *collectBookings) GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	return nil, nil
}
func (s *collectBookings) GetBookingsByDateRange(ctx context.Context, a, b time.Time) ([]*models.Booking, error) {
	return nil, nil
}
func (s *collectBookings) GetDailyBookings(ctx context.Context, a, b time.Time) (map[string][]*models.Booking, error) {
	return nil, nil
}

func TestReserveConcurrentExactlyOneWinner(t *testing.T) {
	logger := zerolog.New(io.Discard)
	venues := NewVenueCatalog(testVenues(), &logger)
	store := repository.NewMemoryAvailability()
	bookings := &collectBookings{}
	svc := NewReservation(store, bookings, &seqRefs{}, okPayments{}, venues, nil, nil, nil, 90, &logger)

	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 5)
	const contenders = 25

	var wg sync.WaitGroup
	var confirmed, conflicted atomic.Int64
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(ctx, validRequest(date))
			switch {
			case err == nil:
				confirmed.Add(1)
			default:
				var conflictErr *SlotConflictError
				if errors.As(err, &conflictErr) {
					conflicted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), confirmed.Load())
	assert.Equal(t, int64(contenders-1), conflicted.Load())
	require.Len(t, bookings.bookings, 1)

	records, err := store.GetSlotRecords(ctx, 1, date)
	require.NoError(t, err)
	assert.Equal(t, bookings.bookings[0].Ref, records["10:00"])
	assert.Equal(t, bookings.bookings[0].Ref, records["11:00"])
}
