package service

import (
	"context"
	"errors"
	"time"

	"quickcourt/internal/database"
	"quickcourt/internal/domain"
	"quickcourt/internal/events"
	"quickcourt/internal/metrics"
	"quickcourt/internal/models"

	"github.com/rs/zerolog"
)

// Reservation coordinates slot claims, payment and booking persistence.
// It holds no request state of its own; every operation is request-scoped and
// safe to call concurrently. All slot mutation goes through the availability
// store's conditional operations: a plain read-then-write can never book.
type Reservation struct {
	slots          domain.AvailabilityStore
	bookings       domain.BookingStore
	refs           domain.RefAllocator
	payments       domain.PaymentProvider
	venues         domain.VenueService
	eventBus       domain.EventPublisher
	syncWorker     domain.SyncWorker
	managers       map[string]bool
	maxBookingDays int
	logger         *zerolog.Logger
}

func NewReservation(
	slots domain.AvailabilityStore,
	bookings domain.BookingStore,
	refs domain.RefAllocator,
	payments domain.PaymentProvider,
	venues domain.VenueService,
	eventBus domain.EventPublisher,
	syncWorker domain.SyncWorker,
	managers []string,
	maxBookingDays int,
	logger *zerolog.Logger,
) *Reservation {
	if maxBookingDays <= 0 {
		maxBookingDays = models.DefaultMaxBookingDays
	}
	managersMap := make(map[string]bool, len(managers))
	for _, id := range managers {
		managersMap[id] = true
	}
	return &Reservation{
		slots:          slots,
		bookings:       bookings,
		refs:           refs,
		payments:       payments,
		venues:         venues,
		eventBus:       eventBus,
		syncWorker:     syncWorker,
		managers:       managersMap,
		maxBookingDays: maxBookingDays,
		logger:         logger,
	}
}

// ValidateBookingDate rejects past dates and dates beyond the booking window.
// Today stays bookable for its whole calendar day; yesterday is already past.
func (s *Reservation) ValidateBookingDate(date time.Time) error {
	today := time.Now().Truncate(24 * time.Hour)
	if date.Before(today) {
		return ErrPastDate
	}
	if date.After(today.AddDate(0, 0, s.maxBookingDays)) {
		return ErrDateTooFar
	}
	return nil
}

// CheckAvailability reads the claim records for venue+date and reports every
// schedule slot as free or taken. Missing records default to free. The result
// carries no freshness guarantee; Reserve re-checks at commit time.
func (s *Reservation) CheckAvailability(ctx context.Context, venueID int64, date time.Time) ([]models.SlotAvailability, error) {
	if err := s.ValidateBookingDate(date); err != nil {
		return nil, err
	}
	if _, err := s.venues.GetVenueByID(ctx, venueID); err != nil {
		return nil, err
	}

	records, err := s.slots.GetSlotRecords(ctx, venueID, date)
	if err != nil {
		return nil, &PersistenceError{Op: "get slot records", Err: err}
	}

	availability := make([]models.SlotAvailability, len(models.DailySlots))
	for i, slot := range models.DailySlots {
		_, taken := records[slot]
		availability[i] = models.SlotAvailability{Slot: slot, Free: !taken}
	}
	return availability, nil
}

// Reserve validates the request, claims every requested slot as one atomic
// unit, charges the payment stub and persists the booking. Any failure after
// the claim releases the claimed keys before returning, so no partial state
// survives a rejected request.
func (s *Reservation) Reserve(ctx context.Context, req *domain.ReserveRequest) (*models.Booking, error) {
	venue, err := s.validateReserve(ctx, req)
	if err != nil {
		return nil, err
	}

	totalAmount := models.SlotTotal(req.Slots, venue.PricePerHour)
	platformFee := models.FeeFor(totalAmount)
	finalAmount := totalAmount + platformFee

	ref, err := s.refs.NextBookingRef(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "allocate booking ref", Err: err}
	}

	keys := models.SlotKeys(req.VenueID, req.Date, req.Slots)
	conflicts, err := s.slots.ConditionalClaim(ctx, keys, ref)
	if err != nil {
		metrics.IncReservation("error")
		return nil, &PersistenceError{Op: "claim slots", Err: err}
	}
	if len(conflicts) > 0 {
		metrics.IncReservation("conflict")
		metrics.AddSlotConflicts(len(conflicts))
		return nil, &SlotConflictError{Slots: conflicts}
	}

	paymentID, paymentStatus, err := s.payments.Charge(ctx, finalAmount, req.UserID)
	if err != nil {
		s.rollbackClaim(keys, ref, "payment failed")
		metrics.IncReservation("payment_failed")
		return nil, &PaymentError{Err: err}
	}

	now := time.Now()
	booking := &models.Booking{
		Ref:           ref,
		UserID:        req.UserID,
		UserName:      req.UserName,
		UserPhone:     req.UserPhone,
		UserEmail:     req.UserEmail,
		VenueID:       venue.ID,
		VenueName:     venue.Name,
		Date:          req.Date,
		Slots:         req.Slots,
		Sport:         req.Sport,
		PlayerCount:   req.PlayerCount,
		TotalAmount:   totalAmount,
		PlatformFee:   platformFee,
		FinalAmount:   finalAmount,
		Status:        models.StatusConfirmed,
		PaymentStatus: paymentStatus,
		PaymentID:     paymentID,
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.bookings.CreateBooking(ctx, booking); err != nil {
		s.rollbackClaim(keys, ref, "persist booking failed")
		metrics.IncReservation("error")
		return nil, &PersistenceError{Op: "create booking", Err: err}
	}

	metrics.IncReservation("confirmed")
	s.logger.Info().
		Str("booking_ref", booking.Ref).
		Str("user_id", booking.UserID).
		Int64("venue_id", booking.VenueID).
		Str("date", booking.Date.Format(models.DateLayout)).
		Strs("slots", booking.Slots).
		Int64("final_amount", booking.FinalAmount).
		Msg("booking confirmed")

	s.publishEvent(events.EventBookingCreated, booking, req.UserID)
	s.enqueueSync(ctx, booking, "upsert")
	s.enqueueScheduleSync(ctx)

	return booking, nil
}

func (s *Reservation) validateReserve(ctx context.Context, req *domain.ReserveRequest) (*models.Venue, error) {
	if err := s.ValidateBookingDate(req.Date); err != nil {
		return nil, err
	}
	if len(req.Slots) == 0 {
		return nil, ErrEmptySlots
	}
	seen := make(map[string]bool, len(req.Slots))
	for _, slot := range req.Slots {
		if !models.IsValidSlot(slot) {
			return nil, ErrUnknownSlot
		}
		if seen[slot] {
			return nil, ErrUnknownSlot
		}
		seen[slot] = true
	}
	if req.PlayerCount < 1 {
		return nil, ErrInvalidPlayers
	}

	venue, err := s.venues.GetVenueByID(ctx, req.VenueID)
	if err != nil {
		return nil, err
	}
	if !venue.SupportsSport(req.Sport) {
		return nil, ErrUnsupportedSport
	}
	return venue, nil
}

// rollbackClaim releases claimed keys on a failure path. It uses a fresh
// short-lived context because the request context may already be done.
func (s *Reservation) rollbackClaim(keys []models.SlotKey, ref string, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.slots.Release(ctx, keys, ref); err != nil {
		s.logger.Error().Err(err).Str("booking_ref", ref).Str("reason", reason).
			Msg("failed to release claimed slots during rollback")
	}
}

// Cancel transitions a booking to cancelled and frees its slots. Only the
// owner or a configured manager may cancel. Cancelling a completed or already
// cancelled booking is a no-op success so clients can retry safely; the slot
// release is re-attempted on retries because it is compare-and-delete.
func (s *Reservation) Cancel(ctx context.Context, bookingRef string, requesterID string) error {
	booking, err := s.bookings.GetBookingByRef(ctx, bookingRef)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return err
		}
		return &PersistenceError{Op: "get booking", Err: err}
	}

	if booking.UserID != requesterID && !s.managers[requesterID] {
		return ErrUnauthorized
	}

	switch booking.Status {
	case models.StatusCompleted:
		return nil
	case models.StatusCancelled:
		// Idempotent retry: the status is already terminal but a previous
		// attempt may have failed before releasing the slots.
		return s.releaseSlots(ctx, booking)
	}

	if err := s.bookings.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, models.StatusCancelled); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return err
		}
		return &PersistenceError{Op: "update booking status", Err: err}
	}

	if err := s.releaseSlots(ctx, booking); err != nil {
		return err
	}

	metrics.IncReservation("cancelled")
	s.logger.Info().
		Str("booking_ref", booking.Ref).
		Str("requester_id", requesterID).
		Msg("booking cancelled")

	booking.Status = models.StatusCancelled
	s.publishEvent(events.EventBookingCancelled, booking, requesterID)
	s.enqueueSync(ctx, booking, "update_status")
	s.enqueueScheduleSync(ctx)

	return nil
}

func (s *Reservation) releaseSlots(ctx context.Context, booking *models.Booking) error {
	keys := models.SlotKeys(booking.VenueID, booking.Date, booking.Slots)
	if err := s.slots.Release(ctx, keys, booking.Ref); err != nil {
		return &PersistenceError{Op: "release slots", Err: err}
	}
	return nil
}

func (s *Reservation) GetBooking(ctx context.Context, ref string) (*models.Booking, error) {
	return s.bookings.GetBookingByRef(ctx, ref)
}

func (s *Reservation) GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	return s.bookings.GetUserBookings(ctx, userID)
}

func (s *Reservation) GetDailyBookings(ctx context.Context, start, end time.Time) (map[string][]*models.Booking, error) {
	return s.bookings.GetDailyBookings(ctx, start, end)
}

func (s *Reservation) publishEvent(eventType string, booking *models.Booking, changedBy string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:   booking.ID,
		BookingRef:  booking.Ref,
		UserID:      booking.UserID,
		VenueID:     booking.VenueID,
		VenueName:   booking.VenueName,
		Date:        booking.Date,
		Slots:       booking.Slots,
		Status:      booking.Status,
		FinalAmount: booking.FinalAmount,
		ChangedBy:   changedBy,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_ref", booking.Ref).Msg("publish event error")
	}
}

func (s *Reservation) enqueueSync(ctx context.Context, booking *models.Booking, taskType string) {
	if s.syncWorker == nil {
		return
	}

	var status string
	if taskType == "update_status" {
		status = booking.Status
	}

	if err := s.syncWorker.EnqueueTask(ctx, taskType, booking.ID, booking, status); err != nil {
		s.logger.Error().Err(err).Str("booking_ref", booking.Ref).Str("task", taskType).Msg("sheets enqueue error")
	}
}

// enqueueScheduleSync asks the worker to re-render the occupancy schedule
// after any booking mutation.
func (s *Reservation) enqueueScheduleSync(ctx context.Context) {
	if s.syncWorker == nil {
		return
	}

	if err := s.syncWorker.EnqueueTask(ctx, "sync_schedule", 0, nil, ""); err != nil {
		s.logger.Error().Err(err).Msg("schedule sync enqueue error")
	}
}
