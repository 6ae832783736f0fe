package domain

import (
	"context"
	"time"

	"quickcourt/internal/models"
)

// AvailabilityStore holds one claim record per (venue, date, slot). A missing
// record means the slot is free. Claims are conditional: a key is written only
// if absent, and a multi-key claim is all-or-nothing.
type AvailabilityStore interface {
	// GetSlotRecords returns the booking ref holding each claimed slot of the
	// schedule; slots without a record are omitted.
	GetSlotRecords(ctx context.Context, venueID int64, date time.Time) (map[string]string, error)

	// ConditionalClaim atomically claims every key for ref. When any key is
	// already held it claims nothing and returns the conflicting slot labels.
	ConditionalClaim(ctx context.Context, keys []models.SlotKey, ref string) (conflicts []string, err error)

	// Release deletes only the keys still held by ref. Keys claimed by another
	// ref in the meantime are left untouched.
	Release(ctx context.Context, keys []models.SlotKey, ref string) error
}

// BookingStore persists Booking records.
type BookingStore interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByRef(ctx context.Context, ref string) (*models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id int64, version int64, status string) error
	UpdatePaymentStatus(ctx context.Context, id int64, paymentStatus string) error
	GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
	GetDailyBookings(ctx context.Context, start, end time.Time) (map[string][]*models.Booking, error)
}

// RefAllocator issues booking refs. Refs are unique for the lifetime of the
// database and allocated before the slot claim so the claim records can carry
// them.
type RefAllocator interface {
	NextBookingRef(ctx context.Context) (string, error)
}

// PaymentProvider charges the final amount for a booking.
type PaymentProvider interface {
	Charge(ctx context.Context, amount int64, payerID string) (paymentID string, status string, err error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncWorker queues reporting-sync tasks processed asynchronously.
type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status string) error
}

// ReservationService is the reservation coordinator contract.
type ReservationService interface {
	CheckAvailability(ctx context.Context, venueID int64, date time.Time) ([]models.SlotAvailability, error)
	Reserve(ctx context.Context, req *ReserveRequest) (*models.Booking, error)
	Cancel(ctx context.Context, bookingRef string, requesterID string) error
	GetBooking(ctx context.Context, ref string) (*models.Booking, error)
	GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error)
	GetDailyBookings(ctx context.Context, start, end time.Time) (map[string][]*models.Booking, error)
}

// ReserveRequest carries one user's slot selection.
type ReserveRequest struct {
	UserID      string
	UserName    string
	UserPhone   string
	UserEmail   string
	VenueID     int64
	Date        time.Time
	Slots       []string
	Sport       string
	PlayerCount int
	Notes       string
}

type VenueService interface {
	GetActiveVenues(ctx context.Context) ([]*models.Venue, error)
	GetVenueByID(ctx context.Context, id int64) (*models.Venue, error)
	SearchVenues(ctx context.Context, sport string, maxPrice int64) ([]*models.Venue, error)
}
