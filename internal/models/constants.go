package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

const (
	// BookingRefPrefix is prepended to the zero-padded booking sequence.
	BookingRefPrefix = "QC"

	// BookingRefDigits is the width of the padded sequence part.
	BookingRefDigits = 6

	// PlatformFeePercent is the surcharge applied on top of the slot total.
	PlatformFeePercent = 5

	// DateLayout is the canonical calendar-date format for slot keys.
	DateLayout = "2006-01-02"

	// SlotLayout is the format of a slot label.
	SlotLayout = "15:04"
)

const (
	// DefaultMaxBookingDays caps how far ahead a reservation may be made.
	DefaultMaxBookingDays = 90

	// WorkerQueueSize is the sheets sync worker channel capacity.
	WorkerQueueSize = 1000
)

// DailySlots is the fixed daily schedule: hourly slots from 06:00 to 22:00.
// Every requested slot must come from this list.
var DailySlots = []string{
	"06:00", "07:00", "08:00", "09:00", "10:00", "11:00",
	"12:00", "13:00", "14:00", "15:00", "16:00", "17:00",
	"18:00", "19:00", "20:00", "21:00", "22:00",
}

// IsValidSlot reports whether label is part of the daily schedule.
func IsValidSlot(label string) bool {
	for _, s := range DailySlots {
		if s == label {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether no transition may leave the status.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}
