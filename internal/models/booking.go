package models

import (
	"fmt"
	"time"
)

type Booking struct {
	ID            int64     `json:"id"`
	Ref           string    `json:"booking_id"` // human-readable, e.g. QC000042
	UserID        string    `json:"user_id"`
	UserName      string    `json:"user_name"`
	UserPhone     string    `json:"user_phone"`
	UserEmail     string    `json:"user_email"`
	VenueID       int64     `json:"venue_id"`
	VenueName     string    `json:"venue_name"`
	Date          time.Time `json:"date"`
	Slots         []string  `json:"time_slots"`
	Sport         string    `json:"sport"`
	PlayerCount   int       `json:"player_count"`
	TotalAmount   int64     `json:"total_amount"`
	PlatformFee   int64     `json:"platform_fee"`
	FinalAmount   int64     `json:"final_amount"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	PaymentID     string    `json:"payment_id,omitempty"`
	Notes         string    `json:"special_notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Version       int64     `json:"version"`
}

// SlotTotal computes the slot total for a price per hour.
func SlotTotal(slots []string, pricePerHour int64) int64 {
	return int64(len(slots)) * pricePerHour
}

// FeeFor computes the platform fee rounded to the nearest currency unit.
func FeeFor(total int64) int64 {
	return (total*PlatformFeePercent + 50) / 100
}

// SlotKey identifies one claimable unit: a venue, a calendar date and a slot.
type SlotKey struct {
	VenueID int64
	Date    time.Time
	Slot    string
}

// String renders the store key, e.g. "venue:3:2025-07-01:14:00".
func (k SlotKey) String() string {
	return fmt.Sprintf("venue:%d:%s:%s", k.VenueID, k.Date.Format(DateLayout), k.Slot)
}

// SlotKeys expands a slot list into keys for one venue and date.
func SlotKeys(venueID int64, date time.Time, slots []string) []SlotKey {
	keys := make([]SlotKey, len(slots))
	for i, s := range slots {
		keys[i] = SlotKey{VenueID: venueID, Date: date, Slot: s}
	}
	return keys
}

// SlotAvailability is one row of a CheckAvailability response.
type SlotAvailability struct {
	Slot string `json:"time_slot"`
	Free bool   `json:"is_available"`
}
