package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quickcourt/internal/models"
)

const bookingColumns = `id, booking_ref, user_id, user_name, user_phone, user_email,
                 venue_id, venue_name, date(date), slots, sport, player_count,
                 total_amount, platform_fee, final_amount, status, payment_status,
                 payment_id, notes, created_at, updated_at, version`

// NextBookingRef allocates the next human-readable booking ref, e.g. QC000042.
// The counter row guarantees uniqueness for the lifetime of the database; refs
// of cancelled bookings are never reissued.
func (db *DB) NextBookingRef(ctx context.Context) (string, error) {
	result, err := db.ExecContext(ctx, `INSERT INTO booking_refs DEFAULT VALUES`)
	if err != nil {
		return "", fmt.Errorf("failed to allocate booking ref: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read booking ref sequence: %w", err)
	}
	return fmt.Sprintf("%s%0*d", models.BookingRefPrefix, models.BookingRefDigits, seq), nil
}

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	slots, err := json.Marshal(booking.Slots)
	if err != nil {
		return fmt.Errorf("failed to marshal slots: %w", err)
	}

	query := `INSERT INTO bookings (
				booking_ref, user_id, user_name, user_phone, user_email,
				venue_id, venue_name, date, slots, sport, player_count,
				total_amount, platform_fee, final_amount, status, payment_status,
				payment_id, notes, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		booking.Ref,
		booking.UserID,
		booking.UserName,
		booking.UserPhone,
		booking.UserEmail,
		booking.VenueID,
		booking.VenueName,
		booking.Date.Format(models.DateLayout),
		string(slots),
		booking.Sport,
		booking.PlayerCount,
		booking.TotalAmount,
		booking.PlatformFee,
		booking.FinalAmount,
		booking.Status,
		booking.PaymentStatus,
		booking.PaymentID,
		booking.Notes,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	return nil
}

func scanBooking(row interface {
	Scan(dest ...interface{}) error
}) (*models.Booking, error) {
	b := &models.Booking{}
	var dateStr, slotsStr string
	err := row.Scan(
		&b.ID, &b.Ref, &b.UserID, &b.UserName, &b.UserPhone, &b.UserEmail,
		&b.VenueID, &b.VenueName, &dateStr, &slotsStr, &b.Sport, &b.PlayerCount,
		&b.TotalAmount, &b.PlatformFee, &b.FinalAmount, &b.Status, &b.PaymentStatus,
		&b.PaymentID, &b.Notes, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.Date, err = time.Parse(models.DateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", dateStr, err)
	}
	if err := json.Unmarshal([]byte(slotsStr), &b.Slots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slots %s: %w", slotsStr, err)
	}
	return b, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func (db *DB) GetBookingByRef(ctx context.Context, ref string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_ref = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by ref: %w", err)
	}
	return booking, nil
}

func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) UpdatePaymentStatus(ctx context.Context, id int64, paymentStatus string) error {
	query := `UPDATE bookings SET payment_status = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, paymentStatus, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (db *DB) GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	// Get bookings for the last 2 weeks and future ones
	twoWeeksAgo := time.Now().AddDate(0, 0, -14).Format(models.DateLayout)
	query := `SELECT ` + bookingColumns + `
              FROM bookings WHERE user_id = ? AND date >= ? ORDER BY date DESC`
	bookings, err := db.queryBookings(ctx, query, userID, twoWeeksAgo)
	if err != nil {
		return nil, fmt.Errorf("failed to get user bookings: %w", err)
	}
	return bookings, nil
}

func (db *DB) GetBookingsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
              FROM bookings WHERE date(date) >= ? AND date(date) <= ? ORDER BY date ASC`
	bookings, err := db.queryBookings(ctx, query,
		startDate.Format(models.DateLayout), endDate.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by date range: %w", err)
	}
	return bookings, nil
}

// GetAllBookings returns the full booking history, oldest first. Used by the
// reporting resync to rebuild the spreadsheet from scratch.
func (db *DB) GetAllBookings(ctx context.Context) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings ORDER BY date ASC, id ASC`
	bookings, err := db.queryBookings(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get all bookings: %w", err)
	}
	return bookings, nil
}

func (db *DB) GetDailyBookings(ctx context.Context, startDate, endDate time.Time) (map[string][]*models.Booking, error) {
	bookings, err := db.GetBookingsByDateRange(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}

	daily := make(map[string][]*models.Booking)
	for _, b := range bookings {
		dateKey := b.Date.Format(models.DateLayout)
		daily[dateKey] = append(daily[dateKey], b)
	}
	return daily, nil
}
