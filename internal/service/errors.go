package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPastDate         = errors.New("booking date is in the past")
	ErrDateTooFar       = errors.New("booking date is too far in the future")
	ErrEmptySlots       = errors.New("at least one time slot is required")
	ErrUnknownSlot      = errors.New("time slot is not part of the daily schedule")
	ErrUnsupportedSport = errors.New("sport is not offered by this venue")
	ErrInvalidPlayers   = errors.New("player count must be at least 1")
	ErrUnknownVenue     = errors.New("venue not found")
	ErrUnauthorized     = errors.New("not allowed to modify this booking")
)

// SlotConflictError reports which requested slots were already claimed. The
// whole request is rejected; no subset is booked.
type SlotConflictError struct {
	Slots []string
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slots already booked: %s", strings.Join(e.Slots, ", "))
}

// PersistenceError wraps a transient collaborator failure. The operation left
// no partial state behind and may be retried by the caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PaymentError is surfaced when the payment collaborator declines or fails;
// the booking is not committed.
type PaymentError struct {
	Err error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment failed: %v", e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }
