package payment

import (
	"context"
	"errors"
	"fmt"

	"quickcourt/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrChargeDeclined = errors.New("charge declined")

// Stub simulates a payment gateway. Every charge succeeds unless a failure
// hook is installed; real gateway integration replaces this behind the same
// interface.
type Stub struct {
	logger *zerolog.Logger

	// FailFunc, when set, is consulted per charge. Returning true declines it.
	FailFunc func(amount int64, payerID string) bool
}

func NewStub(logger *zerolog.Logger) *Stub {
	return &Stub{logger: logger}
}

func (s *Stub) Charge(ctx context.Context, amount int64, payerID string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if amount <= 0 {
		return "", "", fmt.Errorf("invalid charge amount %d", amount)
	}

	if s.FailFunc != nil && s.FailFunc(amount, payerID) {
		s.logger.Warn().Int64("amount", amount).Str("payer_id", payerID).Msg("stub payment declined")
		return "", models.PaymentStatusFailed, ErrChargeDeclined
	}

	paymentID := "sim_" + uuid.NewString()
	s.logger.Debug().
		Str("payment_id", paymentID).
		Int64("amount", amount).
		Str("payer_id", payerID).
		Msg("stub payment captured")

	return paymentID, models.PaymentStatusCompleted, nil
}
