package repository

import (
	"context"
	"sync/atomic"
	"time"

	"quickcourt/internal/domain"
	"quickcourt/internal/metrics"
	"quickcourt/internal/models"

	"github.com/rs/zerolog"
)

// FailoverAvailability serves reads from a fallback store when the primary is
// down. Writes never fail over: a claim or release that cannot reach the
// primary fails loudly, because accepting it against the fallback could
// double-book once the primary recovers. Successful writes are mirrored into
// the fallback so its snapshot stays useful.
type FailoverAvailability struct {
	primary   domain.AvailabilityStore
	fallback  domain.AvailabilityStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverAvailability(primary, fallback domain.AvailabilityStore, logger *zerolog.Logger) *FailoverAvailability {
	return &FailoverAvailability{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverAvailability) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary availability store failed, serving reads from memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverAvailability) GetSlotRecords(ctx context.Context, venueID int64, date time.Time) (map[string]string, error) {
	if !r.isDown.Load() {
		records, err := r.primary.GetSlotRecords(ctx, venueID, date)
		if err == nil {
			return records, nil
		}
		r.markDown(err)
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute {
		records, err := r.primary.GetSlotRecords(ctx, venueID, date)
		if err == nil {
			r.isDown.Store(false)
			return records, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	metrics.IncAvailabilityFallback()
	return r.fallback.GetSlotRecords(ctx, venueID, date)
}

func (r *FailoverAvailability) ConditionalClaim(ctx context.Context, keys []models.SlotKey, ref string) ([]string, error) {
	conflicts, err := r.primary.ConditionalClaim(ctx, keys, ref)
	if err != nil {
		r.markDown(err)
		return nil, err
	}
	if len(conflicts) == 0 {
		r.isDown.Store(false)
		// Mirror best-effort; the primary record is authoritative.
		if _, err := r.fallback.ConditionalClaim(ctx, keys, ref); err != nil {
			r.logger.Warn().Err(err).Msg("failed to mirror claim into fallback store")
		}
	}
	return conflicts, nil
}

func (r *FailoverAvailability) Release(ctx context.Context, keys []models.SlotKey, ref string) error {
	if err := r.primary.Release(ctx, keys, ref); err != nil {
		r.markDown(err)
		return err
	}
	r.isDown.Store(false)
	if err := r.fallback.Release(ctx, keys, ref); err != nil {
		r.logger.Warn().Err(err).Msg("failed to mirror release into fallback store")
	}
	return nil
}
