package repository

import (
	"context"
	"sync"
	"time"

	"quickcourt/internal/models"
)

// MemoryAvailability is the in-process availability store. Used as the
// failover fallback and as the store for tests; a single mutex makes the
// multi-key claim all-or-nothing.
type MemoryAvailability struct {
	mu      sync.Mutex
	records map[string]string
}

func NewMemoryAvailability() *MemoryAvailability {
	return &MemoryAvailability{
		records: make(map[string]string),
	}
}

func (r *MemoryAvailability) GetSlotRecords(ctx context.Context, venueID int64, date time.Time) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make(map[string]string)
	for _, slot := range models.DailySlots {
		key := models.SlotKey{VenueID: venueID, Date: date, Slot: slot}.String()
		if ref, ok := r.records[key]; ok {
			records[slot] = ref
		}
	}
	return records, nil
}

func (r *MemoryAvailability) ConditionalClaim(ctx context.Context, keys []models.SlotKey, ref string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var conflicts []string
	for _, k := range keys {
		if _, taken := r.records[k.String()]; taken {
			conflicts = append(conflicts, k.Slot)
		}
	}
	if len(conflicts) > 0 {
		return conflicts, nil
	}

	for _, k := range keys {
		r.records[k.String()] = ref
	}
	return nil, nil
}

func (r *MemoryAvailability) Release(ctx context.Context, keys []models.SlotKey, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range keys {
		key := k.String()
		if r.records[key] == ref {
			delete(r.records, key)
		}
	}
	return nil
}
