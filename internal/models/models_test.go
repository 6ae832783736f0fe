package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlotKeyString(t *testing.T) {
	date, _ := time.Parse(DateLayout, "2025-07-01")
	key := SlotKey{VenueID: 3, Date: date, Slot: "14:00"}
	assert.Equal(t, "venue:3:2025-07-01:14:00", key.String())
}

func TestSlotKeys(t *testing.T) {
	date, _ := time.Parse(DateLayout, "2025-07-01")
	keys := SlotKeys(7, date, []string{"14:00", "15:00"})
	assert.Len(t, keys, 2)
	assert.Equal(t, "venue:7:2025-07-01:14:00", keys[0].String())
	assert.Equal(t, "venue:7:2025-07-01:15:00", keys[1].String())
}

func TestFeeFor(t *testing.T) {
	// 2 slots at 200/hour: total=400, fee=20, final=420.
	total := SlotTotal([]string{"14:00", "15:00"}, 200)
	assert.Equal(t, int64(400), total)
	assert.Equal(t, int64(20), FeeFor(total))
	assert.Equal(t, int64(420), total+FeeFor(total))

	// Rounding to nearest unit: 5% of 130 = 6.5 -> 7; 5% of 129 = 6.45 -> 6.
	assert.Equal(t, int64(7), FeeFor(130))
	assert.Equal(t, int64(6), FeeFor(129))
	assert.Equal(t, int64(0), FeeFor(0))
}

func TestIsValidSlot(t *testing.T) {
	assert.True(t, IsValidSlot("06:00"))
	assert.True(t, IsValidSlot("22:00"))
	assert.False(t, IsValidSlot("23:00"))
	assert.False(t, IsValidSlot("6:00"))
	assert.False(t, IsValidSlot(""))
}

func TestVenueSupportsSport(t *testing.T) {
	v := &Venue{Sports: []string{"badminton", "tennis"}}
	assert.True(t, v.SupportsSport("tennis"))
	assert.False(t, v.SupportsSport("cricket"))
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus(StatusCompleted))
	assert.True(t, IsTerminalStatus(StatusCancelled))
	assert.False(t, IsTerminalStatus(StatusPending))
	assert.False(t, IsTerminalStatus(StatusConfirmed))
}
