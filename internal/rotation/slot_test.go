package rotation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlotStart(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want int64
	}{
		{"on boundary", time.Unix(1_760_537_700, 0), 1_760_537_700},
		{"mid window", time.Unix(1_760_537_700+421, 0), 1_760_537_700},
		{"one second before next", time.Unix(1_760_537_700+899, 0), 1_760_537_700},
		{"sub-second", time.Unix(1_760_538_600, int64(500*time.Millisecond)), 1_760_538_600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SlotStart(tt.now, DefaultPeriod)
			assert.Equal(t, tt.want, got.Unix())
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestSlotStart_NonPositivePeriod(t *testing.T) {
	now := time.Unix(1_760_537_742, 0)
	assert.Equal(t, now, SlotStart(now, 0))
}

func TestSlug(t *testing.T) {
	slot := time.Unix(1_760_537_700, 0)
	assert.Equal(t, "btc-updown-15m-1760537700", Slug("BTC", slot))
	assert.Equal(t, "eth-updown-15m-1760537700", Slug("eth", slot))
}
