package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Almaty", loc.String())

	loc, err = LoadLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2024, 3, 11, 22, 30, 0, 0, time.UTC)
	c := NewFixedClock(start, AlmatyTZ)

	assert.Equal(t, AlmatyTZ, c.Location())
	assert.Equal(t, 12, c.Now().Day(), "22:30 UTC is already the next day at UTC+5")

	c.Advance(2 * time.Hour)
	assert.True(t, c.Now().Equal(start.Add(2*time.Hour)))

	c.Set(start)
	assert.True(t, c.Now().Equal(start))
}

func TestNewClock_NilLocationIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, NewSystemClock(nil).Location())
	assert.Equal(t, time.UTC, NewFixedClock(time.Now(), nil).Location())
}

func TestStartOfDay(t *testing.T) {
	ts := time.Date(2024, 3, 11, 20, 15, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), StartOfDay(ts, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, AlmatyTZ), StartOfDay(ts, AlmatyTZ))
}

func TestStartOfWeek(t *testing.T) {
	monday := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   time.Time
	}{
		{"monday", time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"wednesday", time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC)},
		{"sunday", time.Date(2024, 3, 17, 23, 59, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, monday, StartOfWeek(tt.in, time.UTC))
		})
	}
}
