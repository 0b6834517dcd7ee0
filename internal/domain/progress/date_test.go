package progress

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroboost/progress-engine/internal/domain/shared"
)

func TestDateOf_UsesLocation(t *testing.T) {
	utcPlus5 := time.FixedZone("UTC+5", 5*60*60)
	instant := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-10", DateOf(instant, time.UTC).String())
	assert.Equal(t, "2024-03-11", DateOf(instant, utcPlus5).String())
	assert.Equal(t, "2024-03-10", DateOf(instant, nil).String())
}

func TestDate_DaysSince(t *testing.T) {
	a := NewDate(2024, 12, 31)
	b := NewDate(2025, 1, 1)

	assert.Equal(t, 1, b.DaysSince(a))
	assert.Equal(t, -1, a.DaysSince(b))
	assert.Equal(t, 0, a.DaysSince(a))
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.String())

	zero, err := ParseDate("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
	assert.Equal(t, "", zero.String())

	_, err = ParseDate("29/02/2024")
	assert.True(t, shared.IsInvalidInput(err))
}

func TestDate_JSON(t *testing.T) {
	type wrapper struct {
		Day Date `json:"day"`
	}

	raw, err := json.Marshal(wrapper{Day: NewDate(2024, 7, 4)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"day":"2024-07-04"}`, string(raw))

	var back wrapper
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Day.Equal(NewDate(2024, 7, 4)))
}

func TestDate_StartIn(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	start := NewDate(2024, 1, 15).StartIn(loc)

	assert.Equal(t, time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC), start.UTC())
}
