package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarParseDate(t *testing.T) {
	cal := NewCalendar(time.UTC)

	got, err := cal.ParseDate("6-1-2025")
	require.NoError(t, err)
	assert.Equal(t, "06-01-2025", got)

	for _, bad := range []string{"", "2025-06-01", "13-01-2025", "06/01/2025", "02-30-2025"} {
		_, err := cal.ParseDate(bad)
		assert.Error(t, err, bad)
	}

	_, err = cal.ParseStrictDate("6-1-2025")
	assert.Error(t, err)
	got, err = cal.ParseStrictDate("06-01-2025")
	require.NoError(t, err)
	assert.Equal(t, "06-01-2025", got)
}

func TestCalendarParseRangeInZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	cal := NewCalendar(loc)

	iv, err := cal.ParseRange("06-10-2025", "09:00 AM - 09:20 AM")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC), iv.Start.UTC())
	assert.Equal(t, 20*time.Minute, iv.End.Sub(iv.Start))
	assert.Equal(t, "09:00 AM - 09:20 AM", cal.FormatRange(iv.Start, iv.End))

	overnight, err := cal.ParseRange("06-10-2025", "11:50 PM - 12:10 AM")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, overnight.End.Sub(overnight.Start))

	_, err = cal.ParseRange("06-10-2025", "9 AM - 10 AM")
	assert.Error(t, err)
}

func TestCalendarPresentLapsedHold(t *testing.T) {
	cal := NewCalendar(nil)
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	lapsed := now.Add(-time.Second)
	slot := &Slot{
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(time.Hour + 20*time.Minute),
		Status:    StatusHeld,
		HoldUntil: &lapsed,
		HolderID:  "u1",
	}

	out := cal.Present(slot, now)
	assert.Equal(t, StatusFree, out.Status)
	assert.Nil(t, out.HoldUntil)
	assert.Equal(t, "09:00 AM - 09:20 AM", out.Time)
	assert.Equal(t, StatusHeld, slot.Status, "presentation must not mutate the stored record")
}

func TestValidPhone(t *testing.T) {
	for _, ok := range []string{"+15551234567", "(555) 123-4567", "555.123.4567"} {
		assert.True(t, ValidPhone(ok), ok)
	}
	for _, bad := range []string{"", "12", "phone", "+0123456789"} {
		assert.False(t, ValidPhone(bad), bad)
	}
}
