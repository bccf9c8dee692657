package traffic

import (
	"testing"
	"time"

	"github.com/richxcame/traffic-advisor/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndiaCalendar(t *testing.T, extra ...string) *HolidayCalendar {
	t.Helper()
	cal, err := NewHolidayCalendar(config.HolidayConfig{
		Country:    "IN",
		FirstYear:  2024,
		LastYear:   2026,
		ExtraDates: extra,
	})
	require.NoError(t, err)
	return cal
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestHolidayCalendar_FixedHolidays(t *testing.T) {
	cal := newIndiaCalendar(t)

	for year := 2024; year <= 2026; year++ {
		name, ok := cal.Lookup(day(year, time.January, 26))
		require.True(t, ok)
		assert.Equal(t, "Republic Day", name)

		assert.True(t, cal.IsHoliday(day(year, time.August, 15)))
		assert.True(t, cal.IsHoliday(day(year, time.December, 25)))
	}

	assert.False(t, cal.IsHoliday(day(2025, time.January, 27)))
	assert.False(t, cal.IsHoliday(day(2027, time.January, 26)), "outside configured range")
}

func TestHolidayCalendar_GoodFriday(t *testing.T) {
	cal := newIndiaCalendar(t)

	for _, d := range []time.Time{
		day(2024, time.March, 29),
		day(2025, time.April, 18),
		day(2026, time.April, 3),
	} {
		name, ok := cal.Lookup(d)
		require.True(t, ok, d.Format("2006-01-02"))
		assert.Equal(t, "Good Friday", name)
	}
}

func TestHolidayCalendar_Festivals(t *testing.T) {
	cal := newIndiaCalendar(t)

	name, ok := cal.Lookup(day(2025, time.October, 20))
	require.True(t, ok)
	assert.Equal(t, "Diwali", name)

	assert.True(t, cal.IsHoliday(day(2024, time.March, 25)))
	assert.True(t, cal.IsHoliday(day(2026, time.November, 8)))

	// Gandhi Jayanti and Dussehra coincide in 2025.
	name, ok = cal.Lookup(day(2025, time.October, 2))
	require.True(t, ok)
	assert.Equal(t, "Gandhi Jayanti / Dussehra", name)
}

func TestHolidayCalendar_Festivals2027(t *testing.T) {
	cal, err := NewHolidayCalendar(config.HolidayConfig{Country: "IN", FirstYear: 2027, LastYear: 2027})
	require.NoError(t, err)

	for _, tt := range []struct {
		date time.Time
		name string
	}{
		{day(2027, time.March, 10), "Id-ul-Fitr"},
		{day(2027, time.March, 22), "Holi"},
		{day(2027, time.October, 9), "Dussehra"},
		{day(2027, time.October, 29), "Diwali"},
	} {
		name, ok := cal.Lookup(tt.date)
		require.True(t, ok, tt.name)
		assert.Equal(t, tt.name, name)
	}
	// Four fixed holidays, Good Friday and four festivals.
	assert.Len(t, cal.Dates(), 9)
}

func TestHolidayCalendar_EveryBundledYearHasFestivals(t *testing.T) {
	for year := 2024; year <= 2027; year++ {
		assert.Len(t, indiaFestivals[year], 4, "year %d", year)
	}
}

func TestHolidayCalendar_ExtraDates(t *testing.T) {
	cal := newIndiaCalendar(t, "2025-11-05", " 2025-11-06 ")

	name, ok := cal.Lookup(day(2025, time.November, 5))
	require.True(t, ok)
	assert.Equal(t, "Regional holiday", name)
	assert.True(t, cal.IsHoliday(day(2025, time.November, 6)))
}

func TestHolidayCalendar_UsesLocalDate(t *testing.T) {
	cal := newIndiaCalendar(t)
	ist := time.FixedZone("IST", 5*3600+1800)

	// 20:00 UTC on 25 January is already Republic Day in India.
	utc := time.Date(2025, time.January, 25, 20, 0, 0, 0, time.UTC)
	assert.False(t, cal.IsHoliday(utc))
	assert.True(t, cal.IsHoliday(utc.In(ist)))
}

func TestNewHolidayCalendar_Errors(t *testing.T) {
	_, err := NewHolidayCalendar(config.HolidayConfig{Country: "IN", FirstYear: 2026, LastYear: 2025})
	assert.Error(t, err)

	_, err = NewHolidayCalendar(config.HolidayConfig{Country: "US", FirstYear: 2025, LastYear: 2025})
	assert.Error(t, err)

	_, err = NewHolidayCalendar(config.HolidayConfig{Country: "IN", FirstYear: 2025, LastYear: 2025, ExtraDates: []string{"25/12/2025"}})
	assert.Error(t, err)
}

func TestHolidayCalendar_NoCountryOnlyExtraDates(t *testing.T) {
	cal, err := NewHolidayCalendar(config.HolidayConfig{FirstYear: 2025, LastYear: 2025, ExtraDates: []string{"2025-03-03"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"2025-03-03"}, cal.Dates())
	assert.False(t, cal.IsHoliday(day(2025, time.January, 26)))
}

func TestHolidayCalendar_NilIsEmpty(t *testing.T) {
	var cal *HolidayCalendar
	assert.False(t, cal.IsHoliday(day(2025, time.January, 26)))
	assert.Nil(t, cal.Dates())
}
