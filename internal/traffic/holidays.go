package traffic

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/richxcame/traffic-advisor/pkg/config"
	"github.com/richxcame/traffic-advisor/pkg/logger"
	"github.com/soniakeys/meeus/v3/easter"
	"go.uber.org/zap"
)

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{year: y, month: m, day: d}
}

func (d civilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, d.month, d.day)
}

type fixedHoliday struct {
	month time.Month
	day   int
	name  string
}

var indiaFixedHolidays = []fixedHoliday{
	{time.January, 26, "Republic Day"},
	{time.August, 15, "Independence Day"},
	{time.October, 2, "Gandhi Jayanti"},
	{time.December, 25, "Christmas"},
}

// Lunar and lunisolar festivals follow the central government gazette and
// move every year. Years missing here get only the fixed and Easter-derived
// holidays plus HOLIDAY_EXTRA_DATES.
var indiaFestivals = map[int][]fixedHoliday{
	2024: {
		{time.March, 25, "Holi"},
		{time.April, 11, "Id-ul-Fitr"},
		{time.October, 12, "Dussehra"},
		{time.October, 31, "Diwali"},
	},
	2025: {
		{time.March, 14, "Holi"},
		{time.March, 31, "Id-ul-Fitr"},
		{time.October, 2, "Dussehra"},
		{time.October, 20, "Diwali"},
	},
	2026: {
		{time.March, 4, "Holi"},
		{time.March, 21, "Id-ul-Fitr"},
		{time.October, 20, "Dussehra"},
		{time.November, 8, "Diwali"},
	},
	2027: {
		{time.March, 10, "Id-ul-Fitr"},
		{time.March, 22, "Holi"},
		{time.October, 9, "Dussehra"},
		{time.October, 29, "Diwali"},
	},
}

// HolidayCalendar is a precomputed, read-only set of public holidays.
type HolidayCalendar struct {
	dates map[civilDate]string
}

// NewHolidayCalendar builds the calendar for cfg.FirstYear..cfg.LastYear.
// Only the "IN" country calendar is bundled; extra dates apply to any country.
func NewHolidayCalendar(cfg config.HolidayConfig) (*HolidayCalendar, error) {
	if cfg.LastYear < cfg.FirstYear {
		return nil, fmt.Errorf("invalid holiday range %d..%d", cfg.FirstYear, cfg.LastYear)
	}
	country := strings.ToUpper(strings.TrimSpace(cfg.Country))
	if country != "" && country != "IN" {
		return nil, fmt.Errorf("no holiday calendar bundled for country %q", cfg.Country)
	}

	cal := &HolidayCalendar{dates: make(map[civilDate]string)}

	if country == "IN" {
		var uncovered []int
		for year := cfg.FirstYear; year <= cfg.LastYear; year++ {
			for _, h := range indiaFixedHolidays {
				cal.add(civilDate{year, h.month, h.day}, h.name)
			}
			cal.add(goodFriday(year), "Good Friday")

			festivals, ok := indiaFestivals[year]
			if !ok {
				uncovered = append(uncovered, year)
			}
			for _, h := range festivals {
				cal.add(civilDate{year, h.month, h.day}, h.name)
			}
		}
		if len(uncovered) > 0 {
			logger.Warn("holiday calendar has no festival dates for some years; only fixed holidays apply",
				zap.Ints("years", uncovered),
			)
		}
	}

	for _, raw := range cfg.ExtraDates {
		t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid extra holiday %q: %w", raw, err)
		}
		cal.add(dateOf(t), "Regional holiday")
	}

	return cal, nil
}

func (c *HolidayCalendar) add(d civilDate, name string) {
	if existing, ok := c.dates[d]; ok && existing != name {
		name = existing + " / " + name
	}
	c.dates[d] = name
}

// Lookup returns the holiday name for t's calendar date in t's location.
func (c *HolidayCalendar) Lookup(t time.Time) (string, bool) {
	if c == nil {
		return "", false
	}
	name, ok := c.dates[dateOf(t)]
	return name, ok
}

// IsHoliday reports whether t's calendar date is a holiday.
func (c *HolidayCalendar) IsHoliday(t time.Time) bool {
	_, ok := c.Lookup(t)
	return ok
}

// Dates returns every holiday as YYYY-MM-DD, sorted.
func (c *HolidayCalendar) Dates() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.dates))
	for d := range c.dates {
		out = append(out, d.String())
	}
	sort.Strings(out)
	return out
}

func goodFriday(year int) civilDate {
	month, day := easter.Gregorian(year)
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -2)
	return dateOf(t)
}
