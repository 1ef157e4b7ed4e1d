package slots

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	// DateLayout is the canonical doctor-local date format (MM-DD-YYYY).
	DateLayout = "01-02-2006"
	// ClockLayout is the canonical wall-clock format inside a time range.
	ClockLayout = "03:04 PM"

	looseDateTimeLayout = "1-2-2006 3:04 PM"
	looseDateLayout     = "1-2-2006"
	rangeSeparator      = " - "
)

var (
	timeRangePattern  = regexp.MustCompile(`^(0?[1-9]|1[0-2]):[0-5][0-9] (AM|PM) - (0?[1-9]|1[0-2]):[0-5][0-9] (AM|PM)$`)
	strictDatePattern = regexp.MustCompile(`^(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])-[0-9]{4}$`)
	looseDatePattern  = regexp.MustCompile(`^(0?[1-9]|1[0-2])-(0?[1-9]|[12][0-9]|3[01])-[0-9]{4}$`)

	errBadDate  = errors.New("invalid date")
	errBadClock = errors.New("invalid time")
	errBadRange = errors.New("invalid time range")
)

// Calendar interprets doctor-local dates and wall-clock strings.
type Calendar struct {
	loc *time.Location
}

// NewCalendar returns a calendar for loc; nil means UTC.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// Location returns the doctor-local zone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// ParseDate accepts M-D-YYYY or MM-DD-YYYY and returns the canonical form.
func (c Calendar) ParseDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !looseDatePattern.MatchString(raw) {
		return "", errBadDate
	}
	t, err := time.ParseInLocation(looseDateLayout, raw, c.Location())
	if err != nil {
		return "", errBadDate
	}
	return t.Format(DateLayout), nil
}

// ParseStrictDate accepts only MM-DD-YYYY.
func (c Calendar) ParseStrictDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strictDatePattern.MatchString(raw) {
		return "", errBadDate
	}
	if _, err := time.ParseInLocation(DateLayout, raw, c.Location()); err != nil {
		return "", errBadDate
	}
	return raw, nil
}

// ParseInstant combines a date and an "hh:mm AM" clock into an instant.
func (c Calendar) ParseInstant(date, clock string) (time.Time, error) {
	canonical, err := c.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	clock = strings.ToUpper(strings.Join(strings.Fields(clock), " "))
	if clock == "" {
		return time.Time{}, errBadClock
	}
	t, err := time.ParseInLocation(looseDateTimeLayout, canonical+" "+clock, c.Location())
	if err != nil {
		return time.Time{}, errBadClock
	}
	return t, nil
}

// ParseRange resolves "hh:mm AM - hh:mm PM" on date. A range whose end is not
// after its start runs past midnight.
func (c Calendar) ParseRange(date, timeRange string) (Interval, error) {
	timeRange = strings.TrimSpace(timeRange)
	if !timeRangePattern.MatchString(timeRange) {
		return Interval{}, errBadRange
	}
	parts := strings.SplitN(timeRange, rangeSeparator, 2)
	start, err := c.ParseInstant(date, parts[0])
	if err != nil {
		return Interval{}, err
	}
	end, err := c.ParseInstant(date, parts[1])
	if err != nil {
		return Interval{}, err
	}
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return Interval{Start: start, End: end}, nil
}

// FormatDate renders t as a doctor-local MM-DD-YYYY date.
func (c Calendar) FormatDate(t time.Time) string {
	return t.In(c.Location()).Format(DateLayout)
}

// FormatRange renders a slot's display range, e.g. "09:00 AM - 09:20 AM".
func (c Calendar) FormatRange(start, end time.Time) string {
	loc := c.Location()
	return start.In(loc).Format(ClockLayout) + rangeSeparator + end.In(loc).Format(ClockLayout)
}

// Today is the doctor-local calendar date at now.
func (c Calendar) Today(now time.Time) string {
	return c.FormatDate(now)
}

// Present returns a copy of slot with its display range filled in. A lapsed
// hold is reported as a free slot without holder or patient data.
func (c Calendar) Present(slot *Slot, now time.Time) *Slot {
	if slot == nil {
		return nil
	}
	out := slot.Clone()
	out.Time = c.FormatRange(slot.StartTime, slot.EndTime)
	if out.Status == StatusHeld && out.Claimable(now) {
		out.Status = StatusFree
		out.HoldUntil = nil
		out.HolderID = ""
		out.Patient = PatientDetails{}
	}
	return out
}

// PresentAll applies Present to each slot.
func (c Calendar) PresentAll(list []*Slot, now time.Time) []*Slot {
	out := make([]*Slot, 0, len(list))
	for _, s := range list {
		out = append(out, c.Present(s, now))
	}
	return out
}
