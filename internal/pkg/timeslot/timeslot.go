// Package timeslot models time-of-day bounds on a single calendar date.
package timeslot

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	MinutesPerHour = 60
	MinutesPerDay  = 24 * MinutesPerHour

	// DateLayout is the wire format of calendar dates.
	DateLayout = "2006-01-02"
)

var (
	ErrInvalidClock  = errors.New("time must be HH:MM between 00:00 and 24:00")
	ErrInvalidWindow = errors.New("start must be before end")
)

// Clock is a time of day expressed as minutes since midnight.
// 24:00 is representable so that a window may end at midnight.
type Clock int

// ParseClock parses the HH:MM form.
func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, ErrInvalidClock
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, ErrInvalidClock
	}
	m, err := strconv.Atoi(s[3:])
	if err != nil {
		return 0, ErrInvalidClock
	}
	if h < 0 || h > 24 || m < 0 || m >= MinutesPerHour || (h == 24 && m != 0) {
		return 0, ErrInvalidClock
	}
	return Clock(h*MinutesPerHour + m), nil
}

// MustClock is ParseClock for constants; it panics on malformed input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/MinutesPerHour, int(c)%MinutesPerHour)
}

func (c Clock) Valid() bool {
	return c >= 0 && c <= MinutesPerDay
}

func (c Clock) IsWholeHour() bool {
	return int(c)%MinutesPerHour == 0
}

// On returns the instant this clock denotes on date, in date's location.
func (c Clock) On(date time.Time) time.Time {
	y, mo, d := date.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, date.Location()).Add(time.Duration(c) * time.Minute)
}

func (c Clock) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, ErrInvalidClock
	}
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// ParseWindow parses two HH:MM bounds and validates the result.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	w := Window{Start: s, End: e}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

func (w Window) Validate() error {
	if !w.Start.Valid() || !w.End.Valid() {
		return ErrInvalidClock
	}
	if w.Start >= w.End {
		return ErrInvalidWindow
	}
	return nil
}

// Overlaps reports whether the two windows share at least one minute.
// Touching windows such as [10:00,12:00) and [12:00,14:00) do not overlap.
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

// Contains reports whether o lies entirely inside w.
func (w Window) Contains(o Window) bool {
	return w.Start <= o.Start && o.End <= w.End
}

func (w Window) Minutes() int {
	return int(w.End - w.Start)
}

func (w Window) IsWholeHours() bool {
	return w.Start.IsWholeHour() && w.End.IsWholeHour()
}

// Hours returns the whole hours in w; callers check IsWholeHours first.
func (w Window) Hours() int64 {
	return int64(w.Minutes() / MinutesPerHour)
}

func (w Window) String() string {
	return "[" + w.Start.String() + "," + w.End.String() + ")"
}

// ParseDate parses YYYY-MM-DD in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, s, loc)
}
