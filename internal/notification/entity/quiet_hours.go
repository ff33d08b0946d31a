package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidClockTime is returned for a time-of-day not in HH:MM form.
var ErrInvalidClockTime = errors.New("invalid clock time, want HH:MM")

// ClockTime is a wall-clock time of day in minutes since midnight.
type ClockTime int

func ParseClockTime(raw string) (ClockTime, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, raw)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

func ClockTimeOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// QuietHours is a daily window; Start > End means it spans midnight.
type QuietHours struct {
	Start ClockTime
	End   ClockTime
}

// NewQuietHours returns nil when both bounds are empty. One bound alone is invalid.
func NewQuietHours(start, end string) (*QuietHours, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, errors.New("quiet hours need both start and end")
	}

	s, err := ParseClockTime(start)
	if err != nil {
		return nil, err
	}
	e, err := ParseClockTime(end)
	if err != nil {
		return nil, err
	}

	return &QuietHours{Start: s, End: e}, nil
}

// Contains reports whether local (already in the recipient's zone) falls inside the window.
func (q QuietHours) Contains(local time.Time) bool {
	cur := ClockTimeOf(local)
	if q.Start > q.End {
		return cur >= q.Start || cur < q.End
	}
	return q.Start <= cur && cur < q.End
}

type quietHoursJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (q QuietHours) MarshalJSON() ([]byte, error) {
	return json.Marshal(quietHoursJSON{Start: q.Start.String(), End: q.End.String()})
}

func (q *QuietHours) UnmarshalJSON(b []byte) error {
	var raw quietHoursJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	s, err := ParseClockTime(raw.Start)
	if err != nil {
		return err
	}
	e, err := ParseClockTime(raw.End)
	if err != nil {
		return err
	}

	q.Start, q.End = s, e
	return nil
}
