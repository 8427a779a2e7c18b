// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package feedback

import (
	"fmt"
	"time"
)

// ClockTime is a wall-clock time of day with minute resolution.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) minutes() int { return c.Hour*60 + c.Minute }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClockTime) UnmarshalText(b []byte) error {
	v, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Valid reports whether the fields form a real time of day.
func (c ClockTime) Valid() bool {
	return c.Hour >= 0 && c.Hour < 24 && c.Minute >= 0 && c.Minute < 60
}

// DoNotDisturb is a daily window during which feedback is suppressed.
type DoNotDisturb struct {
	Enabled bool      `json:"enabled"`
	Start   ClockTime `json:"start"`
	End     ClockTime `json:"end"`
}

// Contains reports whether now falls in the window. When Start is after End the
// window wraps midnight and membership is now >= Start or now <= End; otherwise
// it is Start <= now <= End. A disabled window contains nothing.
func (w DoNotDisturb) Contains(now time.Time) bool {
	if !w.Enabled {
		return false
	}

	cur := now.Hour()*60 + now.Minute()
	start := w.Start.minutes()
	end := w.End.minutes()

	if start > end {
		return cur >= start || cur <= end
	}
	return cur >= start && cur <= end
}
