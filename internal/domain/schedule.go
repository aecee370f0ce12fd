package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DueWindow is how long after a specific_times occurrence a check may still fire.
const DueWindow = 10 * time.Minute

// ClockTime is a time of day with minute precision.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the occurrence of c on the calendar day of day, in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

// ParseClockTimes parses a comma separated list of HH:MM values, keeping order.
func ParseClockTimes(s string) ([]ClockTime, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("empty time list")
	}
	parts := strings.Split(s, ",")
	out := make([]ClockTime, 0, len(parts))
	for _, p := range parts {
		t, err := time.Parse("15:04", strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid time %q: %w", strings.TrimSpace(p), err)
		}
		out = append(out, ClockTime{Hour: t.Hour(), Minute: t.Minute()})
	}
	return out, nil
}

// MatchOccurrence returns today's occurrence of the first entry such that
// 0 <= now - occurrence < window.
func MatchOccurrence(times []ClockTime, now time.Time, window time.Duration) (time.Time, bool) {
	for _, c := range times {
		occ := c.On(now)
		diff := now.Sub(occ)
		if diff >= 0 && diff < window {
			return occ, true
		}
	}
	return time.Time{}, false
}

// Due evaluates the target's scheduling policy at now. Errors mean the
// policy value could not be parsed; the target should be skipped this round.
func (t *Target) Due(now time.Time) (bool, error) {
	switch t.Policy {
	case PolicyInterval:
		minutes, err := t.IntervalMinutes()
		if err != nil {
			return false, err
		}
		if t.LastChecked == nil {
			return true, nil
		}
		return now.Sub(*t.LastChecked) >= time.Duration(minutes)*time.Minute, nil

	case PolicySpecificTimes:
		times, err := ParseClockTimes(t.PolicyValue)
		if err != nil {
			return false, err
		}
		// A check made at or after an occurrence means that occurrence has fired.
		for _, c := range times {
			occ := c.On(now)
			diff := now.Sub(occ)
			if diff < 0 || diff >= DueWindow {
				continue
			}
			if t.LastChecked == nil || t.LastChecked.Before(occ) {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown scheduling policy %q", t.Policy)
	}
}
