package timeline

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrEmptyInterval is returned when an interval's start does not strictly
// precede its end.
var ErrEmptyInterval = errors.New("timeline: interval start must be strictly before end")

// Instant is a single UTC point in time. It is normalized to canonical
// RFC3339 form (no fractional trailing zeros, "Z" suffix) on every
// boundary crossing so that lexicographic comparison of its wire string
// matches chronological order, per the zero-sum engine's ingest policy.
type Instant struct {
	t time.Time
}

// NewInstant wraps t as an Instant in UTC, keeping its full nanosecond
// precision (serialized without redundant trailing zeros).
func NewInstant(t time.Time) Instant {
	return Instant{t: t.UTC()}
}

// ParseInstant parses an RFC3339 (or RFC3339Nano) string into an Instant.
func ParseInstant(s string) (Instant, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Instant{}, err
	}
	return NewInstant(t), nil
}

// Time returns the underlying time.Time value.
func (i Instant) Time() time.Time { return i.t }

// Canonical renders the instant as canonical RFC3339(Nano): UTC, "Z"
// suffix, no trailing zero fractional digits.
func (i Instant) Canonical() string {
	s := i.t.Format(time.RFC3339Nano)
	return s
}

// Before reports whether i chronologically precedes j.
func (i Instant) Before(j Instant) bool { return i.t.Before(j.t) }

// After reports whether i chronologically follows j.
func (i Instant) After(j Instant) bool { return i.t.After(j.t) }

// Equal reports whether i and j denote the same instant.
func (i Instant) Equal(j Instant) bool { return i.t.Equal(j.t) }

// Add returns the instant d later.
func (i Instant) Add(d time.Duration) Instant { return NewInstant(i.t.Add(d)) }

// Compare returns -1, 0, or 1 as i is before, equal to, or after j. It
// matches the lexicographic order of Canonical().
func (i Instant) Compare(j Instant) int {
	switch {
	case i.t.Before(j.t):
		return -1
	case i.t.After(j.t):
		return 1
	default:
		return 0
	}
}

func (i Instant) String() string { return i.Canonical() }

func (i Instant) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.Canonical())
}

func (i *Instant) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseInstant(s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Interval is a half-open time window [Start, End). Empty intervals
// (Start == End) are rejected upstream per the zero-sum engine's edge-case
// policy.
type Interval struct {
	Start Instant `json:"start"`
	End   Instant `json:"end"`
}

// NewInterval constructs an Interval, rejecting empty or inverted windows.
func NewInterval(start, end Instant) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, ErrEmptyInterval
	}
	return Interval{Start: start, End: end}, nil
}

// Contains reports whether t falls within the half-open interval.
func (w Interval) Contains(t Instant) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
