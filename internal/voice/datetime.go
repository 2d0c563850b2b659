package voice

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidDateTime is returned for strings that are not ISO-8601 date-times.
var ErrInvalidDateTime = errors.New("invalid date/time")

// bareDateTime matches a date with an optional wall-clock time and an optional
// trailing Z, and nothing else (no numeric offset).
var bareDateTime = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})(?:[T ](\d{2}:\d{2})(:\d{2}(?:\.\d+)?)?)?(Z)?$`)

const wallClockLayout = "2006-01-02T15:04:05.999999999"

// NormalizeVoiceDateTime converts a datetime spoken by the voice assistant into
// an absolute UTC instant.
//
// With a non-nil assumedZone, a bare "YYYY-MM-DDTHH:MM[:SS]" string is a
// wall-clock time in that zone and a trailing Z is ignored: assistants append
// it without meaning UTC. With a nil zone a bare string is UTC. Strings with
// an explicit numeric offset are honoured as written.
//
// A result before referenceNow is assumed to carry a stale year and is moved
// to referenceNow's year, then to the year after if still in the past.
func NormalizeVoiceDateTime(raw string, assumedZone *time.Location, referenceNow time.Time) (time.Time, error) {
	t, err := parseVoiceDateTime(raw, assumedZone)
	if err != nil {
		return time.Time{}, err
	}
	return rollForward(t, referenceNow).UTC(), nil
}

// parseVoiceDateTime applies the zone rules of NormalizeVoiceDateTime without
// the year correction. The result keeps the location it was read in.
func parseVoiceDateTime(raw string, assumedZone *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidDateTime)
	}

	m := bareDateTime.FindStringSubmatch(raw)
	if m == nil {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateTime, raw)
		}
		return t, nil
	}

	clock := m[2]
	if clock == "" {
		clock = "00:00"
	}
	seconds := m[3]
	if seconds == "" {
		seconds = ":00"
	}
	loc := time.UTC
	if assumedZone != nil {
		loc = assumedZone
	}
	// ParseInLocation resolves the zone's offset for that date, DST included.
	t, err := time.ParseInLocation(wallClockLayout, m[1]+"T"+clock+seconds, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateTime, raw)
	}
	return t, nil
}

func rollForward(t, now time.Time) time.Time {
	if !t.Before(now) {
		return t
	}
	year := now.In(t.Location()).Year()
	if t.Year() < year {
		t = withYear(t, year)
	}
	if t.Before(now) {
		t = withYear(t, year+1)
	}
	return t
}

// withYear keeps the wall clock and recomputes the offset for the new date.
func withYear(t time.Time, year int) time.Time {
	return time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
