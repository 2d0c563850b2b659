package voice

import (
	"errors"
	"fmt"
	"time"
)

const defaultDurationMinutes = 60

var (
	ErrMissingTime   = errors.New("a date and time is required")
	ErrInvalidWindow = errors.New("the end time must be after the start time")
)

// Window is a resolved [Start, End) interval in UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// parseWindow reads either (dateTime, duration) or (startDate, endDate).
// The year correction is applied to the start only and the end keeps its
// distance from it, so a window never straddles a rolled year.
func parseWindow(args Arguments, zone *time.Location, now time.Time, fallback time.Duration) (Window, error) {
	if raw := args.String("dateTime", "datetime", "startTime"); raw != "" {
		start, err := parseVoiceDateTime(raw, zone)
		if err != nil {
			return Window{}, err
		}
		start = rollForward(start, now)
		return Window{Start: start.UTC(), End: start.Add(argDuration(args, fallback)).UTC()}, nil
	}

	rawStart := args.String("startDate", "start")
	if rawStart == "" {
		return Window{}, ErrMissingTime
	}
	start, err := parseVoiceDateTime(rawStart, zone)
	if err != nil {
		return Window{}, err
	}
	length := argDuration(args, fallback)
	if rawEnd := args.String("endDate", "end"); rawEnd != "" {
		end, err := parseVoiceDateTime(rawEnd, zone)
		if err != nil {
			return Window{}, err
		}
		if !start.Before(end) {
			return Window{}, fmt.Errorf("%w: %s to %s", ErrInvalidWindow, rawStart, rawEnd)
		}
		length = end.Sub(start)
	}
	start = rollForward(start, now)
	return Window{Start: start.UTC(), End: start.Add(length).UTC()}, nil
}

func argDuration(args Arguments, fallback time.Duration) time.Duration {
	if mins, ok := args.Int("duration", "durationMinutes"); ok && mins > 0 {
		return time.Duration(mins) * time.Minute
	}
	return fallback
}
