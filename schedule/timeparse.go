package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// ISO-8601 DURATIONS
// =============================================================================

// Durations use the restricted pattern P(nD)?T?(nH)?(nM)?, e.g. "PT30M",
// "PT2H", "P1D", "P1DT12H".
var isoDurationRe = regexp.MustCompile(`^P(?:(\d+)D)?(?:T)?(?:(\d+)H)?(?:(\d+)M)?$`)

// ParseISODuration parses a restricted ISO-8601 duration into a time.Duration.
func ParseISODuration(s string) (time.Duration, error) {
	m := isoDurationRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", s)
	}
	var d time.Duration
	if m[1] != "" {
		days, _ := strconv.Atoi(m[1])
		d += time.Duration(days) * 24 * time.Hour
	}
	if m[2] != "" {
		hours, _ := strconv.Atoi(m[2])
		d += time.Duration(hours) * time.Hour
	}
	if m[3] != "" {
		mins, _ := strconv.Atoi(m[3])
		d += time.Duration(mins) * time.Minute
	}
	return d, nil
}

// =============================================================================
// NATURAL-LANGUAGE TIME INFERENCE
// =============================================================================

const defaultMorningHour = 9

var (
	reTomorrow    = regexp.MustCompile(`(?i)\btomorrow\b(?:\s+(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b)?`)
	reInRelative  = regexp.MustCompile(`(?i)\bin\s+(\d+)\s*(minutes?|mins?|hours?|hrs?|days?)\b`)
	reNextWeekday = regexp.MustCompile(`(?i)\bnext\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b(?:\s+(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b)?`)
	reAtTime      = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
)

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// InferScheduleTime extracts a send time from free text. Patterns are tried
// in a fixed priority order; the first match wins even when the text carries
// several phrases:
//
//  1. "tomorrow [at TIME]"       (default 09:00 local)
//  2. "in N minutes|hours|days"
//  3. "next <weekday> [at TIME]" (default 09:00 local)
//  4. "at TIME"                  (today if still ahead, otherwise tomorrow)
//
// Returns false when no pattern matches, meaning "send now".
func InferScheduleTime(text string, now time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	if m := reTomorrow.FindStringSubmatch(text); m != nil {
		hour, min := clockOrDefault(m[1], m[2], m[3])
		d := now.AddDate(0, 0, 1)
		return time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, loc), true
	}

	if m := reInRelative.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		unit := strings.ToLower(m[2])
		switch {
		case strings.HasPrefix(unit, "min"):
			return now.Add(time.Duration(n) * time.Minute), true
		case strings.HasPrefix(unit, "hour"), strings.HasPrefix(unit, "hr"):
			return now.Add(time.Duration(n) * time.Hour), true
		default: // days
			return now.AddDate(0, 0, n), true
		}
	}

	if m := reNextWeekday.FindStringSubmatch(text); m != nil {
		target := weekdays[strings.ToLower(m[1])]
		hour, min := clockOrDefault(m[2], m[3], m[4])
		days := int(target-now.Weekday()+7) % 7
		if days == 0 {
			days = 7
		}
		d := now.AddDate(0, 0, days)
		return time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, loc), true
	}

	if m := reAtTime.FindStringSubmatch(text); m != nil {
		hour, min := clockOrDefault(m[1], m[2], m[3])
		at := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, loc)
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, true
	}

	return time.Time{}, false
}

// clockOrDefault converts captured hour/minute/meridiem groups into a
// 24-hour clock, defaulting to 09:00 when no hour was captured.
func clockOrDefault(hourStr, minStr, meridiem string) (int, int) {
	if hourStr == "" {
		return defaultMorningHour, 0
	}
	hour, _ := strconv.Atoi(hourStr)
	min := 0
	if minStr != "" {
		min, _ = strconv.Atoi(minStr)
	}
	switch strings.ToLower(meridiem) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 {
		hour = 23
	}
	if min > 59 {
		min = 59
	}
	return hour, min
}

// parseDatetimeISO parses the datetime forms an intent may carry: RFC3339
// with offset, or a local wall-clock time interpreted in loc.
func parseDatetimeISO(iso string, loc *time.Location) (time.Time, error) {
	iso = strings.TrimSpace(iso)
	if t, err := time.Parse(time.RFC3339, iso); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, iso, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", iso)
}
