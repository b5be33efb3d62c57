// Package schedule parses compact weekly recurrence strings and answers
// overlap and lesson-count questions about them. All functions are pure.
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Spec is the structured form of a schedule string such as
// "MON,WED|07:00-09:00": a set of weekdays plus a daily time range expressed
// in minutes since midnight. It is derived on demand and never persisted.
type Spec struct {
	Days         map[time.Weekday]struct{}
	StartMinutes int
	EndMinutes   int
}

// Interval pairs a schedule string with the calendar range it applies to.
type Interval struct {
	Schedule  string
	StartDate time.Time
	EndDate   time.Time
}

var dayCodes = map[string]time.Weekday{
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
	"SUN": time.Sunday,
}

// Parse converts a "DAYS|HH:MM-HH:MM" string into a Spec. It fails when the
// day list is empty, a day token is unrecognized, a time is malformed, or the
// end time is not after the start time.
func Parse(raw string) (Spec, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 2 {
		return Spec{}, fmt.Errorf("schedule %q: want DAYS|HH:MM-HH:MM", raw)
	}

	days := make(map[time.Weekday]struct{})
	for _, token := range strings.Split(parts[0], ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return Spec{}, fmt.Errorf("schedule %q: empty day token", raw)
		}
		day, ok := dayCodes[strings.ToUpper(token)]
		if !ok {
			return Spec{}, fmt.Errorf("schedule %q: unknown day %q", raw, token)
		}
		days[day] = struct{}{}
	}
	if len(days) == 0 {
		return Spec{}, fmt.Errorf("schedule %q: no days", raw)
	}

	times := strings.Split(parts[1], "-")
	if len(times) != 2 {
		return Spec{}, fmt.Errorf("schedule %q: want HH:MM-HH:MM time range", raw)
	}
	start, err := parseMinutes(times[0])
	if err != nil {
		return Spec{}, fmt.Errorf("schedule %q: %w", raw, err)
	}
	end, err := parseMinutes(times[1])
	if err != nil {
		return Spec{}, fmt.Errorf("schedule %q: %w", raw, err)
	}
	if end <= start {
		return Spec{}, fmt.Errorf("schedule %q: end time must be after start time", raw)
	}

	return Spec{Days: days, StartMinutes: start, EndMinutes: end}, nil
}

func parseMinutes(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	var hour, minute int
	if _, err := fmt.Sscanf(raw, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("malformed time %q", raw)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time %q out of range", raw)
	}
	return hour*60 + minute, nil
}

// Overlaps reports whether two scheduled intervals collide: their calendar
// ranges overlap (inclusive at the boundaries), they share at least one
// weekday, and their daily time ranges intersect (half-open, so abutting
// times do not collide). A parse failure on either schedule is returned as an
// error; callers must not treat it as "no conflict".
func Overlaps(a, b Interval) (bool, error) {
	specA, err := Parse(a.Schedule)
	if err != nil {
		return false, err
	}
	specB, err := Parse(b.Schedule)
	if err != nil {
		return false, err
	}

	if dateOnly(a.EndDate).Before(dateOnly(b.StartDate)) || dateOnly(a.StartDate).After(dateOnly(b.EndDate)) {
		return false, nil
	}

	shared := false
	for day := range specA.Days {
		if _, ok := specB.Days[day]; ok {
			shared = true
			break
		}
	}
	if !shared {
		return false, nil
	}

	if specA.EndMinutes <= specB.StartMinutes || specA.StartMinutes >= specB.EndMinutes {
		return false, nil
	}
	return true, nil
}

// TotalLessons counts the scheduled lesson dates between start and end
// inclusive. The iteration is O(days), which is fine for class ranges of a
// few hundred days.
func TotalLessons(spec Spec, start, end time.Time) int {
	total := 0
	for d := dateOnly(start); !d.After(dateOnly(end)); d = d.AddDate(0, 0, 1) {
		if _, ok := spec.Days[d.Weekday()]; ok {
			total++
		}
	}
	return total
}

// CompletedLessons counts lessons whose scheduled end time is strictly before
// asOf. Before the range it is zero; past the range it equals TotalLessons.
func CompletedLessons(spec Spec, start, end, asOf time.Time) int {
	if asOf.Before(dateOnly(start)) {
		return 0
	}
	if asOf.After(dateOnly(end).AddDate(0, 0, 1)) {
		return TotalLessons(spec, start, end)
	}
	completed := 0
	for d := dateOnly(start); !d.After(dateOnly(end)); d = d.AddDate(0, 0, 1) {
		if _, ok := spec.Days[d.Weekday()]; !ok {
			continue
		}
		lessonEnd := d.Add(time.Duration(spec.EndMinutes) * time.Minute)
		if lessonEnd.Before(asOf) {
			completed++
		}
	}
	return completed
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
