package booking

import (
	"fmt"
	"sort"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
	keyLayout  = "2006-01-02 15:04"
)

// slotKey is the compound sort/compare key. Date and time are zero-padded,
// so string comparison is chronological comparison.
func slotKey(s Slot) string {
	return s.Date + " " + s.TimeOfDay
}

// nowKey renders an instant in the same shape as slotKey.
func nowKey(now time.Time) string {
	return now.Format(keyLayout)
}

func sortedByKey(slots []Slot) []Slot {
	out := make([]Slot, len(slots))
	copy(out, slots)
	sort.SliceStable(out, func(i, j int) bool {
		return slotKey(out[i]) < slotKey(out[j])
	})
	return out
}

// CategorizeAvailable returns the available slots strictly after now,
// ascending. Past available slots are filtered from the view but never
// deleted here; removal is a separate admin action.
func CategorizeAvailable(slots []Slot, now time.Time) []Slot {
	cutoff := nowKey(now)

	var upcoming []Slot
	for _, s := range slots {
		if s.IsBooked {
			continue
		}
		if slotKey(s) > cutoff {
			upcoming = append(upcoming, s)
		}
	}
	return sortedByKey(upcoming)
}

// BookedBuckets partitions booked slots relative to an instant.
type BookedBuckets struct {
	Upcoming []Slot
	Passed   []Slot
}

// CategorizeBooked splits booked slots into upcoming (at or after now) and
// passed (before now), each ascending. Pure function: the input records are
// not mutated and identical inputs give identical output.
func CategorizeBooked(slots []Slot, now time.Time) BookedBuckets {
	cutoff := nowKey(now)

	var b BookedBuckets
	for _, s := range slots {
		if !s.IsBooked {
			continue
		}
		if slotKey(s) >= cutoff {
			b.Upcoming = append(b.Upcoming, s)
		} else {
			b.Passed = append(b.Passed, s)
		}
	}
	b.Upcoming = sortedByKey(b.Upcoming)
	b.Passed = sortedByKey(b.Passed)
	return b
}

type RepeatRule string

const (
	RepeatNone   RepeatRule = "none"
	RepeatDaily  RepeatRule = "daily"
	RepeatWeekly RepeatRule = "weekly"
)

// maxRepeatCount caps a single repeat expansion at one year of weekly slots.
const maxRepeatCount = 52

// ExpandRepeat turns a starting date/time plus a repeat rule into the
// concrete specs the store accepts. The store itself never sees rules.
func ExpandRepeat(date, timeOfDay string, rule RepeatRule, count int) ([]SlotSpec, error) {
	start, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", date)
	}
	if _, err := time.Parse(timeLayout, timeOfDay); err != nil {
		return nil, fmt.Errorf("invalid time %q: expected HH:MM", timeOfDay)
	}

	var step int // days between occurrences
	switch rule {
	case RepeatNone, "":
		return []SlotSpec{{Date: date, TimeOfDay: timeOfDay}}, nil
	case RepeatDaily:
		step = 1
	case RepeatWeekly:
		step = 7
	default:
		return nil, fmt.Errorf("unknown repeat rule %q", rule)
	}

	if count < 1 || count > maxRepeatCount {
		return nil, fmt.Errorf("repeat count must be between 1 and %d, got %d", maxRepeatCount, count)
	}

	specs := make([]SlotSpec, 0, count)
	for i := 0; i < count; i++ {
		d := start.AddDate(0, 0, i*step)
		specs = append(specs, SlotSpec{
			Date:      d.Format(dateLayout),
			TimeOfDay: timeOfDay,
		})
	}
	return specs, nil
}

// ValidateSpec checks a single concrete date/time pair.
func ValidateSpec(spec SlotSpec) error {
	if _, err := time.Parse(dateLayout, spec.Date); err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", spec.Date)
	}
	if _, err := time.Parse(timeLayout, spec.TimeOfDay); err != nil {
		return fmt.Errorf("invalid time %q: expected HH:MM", spec.TimeOfDay)
	}
	return nil
}
