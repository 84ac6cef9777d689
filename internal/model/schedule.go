// ABOUTME: Schedule data model: weekly defaults, date overrides, blackouts.
// ABOUTME: TimeSlot interval math and the multi-schedule intersection primitive.

package model

import (
	"time"
)

// TimeSlot is a half-open interval [Start, End). End must be after Start.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the length of the slot.
func (s TimeSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Overlaps reports whether the two slots share any time.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.Start.Before(other.End) && other.Start.Before(s.End)
}

// Contains reports whether t falls inside the slot.
func (s TimeSlot) Contains(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

// Intersect returns the overlap of the two slots. ok is false when the
// intersection is empty.
func (s TimeSlot) Intersect(other TimeSlot) (TimeSlot, bool) {
	start := s.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := s.End
	if other.End.Before(end) {
		end = other.End
	}
	if !end.After(start) {
		return TimeSlot{}, false
	}
	return TimeSlot{Start: start, End: end}, true
}

// SlotDescriptor is the wire representation of a slot in availability
// responses. It carries no information beyond the window itself.
type SlotDescriptor struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	DurationHours float64   `json:"duration_hours"`
}

// Descriptor returns the shareable wire form of the slot.
func (s TimeSlot) Descriptor() SlotDescriptor {
	return SlotDescriptor{Start: s.Start, End: s.End, DurationHours: s.Duration().Hours()}
}

// DateKey formats t as the canonical per-day map key.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Schedule is a user's availability: recurring weekly blocks plus date-keyed
// overrides. An override for a date replaces the weekly default entirely; a
// blackout forces zero availability no matter what else is set.
type Schedule struct {
	UserID   string `json:"user_id"`
	Timezone string `json:"timezone,omitempty"`

	DefaultAvailability []AvailabilityBlock `json:"default_availability,omitempty"`
	Blackouts           []BlackoutRange     `json:"blackouts,omitempty"`

	// SpecificFree and SpecificBusy are keyed by DateKey. Busy slots are
	// private and only ever subtracted locally.
	SpecificFree map[string][]TimeSlot `json:"specific_free,omitempty"`
	SpecificBusy map[string][]TimeSlot `json:"specific_busy,omitempty"`
}

// AvailabilityOn returns the free slots for one calendar day, applying
// blackout > override > weekly-default precedence and subtracting any
// date-specific busy intervals from the weekly default.
func (s *Schedule) AvailabilityOn(day time.Time) []TimeSlot {
	for _, b := range s.Blackouts {
		if b.Covers(day) {
			return nil
		}
	}

	key := DateKey(day)
	if slots, ok := s.SpecificFree[key]; ok {
		return slots
	}

	var slots []TimeSlot
	for _, block := range s.DefaultAvailability {
		if block.Day != day.Weekday() {
			continue
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), block.StartHour, 0, 0, 0, day.Location())
		end := time.Date(day.Year(), day.Month(), day.Day(), block.EndHour, 0, 0, 0, day.Location())
		if end.After(start) {
			slots = append(slots, TimeSlot{Start: start, End: end})
		}
	}

	if busy, ok := s.SpecificBusy[key]; ok {
		slots = subtractBusy(slots, busy)
	}
	return slots
}

// subtractBusy removes busy intervals from the available ones, splitting
// slots that straddle a busy period.
func subtractBusy(available, busy []TimeSlot) []TimeSlot {
	var result []TimeSlot
	for _, avail := range available {
		remaining := []TimeSlot{avail}
		for _, b := range busy {
			var next []TimeSlot
			for _, slot := range remaining {
				if !slot.Overlaps(b) {
					next = append(next, slot)
					continue
				}
				if slot.Start.Before(b.Start) {
					next = append(next, TimeSlot{Start: slot.Start, End: b.Start})
				}
				if slot.End.After(b.End) {
					next = append(next, TimeSlot{Start: b.End, End: slot.End})
				}
			}
			remaining = next
		}
		result = append(result, remaining...)
	}
	return result
}

// AvailabilityRange returns free slots for each day in [start, end],
// keyed by DateKey. Days with no availability are omitted.
func (s *Schedule) AvailabilityRange(start, end time.Time) map[string][]TimeSlot {
	result := make(map[string][]TimeSlot)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if slots := s.AvailabilityOn(day); len(slots) > 0 {
			result[DateKey(day)] = slots
		}
	}
	return result
}

// ShareableAvailability is the cross-agent form of a schedule window: bare
// free slots, no busy detail, no blackout reasons.
type ShareableAvailability struct {
	UserID       string                      `json:"user_id"`
	Timezone     string                      `json:"timezone,omitempty"`
	Availability map[string][]SlotDescriptor `json:"availability"`
}

// Shareable returns the availability for [start, end] in wire form.
func (s *Schedule) Shareable(start, end time.Time) ShareableAvailability {
	out := ShareableAvailability{
		UserID:       s.UserID,
		Timezone:     s.Timezone,
		Availability: make(map[string][]SlotDescriptor),
	}
	for key, slots := range s.AvailabilityRange(start, end) {
		descs := make([]SlotDescriptor, len(slots))
		for i, slot := range slots {
			descs[i] = slot.Descriptor()
		}
		out.Availability[key] = descs
	}
	return out
}

// FindCommonAvailability intersects the daily availability of every schedule
// over [start, end] and keeps intersections at least minDuration long.
// An empty result is a valid outcome, not an error.
func FindCommonAvailability(schedules []*Schedule, start, end time.Time, minDuration time.Duration) []TimeSlot {
	if len(schedules) == 0 {
		return nil
	}

	var common []TimeSlot
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		perUser := make([][]TimeSlot, len(schedules))
		everyone := true
		for i, sched := range schedules {
			perUser[i] = sched.AvailabilityOn(day)
			if len(perUser[i]) == 0 {
				everyone = false
				break
			}
		}
		if !everyone {
			continue
		}

		intersections := perUser[0]
		for _, others := range perUser[1:] {
			var next []TimeSlot
			for _, slot := range intersections {
				for _, other := range others {
					if inter, ok := slot.Intersect(other); ok {
						next = append(next, inter)
					}
				}
			}
			intersections = next
		}

		for _, slot := range intersections {
			if slot.Duration() >= minDuration {
				common = append(common, slot)
			}
		}
	}
	return common
}
