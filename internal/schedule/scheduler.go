// ABOUTME: Scheduler computes and ranks common free windows across participants.
// ABOUTME: Event-type policy supplies default durations, hour bands, and lead times.

// Package schedule finds time windows usable by every participant of an
// event. Absence of results is a valid outcome the caller negotiates around,
// never an error.
package schedule

import (
	"sort"
	"time"

	"github.com/yotei-sh/yotei/internal/model"
)

// Default minimum durations per event type.
var eventDurations = map[model.EventType]time.Duration{
	model.EventTrip:      48 * time.Hour,
	model.EventHangout:   3 * time.Hour,
	model.EventDinner:    150 * time.Minute,
	model.EventActivity:  3 * time.Hour,
	model.EventParty:     4 * time.Hour,
	model.EventMovie:     3 * time.Hour,
	model.EventGameNight: 4 * time.Hour,
	model.EventOutdoor:   5 * time.Hour,
}

// fallbackDuration applies to unknown event types.
const fallbackDuration = 2 * time.Hour

// hourBand is a preferred start-hour window, half-open [From, To).
type hourBand struct {
	From, To int
}

// Preferred start hours per event type. A candidate outside the band is only
// dropped when at least one candidate falls inside it.
var preferredHours = map[model.EventType]hourBand{
	model.EventDinner:    {18, 21},
	model.EventMovie:     {14, 21},
	model.EventGameNight: {19, 23},
	model.EventOutdoor:   {9, 17},
	model.EventHangout:   {10, 22},
	model.EventActivity:  {10, 20},
	model.EventParty:     {18, 23},
	model.EventTrip:      {0, 24},
}

// Preferences are the per-participant flags the ranking heuristic consults.
type Preferences struct {
	BudgetConscious bool
	EarlyBird       bool
	NightOwl        bool
}

// ScoredSlot pairs a candidate window with its ranking score.
type ScoredSlot struct {
	Slot  model.TimeSlot
	Score float64
}

// Scheduler holds the participant schedules for one coordination run.
// It is not safe for concurrent use; the engine owns one per event.
type Scheduler struct {
	schedules map[string]*model.Schedule
	order     []string

	// now is injected for deterministic tests.
	now func() time.Time
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		schedules: make(map[string]*model.Schedule),
		now:       time.Now,
	}
}

// NewAt creates a scheduler with a fixed clock.
func NewAt(now func() time.Time) *Scheduler {
	s := New()
	s.now = now
	return s
}

// AddSchedule registers (or replaces) a participant's schedule.
func (s *Scheduler) AddSchedule(userID string, sched *model.Schedule) {
	if _, ok := s.schedules[userID]; !ok {
		s.order = append(s.order, userID)
	}
	s.schedules[userID] = sched
}

// MinDuration returns the default minimum duration for the event type.
func MinDuration(eventType model.EventType) time.Duration {
	if d, ok := eventDurations[eventType]; ok {
		return d
	}
	return fallbackDuration
}

// FindCommonSlots intersects every participant's availability over
// [start, end]. minDuration <= 0 selects the event type's default. Candidates
// outside the type's preferred hour band are dropped only when the band
// matches at least one candidate. Results are not guaranteed chronological;
// callers needing order must sort.
func (s *Scheduler) FindCommonSlots(eventType model.EventType, start, end time.Time, minDuration time.Duration) []model.TimeSlot {
	if len(s.schedules) == 0 {
		return nil
	}
	if minDuration <= 0 {
		minDuration = MinDuration(eventType)
	}

	scheds := make([]*model.Schedule, 0, len(s.order))
	for _, id := range s.order {
		scheds = append(scheds, s.schedules[id])
	}

	common := model.FindCommonAvailability(scheds, start, end, minDuration)

	if band, ok := preferredHours[eventType]; ok {
		var inBand []model.TimeSlot
		for _, slot := range common {
			if h := slot.Start.Hour(); band.From <= h && h < band.To {
				inBand = append(inBand, slot)
			}
		}
		if len(inBand) > 0 {
			common = inBand
		}
	}
	return common
}

// RankSlots scores candidates with a deterministic heuristic: weekend bonus,
// time-of-day bonus and penalty, duration bonus, an event-type hour bonus,
// and per-participant preference penalties. Ties keep input order.
func (s *Scheduler) RankSlots(slots []model.TimeSlot, eventType model.EventType, prefs map[string]Preferences) []ScoredSlot {
	ranked := make([]ScoredSlot, 0, len(slots))

	prefOrder := make([]string, 0, len(prefs))
	for id := range prefs {
		prefOrder = append(prefOrder, id)
	}
	sort.Strings(prefOrder)

	for _, slot := range slots {
		score := 100.0

		if wd := slot.Start.Weekday(); wd == time.Saturday || wd == time.Sunday {
			score += 10
		}

		hour := slot.Start.Hour()
		switch {
		case hour >= 10 && hour <= 19:
			score += 5
		case hour < 9 || hour > 21:
			score -= 10
		}

		if slot.Duration() >= 4*time.Hour {
			score += 5
		}

		switch eventType {
		case model.EventDinner:
			if hour >= 18 && hour <= 20 {
				score += 15
			}
		case model.EventOutdoor:
			if hour >= 10 && hour <= 14 {
				score += 15
			}
		case model.EventGameNight:
			if hour >= 19 && hour <= 20 {
				score += 15
			}
		}

		for _, id := range prefOrder {
			p := prefs[id]
			if p.BudgetConscious && hour >= 18 {
				score -= 5
			}
			if p.EarlyBird && hour >= 20 {
				score -= 10
			} else if p.NightOwl && hour <= 10 {
				score -= 10
			}
		}

		ranked = append(ranked, ScoredSlot{Slot: slot, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// SuggestDateRange proposes a search window from today: trips need lead time
// and a wide window (14–74 days out), everything else searches 3–33 days out.
func (s *Scheduler) SuggestDateRange(eventType model.EventType) (time.Time, time.Time) {
	today := s.today()
	if eventType == model.EventTrip {
		start := today.AddDate(0, 0, 14)
		return start, start.AddDate(0, 0, 60)
	}
	start := today.AddDate(0, 0, 3)
	return start, start.AddDate(0, 0, 30)
}

// NextAvailableSlot returns the soonest common slot in the suggested range,
// or false when there is none.
func (s *Scheduler) NextAvailableSlot(eventType model.EventType, minDuration time.Duration) (model.TimeSlot, bool) {
	start, end := s.SuggestDateRange(eventType)
	slots := s.FindCommonSlots(eventType, start, end, minDuration)
	if len(slots) == 0 {
		return model.TimeSlot{}, false
	}
	earliest := slots[0]
	for _, slot := range slots[1:] {
		if slot.Start.Before(earliest.Start) {
			earliest = slot
		}
	}
	return earliest, true
}

// CheckConflicts reports, per participant, whether their availability fails
// to cover the proposed slot.
func (s *Scheduler) CheckConflicts(proposed model.TimeSlot) map[string]bool {
	conflicts := make(map[string]bool, len(s.schedules))
	for userID, sched := range s.schedules {
		covered := false
		for _, slot := range sched.AvailabilityOn(proposed.Start) {
			if !slot.Start.After(proposed.Start) && !slot.End.Before(proposed.End) {
				covered = true
				break
			}
		}
		conflicts[userID] = !covered
	}
	return conflicts
}

// FindAlternatives re-runs the search in a window around a rejected slot:
// three days before through daysToSearch after, clamped to tomorrow at the
// earliest.
func (s *Scheduler) FindAlternatives(original model.TimeSlot, eventType model.EventType, daysToSearch int) []model.TimeSlot {
	day := original.Start
	start := day.AddDate(0, 0, -3)
	end := day.AddDate(0, 0, daysToSearch)

	if today := s.today(); start.Before(today) {
		start = today.AddDate(0, 0, 1)
	}
	return s.FindCommonSlots(eventType, start, end, 0)
}

// today returns the injected clock's date at midnight local time.
func (s *Scheduler) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
