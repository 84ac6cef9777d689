// ABOUTME: Tests for common-slot search, ranking determinism, and date-range
// ABOUTME: policy, all on a fixed clock

package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yotei-sh/yotei/internal/model"
)

// fixedNow is a Tuesday.
var fixedNow = time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC)

func testScheduler() *Scheduler {
	return NewAt(func() time.Time { return fixedNow })
}

func weekendSchedule(userID string, startHour, endHour int) *model.Schedule {
	return &model.Schedule{
		UserID: userID,
		DefaultAvailability: []model.AvailabilityBlock{
			{Day: time.Saturday, StartHour: startHour, EndHour: endHour},
			{Day: time.Sunday, StartHour: startHour, EndHour: endHour},
		},
	}
}

func TestMinDuration(t *testing.T) {
	assert.Equal(t, 48*time.Hour, MinDuration(model.EventTrip))
	assert.Equal(t, 150*time.Minute, MinDuration(model.EventDinner))
	assert.Equal(t, 2*time.Hour, MinDuration(model.EventType("karaoke")))
}

func TestFindCommonSlots_Intersection(t *testing.T) {
	s := testScheduler()
	s.AddSchedule("a", weekendSchedule("a", 10, 18))
	s.AddSchedule("b", weekendSchedule("b", 14, 22))

	start := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	slots := s.FindCommonSlots(model.EventHangout, start, end, 0)

	// Saturday and Sunday overlap 14:00-18:00, both 4h >= hangout minimum.
	require.Len(t, slots, 2)
	for _, slot := range slots {
		assert.Equal(t, 14, slot.Start.Hour())
		assert.Equal(t, 18, slot.End.Hour())
	}
}

func TestFindCommonSlots_NoSchedules(t *testing.T) {
	s := testScheduler()
	assert.Nil(t, s.FindCommonSlots(model.EventHangout, fixedNow, fixedNow.AddDate(0, 0, 7), 0))
}

func TestFindCommonSlots_BandFiltersOnlyWhenMatchesExist(t *testing.T) {
	s := testScheduler()
	// Free 9:00-23:00 on weekends: dinner band (18-21) matches the start
	// hour of no slot, so nothing is dropped.
	s.AddSchedule("a", weekendSchedule("a", 9, 23))
	s.AddSchedule("b", weekendSchedule("b", 9, 23))

	start := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	slots := s.FindCommonSlots(model.EventDinner, start, end, 0)
	require.Len(t, slots, 2)
	assert.Equal(t, 9, slots[0].Start.Hour())

	// Narrow b to evenings only: now every candidate starts at 18, inside
	// the band, and survives.
	s.AddSchedule("b", weekendSchedule("b", 18, 23))
	slots = s.FindCommonSlots(model.EventDinner, start, end, 0)
	require.Len(t, slots, 2)
	assert.Equal(t, 18, slots[0].Start.Hour())
}

func TestRankSlots_WeekendEveningDinner(t *testing.T) {
	s := testScheduler()

	saturdayEvening := model.TimeSlot{
		Start: time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 5, 21, 0, 0, 0, time.UTC),
	}
	tuesdayMorning := model.TimeSlot{
		Start: time.Date(2026, 9, 8, 7, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 8, 10, 0, 0, 0, time.UTC),
	}

	ranked := s.RankSlots([]model.TimeSlot{tuesdayMorning, saturdayEvening}, model.EventDinner, nil)
	require.Len(t, ranked, 2)
	assert.Equal(t, saturdayEvening, ranked[0].Slot)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRankSlots_Deterministic(t *testing.T) {
	s := testScheduler()
	slots := []model.TimeSlot{
		{Start: time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC), End: time.Date(2026, 9, 5, 22, 0, 0, 0, time.UTC)},
		{Start: time.Date(2026, 9, 6, 11, 0, 0, 0, time.UTC), End: time.Date(2026, 9, 6, 15, 0, 0, 0, time.UTC)},
		{Start: time.Date(2026, 9, 9, 19, 0, 0, 0, time.UTC), End: time.Date(2026, 9, 9, 22, 0, 0, 0, time.UTC)},
	}
	prefs := map[string]Preferences{
		"u2": {EarlyBird: true},
		"u1": {BudgetConscious: true},
		"u3": {NightOwl: true},
	}

	first := s.RankSlots(slots, model.EventHangout, prefs)
	for range 10 {
		again := s.RankSlots(slots, model.EventHangout, prefs)
		assert.Equal(t, first, again)
	}
}

func TestRankSlots_PreferencePenalties(t *testing.T) {
	s := testScheduler()
	evening := []model.TimeSlot{
		{Start: time.Date(2026, 9, 5, 21, 30, 0, 0, time.UTC), End: time.Date(2026, 9, 5, 23, 30, 0, 0, time.UTC)},
	}

	base := s.RankSlots(evening, model.EventHangout, nil)[0].Score
	penalized := s.RankSlots(evening, model.EventHangout, map[string]Preferences{
		"u1": {BudgetConscious: true, EarlyBird: true},
	})[0].Score

	assert.Equal(t, base-15, penalized)
}

func TestSuggestDateRange(t *testing.T) {
	s := testScheduler()

	start, end := s.SuggestDateRange(model.EventDinner)
	assert.Equal(t, time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 10, 4, 0, 0, 0, 0, time.UTC), end)

	// Trips need lead time.
	start, end = s.SuggestDateRange(model.EventTrip)
	assert.Equal(t, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 11, 14, 0, 0, 0, 0, time.UTC), end)
}

func TestNextAvailableSlot(t *testing.T) {
	s := testScheduler()
	s.AddSchedule("a", weekendSchedule("a", 10, 18))
	s.AddSchedule("b", weekendSchedule("b", 10, 18))

	slot, ok := s.NextAvailableSlot(model.EventHangout, 0)
	require.True(t, ok)
	// First weekend after the 3-day lead: Saturday Sep 5.
	assert.Equal(t, time.Date(2026, 9, 5, 10, 0, 0, 0, time.UTC), slot.Start)
}

func TestNextAvailableSlot_None(t *testing.T) {
	s := testScheduler()
	s.AddSchedule("a", &model.Schedule{UserID: "a"})

	_, ok := s.NextAvailableSlot(model.EventHangout, 0)
	assert.False(t, ok)
}

func TestCheckConflicts(t *testing.T) {
	s := testScheduler()
	s.AddSchedule("a", weekendSchedule("a", 10, 18))
	s.AddSchedule("b", weekendSchedule("b", 14, 16))

	proposed := model.TimeSlot{
		Start: time.Date(2026, 9, 5, 12, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 5, 15, 0, 0, 0, time.UTC),
	}
	conflicts := s.CheckConflicts(proposed)

	assert.False(t, conflicts["a"])
	assert.True(t, conflicts["b"])
}

func TestFindAlternatives_ClampsToTomorrow(t *testing.T) {
	s := testScheduler()
	s.AddSchedule("a", weekendSchedule("a", 10, 18))
	s.AddSchedule("b", weekendSchedule("b", 10, 18))

	// Rejected slot is close to today; the -3 day rewind would reach into
	// the past without the clamp.
	rejected := model.TimeSlot{
		Start: time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 2, 14, 0, 0, 0, time.UTC),
	}
	alternatives := s.FindAlternatives(rejected, model.EventHangout, 10)

	require.NotEmpty(t, alternatives)
	for _, slot := range alternatives {
		assert.True(t, slot.Start.After(fixedNow))
	}
}
