// ABOUTME: Tests for user identity, friend codes, tier limits, and the
// ABOUTME: shareable user projection

package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser_Identity(t *testing.T) {
	u := NewUser("Alice Liddell")

	assert.True(t, strings.HasPrefix(u.ID, "YT-"))
	assert.True(t, strings.HasPrefix(u.AgentID, "AGENT-"))
	assert.Equal(t, TierFree, u.Tier)
	assert.Equal(t, StyleGentle, u.Communication)
}

func TestFriendCode_Format(t *testing.T) {
	u := NewUser("Alice Liddell")
	code := u.FriendCode()

	parts := strings.Split(code, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "YT", parts[0])
	assert.Equal(t, "ALICE", parts[1])
	assert.Len(t, parts[2], 4)
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestFriendCode_ShortName(t *testing.T) {
	u := NewUser("Bo")
	assert.Contains(t, u.FriendCode(), "-BO-")
}

func TestCanAddFriends_TierLimit(t *testing.T) {
	u := NewUser("Alice")
	assert.True(t, u.CanAddFriends())

	u.FriendsCount = 5
	assert.False(t, u.CanAddFriends())

	u.Tier = TierPro
	assert.True(t, u.CanAddFriends())
}

func TestIsAvailable(t *testing.T) {
	u := NewUser("Alice")
	u.DefaultAvailability = []AvailabilityBlock{
		{Day: time.Saturday, StartHour: 10, EndHour: 18},
	}

	saturdayNoon := time.Date(2026, 9, 5, 12, 0, 0, 0, time.UTC)
	assert.True(t, u.IsAvailable(saturdayNoon))
	assert.False(t, u.IsAvailable(saturdayNoon.Add(8*time.Hour)))

	u.Blackouts = []BlackoutRange{{
		StartDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
	}}
	assert.False(t, u.IsAvailable(saturdayNoon))
}

func TestBlackoutCoversLocalCalendarDay(t *testing.T) {
	blackout := BlackoutRange{
		StartDate: time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
	}

	sydney := time.FixedZone("AEST", 10*60*60)

	// Early morning Sep 12 in Sydney is still Sep 11 in UTC; the blackout
	// is about the user's calendar day, so it must cover it.
	assert.True(t, blackout.Covers(time.Date(2026, 9, 12, 5, 0, 0, 0, sydney)))

	// The days around it stay outside.
	assert.False(t, blackout.Covers(time.Date(2026, 9, 11, 23, 0, 0, 0, sydney)))
	assert.False(t, blackout.Covers(time.Date(2026, 9, 13, 1, 0, 0, 0, sydney)))
	assert.True(t, blackout.Covers(time.Date(2026, 9, 12, 23, 30, 0, 0, sydney)))
}

func TestShareableUser_NeverCarriesPrivateFields(t *testing.T) {
	u := NewUser("Alice")
	u.Blackouts = []BlackoutRange{{
		StartDate: time.Now(),
		EndDate:   time.Now(),
		Reason:    "SENTINEL-medical-appointment",
	}}
	u.Dietary = []string{"vegetarian"}

	data, err := json.Marshal(u.Shareable())
	require.NoError(t, err)

	// Dietary needs travel so plans can account for them.
	assert.Contains(t, string(data), "vegetarian")

	// Blackout reasons, communication style, and tier do not.
	assert.NotContains(t, string(data), "SENTINEL-medical-appointment")
	assert.NotContains(t, string(data), "communication_style")
	assert.NotContains(t, string(data), "tier")
}
