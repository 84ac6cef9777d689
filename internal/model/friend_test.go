// ABOUTME: Tests for the friendship privacy partition and group sensitivity
// ABOUTME: merging. The serialization check is the hard privacy boundary.

package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const privateSentinel = "SENTINEL-went-through-a-rough-breakup"

func sensitiveFriend() *FriendRelationship {
	return &FriendRelationship{
		FriendID:    "YT-BOB1",
		FriendName:  "Bob",
		FriendCode:  "YT-BOB-BOB1",
		Type:        RelCloseFriend,
		ConnectedAt: time.Now().UTC(),

		PrivateNotes:       privateSentinel,
		Sensitivities:      []string{"budget-conscious", "vegetarian restaurants only"},
		HistoryNotes:       "met in college",
		ConflictHistory:    []string{"argument at NYE 2024"},
		EnthusiasmBaseline: 4,
		CommunicationPref:  "direct",

		SharedEventsCount: 12,
		MutualFriends:     []string{"Carol"},
	}
}

func TestShareable_CarriesOnlyPublicFields(t *testing.T) {
	f := sensitiveFriend()
	sh := f.Shareable()

	assert.Equal(t, "YT-BOB1", sh.FriendID)
	assert.Equal(t, "Bob", sh.FriendName)
	assert.Equal(t, RelCloseFriend, sh.Type)
	assert.Equal(t, 12, sh.SharedEventsCount)
	assert.Equal(t, []string{"Carol"}, sh.MutualFriends)
}

func TestShareable_SerializationNeverLeaksPrivateData(t *testing.T) {
	f := sensitiveFriend()

	data, err := json.Marshal(f.Shareable())
	require.NoError(t, err)

	// The wire form must not contain a single private field value or name.
	for _, leaked := range []string{
		privateSentinel,
		"budget-conscious",
		"argument at NYE 2024",
		"met in college",
		"private_notes",
		"sensitivities",
		"conflict_history",
		"enthusiasm_baseline",
	} {
		assert.NotContains(t, string(data), leaked)
	}
}

func TestGroupKey_OrderIndependent(t *testing.T) {
	a := &GroupDynamic{FriendIDs: []string{"f2", "f1", "f3"}}
	b := &GroupDynamic{FriendIDs: []string{"f3", "f1", "f2"}}
	assert.Equal(t, a.GroupKey(), b.GroupKey())
	assert.Equal(t, "f1+f2+f3", a.GroupKey())
}

func TestGroupSensitivities_MergesStably(t *testing.T) {
	friends := map[string]*FriendRelationship{
		"f1": {FriendID: "f1", Sensitivities: []string{"no politics", "budget"}},
		"f2": {FriendID: "f2", Sensitivities: []string{"budget", "early nights"}},
	}
	dynamics := map[string]*GroupDynamic{
		"f1+f2": {FriendIDs: []string{"f1", "f2"}, AvoidTopics: []string{"the old job"}},
	}

	got := GroupSensitivities(friends, dynamics, []string{"f1", "f2"})
	assert.Equal(t, []string{"no politics", "budget", "early nights", "the old job"}, got)

	// Same inputs, same order, every time.
	assert.Equal(t, got, GroupSensitivities(friends, dynamics, []string{"f1", "f2"}))
}

func TestGroupSensitivities_UnknownGroup(t *testing.T) {
	friends := map[string]*FriendRelationship{
		"f1": {FriendID: "f1", Sensitivities: []string{"no politics"}},
	}
	got := GroupSensitivities(friends, nil, []string{"f1", "f9"})
	assert.Equal(t, []string{"no politics"}, got)
}
