// ABOUTME: Tests for the SQLite store: CRUD round-trips, lookup indexes,
// ABOUTME: and the participant join used for event queries

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yotei-sh/yotei/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestUserRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	u := model.NewUser("Alice")
	u.Dietary = []string{"vegetarian"}
	require.NoError(t, st.SaveUser(ctx, u))

	got, err := st.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, u.AgentID, got.AgentID)
	assert.Equal(t, []string{"vegetarian"}, got.Dietary)

	// Upsert replaces.
	u.Name = "Alice B"
	require.NoError(t, st.SaveUser(ctx, u))
	got, err = st.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice B", got.Name)

	_, err = st.GetUser(ctx, "no-such-user")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUserByFriendCode(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	u := model.NewUser("Bob")
	require.NoError(t, st.SaveUser(ctx, u))

	got, err := st.GetUserByFriendCode(ctx, u.FriendCode())
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = st.GetUserByFriendCode(ctx, "YT-NOBODY-0000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUsers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	users, err := st.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	require.NoError(t, st.SaveUser(ctx, model.NewUser("Alice")))
	require.NoError(t, st.SaveUser(ctx, model.NewUser("Bob")))

	users, err = st.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestFriendCRUD(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	owner := model.NewUser("Alice")
	require.NoError(t, st.SaveUser(ctx, owner))

	f := &model.FriendRelationship{
		FriendID:      "user-bob",
		FriendName:    "Bob",
		Type:          model.RelCloseFriend,
		PrivateNotes:  "training for a marathon",
		Sensitivities: []string{"early mornings"},
	}
	require.NoError(t, st.SaveFriend(ctx, owner.ID, f))

	got, err := st.GetFriend(ctx, owner.ID, "user-bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.FriendName)
	assert.Equal(t, "training for a marathon", got.PrivateNotes)

	list, err := st.ListFriends(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// Friendships are per owner.
	list, err = st.ListFriends(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, st.DeleteFriend(ctx, owner.ID, "user-bob"))
	_, err = st.GetFriend(ctx, owner.ID, "user-bob")
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.DeleteFriend(ctx, owner.ID, "user-bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFriendResaveUpdatesInPlace(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	owner := model.NewUser("Alice")
	require.NoError(t, st.SaveUser(ctx, owner))

	f := &model.FriendRelationship{
		FriendID:   "user-bob",
		FriendName: "Bob",
		Type:       model.RelFriend,
	}
	require.NoError(t, st.SaveFriend(ctx, owner.ID, f))

	// Agents refresh relationship state as they learn; a re-save must
	// update the existing row, not grow a second one.
	f.Type = model.RelCloseFriend
	f.Sensitivities = []string{"late nights"}
	require.NoError(t, st.SaveFriend(ctx, owner.ID, f))

	list, err := st.ListFriends(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.RelCloseFriend, list[0].Type)
	assert.Equal(t, []string{"late nights"}, list[0].Sensitivities)
}

func TestEventParticipantIndex(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ev := model.NewEvent("user-alice", "Tapas night", model.EventDinner)
	ev.AddParticipant("user-alice", "Alice", "AGENT-alice")
	ev.AddParticipant("user-bob", "Bob", "AGENT-bob")
	require.NoError(t, st.SaveEvent(ctx, ev))

	other := model.NewEvent("user-bob", "Hike", model.EventOutdoor)
	other.AddParticipant("user-bob", "Bob", "AGENT-bob")
	require.NoError(t, st.SaveEvent(ctx, other))

	events, err := st.ListEventsByParticipant(ctx, "user-alice")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)

	events, err = st.ListEventsByParticipant(ctx, "user-bob")
	require.NoError(t, err)
	assert.Len(t, events, 2)

	// Removing a participant and resaving rebuilds the index.
	ev.Participants = ev.Participants[:1]
	require.NoError(t, st.SaveEvent(ctx, ev))
	events, err = st.ListEventsByParticipant(ctx, "user-bob")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestListActiveEvents(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	active := model.NewEvent("user-alice", "Dinner", model.EventDinner)
	active.AddParticipant("user-alice", "Alice", "AGENT-alice")
	require.NoError(t, st.SaveEvent(ctx, active))

	cancelled := model.NewEvent("user-alice", "Trip", model.EventTrip)
	cancelled.AddParticipant("user-alice", "Alice", "AGENT-alice")
	cancelled.Cancel()
	require.NoError(t, st.SaveEvent(ctx, cancelled))

	events, err := st.ListActiveEvents(ctx, "user-alice")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, active.ID, events[0].ID)
}

func TestEventDocumentRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ev := model.NewEvent("user-alice", "Tapas night", model.EventDinner)
	ev.AddParticipant("user-alice", "Alice", "AGENT-alice")
	p := model.NewProposal("AGENT-alice")
	p.Window = &model.TimeSlot{
		Start: time.Date(2026, 9, 19, 19, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 19, 21, 0, 0, 0, time.UTC),
	}
	ev.AddProposal(p)
	ev.AddNote("AGENT-alice", "negotiation", "keep it quiet", true)
	require.NoError(t, st.SaveEvent(ctx, ev))

	got, err := st.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentProposal())
	assert.Equal(t, p.ID, got.CurrentProposal().ID)
	require.Len(t, got.Notes, 1)
	assert.True(t, got.Notes[0].Private)
}

func TestScheduleRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sched := &model.Schedule{
		UserID: "user-alice",
		DefaultAvailability: []model.AvailabilityBlock{
			{Day: time.Saturday, StartHour: 10, EndHour: 22},
		},
		SpecificBusy: map[string][]model.TimeSlot{
			"2026-09-19": {{
				Start: time.Date(2026, 9, 19, 12, 0, 0, 0, time.UTC),
				End:   time.Date(2026, 9, 19, 14, 0, 0, 0, time.UTC),
			}},
		},
	}
	require.NoError(t, st.SaveSchedule(ctx, sched))

	got, err := st.GetSchedule(ctx, "user-alice")
	require.NoError(t, err)
	require.Len(t, got.DefaultAvailability, 1)
	assert.Equal(t, time.Saturday, got.DefaultAvailability[0].Day)
	assert.Len(t, got.SpecificBusy["2026-09-19"], 1)

	_, err = st.GetSchedule(ctx, "user-nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActivityLog(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i, kind := range []string{"coordination", "response", "consensus"} {
		require.NoError(t, st.AppendActivity(ctx, &Activity{
			UserID:    "user-alice",
			EventID:   "EVT-1",
			Kind:      kind,
			Detail:    "step",
			CreatedAt: time.Date(2026, 9, 1, 10, i, 0, 0, time.UTC),
		}))
	}

	acts, err := st.ListActivity(ctx, "user-alice", 0)
	require.NoError(t, err)
	require.Len(t, acts, 3)
	// Newest first.
	assert.Equal(t, "consensus", acts[0].Kind)
	assert.Equal(t, "coordination", acts[2].Kind)
	assert.NotEmpty(t, acts[0].ID)

	acts, err = st.ListActivity(ctx, "user-alice", 2)
	require.NoError(t, err)
	assert.Len(t, acts, 2)

	acts, err = st.ListActivity(ctx, "user-bob", 0)
	require.NoError(t, err)
	assert.Empty(t, acts)
}
