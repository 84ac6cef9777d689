// ABOUTME: FriendRelationship with the shareable/private attribute partition.
// ABOUTME: Private fields feed the local agent only and must never reach the wire.

package model

import (
	"sort"
	"strings"
	"time"
)

// RelationshipType categorizes a friendship.
type RelationshipType string

const (
	RelFriend      RelationshipType = "friend"
	RelCloseFriend RelationshipType = "close-friend"
	RelPartner     RelationshipType = "partner"
	RelFamily      RelationshipType = "family"
	RelColleague   RelationshipType = "colleague"
)

// FriendRelationship is a directed edge from the owning user to a friend.
//
// Fields below the PRIVATE marker are social intelligence for the owner's
// agent only. They are never serialized for transmission; anything another
// agent may learn goes through Shareable.
type FriendRelationship struct {
	FriendID    string           `json:"friend_id"`
	FriendName  string           `json:"friend_name"`
	FriendCode  string           `json:"friend_code"`
	Type        RelationshipType `json:"relationship_type"`
	ConnectedAt time.Time        `json:"connected_at"`

	// PRIVATE: never transmitted to another agent.
	PrivateNotes    string   `json:"private_notes,omitempty"`
	Sensitivities   []string `json:"sensitivities,omitempty"`
	HistoryNotes    string   `json:"history_notes,omitempty"`
	ConflictHistory []string `json:"conflict_history,omitempty"`

	// Hints for the owning agent, also private.
	EnthusiasmBaseline int    `json:"enthusiasm_baseline"`
	CommunicationPref  string `json:"communication_preference,omitempty"`
	TypicalResponse    string `json:"response_time_typical,omitempty"`

	// Shareable metadata.
	SharedEventsCount int        `json:"shared_events_count"`
	LastHangout       *time.Time `json:"last_hangout,omitempty"`
	MutualFriends     []string   `json:"mutual_friends,omitempty"`

	AgentOnline      bool       `json:"agent_online"`
	LastAgentContact *time.Time `json:"last_agent_contact,omitempty"`
}

// ShareableFriend is the only friendship data allowed across the agent boundary.
type ShareableFriend struct {
	FriendID          string           `json:"friend_id"`
	FriendName        string           `json:"friend_name"`
	Type              RelationshipType `json:"relationship_type"`
	SharedEventsCount int              `json:"shared_events_count"`
	MutualFriends     []string         `json:"mutual_friends,omitempty"`
}

// Shareable returns the cross-agent projection of the relationship.
func (f *FriendRelationship) Shareable() ShareableFriend {
	return ShareableFriend{
		FriendID:          f.FriendID,
		FriendName:        f.FriendName,
		Type:              f.Type,
		SharedEventsCount: f.SharedEventsCount,
		MutualFriends:     f.MutualFriends,
	}
}

// GroupDynamic captures how a particular combination of friends gets along.
// All of it is private to the owning agent.
type GroupDynamic struct {
	FriendIDs   []string `json:"friend_ids"`
	Vibe        string   `json:"vibe"`
	Notes       string   `json:"notes,omitempty"`
	AvoidTopics []string `json:"avoid_topics,omitempty"`
}

// GroupKey is the canonical key for this combination of friends.
func (g *GroupDynamic) GroupKey() string {
	ids := append([]string(nil), g.FriendIDs...)
	sort.Strings(ids)
	return strings.Join(ids, "+")
}

// GroupSensitivities merges the individual sensitivities of the named friends
// with the avoid-topics of any matching group dynamic. Order is stable.
func GroupSensitivities(friends map[string]*FriendRelationship, dynamics map[string]*GroupDynamic, friendIDs []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, id := range friendIDs {
		if f, ok := friends[id]; ok {
			for _, s := range f.Sensitivities {
				add(s)
			}
		}
	}

	key := (&GroupDynamic{FriendIDs: friendIDs}).GroupKey()
	if d, ok := dynamics[key]; ok {
		for _, s := range d.AvoidTopics {
			add(s)
		}
	}
	return out
}
