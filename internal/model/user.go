// ABOUTME: User profile with recurring availability, blackouts, and preferences.
// ABOUTME: Exposes a shareable projection that strips everything private.

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CommunicationStyle is how a user prefers to be talked to.
type CommunicationStyle string

const (
	StyleDirect  CommunicationStyle = "direct"
	StyleGentle  CommunicationStyle = "gentle"
	StyleMinimal CommunicationStyle = "minimal"
)

// SubscriptionTier gates the friend limit.
type SubscriptionTier string

const (
	TierFree SubscriptionTier = "free"
	TierPro  SubscriptionTier = "pro"
)

// freeTierFriendLimit is the friend cap for free accounts.
const freeTierFriendLimit = 5

// BudgetRange describes what a user is comfortable spending on an event.
type BudgetRange struct {
	MinAmount float64 `json:"min_amount"`
	MaxAmount float64 `json:"max_amount"`
	Currency  string  `json:"currency"`
	Flexible  bool    `json:"flexible"`
}

// DefaultBudgetRange returns the budget assumed for users who never set one.
func DefaultBudgetRange() BudgetRange {
	return BudgetRange{MinAmount: 0, MaxAmount: 500, Currency: "USD", Flexible: true}
}

// AvailabilityBlock is a recurring weekly availability window.
// Hours are local, half-open: [StartHour, EndHour).
type AvailabilityBlock struct {
	Day       time.Weekday `json:"day"`
	StartHour int          `json:"start_hour"`
	EndHour   int          `json:"end_hour"`
	Label     string       `json:"label,omitempty"`
}

// BlackoutRange is an inclusive date range when a user is unavailable.
// The reason is private and never shared.
type BlackoutRange struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Reason    string    `json:"reason,omitempty"`
}

// Covers reports whether the given instant falls inside the blackout.
// Comparison is by calendar date in each value's own location, so an evening
// in a non-UTC zone lands on the day the user sees.
func (b BlackoutRange) Covers(t time.Time) bool {
	day := DateKey(t)
	return day >= DateKey(b.StartDate) && day <= DateKey(b.EndDate)
}

// User is a yotei account: the human an agent acts for.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AgentID   string    `json:"agent_id"`
	CreatedAt time.Time `json:"created_at"`

	DefaultAvailability []AvailabilityBlock `json:"default_availability,omitempty"`
	Blackouts           []BlackoutRange     `json:"blackouts,omitempty"`
	Timezone            string              `json:"timezone"`

	Budget            BudgetRange        `json:"budget"`
	Dietary           []string           `json:"dietary,omitempty"`
	Accessibility     []string           `json:"accessibility,omitempty"`
	TravelRadiusMiles int                `json:"travel_radius_miles"`
	Communication     CommunicationStyle `json:"communication_style"`

	Tier         SubscriptionTier `json:"tier"`
	FriendsCount int              `json:"friends_count"`
}

// NewUser creates a user with generated id and agent id and default preferences.
func NewUser(name string) *User {
	return &User{
		ID:                "YT-" + strings.ToUpper(uuid.NewString()[:8]),
		Name:              name,
		AgentID:           "AGENT-" + uuid.NewString()[:12],
		CreatedAt:         time.Now().UTC(),
		Timezone:          "America/Los_Angeles",
		Budget:            DefaultBudgetRange(),
		TravelRadiusMiles: 50,
		Communication:     StyleGentle,
		Tier:              TierFree,
	}
}

// FriendCode is the human-friendly code users exchange to connect agents.
func (u *User) FriendCode() string {
	name := strings.ToUpper(strings.ReplaceAll(u.Name, " ", ""))
	if len(name) > 5 {
		name = name[:5]
	}
	id := strings.TrimPrefix(u.ID, "YT-")
	if len(id) > 4 {
		id = id[:4]
	}
	return fmt.Sprintf("YT-%s-%s", name, id)
}

// CanAddFriends reports whether the user is under their tier's friend limit.
func (u *User) CanAddFriends() bool {
	if u.Tier == TierPro {
		return true
	}
	return u.FriendsCount < freeTierFriendLimit
}

// IsAvailable reports whether the user's recurring availability covers t.
// Blackout ranges win over weekly blocks.
func (u *User) IsAvailable(t time.Time) bool {
	for _, b := range u.Blackouts {
		if b.Covers(t) {
			return false
		}
	}
	for _, block := range u.DefaultAvailability {
		if block.Day == t.Weekday() && block.StartHour <= t.Hour() && t.Hour() < block.EndHour {
			return true
		}
	}
	return false
}

// ShareableUser is the projection of a User that may be sent to other agents.
// Dietary and accessibility needs travel so plans can account for them; the
// blackout reasons, communication style, and tier never do.
type ShareableUser struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Timezone          string      `json:"timezone"`
	TravelRadiusMiles int         `json:"travel_radius_miles"`
	Dietary           []string    `json:"dietary,omitempty"`
	Accessibility     []string    `json:"accessibility,omitempty"`
	Budget            BudgetRange `json:"budget"`
}

// Shareable returns the cross-agent projection of the user.
func (u *User) Shareable() ShareableUser {
	return ShareableUser{
		ID:                u.ID,
		Name:              u.Name,
		Timezone:          u.Timezone,
		TravelRadiusMiles: u.TravelRadiusMiles,
		Dietary:           u.Dietary,
		Accessibility:     u.Accessibility,
		Budget:            u.Budget,
	}
}
