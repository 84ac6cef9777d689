// ABOUTME: Store interface for yotei persistence
// ABOUTME: Users, friendships, events, schedules, and the activity log

package store

import (
	"context"
	"errors"
	"time"

	"github.com/yotei-sh/yotei/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Activity is one entry in a user's local activity log. It may reference
// private context and is never transmitted.
type Activity struct {
	ID        string
	UserID    string
	EventID   string // empty for non-event activity
	Kind      string // coordination, nudge, response, consensus, error
	Detail    string
	CreatedAt time.Time
}

// Store defines the interface for yotei persistence
type Store interface {
	// Users
	SaveUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByFriendCode(ctx context.Context, code string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)

	// Friendships, keyed by (owner, friend)
	SaveFriend(ctx context.Context, ownerID string, f *model.FriendRelationship) error
	GetFriend(ctx context.Context, ownerID, friendID string) (*model.FriendRelationship, error)
	ListFriends(ctx context.Context, ownerID string) ([]*model.FriendRelationship, error)
	DeleteFriend(ctx context.Context, ownerID, friendID string) error

	// Events
	SaveEvent(ctx context.Context, ev *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEventsByParticipant(ctx context.Context, userID string) ([]*model.Event, error)
	ListActiveEvents(ctx context.Context, userID string) ([]*model.Event, error)

	// Schedules, one per user
	SaveSchedule(ctx context.Context, sched *model.Schedule) error
	GetSchedule(ctx context.Context, userID string) (*model.Schedule, error)

	// Activity log
	AppendActivity(ctx context.Context, a *Activity) error
	ListActivity(ctx context.Context, userID string, limit int) ([]*Activity, error)

	// Close releases any resources held by the store
	Close() error
}
