// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Entities persist as JSON documents with index columns for lookups

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yotei-sh/yotei/internal/model"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id          TEXT PRIMARY KEY,
			friend_code TEXT NOT NULL UNIQUE,
			doc         TEXT NOT NULL,
			updated_at  DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS friends (
			owner_id   TEXT NOT NULL,
			friend_id  TEXT NOT NULL,
			doc        TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (owner_id, friend_id)
		);

		CREATE INDEX IF NOT EXISTS idx_friends_owner ON friends(owner_id);

		CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			creator_id TEXT NOT NULL,
			doc        TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);

		CREATE TABLE IF NOT EXISTS event_participants (
			event_id TEXT NOT NULL,
			user_id  TEXT NOT NULL,
			PRIMARY KEY (event_id, user_id),
			FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_participants_user ON event_participants(user_id);

		CREATE TABLE IF NOT EXISTS schedules (
			user_id    TEXT PRIMARY KEY,
			doc        TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS activity_log (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			event_id   TEXT,
			kind       TEXT NOT NULL,
			detail     TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_activity_user ON activity_log(user_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveUser(ctx context.Context, u *model.User) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshaling user: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, friend_code, doc, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			friend_code = excluded.friend_code,
			doc = excluded.doc,
			updated_at = excluded.updated_at`,
		u.ID, u.FriendCode(), string(doc), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.getUserWhere(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetUserByFriendCode(ctx context.Context, code string) (*model.User, error) {
	return s.getUserWhere(ctx, "friend_code = ?", code)
}

func (s *SQLiteStore) getUserWhere(ctx context.Context, where string, arg any) (*model.User, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM users WHERE "+where, arg).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	var u model.User
	if err := json.Unmarshal([]byte(doc), &u); err != nil {
		return nil, fmt.Errorf("unmarshaling user: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT doc FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var u model.User
		if err := json.Unmarshal([]byte(doc), &u); err != nil {
			return nil, fmt.Errorf("unmarshaling user: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveFriend(ctx context.Context, ownerID string, f *model.FriendRelationship) error {
	doc, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling friendship: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO friends (owner_id, friend_id, doc, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, friend_id) DO UPDATE SET
			doc = excluded.doc,
			updated_at = excluded.updated_at`,
		ownerID, f.FriendID, string(doc), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving friendship: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetFriend(ctx context.Context, ownerID, friendID string) (*model.FriendRelationship, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc FROM friends WHERE owner_id = ? AND friend_id = ?",
		ownerID, friendID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying friendship: %w", err)
	}
	var f model.FriendRelationship
	if err := json.Unmarshal([]byte(doc), &f); err != nil {
		return nil, fmt.Errorf("unmarshaling friendship: %w", err)
	}
	return &f, nil
}

func (s *SQLiteStore) ListFriends(ctx context.Context, ownerID string) ([]*model.FriendRelationship, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT doc FROM friends WHERE owner_id = ? ORDER BY friend_id", ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing friendships: %w", err)
	}
	defer rows.Close()

	var out []*model.FriendRelationship
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var f model.FriendRelationship
		if err := json.Unmarshal([]byte(doc), &f); err != nil {
			return nil, fmt.Errorf("unmarshaling friendship: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteFriend(ctx context.Context, ownerID, friendID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM friends WHERE owner_id = ? AND friend_id = ?", ownerID, friendID)
	if err != nil {
		return fmt.Errorf("deleting friendship: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveEvent(ctx context.Context, ev *model.Event) error {
	doc, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, status, creator_id, doc, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			doc = excluded.doc,
			updated_at = excluded.updated_at`,
		ev.ID, string(ev.Status), ev.CreatorID, string(doc), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving event: %w", err)
	}

	// Rebuild the participant index so removals are reflected.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM event_participants WHERE event_id = ?", ev.ID); err != nil {
		return fmt.Errorf("clearing participant index: %w", err)
	}
	for _, p := range ev.Participants {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO event_participants (event_id, user_id) VALUES (?, ?)",
			ev.ID, p.UserID); err != nil {
			return fmt.Errorf("indexing participant: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM events WHERE id = ?", id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}
	var ev model.Event
	if err := json.Unmarshal([]byte(doc), &ev); err != nil {
		return nil, fmt.Errorf("unmarshaling event: %w", err)
	}
	return &ev, nil
}

func (s *SQLiteStore) ListEventsByParticipant(ctx context.Context, userID string) ([]*model.Event, error) {
	return s.listEvents(ctx, `
		SELECT e.doc FROM events e
		JOIN event_participants p ON p.event_id = e.id
		WHERE p.user_id = ?
		ORDER BY e.updated_at DESC`, userID)
}

func (s *SQLiteStore) ListActiveEvents(ctx context.Context, userID string) ([]*model.Event, error) {
	return s.listEvents(ctx, `
		SELECT e.doc FROM events e
		JOIN event_participants p ON p.event_id = e.id
		WHERE p.user_id = ? AND e.status IN (?, ?, ?)
		ORDER BY e.updated_at DESC`,
		userID,
		string(model.StatusPlanning), string(model.StatusProposed), string(model.StatusConfirmed))
}

func (s *SQLiteStore) listEvents(ctx context.Context, query string, args ...any) ([]*model.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var out []*model.Event
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var ev model.Event
		if err := json.Unmarshal([]byte(doc), &ev); err != nil {
			return nil, fmt.Errorf("unmarshaling event: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveSchedule(ctx context.Context, sched *model.Schedule) error {
	doc, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("marshaling schedule: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules (user_id, doc, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			doc = excluded.doc,
			updated_at = excluded.updated_at`,
		sched.UserID, string(doc), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving schedule: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSchedule(ctx context.Context, userID string) (*model.Schedule, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc FROM schedules WHERE user_id = ?", userID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying schedule: %w", err)
	}
	var sched model.Schedule
	if err := json.Unmarshal([]byte(doc), &sched); err != nil {
		return nil, fmt.Errorf("unmarshaling schedule: %w", err)
	}
	return &sched, nil
}

func (s *SQLiteStore) AppendActivity(ctx context.Context, a *Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, user_id, event_id, kind, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.EventID, a.Kind, a.Detail, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending activity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListActivity(ctx context.Context, userID string, limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, event_id, kind, detail, created_at
		FROM activity_log
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close()

	var out []*Activity
	for rows.Next() {
		a := &Activity{}
		var eventID sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &eventID, &a.Kind, &a.Detail, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.EventID = eventID.String
		out = append(out, a)
	}
	return out, rows.Err()
}
