package directory

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ADITIII0201/kith/internal/events"
	"github.com/ADITIII0201/kith/internal/social"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// SQLite is the durable Directory implementation.
// Uses WAL mode so ranking reads proceed while the graph is updated.
type SQLite struct {
	db     *sql.DB
	clock  clockwork.Clock
	events events.Sink
}

// SQLiteOption configures an SQLite directory.
type SQLiteOption func(*SQLite)

// WithSQLiteClock injects the clock used to default zero activity times.
func WithSQLiteClock(c clockwork.Clock) SQLiteOption {
	return func(s *SQLite) { s.clock = c }
}

// WithSQLiteEvents sets the sink receiving dropped-record events.
func WithSQLiteEvents(sink events.Sink) SQLiteOption {
	return func(s *SQLite) { s.events = sink }
}

// OpenSQLite creates or opens the directory database at path and applies
// pragmas and schema. Idempotent; safe to call on an existing database.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open directory: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect directory: %w", err)
	}

	// SQLite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLite{
		db:     db,
		clock:  clockwork.NewRealClock(),
		events: events.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < schemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for direct queries. Prefer the
// Directory methods; this exists for tooling and tests.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

func (s *SQLite) UpsertUser(ctx context.Context, u social.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	u = u.Normalized(s.clock.Now())

	interests, err := marshalList(u.Interests)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	groups, err := marshalList(u.Groups)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, avatar_ref, interests, member_groups, last_active_at, is_online)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			avatar_ref = excluded.avatar_ref,
			interests = excluded.interests,
			member_groups = excluded.member_groups,
			last_active_at = excluded.last_active_at,
			is_online = excluded.is_online
	`,
		u.ID, u.Name, u.AvatarRef, interests, groups, u.LastActiveAt.UnixMilli(), u.IsOnline,
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

func (s *SQLite) AddConnection(ctx context.Context, viewerID string, edge social.ConnectionEdge) error {
	if viewerID == "" {
		return fmt.Errorf("add connection: missing viewer id")
	}
	if err := edge.Validate(); err != nil {
		return fmt.Errorf("add connection: %w", err)
	}
	edge = edge.Normalized()

	mutuals, err := marshalList(edge.MutualFollowerIDs)
	if err != nil {
		return fmt.Errorf("add connection %s -> %s: %w", viewerID, edge.TargetUserID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO connections (viewer_id, target_user_id, strength, mutual_follower_ids)
		VALUES (?, ?, ?, ?)
	`,
		viewerID, edge.TargetUserID, edge.Strength, mutuals,
	)
	if err != nil {
		return fmt.Errorf("add connection %s -> %s: %w", viewerID, edge.TargetUserID, err)
	}
	return nil
}

func (s *SQLite) User(ctx context.Context, id string) (social.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, avatar_ref, interests, member_groups, last_active_at, is_online
		FROM users WHERE id = ?
	`, id)

	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return social.User{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return social.User{}, fmt.Errorf("read user %s: %w", id, err)
	}
	return u.Normalized(s.clock.Now()), nil
}

func (s *SQLite) Users(ctx context.Context) ([]social.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, avatar_ref, interests, member_groups, last_active_at, is_online
		FROM users ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}
	defer rows.Close()

	var out []social.User
	now := s.clock.Now()
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			s.dropRecord("users", err)
			continue
		}
		out = append(out, u.Normalized(now))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}
	return out, nil
}

func (s *SQLite) ConnectionsOf(ctx context.Context, viewerID string) ([]social.ConnectionEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_user_id, strength, mutual_follower_ids
		FROM connections WHERE viewer_id = ? ORDER BY id ASC
	`, viewerID)
	if err != nil {
		return nil, fmt.Errorf("read connections of %s: %w", viewerID, err)
	}
	defer rows.Close()

	var out []social.ConnectionEdge
	for rows.Next() {
		var (
			edge    social.ConnectionEdge
			mutuals string
		)
		if err := rows.Scan(&edge.TargetUserID, &edge.Strength, &mutuals); err != nil {
			s.dropRecord("connections", err)
			continue
		}
		if edge.MutualFollowerIDs, err = unmarshalList(mutuals); err != nil {
			s.dropRecord("connections", err)
			continue
		}
		if err := edge.Validate(); err != nil {
			s.dropRecord("connections", err)
			continue
		}
		out = append(out, edge.Normalized())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read connections of %s: %w", viewerID, err)
	}
	return out, nil
}

// scanUser decodes one users row. The scan argument order matches the
// SELECT column order used by User and Users.
func scanUser(scan func(...any) error) (social.User, error) {
	var (
		u         social.User
		interests string
		groups    string
		activeAt  int64
	)
	if err := scan(&u.ID, &u.Name, &u.AvatarRef, &interests, &groups, &activeAt, &u.IsOnline); err != nil {
		return social.User{}, err
	}
	var err error
	if u.Interests, err = unmarshalList(interests); err != nil {
		return social.User{}, fmt.Errorf("user %s interests: %w", u.ID, err)
	}
	if u.Groups, err = unmarshalList(groups); err != nil {
		return social.User{}, fmt.Errorf("user %s groups: %w", u.ID, err)
	}
	u.LastActiveAt = time.UnixMilli(activeAt)
	if err := u.Validate(); err != nil {
		return social.User{}, err
	}
	return u, nil
}

func (s *SQLite) dropRecord(table string, err error) {
	s.events.Emit(events.Event{
		Kind: events.KindValidationDropped,
		Msg:  "directory record dropped",
		Err:  err,
		Fields: map[string]any{
			"table": table,
		},
	})
}

func marshalList(vals []string) (string, error) {
	if vals == nil {
		vals = []string{}
	}
	data, err := json.Marshal(vals)
	if err != nil {
		return "", fmt.Errorf("marshal list: %w", err)
	}
	return string(data), nil
}

func unmarshalList(data string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal list: %w", err)
	}
	return out, nil
}
