// Package transcript records what was spoken in each meeting session to a
// SQLite database and renders it back as markdown.
package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/baskills/meetingvoice/internal/ttypes"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when no session matches an id prefix.
	ErrNotFound = errors.New("session not found")

	// ErrAmbiguous is returned when an id prefix matches several sessions.
	ErrAmbiguous = errors.New("session id prefix is ambiguous")
)

// Session summarizes a recorded meeting.
type Session struct {
	ID         string
	Title      string
	StartedAt  time.Time
	Utterances int
}

// Entry is one recorded utterance.
type Entry struct {
	Seq       int
	Utterance ttypes.Utterance
	SpokenAt  time.Time
}

// Store wraps a SQLite-backed transcript history.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open opens or creates the database at path. The special path ":memory:"
// keeps everything in memory.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file::memory:?_pragma=foreign_keys(ON)"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS utterances (
    session_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    utterance_id TEXT NOT NULL,
    original_id TEXT NOT NULL DEFAULT '',
    multi_speaker INTEGER NOT NULL DEFAULT 0,
    speaker_id TEXT NOT NULL,
    speaker_name TEXT NOT NULL,
    speaker_role TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    spoken_at TIMESTAMP NOT NULL,
    PRIMARY KEY(session_id, seq),
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin creates the session row if needed and sets its title.
func (s *Store) Begin(ctx context.Context, sessionID, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, title, started_at) VALUES(?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET title=excluded.title`,
		sessionID, title, s.clock().UTC())
	return err
}

// Record appends u to the session's transcript. The session row is created
// on first use.
func (s *Store) Record(ctx context.Context, sessionID string, u ttypes.Utterance) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := s.clock().UTC()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO sessions(session_id, started_at) VALUES(?, ?) ON CONFLICT(session_id) DO NOTHING`,
		sessionID, now); err != nil {
		return err
	}

	created := u.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO utterances(session_id, seq, utterance_id, original_id, multi_speaker,
		    speaker_id, speaker_name, speaker_role, content, created_at, spoken_at)
		 SELECT ?, COALESCE(MAX(seq), -1) + 1, ?, ?, ?, ?, ?, ?, ?, ?, ?
		 FROM utterances WHERE session_id = ?`,
		sessionID, u.ID, u.OriginalID, u.FromMultiSpeaker,
		u.SpeakerID, u.SpeakerName, u.SpeakerRole, u.Content, created.UTC(), now,
		sessionID)
	if err != nil {
		return fmt.Errorf("record %s: %w", u.ID, err)
	}
	return tx.Commit()
}

// Sessions lists recorded sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.session_id, s.title, s.started_at, COUNT(u.seq)
		 FROM sessions s LEFT JOIN utterances u ON u.session_id = s.session_id
		 GROUP BY s.session_id ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var ss Session
		if err := rows.Scan(&ss.ID, &ss.Title, &ss.StartedAt, &ss.Utterances); err != nil {
			return nil, err
		}
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}

// Lookup resolves a session id or unique id prefix.
func (s *Store) Lookup(ctx context.Context, prefix string) (Session, error) {
	sessions, err := s.Sessions(ctx)
	if err != nil {
		return Session{}, err
	}

	var found []Session
	for _, ss := range sessions {
		if ss.ID == prefix {
			return ss, nil
		}
		if strings.HasPrefix(ss.ID, prefix) {
			found = append(found, ss)
		}
	}
	switch len(found) {
	case 0:
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return found[0], nil
	default:
		return Session{}, fmt.Errorf("%w: %s matches %d sessions", ErrAmbiguous, prefix, len(found))
	}
}

// List returns a session's utterances in the order they were spoken.
func (s *Store) List(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, utterance_id, original_id, multi_speaker, speaker_id, speaker_name,
		    speaker_role, content, created_at, spoken_at
		 FROM utterances WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		u := &e.Utterance
		if err := rows.Scan(&e.Seq, &u.ID, &u.OriginalID, &u.FromMultiSpeaker, &u.SpeakerID,
			&u.SpeakerName, &u.SpeakerRole, &u.Content, &u.CreatedAt, &e.SpokenAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes sessions started before now minus olderThan and returns how
// many were removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.clock().Add(-olderThan).UTC()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
