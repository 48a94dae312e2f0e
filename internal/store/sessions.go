package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/memkeep/memkeep/internal/models"
)

// SessionStore tracks session lifecycle and turn ordering.
type SessionStore struct {
	db *DB
}

func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// Ensure creates the session row if it does not exist and returns it.
// Sessions start open.
func (s *SessionStore) Ensure(id string, now time.Time) (*models.Session, error) {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO sessions (id, state, started_at) VALUES (?, ?, ?)",
		id, string(models.SessionOpen), now.Unix(),
	)
	if err != nil {
		return nil, models.StoreIO("ensure session", err)
	}
	return s.GetByID(id)
}

// GetByID fetches a session, returning models.ErrNotFound when unknown.
func (s *SessionStore) GetByID(id string) (*models.Session, error) {
	row := s.db.QueryRow(
		"SELECT id, state, started_at, ended_at, last_turn, message_count FROM sessions WHERE id = ?",
		id,
	)
	var (
		sess    models.Session
		endedAt sql.NullInt64
	)
	err := row.Scan(&sess.ID, &sess.State, &sess.StartedAt, &endedAt, &sess.LastTurn, &sess.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, models.StoreIO("get session", err)
	}
	if endedAt.Valid {
		v := endedAt.Int64
		sess.EndedAt = &v
	}
	return &sess, nil
}

// CheckTurn validates that a turn can be recorded without advancing the
// session, creating the session row if needed. Turns must be positive and
// non-decreasing; a closed session rejects new turns. Callers validate
// before writing the record, then commit the turn with RecordTurn once the
// write succeeded.
func (s *SessionStore) CheckTurn(id string, turn int, now time.Time) error {
	if turn < 1 {
		return models.Validation("turn", "must be >= 1")
	}
	sess, err := s.Ensure(id, now)
	if err != nil {
		return err
	}
	if sess.State != models.SessionOpen {
		return models.Validation("session_id", fmt.Sprintf("session is %s, not accepting turns", sess.State))
	}
	if turn < sess.LastTurn {
		return models.Validation("turn", fmt.Sprintf("turn %d precedes last recorded turn %d", turn, sess.LastTurn))
	}
	return nil
}

// RecordTurn validates and records a turn on an open session.
func (s *SessionStore) RecordTurn(id string, turn int, now time.Time) error {
	if err := s.CheckTurn(id, turn, now); err != nil {
		return err
	}
	_, err := s.db.Exec(
		"UPDATE sessions SET last_turn = ?, message_count = message_count + 1 WHERE id = ?",
		turn, id,
	)
	return models.StoreIO("record turn", err)
}

// BeginClose transitions open -> closing. Returns false when the session is
// already closing or closed, so extraction runs at most once per end call.
func (s *SessionStore) BeginClose(id string, now time.Time) (bool, error) {
	res, err := s.db.Exec(
		"UPDATE sessions SET state = ?, ended_at = ? WHERE id = ? AND state = ?",
		string(models.SessionClosing), now.Unix(), id, string(models.SessionOpen),
	)
	if err != nil {
		return false, models.StoreIO("begin close", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Distinguish unknown session from wrong state.
		if _, err := s.GetByID(id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// MarkClosed transitions closing -> closed after extraction completes.
func (s *SessionStore) MarkClosed(id string) error {
	res, err := s.db.Exec(
		"UPDATE sessions SET state = ? WHERE id = ? AND state = ?",
		string(models.SessionClosed), id, string(models.SessionClosing),
	)
	if err != nil {
		return models.StoreIO("mark closed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.Validation("session_id", "session not in closing state")
	}
	return nil
}

// Reopen transitions closed -> closing for an explicit reprocess. The
// extractor's dedup pass makes reprocessing idempotent.
func (s *SessionStore) Reopen(id string) error {
	res, err := s.db.Exec(
		"UPDATE sessions SET state = ? WHERE id = ? AND state = ?",
		string(models.SessionClosing), id, string(models.SessionClosed),
	)
	if err != nil {
		return models.StoreIO("reopen session", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, err := s.GetByID(id); err != nil {
			return err
		}
		return models.Validation("session_id", "only closed sessions can be reprocessed")
	}
	return nil
}

// List returns all sessions, most recently started first.
func (s *SessionStore) List(limit int) ([]*models.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		"SELECT id, state, started_at, ended_at, last_turn, message_count FROM sessions ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, models.StoreIO("list sessions", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		var (
			sess    models.Session
			endedAt sql.NullInt64
		)
		if err := rows.Scan(&sess.ID, &sess.State, &sess.StartedAt, &endedAt, &sess.LastTurn, &sess.MessageCount); err != nil {
			return nil, models.StoreIO("scan session", err)
		}
		if endedAt.Valid {
			v := endedAt.Int64
			sess.EndedAt = &v
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}
