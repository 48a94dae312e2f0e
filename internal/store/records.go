package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/memkeep/memkeep/internal/models"
)

// RecordStore persists the tagged-variant record envelopes. Writes to a
// record kind are serialized through a per-kind lock so dedup's
// check-then-insert cycle never races with itself.
type RecordStore struct {
	db    *DB
	locks *kindLocks
}

// NewRecordStore creates a record store over an opened database.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{
		db:    db,
		locks: newKindLocks(0, 0),
	}
}

// NewRecordStoreWithRetry configures the bounded lock retry budget.
func NewRecordStoreWithRetry(db *DB, maxRetries int, retryDelay time.Duration) *RecordStore {
	return &RecordStore{
		db:    db,
		locks: newKindLocks(maxRetries, retryDelay),
	}
}

// WithLock runs fn while holding the write lock for a kind. Returns
// models.ErrBusy when the lock cannot be acquired within the retry budget.
func (s *RecordStore) WithLock(kind models.Kind, fn func() error) error {
	release, err := s.locks.acquire(kind)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func encodeStrings(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	b, _ := json.Marshal(vals)
	return string(b)
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil
	}
	return vals
}

// Add inserts a record and mirrors its content into the FTS table in one
// transaction, so a failed mirror write never leaves a record invisible to
// the keyword fallback. The caller is expected to hold the kind lock via
// WithLock when the insert is part of a dedup check-then-insert cycle.
func (s *RecordStore) Add(r *models.Record) error {
	var payload any
	if len(r.Payload) > 0 {
		payload = string(r.Payload)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return models.StoreIO("begin insert", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO records (
			id, kind, family, session_id, turn, topics, content,
			content_hash, confidence, source_sessions, last_verified,
			payload, access_count, token_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), string(r.Kind.Family()), r.SessionID, r.Turn,
		encodeStrings(r.Topics), r.Content, r.ContentHash, r.Confidence,
		encodeStrings(r.SourceSessions), r.LastVerified, payload,
		r.AccessCount, r.TokenCount, r.CreatedAt,
	)
	if err != nil {
		return models.StoreIO("insert record", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return models.StoreIO("record rowid", err)
	}

	_, err = tx.Exec(
		"INSERT INTO records_fts (record_id, content, topics) VALUES (?, ?, ?)",
		r.ID, r.Content, strings.Join(r.Topics, " "),
	)
	if err != nil {
		return models.StoreIO("insert record fts", err)
	}
	if err := tx.Commit(); err != nil {
		return models.StoreIO("commit insert", err)
	}
	r.Seq = seq
	return nil
}

// RebuildFTS drops and repopulates the keyword mirror from the records
// table. Returns the number of rows written.
func (s *RecordStore) RebuildFTS() (int, error) {
	records, err := s.All()
	if err != nil {
		return 0, err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, models.StoreIO("begin fts rebuild", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM records_fts"); err != nil {
		return 0, models.StoreIO("clear fts", err)
	}
	for _, r := range records {
		_, err := tx.Exec(
			"INSERT INTO records_fts (record_id, content, topics) VALUES (?, ?, ?)",
			r.ID, r.Content, strings.Join(r.Topics, " "),
		)
		if err != nil {
			return 0, models.StoreIO("repopulate fts", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, models.StoreIO("commit fts rebuild", err)
	}
	return len(records), nil
}

const recordColumns = `id, kind, family, session_id, turn, topics, content,
	content_hash, confidence, source_sessions, last_verified, payload,
	access_count, token_count, rowid, created_at`

func scanRecord(row interface{ Scan(...any) error }) (*models.Record, error) {
	var (
		r              models.Record
		family         string
		topics         string
		sourceSessions string
		lastVerified   sql.NullInt64
		payload        sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.Kind, &family, &r.SessionID, &r.Turn, &topics, &r.Content,
		&r.ContentHash, &r.Confidence, &sourceSessions, &lastVerified,
		&payload, &r.AccessCount, &r.TokenCount, &r.Seq, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Topics = decodeStrings(topics)
	r.SourceSessions = decodeStrings(sourceSessions)
	if lastVerified.Valid {
		v := lastVerified.Int64
		r.LastVerified = &v
	}
	if payload.Valid && payload.String != "" {
		r.Payload = json.RawMessage(payload.String)
	}
	return &r, nil
}

// GetByID fetches a single record, returning models.ErrNotFound when the id
// is unknown.
func (s *RecordStore) GetByID(id string) (*models.Record, error) {
	row := s.db.QueryRow(
		fmt.Sprintf("SELECT %s FROM records WHERE id = ?", recordColumns), id,
	)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, models.StoreIO("get record", err)
	}
	return r, nil
}

// List returns records of one kind in insertion order.
func (s *RecordStore) List(kind models.Kind, limit, offset int) ([]*models.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		fmt.Sprintf("SELECT %s FROM records WHERE kind = ? ORDER BY rowid LIMIT ? OFFSET ?", recordColumns),
		string(kind), limit, offset,
	)
	if err != nil {
		return nil, models.StoreIO("list records", err)
	}
	defer rows.Close()
	return collect(rows)
}

// All returns every record in insertion order. Used by context assembly and
// index rebuilds, both of which depend on the stable rowid ordering.
func (s *RecordStore) All() ([]*models.Record, error) {
	rows, err := s.db.Query(
		fmt.Sprintf("SELECT %s FROM records ORDER BY rowid", recordColumns),
	)
	if err != nil {
		return nil, models.StoreIO("list all records", err)
	}
	defer rows.Close()
	return collect(rows)
}

// BySession returns a session's conversation records ordered by turn, then
// insertion order within a turn.
func (s *RecordStore) BySession(sessionID string) ([]*models.Record, error) {
	rows, err := s.db.Query(
		fmt.Sprintf("SELECT %s FROM records WHERE session_id = ? AND family = ? ORDER BY turn, rowid", recordColumns),
		sessionID, string(models.FamilyConversation),
	)
	if err != nil {
		return nil, models.StoreIO("list session records", err)
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows *sql.Rows) ([]*models.Record, error) {
	var out []*models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, models.StoreIO("scan record", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, models.StoreIO("iterate records", err)
	}
	return out, nil
}

// FindByContentHash looks up an existing record of the same kind with the
// same normalized-content hash. Returns nil, nil when no duplicate exists.
func (s *RecordStore) FindByContentHash(kind models.Kind, hash string) (*models.Record, error) {
	row := s.db.QueryRow(
		fmt.Sprintf("SELECT %s FROM records WHERE kind = ? AND content_hash = ? ORDER BY rowid LIMIT 1", recordColumns),
		string(kind), hash,
	)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.StoreIO("find by hash", err)
	}
	return r, nil
}

// IncrementAccess bumps the retrieval counter for a record.
func (s *RecordStore) IncrementAccess(id string) error {
	_, err := s.db.Exec("UPDATE records SET access_count = access_count + 1 WHERE id = ?", id)
	return models.StoreIO("increment access", err)
}

// MergeKnowledge folds an incoming near-duplicate into an existing knowledge
// record: confidence takes the max, topics union, source sessions extend.
// Existing content and payload win.
func (s *RecordStore) MergeKnowledge(existing *models.Record, confidence float64, topics, sourceSessions []string) error {
	if confidence > existing.Confidence {
		existing.Confidence = confidence
	}
	existing.Topics = unionStrings(existing.Topics, topics)
	existing.SourceSessions = unionStrings(existing.SourceSessions, sourceSessions)

	_, err := s.db.Exec(
		"UPDATE records SET confidence = ?, topics = ?, source_sessions = ? WHERE id = ?",
		existing.Confidence, encodeStrings(existing.Topics),
		encodeStrings(existing.SourceSessions), existing.ID,
	)
	if err != nil {
		return models.StoreIO("merge record", err)
	}
	_, err = s.db.Exec(
		"UPDATE records_fts SET topics = ? WHERE record_id = ?",
		strings.Join(existing.Topics, " "), existing.ID,
	)
	return models.StoreIO("merge record fts", err)
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// DecayConfidence multiplies the confidence of knowledge records whose last
// verification is older than minAgeDays by factor, clamped to [0, 1]. A
// record that has never been verified ages from its creation time, so a
// RefreshVerified call resets its staleness clock. Returns the number of
// records touched.
func (s *RecordStore) DecayConfidence(factor float64, minAgeDays int, now time.Time) (int, error) {
	cutoff := now.AddDate(0, 0, -minAgeDays).Unix()
	res, err := s.db.Exec(`
		UPDATE records
		SET confidence = MAX(0.0, MIN(1.0, confidence * ?))
		WHERE family = ? AND COALESCE(last_verified, created_at) <= ?`,
		factor, string(models.FamilyKnowledge), cutoff,
	)
	if err != nil {
		return 0, models.StoreIO("decay confidence", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RefreshVerified stamps a knowledge record as re-verified now, resetting
// the staleness clock used during assembly.
func (s *RecordStore) RefreshVerified(id string, now time.Time) error {
	res, err := s.db.Exec(
		"UPDATE records SET last_verified = ? WHERE id = ?",
		now.Unix(), id,
	)
	if err != nil {
		return models.StoreIO("refresh verified", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteOlderThan removes conversation records created before the cutoff.
// Knowledge records are never pruned by age; they decay instead. Returns
// the ids removed so the caller can evict them from the vector index.
func (s *RecordStore) DeleteOlderThan(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT id FROM records WHERE family = ? AND created_at < ?",
		string(models.FamilyConversation), cutoff.Unix(),
	)
	if err != nil {
		return nil, models.StoreIO("select prune candidates", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, models.StoreIO("scan prune candidate", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, models.StoreIO("iterate prune candidates", err)
	}
	if err := s.DeleteByIDs(ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteByIDs removes records and their FTS mirror rows.
func (s *RecordStore) DeleteByIDs(ids []string) error {
	for _, id := range ids {
		if _, err := s.db.Exec("DELETE FROM records WHERE id = ?", id); err != nil {
			return models.StoreIO("delete record", err)
		}
		if _, err := s.db.Exec("DELETE FROM records_fts WHERE record_id = ?", id); err != nil {
			return models.StoreIO("delete record fts", err)
		}
	}
	return nil
}

// CountsByKind returns the number of records per kind.
func (s *RecordStore) CountsByKind() (map[models.Kind]int, error) {
	rows, err := s.db.Query("SELECT kind, COUNT(*) FROM records GROUP BY kind")
	if err != nil {
		return nil, models.StoreIO("count records", err)
	}
	defer rows.Close()
	counts := make(map[models.Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, models.StoreIO("scan count", err)
		}
		counts[models.Kind(kind)] = n
	}
	return counts, rows.Err()
}

// TotalTokens sums the stored token counts across all records.
func (s *RecordStore) TotalTokens() (int, error) {
	var total sql.NullInt64
	err := s.db.QueryRow("SELECT SUM(token_count) FROM records").Scan(&total)
	if err != nil {
		return 0, models.StoreIO("sum tokens", err)
	}
	return int(total.Int64), nil
}
