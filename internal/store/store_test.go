package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/memkeep/memkeep/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRecord(kind models.Kind, sessionID, content string) *models.Record {
	return &models.Record{
		ID:          uuid.New().String(),
		Kind:        kind,
		SessionID:   sessionID,
		Turn:        1,
		Content:     content,
		ContentHash: content, // tests don't need real hashing
		CreatedAt:   time.Now().Unix(),
	}
}

func TestRecordStore(t *testing.T) {
	db := setupTestDB(t)
	rs := NewRecordStore(db)

	t.Run("Add assigns insertion order", func(t *testing.T) {
		first := newTestRecord(models.KindUserMessage, "s1", "first message")
		second := newTestRecord(models.KindUserMessage, "s1", "second message")
		if err := rs.Add(first); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := rs.Add(second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if second.Seq <= first.Seq {
			t.Fatalf("expected increasing seq, got %d then %d", first.Seq, second.Seq)
		}
	})

	t.Run("GetByID round-trips fields", func(t *testing.T) {
		r := newTestRecord(models.KindDecision, "s1", "use sqlite for storage")
		r.Topics = []string{"storage/engine", "backend"}
		r.Confidence = 0.9
		r.SourceSessions = []string{"s1"}
		if err := r.EncodePayload(models.DecisionPayload{Rationale: "embedded, zero ops"}); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		if err := rs.Add(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := rs.GetByID(r.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Kind != models.KindDecision {
			t.Fatalf("expected decision kind, got %s", got.Kind)
		}
		if len(got.Topics) != 2 || got.Topics[0] != "storage/engine" {
			t.Fatalf("topics not preserved: %v", got.Topics)
		}
		if got.Confidence != 0.9 {
			t.Fatalf("expected confidence 0.9, got %v", got.Confidence)
		}
		var p models.DecisionPayload
		if err := got.DecodePayload(&p); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if p.Rationale != "embedded, zero ops" {
			t.Fatalf("payload not preserved: %+v", p)
		}
	})

	t.Run("GetByID unknown id returns ErrNotFound", func(t *testing.T) {
		_, err := rs.GetByID("no-such-id")
		if !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("FindByContentHash matches within kind only", func(t *testing.T) {
		r := newTestRecord(models.KindConvention, "s2", "always use tabs")
		r.ContentHash = "hash-tabs"
		if err := rs.Add(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := rs.FindByContentHash(models.KindConvention, "hash-tabs")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == nil || got.ID != r.ID {
			t.Fatal("expected to find the convention by hash")
		}

		other, err := rs.FindByContentHash(models.KindLearning, "hash-tabs")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if other != nil {
			t.Fatal("hash lookup must not cross kinds")
		}
	})

	t.Run("MergeKnowledge takes max confidence and unions topics", func(t *testing.T) {
		r := newTestRecord(models.KindLearning, "s3", "tests catch regressions")
		r.Confidence = 0.6
		r.Topics = []string{"testing"}
		r.SourceSessions = []string{"s3"}
		if err := rs.Add(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := rs.MergeKnowledge(r, 0.8, []string{"testing", "ci"}, []string{"s4"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := rs.GetByID(r.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Confidence != 0.8 {
			t.Fatalf("expected merged confidence 0.8, got %v", got.Confidence)
		}
		if len(got.Topics) != 2 {
			t.Fatalf("expected topic union of 2, got %v", got.Topics)
		}
		if len(got.SourceSessions) != 2 {
			t.Fatalf("expected source sessions [s3 s4], got %v", got.SourceSessions)
		}

		// Lower incoming confidence must not regress the stored value.
		if err := rs.MergeKnowledge(got, 0.3, nil, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		again, _ := rs.GetByID(r.ID)
		if again.Confidence != 0.8 {
			t.Fatalf("merge lowered confidence to %v", again.Confidence)
		}
	})

	t.Run("DecayConfidence clamps and skips recent records", func(t *testing.T) {
		old := newTestRecord(models.KindLearning, "s5", "old insight")
		old.Confidence = 0.5
		old.CreatedAt = time.Now().AddDate(0, 0, -30).Unix()
		recent := newTestRecord(models.KindLearning, "s5", "fresh insight")
		recent.Confidence = 0.5
		if err := rs.Add(old); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := rs.Add(recent); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		n, err := rs.DecayConfidence(0.5, 7, time.Now())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n < 1 {
			t.Fatalf("expected at least one decayed record, got %d", n)
		}

		gotOld, _ := rs.GetByID(old.ID)
		if gotOld.Confidence != 0.25 {
			t.Fatalf("expected old record decayed to 0.25, got %v", gotOld.Confidence)
		}
		gotRecent, _ := rs.GetByID(recent.ID)
		if gotRecent.Confidence != 0.5 {
			t.Fatalf("recent record must not decay, got %v", gotRecent.Confidence)
		}
	})

	t.Run("RefreshVerified resets the decay clock", func(t *testing.T) {
		now := time.Now()
		verified := newTestRecord(models.KindConvention, "s5", "always gofmt before commit")
		verified.Confidence = 1.0
		verified.CreatedAt = now.AddDate(0, 0, -30).Unix()
		stale := newTestRecord(models.KindConvention, "s5", "tabs over spaces")
		stale.Confidence = 1.0
		stale.CreatedAt = now.AddDate(0, 0, -30).Unix()
		if err := rs.Add(verified); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := rs.Add(stale); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := rs.RefreshVerified(verified.ID, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := rs.DecayConfidence(0.5, 7, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, _ := rs.GetByID(verified.ID)
		if got.Confidence != 1.0 {
			t.Fatalf("freshly verified record decayed to %v", got.Confidence)
		}
		gotStale, _ := rs.GetByID(stale.ID)
		if gotStale.Confidence != 0.5 {
			t.Fatalf("unverified old record should decay, got %v", gotStale.Confidence)
		}
	})

	t.Run("DeleteOlderThan prunes conversation but not knowledge", func(t *testing.T) {
		oldMsg := newTestRecord(models.KindUserMessage, "s6", "stale chatter")
		oldMsg.CreatedAt = time.Now().AddDate(0, 0, -90).Unix()
		oldKnow := newTestRecord(models.KindDecision, "s6", "keep this decision")
		oldKnow.CreatedAt = time.Now().AddDate(0, 0, -90).Unix()
		if err := rs.Add(oldMsg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := rs.Add(oldKnow); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ids, err := rs.DeleteOlderThan(time.Now().AddDate(0, 0, -30))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		found := false
		for _, id := range ids {
			if id == oldKnow.ID {
				t.Fatal("prune must not delete knowledge records")
			}
			if id == oldMsg.ID {
				found = true
			}
		}
		if !found {
			t.Fatal("expected old conversation record to be pruned")
		}
		if _, err := rs.GetByID(oldMsg.ID); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected deleted record to be gone, got %v", err)
		}
	})

	t.Run("WithLock returns ErrBusy when contended", func(t *testing.T) {
		contended := NewRecordStoreWithRetry(db, 2, time.Millisecond)
		release := make(chan struct{})
		held := make(chan struct{})
		go func() {
			_ = contended.WithLock(models.KindArtifact, func() error {
				close(held)
				<-release
				return nil
			})
		}()
		<-held
		err := contended.WithLock(models.KindArtifact, func() error { return nil })
		close(release)
		if !errors.Is(err, models.ErrBusy) {
			t.Fatalf("expected ErrBusy, got %v", err)
		}
	})
}

func TestKeywordStore(t *testing.T) {
	db := setupTestDB(t)
	rs := NewRecordStore(db)
	ks := NewKeywordStore(db)

	docs := []string{
		"configure the database connection pool",
		"database migrations run at startup",
		"frontend styling uses tailwind",
	}
	for _, d := range docs {
		if err := rs.Add(newTestRecord(models.KindUserMessage, "s1", d)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	t.Run("matches ranked by relevance", func(t *testing.T) {
		results, err := ks.Search("database", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 matches, got %d", len(results))
		}
	})

	t.Run("punctuation-heavy query does not error", func(t *testing.T) {
		_, err := ks.Search(`OR AND "database" (pool)`, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("empty query returns nothing", func(t *testing.T) {
		results, err := ks.Search("   ", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results != nil {
			t.Fatalf("expected nil results, got %v", results)
		}
	})

	t.Run("RebuildFTS repopulates a dropped mirror", func(t *testing.T) {
		if _, err := db.Exec("DELETE FROM records_fts"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		results, err := ks.Search("database", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 0 {
			t.Fatalf("expected empty mirror, got %d results", len(results))
		}

		n, err := rs.RebuildFTS()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != len(docs) {
			t.Fatalf("expected %d mirrored rows, got %d", len(docs), n)
		}
		results, err = ks.Search("database", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 matches after rebuild, got %d", len(results))
		}
	})
}

func TestSessionStore(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db)
	now := time.Now()

	t.Run("turns must be non-decreasing", func(t *testing.T) {
		if err := ss.RecordTurn("sess-a", 1, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := ss.RecordTurn("sess-a", 3, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// Same turn again is allowed (multiple records per turn).
		if err := ss.RecordTurn("sess-a", 3, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		err := ss.RecordTurn("sess-a", 2, now)
		if !models.IsValidation(err) {
			t.Fatalf("expected validation error for backwards turn, got %v", err)
		}
	})

	t.Run("zero turn rejected", func(t *testing.T) {
		err := ss.RecordTurn("sess-b", 0, now)
		if !models.IsValidation(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("lifecycle open to closing to closed", func(t *testing.T) {
		ok, err := ss.BeginClose("sess-a", now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatal("expected first close to win")
		}

		// Second close attempt is a no-op.
		ok, err = ss.BeginClose("sess-a", now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Fatal("second close must not run extraction again")
		}

		if err := ss.MarkClosed("sess-a"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Closed sessions reject new turns.
		err = ss.RecordTurn("sess-a", 4, now)
		if !models.IsValidation(err) {
			t.Fatalf("expected validation error on closed session, got %v", err)
		}
	})

	t.Run("reopen only from closed", func(t *testing.T) {
		if err := ss.Reopen("sess-a"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := ss.MarkClosed("sess-a"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := ss.Ensure("sess-open", now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		err := ss.Reopen("sess-open")
		if !models.IsValidation(err) {
			t.Fatalf("expected validation error reopening open session, got %v", err)
		}
	})

	t.Run("unknown session returns ErrNotFound", func(t *testing.T) {
		_, err := ss.GetByID("nope")
		if !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestCounterStore(t *testing.T) {
	db := setupTestDB(t)
	cs := NewCounterStore(db)

	v, err := cs.Get(CounterSuppressed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected fresh counter to be 0, got %d", v)
	}

	for i := 0; i < 3; i++ {
		if err := cs.Increment(CounterSuppressed); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	v, err = cs.Get(CounterSuppressed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 3 {
		t.Fatalf("expected counter value 3, got %d", v)
	}
}
