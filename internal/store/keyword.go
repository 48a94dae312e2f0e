package store

import (
	"strings"

	"github.com/memkeep/memkeep/internal/models"
)

// KeywordResult holds an FTS5 match.
type KeywordResult struct {
	ID   string
	Rank float64
}

// KeywordStore runs BM25 full-text search over the records_fts mirror. This
// is the degraded-search path when the vector index is unavailable, and a
// ranking signal the hybrid path can blend in.
type KeywordStore struct {
	db *DB
}

func NewKeywordStore(db *DB) *KeywordStore {
	return &KeywordStore{db: db}
}

// Search returns record IDs ranked by BM25 score (higher = better match).
// bm25() returns negative values where more negative = better, so the rank
// is negated before returning.
func (s *KeywordStore) Search(query string, limit int) ([]KeywordResult, error) {
	ftsQuery := quoteTerms(query)
	if ftsQuery == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT record_id, -rank AS score
		FROM records_fts
		WHERE records_fts MATCH ?
		ORDER BY rank
		LIMIT ?`,
		ftsQuery, limit,
	)
	if err != nil {
		return nil, models.StoreIO("keyword search", err)
	}
	defer rows.Close()

	var results []KeywordResult
	for rows.Next() {
		var r KeywordResult
		if err := rows.Scan(&r.ID, &r.Rank); err != nil {
			return nil, models.StoreIO("scan keyword result", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// quoteTerms wraps each whitespace token in double quotes so punctuation in
// user queries is not parsed as FTS5 operator syntax.
func quoteTerms(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " OR ")
}
