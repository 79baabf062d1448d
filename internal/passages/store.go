// Package passages stores and retrieves the reference corpus: interpretive
// passages keyed by card pattern (e.g. "the-tower:reversed"), with optional
// precomputed embeddings. Backed by sqlite so a reading session works from a
// single local file.
package passages

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"tarotvision/internal/embedding"
	"tarotvision/internal/logging"
	"tarotvision/internal/rank"
)

// Entry is one corpus record as stored.
type Entry struct {
	PatternKey string
	Source     string
	Tier       int
	Text       string
	Embedding  []float32
}

// Store is a sqlite-backed passage corpus.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the corpus database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open passage store: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Opened passage store at %s", path)
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS passages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pattern_key TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		tier INTEGER NOT NULL DEFAULT 2,
		text TEXT NOT NULL,
		embedding BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_passages_pattern ON passages(pattern_key);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize passage schema: %w", err)
	}
	return nil
}

// Put inserts one corpus entry.
func (s *Store) Put(ctx context.Context, e Entry) error {
	if e.PatternKey == "" {
		return fmt.Errorf("pattern key required")
	}
	if strings.TrimSpace(e.Text) == "" {
		return fmt.Errorf("passage text required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO passages (pattern_key, source, tier, text, embedding) VALUES (?, ?, ?, ?, ?)`,
		e.PatternKey, e.Source, e.Tier, e.Text, embedding.EncodeVector(e.Embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to store passage: %w", err)
	}
	return nil
}

// PutAll inserts a batch of entries in one transaction.
func (s *Store) PutAll(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO passages (pattern_key, source, tier, text, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.PatternKey == "" || strings.TrimSpace(e.Text) == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			e.PatternKey, e.Source, e.Tier, e.Text, embedding.EncodeVector(e.Embedding)); err != nil {
			return fmt.Errorf("failed to insert passage for %s: %w", e.PatternKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit corpus batch: %w", err)
	}

	logging.Store("Stored %d corpus entries", len(entries))
	return nil
}

// Count returns the number of stored passages.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}
	return n, nil
}

// PassagesFor retrieves passages matching any of the pattern keys and scores
// each against the querent's question by keyword overlap. Semantic scores are
// left unset here; the composer attaches them when an embedding engine is
// available.
func (s *Store) PassagesFor(ctx context.Context, keys []string, query string) ([]rank.Passage, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	timer := logging.StartTimer(logging.CategoryStore, "PassagesFor")
	defer timer.Stop()

	placeholders := strings.Repeat("?,", len(keys))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT pattern_key, source, tier, text FROM passages WHERE pattern_key IN (%s) ORDER BY tier, id`, placeholders),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer rows.Close()

	var pool []rank.Passage
	for rows.Next() {
		var patternKey, source, text string
		var tier int
		if err := rows.Scan(&patternKey, &source, &tier, &text); err != nil {
			return nil, fmt.Errorf("failed to scan passage row: %w", err)
		}

		p := rank.Passage{
			Text:         text,
			SourceLabel:  source,
			PriorityTier: tier,
		}
		if query != "" {
			score := rank.KeywordOverlap(query, text)
			p.KeywordScore = &score
		}
		pool = append(pool, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("passage row iteration failed: %w", err)
	}

	logging.StoreDebug("Retrieved %d passages for %d pattern keys", len(pool), len(keys))
	return pool, nil
}

// EmbeddingFor returns the stored embedding for the first passage matching
// the pattern key, or nil when none is stored.
func (s *Store) EmbeddingFor(ctx context.Context, patternKey string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding FROM passages WHERE pattern_key = ? AND embedding IS NOT NULL ORDER BY tier, id LIMIT 1`,
		patternKey,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding: %w", err)
	}
	return embedding.DecodeVector(blob), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
