// Package memory provides a SQLite-backed similarity cache over embedded
// transaction descriptions, so categorizations can be reused across audits.
package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/Rozthegray/ledger-guard/internal/llm"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register sqlite driver
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS category_memories (
    memory_id    TEXT PRIMARY KEY,
    description  TEXT NOT NULL,
    category     TEXT NOT NULL,
    embedding    BLOB NOT NULL,
    created_at   TEXT NOT NULL
);
`

// Match is the closest previously-categorized description for a query.
type Match struct {
	Description string
	Category    string
	Score       float64 // cosine similarity in [-1,1]
}

// Store is the SQLite + embedder implementation of the similarity cache.
// Lookups embed the query and scan stored vectors with cosine similarity;
// the cache is small enough (thousands of rows) that a linear scan is fine.
type Store struct {
	db    *sql.DB
	embed llm.Embedder
}

// Open opens or creates the cache database at the given path.
func Open(path string, embed llm.Embedder) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)")
	if err != nil {
		return nil, fmt.Errorf("memory.Open: opening db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory.Open: creating schema: %w", err)
	}

	return &Store{db: db, embed: embed}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the closest stored description to the query, or nil when
// the cache is empty.
func (s *Store) Lookup(ctx context.Context, description string) (*Match, error) {
	queryVec, err := s.embed.Embed(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("memory.Lookup: embedding query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT description, category, embedding FROM category_memories")
	if err != nil {
		return nil, fmt.Errorf("memory.Lookup: querying memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var best *Match
	for rows.Next() {
		var desc, category string
		var blob []byte
		if err := rows.Scan(&desc, &category, &blob); err != nil {
			return nil, fmt.Errorf("memory.Lookup: scanning row: %w", err)
		}

		vec, err := decodeVector(blob)
		if err != nil {
			// A corrupt row should not poison every lookup.
			continue
		}

		score := cosineSimilarity(queryVec, vec)
		if best == nil || score > best.Score {
			best = &Match{Description: desc, Category: category, Score: score}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory.Lookup: iterating rows: %w", err)
	}

	return best, nil
}

// Remember stores a (description, category) pair for future recall.
func (s *Store) Remember(ctx context.Context, description, category string) error {
	vec, err := s.embed.Embed(ctx, description)
	if err != nil {
		return fmt.Errorf("memory.Remember: embedding description: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO category_memories (memory_id, description, category, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), description, category, encodeVector(vec),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("memory.Remember: inserting memory: %w", err)
	}
	return nil
}

// encodeVector packs a float32 vector as little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("decodeVector: blob length %d not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

// cosineSimilarity returns 0 for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
