// Package pgvector stores chunk embeddings in Postgres using the pgvector
// extension. All documents share one table; rows are scoped by store key.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"pdfchat/internal/domain"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS pdfchat_chunks (
	store_key   TEXT NOT NULL,
	document_id TEXT NOT NULL,
	chunk_id    TEXT NOT NULL,
	idx         INTEGER NOT NULL,
	page        INTEGER NOT NULL,
	text        TEXT NOT NULL,
	embedding   vector NOT NULL,
	PRIMARY KEY (store_key, chunk_id)
);
`

// DB owns the connection pool shared by every document store.
type DB struct {
	pool       *pgxpool.Pool
	schemaOnce sync.Once
	schemaErr  error
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	config.MaxConns = 10
	config.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

func (db *DB) Close() { db.pool.Close() }

// Factory returns a vectorstore.Factory producing stores backed by db.
func (db *DB) Factory() func(context.Context, string) (domain.VectorStore, error) {
	return func(_ context.Context, key string) (domain.VectorStore, error) {
		return &Storage{db: db, key: key}, nil
	}
}

func (db *DB) ensureSchema(ctx context.Context) error {
	db.schemaOnce.Do(func() {
		if _, err := db.pool.Exec(ctx, schema); err != nil {
			db.schemaErr = fmt.Errorf("failed to create schema: %w", err)
		}
	})
	return db.schemaErr
}

// Storage is the view of the table for one store key.
type Storage struct {
	db        *DB
	key       string
	dimension int
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	return s.db.ensureSchema(ctx)
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	batch := &pgx.Batch{}
	for i, c := range chunks {
		if len(vectors[i]) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
		batch.Queue(`
			INSERT INTO pdfchat_chunks (store_key, document_id, chunk_id, idx, page, text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (store_key, chunk_id) DO UPDATE
			SET idx = EXCLUDED.idx, page = EXCLUDED.page, text = EXCLUDED.text, embedding = EXCLUDED.embedding`,
			s.key, c.DocumentID, c.ChunkID, c.Index, c.Page, c.Text, pgv.NewVector(toFloat32(vectors[i])))
	}
	if err := s.db.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return nil
}

// Search orders rows by cosine distance; the score is the cosine similarity.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	rows, err := s.db.pool.Query(ctx, `
		SELECT document_id, chunk_id, idx, page, text, 1 - (embedding <=> $2) AS similarity
		FROM pdfchat_chunks
		WHERE store_key = $1
		ORDER BY embedding <=> $2
		LIMIT $3`,
		s.key, pgv.NewVector(toFloat32(vector)), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var r domain.SearchResult
		if err := rows.Scan(&r.Chunk.DocumentID, &r.Chunk.ChunkID, &r.Chunk.Index, &r.Chunk.Page, &r.Chunk.Text, &r.Score); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.pool.Exec(ctx, `DELETE FROM pdfchat_chunks WHERE store_key = $1`, s.key); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
