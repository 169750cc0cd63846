package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/moolen/triage/internal/logging"
	"github.com/moolen/triage/internal/models"
)

const pgSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS knowledge_fragments (
    id          TEXT PRIMARY KEY,
    text        TEXT NOT NULL,
    source_kind TEXT NOT NULL,
    source_id   TEXT NOT NULL,
    metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
    embedding   vector NOT NULL
);`

// PgIndex is a VectorIndex backed by Postgres with the pgvector extension.
// Suited for knowledge bases too large to hold in memory.
type PgIndex struct {
	pool   *pgxpool.Pool
	logger *logging.Logger
}

// NewPgIndex connects to Postgres and ensures the fragment table exists.
func NewPgIndex(ctx context.Context, databaseURL string) (*PgIndex, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return &PgIndex{pool: pool, logger: logging.GetLogger("index.pgvector")}, nil
}

// Close releases the connection pool.
func (p *PgIndex) Close() {
	p.pool.Close()
}

func (p *PgIndex) Size(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM knowledge_fragments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting fragments: %w", err)
	}
	return n, nil
}

// Query runs a cosine-distance nearest-neighbor search. Distance is mapped
// to a [0,1] similarity score; ties break by fragment id for determinism.
func (p *PgIndex) Query(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, (embedding <=> $1) AS distance
FROM knowledge_fragments
ORDER BY embedding <=> $1, id
LIMIT $2`, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		// Cosine distance is in [0,2]; clamp the similarity at 0.
		score := 1 - distance
		if score < 0 {
			score = 0
		}
		hits = append(hits, Hit{FragmentID: id, Score: score})
	}
	return hits, rows.Err()
}

func (p *PgIndex) GetFragment(ctx context.Context, id string) (*models.KnowledgeFragment, error) {
	var f models.KnowledgeFragment
	var metadata []byte
	var embedding pgvector.Vector
	err := p.pool.QueryRow(ctx, `
SELECT id, text, source_kind, source_id, metadata, embedding
FROM knowledge_fragments WHERE id = $1`, id).
		Scan(&f.ID, &f.Text, &f.SourceKind, &f.SourceID, &metadata, &embedding)
	if err != nil {
		return nil, fmt.Errorf("loading fragment %s: %w", id, err)
	}
	if err := json.Unmarshal(metadata, &f.Metadata); err != nil {
		return nil, fmt.Errorf("decoding fragment %s metadata: %w", id, err)
	}
	f.Embedding = embedding.Slice()
	return &f, nil
}

// ReplaceAll swaps the whole fragment set inside one transaction so a
// concurrent query sees either the old set or the new one, never a mix.
func (p *PgIndex) ReplaceAll(ctx context.Context, fragments []*models.KnowledgeFragment) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM knowledge_fragments`); err != nil {
		return fmt.Errorf("clearing fragments: %w", err)
	}

	batch := &pgx.Batch{}
	for _, f := range fragments {
		metadata, err := json.Marshal(f.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", f.ID, err)
		}
		batch.Queue(`
INSERT INTO knowledge_fragments (id, text, source_kind, source_id, metadata, embedding)
VALUES ($1,$2,$3,$4,$5,$6)`,
			f.ID, f.Text, string(f.SourceKind), f.SourceID, metadata, pgvector.NewVector(f.Embedding))
	}
	br := tx.SendBatch(ctx, batch)
	for range fragments {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("inserting fragment: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing fragment swap: %w", err)
	}
	p.logger.InfoWithFields("fragment set replaced", logging.Field("fragments", len(fragments)))
	return nil
}
