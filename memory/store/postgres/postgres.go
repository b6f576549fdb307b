// Package postgres stores memories in PostgreSQL with the pgvector extension.
package postgres

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/becomeliminal/recall/memory"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "user_memories"

// Config configures the Postgres store.
type Config struct {
	DatabaseURL string
	Table       string
	Dimensions  int
}

var _ memory.Store = (*Store)(nil)

// Store persists memories in PostgreSQL.
type Store struct {
	pool       *pgxpool.Pool
	table      string
	dimensions int
}

// New connects and creates the schema if needed.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("postgres: database url is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("postgres: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if !validIdentifier(cfg.Table) {
		return nil, fmt.Errorf("postgres: invalid table name %q", cfg.Table)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &Store{pool: pool, table: cfg.Table, dimensions: cfg.Dimensions}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Printf("[POSTGRES] Using table %s (dimensions=%d)", cfg.Table, cfg.Dimensions)
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			turn INTEGER NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`, s.table, s.dimensions),
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Store inserts a new record.
func (s *Store) Store(ctx context.Context, rec *memory.Record) error {
	if len(rec.Embedding) != s.dimensions {
		return fmt.Errorf("record %s has %d dimensions, store expects %d", rec.ID, len(rec.Embedding), s.dimensions)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, document, turn, embedding, created_at)
		 VALUES ($1, $2, $3, $4::vector, $5)`, s.table),
		rec.ID,
		rec.Document,
		rec.Turn,
		vectorLiteral(rec.Embedding),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

// Query returns the nearest records by cosine distance.
func (s *Store) Query(ctx context.Context, embedding []float32, limit int) ([]*memory.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, document, turn, created_at, embedding <=> $1::vector AS distance
		 FROM %s ORDER BY distance LIMIT $2`, s.table),
		vectorLiteral(embedding),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	records := make([]*memory.Record, 0, limit)
	for rows.Next() {
		var (
			rec      memory.Record
			distance float64
		)
		if err := rows.Scan(&rec.ID, &rec.Document, &rec.Turn, &rec.CreatedAt, &distance); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		rec.Similarity = float32(1 - distance)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return records, nil
}

// Count returns the number of stored memories.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral renders v in pgvector's text input format, e.g. [1,0.5,-2].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func validIdentifier(name string) bool {
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return name != ""
}
