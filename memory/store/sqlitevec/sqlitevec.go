// Package sqlitevec stores memories in a single SQLite file using the
// sqlite-vec vec0 virtual table for nearest-neighbor search.
package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/becomeliminal/recall/memory"
)

func init() {
	sqlite_vec.Auto()
}

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "user_memories"

// Config configures the SQLite store.
type Config struct {
	Path string

	// Table names the document table. Vectors live in Table + "_vectors".
	Table string

	Dimensions int
}

var _ memory.Store = (*Store)(nil)

// Store implements memory.Store backed by SQLite with sqlite-vec.
type Store struct {
	db         *sql.DB
	table      string
	vecTable   string
	dimensions int
}

// Open opens (or creates) the database at cfg.Path and initialises the vec0
// virtual table and its companion document table.
func Open(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("sqlitevec: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if !validIdentifier(cfg.Table) {
		return nil, fmt.Errorf("sqlitevec: invalid table name %q", cfg.Table)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	s := &Store{
		db:         db,
		table:      cfg.Table,
		vecTable:   cfg.Table + "_vectors",
		dimensions: cfg.Dimensions,
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating memory tables: %w", err)
	}

	log.Printf("[SQLITEVEC] Opened %s (table=%s, dimensions=%d)", cfg.Path, cfg.Table, cfg.Dimensions)
	return s, nil
}

func (s *Store) migrate() error {
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(id TEXT PRIMARY KEY, embedding float[%d] distance_metric=cosine)`,
		s.vecTable, s.dimensions,
	)
	if _, err := s.db.Exec(vecDDL); err != nil {
		return fmt.Errorf("creating %s virtual table: %w", s.vecTable, err)
	}

	docDDL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	turn       INTEGER NOT NULL,
	created_at TEXT NOT NULL
)`, s.table)
	if _, err := s.db.Exec(docDDL); err != nil {
		return fmt.Errorf("creating %s table: %w", s.table, err)
	}
	return nil
}

// Store inserts a new record. Records are append-only.
func (s *Store) Store(ctx context.Context, rec *memory.Record) error {
	if len(rec.Embedding) != s.dimensions {
		return fmt.Errorf("record %s has %d dimensions, store expects %d", rec.ID, len(rec.Embedding), s.dimensions)
	}

	blob, err := sqlite_vec.SerializeFloat32(rec.Embedding)
	if err != nil {
		return fmt.Errorf("serializing embedding: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s(id, embedding) VALUES (?, ?)`, s.vecTable), rec.ID, blob); err != nil {
		return fmt.Errorf("inserting vector %s: %w", rec.ID, err)
	}

	docQ := fmt.Sprintf(`INSERT INTO %s(id, document, turn, created_at) VALUES (?, ?, ?, ?)`, s.table)
	if _, err := tx.ExecContext(ctx, docQ, rec.ID, rec.Document, rec.Turn, rec.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("inserting memory %s: %w", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing memory: %w", err)
	}
	return nil
}

// Query performs a k-nearest-neighbor search, most similar first.
func (s *Store) Query(ctx context.Context, embedding []float32, limit int) ([]*memory.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("serializing query vector: %w", err)
	}

	q := fmt.Sprintf(`SELECT v.id, v.distance, m.document, m.turn, m.created_at
FROM %s v
JOIN %s m ON m.id = v.id
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`, s.vecTable, s.table)

	rows, err := s.db.QueryContext(ctx, q, blob, limit)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*memory.Record
	for rows.Next() {
		var (
			id, document, createdAt string
			distance                float64
			turn                    int
		)
		if err := rows.Scan(&id, &distance, &document, &turn, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}

		rec := memory.RecordFromStorage(id, document, nil, map[string]string{
			memory.MetaTurn:      strconv.Itoa(turn),
			memory.MetaCreatedAt: createdAt,
		})
		rec.Similarity = float32(1 - distance)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memories: %w", err)
	}

	return records, nil
}

// Count returns the number of stored memories.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting memories: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// validIdentifier accepts lowercase snake_case names safe to interpolate
// into DDL.
func validIdentifier(name string) bool {
	if name == "" || len(name) > 48 {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
