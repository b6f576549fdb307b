package memory

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Metadata keys written alongside every record.
const (
	MetaTurn      = "turn"
	MetaCreatedAt = "created_at"
)

// Record is one stored memory: the original text of a user turn plus its
// embedding. Records are created by Pipeline.Ingest and never mutated.
type Record struct {
	ID        string
	Document  string
	Turn      int
	CreatedAt time.Time
	Embedding []float32

	// Similarity is filled in on query results only (higher is closer).
	Similarity float32
}

// NewRecord creates a record with a fresh random id.
func NewRecord(document string, turn int) *Record {
	return &Record{
		ID:        uuid.NewString(),
		Document:  document,
		Turn:      turn,
		CreatedAt: time.Now().UTC(),
	}
}

// Metadata returns the string metadata persisted with the record.
func (r *Record) Metadata() map[string]string {
	return map[string]string{
		MetaTurn:      strconv.Itoa(r.Turn),
		MetaCreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

// RecordFromStorage rebuilds a record from what a Store persisted.
// Unparseable metadata values fall back to zero values.
func RecordFromStorage(id, document string, embedding []float32, metadata map[string]string) *Record {
	turn, _ := strconv.Atoi(metadata[MetaTurn])
	createdAt, _ := time.Parse(time.RFC3339, metadata[MetaCreatedAt])
	return &Record{
		ID:        id,
		Document:  document,
		Turn:      turn,
		CreatedAt: createdAt,
		Embedding: embedding,
	}
}
