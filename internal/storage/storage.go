package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/bdougie/relife/internal/models"
)

// Store persists timeline entries. Implementations are fail-soft: backend
// failures are logged and turned into benign results instead of errors, so
// the capture loop and request handlers never crash on a busy database.
type Store interface {
	// Insert adds an entry. A timestamp collision is a no-op and returns ok=false.
	Insert(ctx context.Context, p InsertParams) (id int64, ok bool)
	// GetAll returns entries newest first.
	GetAll(ctx context.Context, opts ListOptions) []models.Entry
	GetByTimestamp(ctx context.Context, ts int64) (models.Entry, bool)
	// GetTimestamps returns every timestamp newest first.
	GetTimestamps(ctx context.Context) []int64
	// UpdateAIOCR overwrites the enhancement fields; false if no row matched.
	UpdateAIOCR(ctx context.Context, ts int64, aiText string, aiWords []models.WordBox) bool
	// DeleteMany returns the number of rows removed.
	DeleteMany(ctx context.Context, timestamps []int64) int
	// TimestampsBefore returns timestamps strictly older than cutoff.
	TimestampsBefore(ctx context.Context, cutoff int64) []int64
	Count(ctx context.Context) int
	Close() error
}

// InsertParams are the columns written by the capture loop.
type InsertParams struct {
	App         string
	Title       string
	Text        string
	Timestamp   int64
	Embedding   []float32
	WordsCoords []models.WordBox
}

// ListOptions filters GetAll. A nil MinTimestamp means no lower bound and
// Limit <= 0 means unlimited.
type ListOptions struct {
	MinTimestamp *int64
	Limit        int
}

// deleteChunk keeps IN lists well under SQLite's variable limit.
const deleteChunk = 500

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func encodeWords(words []models.WordBox) string {
	if len(words) == 0 {
		return "[]"
	}
	b, err := json.Marshal(words)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// decodeWords degrades a corrupt column to an empty sequence.
func decodeWords(s string) []models.WordBox {
	words := []models.WordBox{}
	if s == "" {
		return words
	}
	if err := json.Unmarshal([]byte(s), &words); err != nil || words == nil {
		return []models.WordBox{}
	}
	return words
}

var (
	_ Store      = (*SQLiteStore)(nil)
	_ Store      = (*PostgresStorage)(nil)
	_ FrameStore = (*FileFrameStore)(nil)
	_ FrameStore = (*MinioFrameStore)(nil)
)
