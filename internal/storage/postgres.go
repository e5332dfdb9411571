package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bdougie/relife/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStorage keeps entries in PostgreSQL with the pgvector extension.
type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStorage connects, verifies the connection and ensures the schema.
func NewPostgresStorage(ctx context.Context, connString string, logger *slog.Logger) (*PostgresStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := InitSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{pool: pool, logger: logger}, nil
}

// InitSchema creates the vector extension, entries table and index.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	var exists bool
	err := pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for vector extension: %w", err)
	}

	if !exists {
		if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
	}

	_, err = pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS entries (
            id BIGSERIAL PRIMARY KEY,
            app TEXT,
            title TEXT,
            text TEXT,
            timestamp BIGINT UNIQUE NOT NULL,
            embedding vector,
            words_coords TEXT DEFAULT '[]',
            ai_text TEXT,
            ai_words_coords TEXT
        );
        CREATE INDEX IF NOT EXISTS idx_timestamp ON entries(timestamp);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	return nil
}

func (s *PostgresStorage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStorage) Insert(ctx context.Context, p InsertParams) (int64, bool) {
	// vector columns reject zero dimensions
	var vec *pgvector.Vector
	if len(p.Embedding) > 0 {
		v := pgvector.NewVector(p.Embedding)
		vec = &v
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO entries (app, title, text, timestamp, embedding, words_coords)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (timestamp) DO NOTHING
        RETURNING id`,
		p.App, p.Title, p.Text, p.Timestamp, vec, encodeWords(p.WordsCoords)).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false
	}
	if err != nil {
		s.logger.Error("insert entry failed", "timestamp", p.Timestamp, "error", err)
		return 0, false
	}
	return id, true
}

func (s *PostgresStorage) GetAll(ctx context.Context, opts ListOptions) []models.Entry {
	query := "SELECT " + entryColumns + " FROM entries"
	var args []any
	if opts.MinTimestamp != nil {
		args = append(args, *opts.MinTimestamp)
		query += fmt.Sprintf(" WHERE timestamp > $%d", len(args))
	}
	query += " ORDER BY timestamp DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		s.logger.Error("list entries failed", "error", err)
		return []models.Entry{}
	}
	defer rows.Close()

	entries := []models.Entry{}
	for rows.Next() {
		e, err := scanPgEntry(rows)
		if err != nil {
			s.logger.Error("scan entry failed", "error", err)
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("iterate entries failed", "error", err)
	}
	return entries
}

func (s *PostgresStorage) GetByTimestamp(ctx context.Context, ts int64) (models.Entry, bool) {
	row := s.pool.QueryRow(ctx, "SELECT "+entryColumns+" FROM entries WHERE timestamp = $1", ts)
	e, err := scanPgEntry(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Error("get entry failed", "timestamp", ts, "error", err)
		}
		return models.Entry{}, false
	}
	return e, true
}

func (s *PostgresStorage) GetTimestamps(ctx context.Context) []int64 {
	return s.timestamps(ctx, "SELECT timestamp FROM entries ORDER BY timestamp DESC")
}

func (s *PostgresStorage) TimestampsBefore(ctx context.Context, cutoff int64) []int64 {
	return s.timestamps(ctx, "SELECT timestamp FROM entries WHERE timestamp < $1 ORDER BY timestamp DESC", cutoff)
}

func (s *PostgresStorage) timestamps(ctx context.Context, query string, args ...any) []int64 {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		s.logger.Error("list timestamps failed", "error", err)
		return []int64{}
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		s.logger.Error("collect timestamps failed", "error", err)
		return []int64{}
	}
	return out
}

func (s *PostgresStorage) UpdateAIOCR(ctx context.Context, ts int64, aiText string, aiWords []models.WordBox) bool {
	tag, err := s.pool.Exec(ctx,
		"UPDATE entries SET ai_text = $1, ai_words_coords = $2 WHERE timestamp = $3",
		aiText, encodeWords(aiWords), ts)
	if err != nil {
		s.logger.Error("update ai ocr failed", "timestamp", ts, "error", err)
		return false
	}
	return tag.RowsAffected() > 0
}

func (s *PostgresStorage) DeleteMany(ctx context.Context, timestamps []int64) int {
	if len(timestamps) == 0 {
		return 0
	}
	tag, err := s.pool.Exec(ctx, "DELETE FROM entries WHERE timestamp = ANY($1)", timestamps)
	if err != nil {
		s.logger.Error("delete entries failed", "count", len(timestamps), "error", err)
		return 0
	}
	return int(tag.RowsAffected())
}

func (s *PostgresStorage) Count(ctx context.Context) int {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		s.logger.Error("count entries failed", "error", err)
		return 0
	}
	return n
}

func scanPgEntry(r pgx.Row) (models.Entry, error) {
	var (
		e                models.Entry
		app, title, text *string
		embedding        *pgvector.Vector
		words            *string
		aiText, aiWords  *string
	)
	if err := r.Scan(&e.ID, &app, &title, &text, &e.Timestamp, &embedding, &words, &aiText, &aiWords); err != nil {
		return models.Entry{}, err
	}
	e.App = deref(app)
	e.Title = deref(title)
	e.Text = deref(text)
	if embedding != nil {
		e.Embedding = embedding.Slice()
	} else {
		e.Embedding = []float32{}
	}
	e.WordsCoords = decodeWords(deref(words))
	e.AIText = aiText
	if aiWords != nil {
		e.AIWordsCoords = decodeWords(*aiWords)
	}
	return e, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
