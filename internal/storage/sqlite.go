package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/bdougie/relife/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	app TEXT,
	title TEXT,
	text TEXT,
	timestamp INTEGER UNIQUE,
	embedding BLOB,
	words_coords TEXT DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_timestamp ON entries (timestamp);
`

// Zero-length embedding blobs from older databases read back as NULL.
const entryColumns = `id, app, title, text, timestamp, NULLIF(embedding, x''), words_coords, ai_text, ai_words_coords`

// SQLiteStore is the default entry store, one file per data directory.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path. Writers wait
// up to five seconds on a locked database before the statement fails.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return err
	}

	// databases created before coordinates and enhancement existed
	migrations := []struct{ column, ddl string }{
		{"words_coords", "ALTER TABLE entries ADD COLUMN words_coords TEXT DEFAULT '[]'"},
		{"ai_text", "ALTER TABLE entries ADD COLUMN ai_text TEXT"},
		{"ai_words_coords", "ALTER TABLE entries ADD COLUMN ai_words_coords TEXT"},
	}
	for _, m := range migrations {
		if s.columnExists("entries", m.column) {
			continue
		}
		if _, err := s.db.Exec(m.ddl); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) columnExists(table, column string) bool {
	rows, err := s.db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// DB exposes the handle for diagnostics.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// VecVersion reports the loaded sqlite-vec extension version.
func (s *SQLiteStore) VecVersion(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&v)
	return v, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Insert(ctx context.Context, p InsertParams) (int64, bool) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (app, title, text, timestamp, embedding, words_coords)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(timestamp) DO NOTHING`,
		p.App, p.Title, p.Text, p.Timestamp, embeddingValue(p.Embedding), encodeWords(p.WordsCoords))
	if err != nil {
		s.logger.Error("insert entry failed", "timestamp", p.Timestamp, "error", err)
		return 0, false
	}

	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return 0, false
	}
	id, err := res.LastInsertId()
	if err != nil {
		s.logger.Error("read inserted id failed", "timestamp", p.Timestamp, "error", err)
		return 0, true
	}
	return id, true
}

func (s *SQLiteStore) GetAll(ctx context.Context, opts ListOptions) []models.Entry {
	query := "SELECT " + entryColumns + " FROM entries"
	var args []any
	if opts.MinTimestamp != nil {
		query += " WHERE timestamp > ?"
		args = append(args, *opts.MinTimestamp)
	}
	query += " ORDER BY timestamp DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("list entries failed", "error", err)
		return []models.Entry{}
	}
	defer rows.Close()

	entries := []models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
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

func (s *SQLiteStore) GetByTimestamp(ctx context.Context, ts int64) (models.Entry, bool) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM entries WHERE timestamp = ?", ts)
	e, err := scanEntry(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("get entry failed", "timestamp", ts, "error", err)
		}
		return models.Entry{}, false
	}
	return e, true
}

func (s *SQLiteStore) GetTimestamps(ctx context.Context) []int64 {
	return s.timestamps(ctx, "SELECT timestamp FROM entries ORDER BY timestamp DESC")
}

func (s *SQLiteStore) TimestampsBefore(ctx context.Context, cutoff int64) []int64 {
	return s.timestamps(ctx, "SELECT timestamp FROM entries WHERE timestamp < ? ORDER BY timestamp DESC", cutoff)
}

func (s *SQLiteStore) timestamps(ctx context.Context, query string, args ...any) []int64 {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("list timestamps failed", "error", err)
		return []int64{}
	}
	defer rows.Close()

	out := []int64{}
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			s.logger.Error("scan timestamp failed", "error", err)
			continue
		}
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("iterate timestamps failed", "error", err)
	}
	return out
}

func (s *SQLiteStore) UpdateAIOCR(ctx context.Context, ts int64, aiText string, aiWords []models.WordBox) bool {
	res, err := s.db.ExecContext(ctx,
		"UPDATE entries SET ai_text = ?, ai_words_coords = ? WHERE timestamp = ?",
		aiText, encodeWords(aiWords), ts)
	if err != nil {
		s.logger.Error("update ai ocr failed", "timestamp", ts, "error", err)
		return false
	}
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

func (s *SQLiteStore) DeleteMany(ctx context.Context, timestamps []int64) int {
	deleted := 0
	for start := 0; start < len(timestamps); start += deleteChunk {
		chunk := timestamps[start:min(start+deleteChunk, len(timestamps))]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, ts := range chunk {
			args[i] = ts
		}

		res, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE timestamp IN ("+placeholders+")", args...)
		if err != nil {
			s.logger.Error("delete entries failed", "count", len(chunk), "error", err)
			continue
		}
		if n, err := res.RowsAffected(); err == nil {
			deleted += int(n)
		}
	}
	return deleted
}

func (s *SQLiteStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		s.logger.Error("count entries failed", "error", err)
		return 0
	}
	return n
}

// embeddingValue stores an empty vector as NULL rather than a zero-length blob.
func embeddingValue(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return encodeEmbedding(v)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (models.Entry, error) {
	var (
		e                models.Entry
		app, title, text sql.NullString
		embedding        sql.Null[[]byte]
		words            sql.NullString
		aiText, aiWords  sql.NullString
	)
	if err := r.Scan(&e.ID, &app, &title, &text, &e.Timestamp, &embedding, &words, &aiText, &aiWords); err != nil {
		return models.Entry{}, err
	}
	e.App = app.String
	e.Title = title.String
	e.Text = text.String
	e.Embedding = decodeEmbedding(embedding.V)
	e.WordsCoords = decodeWords(words.String)
	if aiText.Valid {
		v := aiText.String
		e.AIText = &v
	}
	if aiWords.Valid {
		e.AIWordsCoords = decodeWords(aiWords.String)
	}
	return e, nil
}
