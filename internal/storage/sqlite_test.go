package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/relife/internal/models"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "relife.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func params(ts int64, text string) InsertParams {
	return InsertParams{
		App:       "Terminal",
		Title:     "zsh",
		Text:      text,
		Timestamp: ts,
		Embedding: []float32{0.25, -1, 3.5},
		WordsCoords: []models.WordBox{
			{Text: "hello", X1: 0.1, Y1: 0.2, X2: 0.3, Y2: 0.4},
		},
	}
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id, ok := store.Insert(ctx, params(1000, "hello\nworld"))
	require.True(t, ok)
	assert.Positive(t, id)

	e, found := store.GetByTimestamp(ctx, 1000)
	require.True(t, found)
	assert.Equal(t, id, e.ID)
	assert.Equal(t, "Terminal", e.App)
	assert.Equal(t, "zsh", e.Title)
	assert.Equal(t, "hello\nworld", e.Text)
	assert.Equal(t, []float32{0.25, -1, 3.5}, e.Embedding)
	assert.Equal(t, []models.WordBox{{Text: "hello", X1: 0.1, Y1: 0.2, X2: 0.3, Y2: 0.4}}, e.WordsCoords)
	assert.Nil(t, e.AIText)
	assert.Nil(t, e.AIWordsCoords)
}

func TestInsertCollisionIsNoOp(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, ok := store.Insert(ctx, params(1000, "first"))
	require.True(t, ok)

	_, ok = store.Insert(ctx, params(1000, "second"))
	assert.False(t, ok)

	assert.Equal(t, 1, store.Count(ctx))
	e, _ := store.GetByTimestamp(ctx, 1000)
	assert.Equal(t, "first", e.Text)
}

func TestInsertEmptyTextWithZeroVector(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, ok := store.Insert(ctx, InsertParams{
		App:       "Unknown App",
		Title:     "Unknown Title",
		Timestamp: 42,
		Embedding: make([]float32, 8),
	})
	require.True(t, ok)

	e, found := store.GetByTimestamp(ctx, 42)
	require.True(t, found)
	assert.Empty(t, e.Text)
	assert.Equal(t, make([]float32, 8), e.Embedding)
	assert.Equal(t, []models.WordBox{}, e.WordsCoords)
}

func TestGetAllOrderingAndFilters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, ts := range []int64{900, 1000, 1100, 1200} {
		_, ok := store.Insert(ctx, params(ts, "x"))
		require.True(t, ok)
	}

	timestampsOf := func(entries []models.Entry) []int64 {
		out := make([]int64, len(entries))
		for i, e := range entries {
			out[i] = e.Timestamp
		}
		return out
	}

	since := int64(1000)
	tests := []struct {
		name string
		opts ListOptions
		want []int64
	}{
		{"all", ListOptions{}, []int64{1200, 1100, 1000, 900}},
		{"strictly newer", ListOptions{MinTimestamp: &since}, []int64{1200, 1100}},
		{"limit", ListOptions{Limit: 2}, []int64{1200, 1100}},
		{"limit and since", ListOptions{MinTimestamp: &since, Limit: 1}, []int64{1200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, timestampsOf(store.GetAll(ctx, tt.opts)))
		})
	}

	assert.Equal(t, []int64{1200, 1100, 1000, 900}, store.GetTimestamps(ctx))
	assert.Equal(t, []int64{1000, 900}, store.TimestampsBefore(ctx, 1100))
}

func TestUpdateAIOCR(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	assert.False(t, store.UpdateAIOCR(ctx, 999, "nothing", nil))

	_, ok := store.Insert(ctx, params(1000, "helo wrld"))
	require.True(t, ok)

	words := []models.WordBox{{Text: "hello", X1: 0, Y1: 0, X2: 0.5, Y2: 0.1}}
	require.True(t, store.UpdateAIOCR(ctx, 1000, "hello", words))
	require.True(t, store.UpdateAIOCR(ctx, 1000, "hello world", nil))

	e, _ := store.GetByTimestamp(ctx, 1000)
	require.NotNil(t, e.AIText)
	assert.Equal(t, "hello world", *e.AIText)
	assert.Equal(t, []models.WordBox{}, e.AIWordsCoords)
	assert.Equal(t, "helo wrld", e.Text, "basic OCR text is untouched")
}

func TestDeleteMany(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, ok := store.Insert(ctx, params(1, "a"))
	require.True(t, ok)
	_, ok = store.Insert(ctx, params(2, "b"))
	require.True(t, ok)

	assert.Equal(t, 1, store.DeleteMany(ctx, []int64{1}))
	assert.Equal(t, 0, store.DeleteMany(ctx, []int64{1}))
	assert.Equal(t, 0, store.DeleteMany(ctx, nil))
	assert.Equal(t, []int64{2}, store.GetTimestamps(ctx))
}

func TestDeleteManyChunks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var all []int64
	for ts := int64(1); ts <= deleteChunk+10; ts++ {
		_, ok := store.Insert(ctx, params(ts, ""))
		require.True(t, ok)
		all = append(all, ts)
	}

	assert.Equal(t, len(all), store.DeleteMany(ctx, all))
	assert.Zero(t, store.Count(ctx))
}

func TestCorruptCoordinatesDegradeToEmpty(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, ok := store.Insert(ctx, params(1000, "x"))
	require.True(t, ok)

	_, err := store.DB().Exec("UPDATE entries SET words_coords = 'not json', ai_words_coords = '{' WHERE timestamp = 1000")
	require.NoError(t, err)

	e, found := store.GetByTimestamp(ctx, 1000)
	require.True(t, found)
	assert.Equal(t, []models.WordBox{}, e.WordsCoords)
	assert.Equal(t, []models.WordBox{}, e.AIWordsCoords)
}

func TestMigratesLegacySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	_, err = legacy.DB().Exec(`DROP TABLE entries;
		CREATE TABLE entries (id INTEGER PRIMARY KEY AUTOINCREMENT, app TEXT, title TEXT, text TEXT, timestamp INTEGER UNIQUE, embedding BLOB);
		INSERT INTO entries (app, title, text, timestamp, embedding) VALUES ('a', 'b', 'old', 5, x'');`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	store, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	defer store.Close()

	for _, col := range []string{"words_coords", "ai_text", "ai_words_coords"} {
		assert.True(t, store.columnExists("entries", col), col)
	}

	e, found := store.GetByTimestamp(context.Background(), 5)
	require.True(t, found)
	assert.Equal(t, "old", e.Text)
	assert.Equal(t, []models.WordBox{}, e.WordsCoords)
	assert.Empty(t, e.Embedding)
}

func TestEntriesWithoutEmbeddingDoNotHideOthers(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, ts := range []int64{100, 200, 300} {
		_, ok := store.Insert(ctx, params(ts, "text"))
		require.True(t, ok)
	}
	bare := params(250, "no vector")
	bare.Embedding = nil
	_, ok := store.Insert(ctx, bare)
	require.True(t, ok)
	_, err := store.DB().Exec(`INSERT INTO entries (app, title, text, timestamp, embedding) VALUES ('a', 'b', 'legacy', 150, x'')`)
	require.NoError(t, err)

	var isNull bool
	require.NoError(t, store.DB().QueryRow("SELECT embedding IS NULL FROM entries WHERE timestamp = 250").Scan(&isNull))
	assert.True(t, isNull)

	entries := store.GetAll(ctx, ListOptions{})
	got := make([]int64, len(entries))
	for i, e := range entries {
		got[i] = e.Timestamp
	}
	assert.Equal(t, []int64{300, 250, 200, 150, 100}, got)
	assert.Equal(t, 5, store.Count(ctx))

	for _, ts := range []int64{150, 250} {
		e, found := store.GetByTimestamp(ctx, ts)
		require.True(t, found, ts)
		assert.Empty(t, e.Embedding)
	}
	e, found := store.GetByTimestamp(ctx, 200)
	require.True(t, found)
	assert.Equal(t, []float32{0.25, -1, 3.5}, e.Embedding)

	assert.Equal(t, []int64{300, 250, 200, 150, 100}, store.GetTimestamps(ctx))
}

func TestVecExtensionLoaded(t *testing.T) {
	store := setupTestStore(t)

	v, err := store.VecVersion(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, v)
}

func TestEmbeddingEncoding(t *testing.T) {
	in := []float32{0, 1, -2.5, 3.25e-8}
	out := decodeEmbedding(encodeEmbedding(in))
	assert.Equal(t, in, out)
	assert.Len(t, encodeEmbedding(in), 16)
}
