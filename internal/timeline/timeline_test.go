package timeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/relife/internal/apperrors"
	"github.com/bdougie/relife/internal/models"
	"github.com/bdougie/relife/internal/storage"
)

type fixedRetention int

func (f fixedRetention) RetentionDays() int { return int(f) }

func setup(t *testing.T, timestamps ...int64) (*Service, *storage.SQLiteStore, *storage.FileFrameStore) {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.OpenSQLite(filepath.Join(dir, "relife.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	frames, err := storage.NewFileFrameStore(filepath.Join(dir, "screenshots"))
	require.NoError(t, err)

	ctx := context.Background()
	for _, ts := range timestamps {
		_, ok := store.Insert(ctx, storage.InsertParams{
			App: "Terminal", Title: "zsh", Text: "entry", Timestamp: ts, Embedding: make([]float32, 3),
			WordsCoords: []models.WordBox{{Text: "entry", X2: 0.1, Y2: 0.1}},
		})
		require.True(t, ok)
		require.NoError(t, frames.Save(ctx, ts, []byte("jpeg")))
	}

	return NewService(store, frames, nil), store, frames
}

func TestSyncReturnsStrictlyNewerEntries(t *testing.T) {
	svc, _, _ := setup(t, 900, 1000, 1100, 1200)

	res := svc.Sync(context.Background(), 1000)
	assert.Equal(t, []int64{1200, 1100}, res.Timestamps)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "entry", res.Entries[1100].Text)
	assert.Equal(t, []models.WordBox{}, res.Entries[1200].AIWordsCoords)
	assert.Nil(t, res.Entries[1200].AIText)
}

func TestSyncEmpty(t *testing.T) {
	svc, _, _ := setup(t, 900)

	res := svc.Sync(context.Background(), 5000)
	assert.Empty(t, res.Timestamps)
	assert.NotNil(t, res.Timestamps)
	assert.NotNil(t, res.Entries)
}

func TestLatestLimitsPage(t *testing.T) {
	svc, _, _ := setup(t, 1, 2, 3, 4)

	res := svc.Latest(context.Background(), 2)
	assert.Equal(t, []int64{4, 3}, res.Timestamps)

	res = svc.Latest(context.Background(), 0)
	assert.Len(t, res.Timestamps, 4)
}

func TestGet(t *testing.T) {
	svc, _, _ := setup(t, 1000)

	e, err := svc.Get(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), e.Timestamp)
	assert.Equal(t, "Terminal", e.App)

	_, err = svc.Get(context.Background(), 42)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTimestamps(t *testing.T) {
	svc, _, _ := setup(t)
	assert.Equal(t, []int64{}, svc.Timestamps(context.Background()))

	svc, _, _ = setup(t, 10, 30, 20)
	assert.Equal(t, []int64{30, 20, 10}, svc.Timestamps(context.Background()))
	assert.Equal(t, 3, svc.Count(context.Background()))
}

func TestDeleteRemovesRowsThenFrames(t *testing.T) {
	svc, store, frames := setup(t, 1000, 2000)
	ctx := context.Background()

	n, err := svc.Delete(ctx, []int64{1000})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok := store.GetByTimestamp(ctx, 1000)
	assert.False(t, ok)
	_, err = os.Stat(frames.Path(1000))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(frames.Path(2000))
	assert.NoError(t, err)

	n, err = svc.Delete(ctx, []int64{1000})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDeleteRequiresTimestamps(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.Delete(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.EqualError(t, err, "No timestamps provided")
}

func TestPrune(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -10).UnixMicro()
	recent := now.AddDate(0, 0, -1).UnixMicro()

	svc, store, _ := setup(t, old, recent)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	n, err := svc.Prune(ctx, -1)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.Prune(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{recent}, store.GetTimestamps(ctx))

	n, err = svc.Prune(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeperUsesCurrentRetention(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, store, _ := setup(t, now.AddDate(0, 0, -40).UnixMicro(), now.UnixMicro())
	svc.now = func() time.Time { return now }

	keepAll, err := NewSweeper(svc, fixedRetention(-1), "", nil)
	require.NoError(t, err)
	assert.Zero(t, keepAll.Sweep(context.Background()))
	assert.Equal(t, 2, store.Count(context.Background()))

	month, err := NewSweeper(svc, fixedRetention(30), "*/5 * * * *", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, month.Sweep(context.Background()))
	assert.Equal(t, 1, store.Count(context.Background()))
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := NewSweeper(svc, fixedRetention(1), "every day", nil)
	assert.Error(t, err)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	svc, _, _ := setup(t)
	s, err := NewSweeper(svc, fixedRetention(1), DefaultSchedule, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
