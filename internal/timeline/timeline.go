// Package timeline serves the read, delete and retention paths over stored
// entries and their frames.
package timeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/bdougie/relife/internal/apperrors"
	"github.com/bdougie/relife/internal/models"
	"github.com/bdougie/relife/internal/storage"
)

// DefaultPageSize is the number of entries returned for the initial page.
const DefaultPageSize = 100

// SyncResult lists entries newer than a watermark.
type SyncResult struct {
	Timestamps []int64                       `json:"timestamps"`
	Entries    map[int64]models.EntrySummary `json:"entries"`
}

type Service struct {
	store  storage.Store
	frames storage.FrameStore
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store storage.Store, frames storage.FrameStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, frames: frames, logger: logger, now: time.Now}
}

// Delete removes the rows for timestamps, then their frames. Frame removal is
// best effort and is not rolled back into the rows.
func (s *Service) Delete(ctx context.Context, timestamps []int64) (int, error) {
	if len(timestamps) == 0 {
		return 0, apperrors.NewValidationError("timestamps", "No timestamps provided")
	}

	deleted := s.store.DeleteMany(ctx, timestamps)
	for _, ts := range timestamps {
		if err := s.frames.Delete(ctx, ts); err != nil {
			s.logger.Warn("failed to remove frame", "timestamp", ts, "error", err)
		}
	}
	return deleted, nil
}

// Sync returns entries strictly newer than since, newest first.
func (s *Service) Sync(ctx context.Context, since int64) SyncResult {
	return s.page(ctx, storage.ListOptions{MinTimestamp: &since})
}

// Latest returns the newest limit entries. limit <= 0 uses DefaultPageSize.
func (s *Service) Latest(ctx context.Context, limit int) SyncResult {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return s.page(ctx, storage.ListOptions{Limit: limit})
}

func (s *Service) page(ctx context.Context, opts storage.ListOptions) SyncResult {
	entries := s.store.GetAll(ctx, opts)
	res := SyncResult{
		Timestamps: make([]int64, 0, len(entries)),
		Entries:    make(map[int64]models.EntrySummary, len(entries)),
	}
	for _, e := range entries {
		res.Timestamps = append(res.Timestamps, e.Timestamp)
		res.Entries[e.Timestamp] = e.Summary()
	}
	return res
}

func (s *Service) Get(ctx context.Context, ts int64) (models.EntrySummary, error) {
	e, ok := s.store.GetByTimestamp(ctx, ts)
	if !ok {
		return models.EntrySummary{}, apperrors.NewNotFoundError("entry", "Entry not found")
	}
	return e.Summary(), nil
}

// Timestamps returns every stored timestamp, newest first.
func (s *Service) Timestamps(ctx context.Context) []int64 {
	ts := s.store.GetTimestamps(ctx)
	if ts == nil {
		return []int64{}
	}
	return ts
}

func (s *Service) Count(ctx context.Context) int {
	return s.store.Count(ctx)
}

// Prune deletes every entry older than days. days < 0 keeps everything.
func (s *Service) Prune(ctx context.Context, days int) (int, error) {
	if days < 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -days).UnixMicro()
	old := s.store.TimestampsBefore(ctx, cutoff)
	if len(old) == 0 {
		return 0, nil
	}
	deleted, err := s.Delete(ctx, old)
	if err != nil {
		return 0, err
	}
	s.logger.Info("pruned old entries", "deleted", deleted, "retention_days", days)
	return deleted, nil
}
