package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bdougie/relife/internal/apperrors"
)

// FrameExt is the extension of newly captured frame images.
const FrameExt = ".jpg"

// legacyExt is read but never written.
const legacyExt = ".webp"

// FrameStore keeps the downscaled image for each entry, keyed by timestamp.
type FrameStore interface {
	Save(ctx context.Context, ts int64, data []byte) error
	// Load returns an apperrors.NotFoundError when no image exists.
	Load(ctx context.Context, ts int64) ([]byte, error)
	// Delete treats a missing image as success.
	Delete(ctx context.Context, ts int64) error
}

// FrameName is the stored file or object name for ts.
func FrameName(ts int64) string {
	return strconv.FormatInt(ts, 10) + FrameExt
}

// ParseFrameName extracts the timestamp from a name produced by FrameName
// (or a legacy .webp name).
func ParseFrameName(name string) (int64, bool) {
	base := strings.TrimSuffix(strings.TrimSuffix(name, FrameExt), legacyExt)
	if base == name || strings.ContainsAny(base, `/\`) {
		return 0, false
	}
	ts, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// FileFrameStore stores frames as files in a single directory.
type FileFrameStore struct {
	dir string
}

func NewFileFrameStore(dir string) (*FileFrameStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create frame directory '%s': %v", dir, err)
	}
	return &FileFrameStore{dir: dir}, nil
}

func (s *FileFrameStore) Dir() string { return s.dir }

// Path is where the image for ts is written.
func (s *FileFrameStore) Path(ts int64) string {
	return filepath.Join(s.dir, FrameName(ts))
}

func (s *FileFrameStore) Save(_ context.Context, ts int64, data []byte) error {
	tmp := s.Path(ts) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write frame %d: %w", ts, err)
	}
	if err := os.Rename(tmp, s.Path(ts)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit frame %d: %w", ts, err)
	}
	return nil
}

func (s *FileFrameStore) Load(_ context.Context, ts int64) ([]byte, error) {
	for _, name := range s.candidates(ts) {
		data, err := os.ReadFile(name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read frame %d: %w", ts, err)
		}
	}
	return nil, apperrors.NewNotFoundError("image", "Image file not found")
}

func (s *FileFrameStore) Delete(_ context.Context, ts int64) error {
	var errs []error
	for _, name := range s.candidates(ts) {
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *FileFrameStore) candidates(ts int64) []string {
	base := filepath.Join(s.dir, strconv.FormatInt(ts, 10))
	return []string{base + FrameExt, base + legacyExt}
}
