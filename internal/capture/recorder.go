package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/bdougie/relife/internal/detector"
	"github.com/bdougie/relife/internal/extractor"
	"github.com/bdougie/relife/internal/storage"
)

const (
	pausedBackoff   = time.Second
	selfBackoff     = time.Second
	idleBackoff     = 3 * time.Second
	frameQuality    = 70
	unknownApp      = "Unknown App"
	unknownTitle    = "Unknown Title"
	DefaultSelfMark = "OpenReLife"
)

// Embedder is the part of embeddings.Service the recorder needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Zero() []float32
}

// Config wires a Recorder. Window, Activity and Detector default to
// StaticWindow, AlwaysActive and the default threshold.
type Config struct {
	State    *State
	Grabber  Grabber
	OCR      extractor.Extractor
	Embedder Embedder
	Store    storage.Store
	Frames   storage.FrameStore
	Window   WindowInfo
	Activity ActivityMonitor
	Detector *detector.Detector
	SelfMark string
	Logger   *slog.Logger
	Now      func() time.Time
}

// Recorder is the only producer of entries. It compares each monitor's
// frame with the last recorded frame for that monitor and records only
// frames that changed.
type Recorder struct {
	cfg Config

	mu     sync.Mutex
	last   []image.Image
	lastTS int64
}

func NewRecorder(cfg Config) *Recorder {
	if cfg.State == nil {
		cfg.State = NewState(DefaultInterval)
	}
	if cfg.Window == nil {
		cfg.Window = StaticWindow{}
	}
	if cfg.Activity == nil {
		cfg.Activity = AlwaysActive{}
	}
	if cfg.Detector == nil {
		cfg.Detector = detector.New(detector.DefaultThreshold)
	}
	if cfg.SelfMark == "" {
		cfg.SelfMark = DefaultSelfMark
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Recorder{cfg: cfg}
}

// Run seeds the per-monitor cache from an initial grab, then records until
// ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	r.cfg.Logger.Info("recorder started", "interval", r.cfg.State.Interval())

	frames, err := r.cfg.Grabber.Grab(ctx)
	if err != nil {
		r.cfg.Logger.Warn("initial grab failed", "error", err)
	} else {
		r.mu.Lock()
		r.last = append([]image.Image(nil), frames...)
		r.mu.Unlock()
	}

	for {
		wait := r.Step(ctx)
		select {
		case <-ctx.Done():
			r.cfg.Logger.Info("recorder stopped")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Step runs one iteration and returns how long to sleep before the next.
func (r *Recorder) Step(ctx context.Context) time.Duration {
	log := r.cfg.Logger

	if r.cfg.State.Paused() {
		return pausedBackoff
	}

	app := r.cfg.Window.ActiveApp()
	title := r.cfg.Window.ActiveTitle()
	if strings.Contains(title, r.cfg.SelfMark) {
		log.Debug("skipping capture of own window", "title", title)
		return selfBackoff
	}
	if !r.cfg.Activity.IsActive() {
		return idleBackoff
	}
	if app == "" {
		app = unknownApp
	}
	if title == "" {
		title = unknownTitle
	}

	frames, err := r.cfg.Grabber.Grab(ctx)
	if err != nil {
		log.Error("screen grab failed", "error", err)
		return r.cfg.State.Interval()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, frame := range frames {
		if i < len(r.last) && r.last[i] != nil && r.cfg.Detector.IsSimilar(r.last[i], frame) {
			continue
		}
		if i < len(r.last) {
			r.last[i] = frame
		} else {
			r.last = append(r.last, frame)
		}
		r.record(ctx, i, frame, app, title)
	}

	return r.cfg.State.Interval()
}

func (r *Recorder) record(ctx context.Context, monitor int, frame image.Image, app, title string) {
	log := r.cfg.Logger.With("monitor", monitor)

	text, words, err := r.cfg.OCR.Extract(ctx, frame)
	if err != nil {
		log.Warn("ocr failed, recording without text", "error", err)
		text, words = "", nil
	}

	ts := r.nextTimestamp()

	data, err := EncodeFrame(Downscale(frame))
	if err != nil {
		log.Error("encode frame failed", "timestamp", ts, "error", err)
	} else if err := r.cfg.Frames.Save(ctx, ts, data); err != nil {
		log.Error("save frame failed", "timestamp", ts, "error", err)
	}

	embedding, err := r.cfg.Embedder.Embed(ctx, text)
	if err != nil {
		log.Warn("embedding failed, storing zero vector", "timestamp", ts, "error", err)
		embedding = r.cfg.Embedder.Zero()
	}

	id, ok := r.cfg.Store.Insert(ctx, storage.InsertParams{
		App:         app,
		Title:       title,
		Text:        text,
		Timestamp:   ts,
		Embedding:   embedding,
		WordsCoords: words,
	})
	if !ok {
		log.Warn("entry not stored", "timestamp", ts)
		return
	}
	log.Debug("entry recorded", "id", id, "timestamp", ts, "app", app, "words", len(words))
}

// nextTimestamp returns microseconds since epoch, strictly increasing
// within this process. Caller holds r.mu.
func (r *Recorder) nextTimestamp() int64 {
	ts := r.cfg.Now().UnixMicro()
	if ts <= r.lastTS {
		ts = r.lastTS + 1
	}
	r.lastTS = ts
	return ts
}

// Downscale halves both dimensions.
func Downscale(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, max(1, b.Dx()/2), max(1, b.Dy()/2)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// EncodeFrame produces the stored lossy image.
func EncodeFrame(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: frameQuality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
