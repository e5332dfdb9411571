package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"time"

	_ "golang.org/x/image/webp"
	"golang.org/x/time/rate"

	"github.com/bdougie/relife/internal/apperrors"
	"github.com/bdougie/relife/internal/models"
	"github.com/bdougie/relife/internal/storage"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 120 * time.Second

const uploadQuality = 95

// ProviderFactory builds a provider for one request.
type ProviderFactory func(ctx context.Context, name ProviderName, apiKey string) (Provider, error)

// EnhanceRequest names the entry to improve and the provider to use.
type EnhanceRequest struct {
	Timestamp int64
	Provider  string
	APIKey    string
}

// EnhanceResult is what was stored on the entry.
type EnhanceResult struct {
	Text        string           `json:"text"`
	WordsCoords []models.WordBox `json:"words_coords"`
}

// Processor re-runs OCR on a stored frame through an external provider and
// writes the result onto the entry. Concurrent runs for the same entry are
// last-write-wins.
type Processor struct {
	store   storage.Store
	frames  storage.FrameStore
	factory ProviderFactory
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewProcessor(store storage.Store, frames storage.FrameStore, factory ProviderFactory, timeout time.Duration, logger *slog.Logger) *Processor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: store, frames: frames, factory: factory, timeout: timeout, logger: logger}
}

// SetRateLimit paces provider calls. A nil limiter disables pacing.
func (p *Processor) SetRateLimit(l *rate.Limiter) { p.limiter = l }

// DefaultFactory wires NewProvider with fixed options.
func DefaultFactory(opts Options) ProviderFactory {
	return func(ctx context.Context, name ProviderName, apiKey string) (Provider, error) {
		return NewProvider(ctx, name, apiKey, opts)
	}
}

// Enhance runs the full enhancement for one entry.
func (p *Processor) Enhance(ctx context.Context, req EnhanceRequest) (EnhanceResult, error) {
	if req.Timestamp == 0 {
		return EnhanceResult{}, apperrors.NewValidationError("timestamp", "Missing timestamp")
	}
	name, err := ParseProviderName(req.Provider)
	if err != nil {
		return EnhanceResult{}, err
	}
	if name.NeedsAPIKey() && req.APIKey == "" {
		return EnhanceResult{}, apperrors.NewValidationError("api_key", "Missing API key")
	}

	entry, ok := p.store.GetByTimestamp(ctx, req.Timestamp)
	if !ok {
		return EnhanceResult{}, apperrors.NewNotFoundError("entry", "Entry not found")
	}

	data, err := p.frames.Load(ctx, req.Timestamp)
	if err != nil {
		return EnhanceResult{}, err
	}
	imageB64, err := reencode(data)
	if err != nil {
		return EnhanceResult{}, err
	}

	provider, err := p.factory(ctx, name, req.APIKey)
	if err != nil {
		return EnhanceResult{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if p.limiter != nil {
		if err := p.limiter.Wait(callCtx); err != nil {
			return EnhanceResult{}, transportError(string(name), fmt.Errorf("rate limited: %w", err), "")
		}
	}

	start := time.Now()
	text, words, err := provider.OCRWithPositions(callCtx, imageB64, entry.Text)
	if err != nil {
		p.logger.Error("ai ocr failed", "provider", name, "timestamp", req.Timestamp, "error", err)
		return EnhanceResult{}, err
	}
	if words == nil {
		words = []models.WordBox{}
	}

	if !p.store.UpdateAIOCR(ctx, req.Timestamp, text, words) {
		return EnhanceResult{}, apperrors.NewNotFoundError("entry", "Entry not found")
	}

	p.logger.Info("ai ocr stored", "provider", name, "timestamp", req.Timestamp,
		"words", len(words), "took", time.Since(start).Round(time.Millisecond))
	return EnhanceResult{Text: text, WordsCoords: words}, nil
}

// reencode decodes the stored frame (JPEG, or legacy WebP) and returns it as
// a high-quality base64 JPEG.
func reencode(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode stored frame: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: uploadQuality}); err != nil {
		return "", fmt.Errorf("encode frame for upload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
