package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bdougie/relife/internal/apperrors"
	"github.com/bdougie/relife/internal/models"
)

// Provider re-runs OCR on a base64 JPEG. Text-only providers return an
// empty box list.
type Provider interface {
	OCRWithPositions(ctx context.Context, imageB64, existingText string) (string, []models.WordBox, error)
}

// ProviderName selects a Provider implementation.
type ProviderName string

const (
	Gemini ProviderName = "gemini"
	OpenAI ProviderName = "openai"
	Claude ProviderName = "claude"
	Ollama ProviderName = "ollama"
)

// ParseProviderName accepts names case-insensitively.
func ParseProviderName(s string) (ProviderName, error) {
	switch n := ProviderName(strings.ToLower(strings.TrimSpace(s))); n {
	case Gemini, OpenAI, Claude, Ollama:
		return n, nil
	}
	return "", &apperrors.ProviderError{
		Provider: s,
		Kind:     apperrors.KindConfig,
		Err:      fmt.Errorf("unknown provider: %s", s),
	}
}

// NeedsAPIKey reports whether the provider is a hosted API.
func (n ProviderName) NeedsAPIKey() bool { return n != Ollama }

// Options tune provider construction. Zero values pick production defaults.
type Options struct {
	Model       string
	BaseURL     string
	OllamaHost  string
	VisionModel string
	Logger      *slog.Logger
}

// NewProvider is the single dispatch point over provider names.
func NewProvider(ctx context.Context, name ProviderName, apiKey string, opts Options) (Provider, error) {
	switch name {
	case Gemini:
		return newGemini(ctx, apiKey, opts)
	case OpenAI:
		return newOpenAI(apiKey, opts), nil
	case Claude:
		return newClaude(apiKey, opts), nil
	case Ollama:
		return newOllamaVision(opts)
	}
	return nil, &apperrors.ProviderError{
		Provider: string(name),
		Kind:     apperrors.KindConfig,
		Err:      fmt.Errorf("unknown provider: %s", name),
	}
}

const wordsPrompt = `Extract every piece of visible text from this screenshot together with its position.
Respond with JSON only, in exactly this shape:
{"words":[{"text":"word","x1":0.0,"y1":0.0,"x2":0.1,"y2":0.05}]}
Coordinates are fractions of the image width (x) and height (y) between 0 and 1:
x1,y1 is the top-left corner and x2,y2 the bottom-right corner of each word.
List words in reading order. Do not add commentary.`

const existingTextLimit = 1000

func textPrompt(existingText string) string {
	return "Transcribe all visible text in this screenshot as accurately as possible, " +
		"preserving line breaks and reading order. Return only the text." + ocrHint(existingText)
}

func positionsPrompt(existingText string) string {
	return wordsPrompt + ocrHint(existingText)
}

// ocrHint appends the basic OCR text, truncated, as a correction reference.
func ocrHint(existingText string) string {
	if existingText == "" {
		return ""
	}
	runes := []rune(existingText)
	if len(runes) > existingTextLimit {
		existingText = string(runes[:existingTextLimit]) + "..."
	}
	return "\n\nA basic OCR pass produced the following, which may contain mistakes:\n" + existingText
}

type wordsResponse struct {
	Words []models.WordBox `json:"words"`
}

// ParseWords decodes a {"words":[...]} reply that may be wrapped in a code
// fence or surrounded by prose. The returned text is the words joined by
// single spaces.
func ParseWords(provider, raw string) (string, []models.WordBox, error) {
	payload, ok := extractJSONObject(stripFence(raw))
	if !ok {
		return "", nil, &apperrors.ProviderError{
			Provider: provider,
			Kind:     apperrors.KindDecode,
			Body:     raw,
			Err:      errors.New("no JSON object in response"),
		}
	}

	var resp wordsResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return "", nil, &apperrors.ProviderError{
			Provider: provider,
			Kind:     apperrors.KindDecode,
			Body:     raw,
			Err:      err,
		}
	}

	words := resp.Words
	if words == nil {
		words = []models.WordBox{}
	}
	texts := make([]string, len(words))
	for i, w := range words {
		texts[i] = w.Text
	}
	return strings.Join(texts, " "), words, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(s, fence)
		if start < 0 {
			continue
		}
		body := s[start+len(fence):]
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		return strings.TrimSpace(body)
	}
	return s
}

// extractJSONObject returns the first balanced {...} span, ignoring braces
// inside string literals.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func transportError(provider string, err error, body string) error {
	if body == "" {
		body = err.Error()
	}
	return &apperrors.ProviderError{
		Provider: provider,
		Kind:     apperrors.KindTransport,
		Body:     body,
		Err:      err,
	}
}
