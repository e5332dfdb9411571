package analyzer

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/bdougie/relife/internal/apperrors"
	"github.com/bdougie/relife/internal/models"
)

const defaultGeminiModel = "gemini-3-flash-preview"

// geminiProvider returns text only; its box list is always empty.
type geminiProvider struct {
	client *genai.Client
	model  string
}

func newGemini(ctx context.Context, apiKey string, opts Options) (*geminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, &apperrors.ProviderError{
			Provider: string(Gemini),
			Kind:     apperrors.KindConfig,
			Err:      fmt.Errorf("gemini client: %w", err),
		}
	}

	model := opts.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &geminiProvider{client: client, model: model}, nil
}

func (p *geminiProvider) OCRWithPositions(ctx context.Context, imageB64, existingText string) (string, []models.WordBox, error) {
	img, err := base64.StdEncoding.DecodeString(imageB64)
	if err != nil {
		return "", nil, &apperrors.ProviderError{Provider: string(Gemini), Kind: apperrors.KindDecode, Err: err}
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(textPrompt(existingText)),
			genai.NewPartFromBytes(img, "image/jpeg"),
		}, genai.RoleUser),
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.1),
		MaxOutputTokens: 8192,
	})
	if err != nil {
		return "", nil, transportError(string(Gemini), err, "")
	}

	return strings.TrimSpace(resp.Text()), []models.WordBox{}, nil
}
