package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bdougie/relife/internal/models"
)

const defaultClaudeModel = "claude-sonnet-4-20250514"

type claudeProvider struct {
	client anthropic.Client
	model  string
}

func newClaude(apiKey string, opts Options) *claudeProvider {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	model := opts.Model
	if model == "" {
		model = defaultClaudeModel
	}
	return &claudeProvider{client: anthropic.NewClient(reqOpts...), model: model}
}

func (p *claudeProvider) OCRWithPositions(ctx context.Context, imageB64, existingText string) (string, []models.WordBox, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   4096,
		Temperature: anthropic.Float(0.1),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/jpeg", imageB64),
				anthropic.NewTextBlock(positionsPrompt(existingText)),
			),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", nil, transportError(string(Claude), err, apiErr.RawJSON())
		}
		return "", nil, transportError(string(Claude), err, "")
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", nil, transportError(string(Claude), fmt.Errorf("no text block in response"), resp.RawJSON())
	}
	return ParseWords(string(Claude), text.String())
}
