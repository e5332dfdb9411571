package analyzer

import (
	"context"
	"errors"
	"fmt"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/bdougie/relife/internal/models"
)

const defaultOpenAIModel = "gpt-4o"

type openaiProvider struct {
	sdk   openaisdk.Client
	model string
}

func newOpenAI(apiKey string, opts Options) *openaiProvider {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &openaiProvider{sdk: openaisdk.NewClient(reqOpts...), model: model}
}

func (p *openaiProvider) OCRWithPositions(ctx context.Context, imageB64, existingText string) (string, []models.WordBox, error) {
	resp, err := p.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage([]openaisdk.ChatCompletionContentPartUnionParam{
				openaisdk.TextContentPart(positionsPrompt(existingText)),
				openaisdk.ImageContentPart(openaisdk.ChatCompletionContentPartImageImageURLParam{
					URL: "data:image/jpeg;base64," + imageB64,
				}),
			}),
		},
		MaxTokens:   param.NewOpt[int64](4096),
		Temperature: param.NewOpt(0.1),
	})
	if err != nil {
		var apiErr *openaisdk.Error
		if errors.As(err, &apiErr) {
			return "", nil, transportError(string(OpenAI), err, apiErr.RawJSON())
		}
		return "", nil, transportError(string(OpenAI), err, "")
	}

	if len(resp.Choices) == 0 {
		return "", nil, transportError(string(OpenAI), fmt.Errorf("no choices in response"), resp.RawJSON())
	}
	return ParseWords(string(OpenAI), resp.Choices[0].Message.Content)
}
