package analyzer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/agent-api/core"
	"github.com/agent-api/core/agent"
	"github.com/agent-api/core/agent/bootstrap"
	"github.com/agent-api/ollama/client"
	"github.com/go-logr/logr"

	"github.com/bdougie/relife/internal/apperrors"
	"github.com/bdougie/relife/internal/models"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultVisionModel = "llama3.2-vision:11b"

	ocrSystemPrompt = "You are an OCR engine. You transcribe the text visible in screenshots exactly, without commentary."
	ollamaTemp      = 0.1
)

// chatProvider is a core.Provider on top of the Ollama chat client. The
// stock ollama provider always dials localhost, so this one carries the
// configured host.
type chatProvider struct {
	client      *client.OllamaClient
	model       *core.Model
	system      string
	temperature float64
}

func newChatProvider(baseURL, model string) *chatProvider {
	return &chatProvider{
		client:      client.NewClient(client.WithBaseURL(baseURL)),
		model:       &core.Model{ID: model},
		system:      ocrSystemPrompt,
		temperature: ollamaTemp,
	}
}

func (p *chatProvider) GetCapabilities(ctx context.Context) (*core.Capabilities, error) {
	return &core.Capabilities{
		SupportsChat:   true,
		SupportsImages: true,
		DefaultModel:   p.model.ID,
	}, nil
}

func (p *chatProvider) UseModel(ctx context.Context, model *core.Model) error {
	p.model = model
	return nil
}

func (p *chatProvider) Generate(ctx context.Context, opts *core.GenerateOptions) (*core.Message, error) {
	messages := make([]*client.Message, 0, len(opts.Messages)+1)
	if p.system != "" {
		messages = append(messages, &client.Message{Role: client.RoleSystem, Content: p.system})
	}
	for _, m := range opts.Messages {
		images := make([]string, 0, len(m.Images))
		for _, img := range m.Images {
			images = append(images, img.Base64Encoding)
		}
		messages = append(messages, &client.Message{
			Role:    client.Role(m.Role),
			Content: m.Content,
			Images:  images,
		})
	}

	temperature := p.temperature
	resp, err := p.client.Chat(ctx, &client.ChatRequest{
		Model:    p.model.ID,
		Messages: messages,
		Options:  &client.RequestOptions{Temperature: &temperature},
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("empty chat response")
	}

	return &core.Message{
		Role:    core.AssistantMessageRole,
		Content: resp.Message.Content,
	}, nil
}

func (p *chatProvider) GenerateStream(ctx context.Context, opts *core.GenerateOptions) (<-chan *core.Message, <-chan string, <-chan error) {
	msgs := make(chan *core.Message)
	deltas := make(chan string)
	errs := make(chan error, 1)
	errs <- errors.New("streaming is not supported")
	close(msgs)
	close(deltas)
	close(errs)
	return msgs, deltas, errs
}

// NewAgent builds a single-use vision agent around provider. Agents keep
// their conversation in memory, so every OCR call gets a fresh one.
func NewAgent(logger *slog.Logger, provider core.Provider) (*agent.Agent, error) {
	l := logr.FromSlogHandler(logger.Handler())
	return agent.NewAgent(
		bootstrap.WithProvider(provider),
		bootstrap.WithLogger(&l),
		bootstrap.WithSystemPrompt(ocrSystemPrompt),
		bootstrap.WithMaxSteps(2),
	)
}

// chatBaseURL turns "http://host:11434" into the API root the chat client
// expects.
func chatBaseURL(host string) (string, error) {
	if host == "" {
		host = defaultOllamaHost
	}
	u, err := url.Parse(host)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid ollama host %q", host)
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	return strings.TrimRight(u.String(), "/") + "/api", nil
}

// ollamaVision runs a local vision model through an agent. Like Gemini it
// returns text only.
type ollamaVision struct {
	provider *chatProvider
	logger   *slog.Logger
}

func newOllamaVision(opts Options) (*ollamaVision, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	model := opts.VisionModel
	if model == "" {
		model = defaultVisionModel
	}
	baseURL, err := chatBaseURL(opts.OllamaHost)
	if err != nil {
		return nil, &apperrors.ProviderError{Provider: string(Ollama), Kind: apperrors.KindConfig, Err: err}
	}
	return &ollamaVision{provider: newChatProvider(baseURL, model), logger: logger}, nil
}

func firstReply(*agent.AgentRunAggregator) bool { return true }

func (p *ollamaVision) OCRWithPositions(ctx context.Context, imageB64, existingText string) (string, []models.WordBox, error) {
	if _, err := base64.StdEncoding.DecodeString(imageB64); err != nil {
		return "", nil, &apperrors.ProviderError{Provider: string(Ollama), Kind: apperrors.KindDecode, Err: err}
	}

	a, err := NewAgent(p.logger, p.provider)
	if err != nil {
		return "", nil, &apperrors.ProviderError{Provider: string(Ollama), Kind: apperrors.KindConfig, Err: err}
	}

	run, err := a.Run(
		ctx,
		agent.WithInput(textPrompt(existingText)),
		agent.WithImageBase64(imageB64, "image/jpeg"),
		agent.WithStopCondition(firstReply),
	)
	if err != nil {
		return "", nil, transportError(string(Ollama), err, "")
	}

	reply := run.Pop()
	if reply == nil || reply.Role != core.AssistantMessageRole {
		return "", nil, transportError(string(Ollama), errors.New("no response messages received from model"), "")
	}
	return strings.TrimSpace(reply.Content), []models.WordBox{}, nil
}
