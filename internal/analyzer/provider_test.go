package analyzer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/relife/internal/apperrors"
	"github.com/bdougie/relife/internal/models"
)

const wordsJSON = `{"words":[{"text":"Hello","x1":0.1,"y1":0.1,"x2":0.2,"y2":0.15},{"text":"World","x1":0.25,"y1":0.1,"x2":0.4,"y2":0.15}]}`

func TestParseWords(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bare", wordsJSON},
		{"json fence", "```json\n" + wordsJSON + "\n```"},
		{"plain fence", "```\n" + wordsJSON + "\n```"},
		{"prose around", "Sure! Here is the result:\n" + wordsJSON + "\nLet me know if you need more."},
		{"trailing object", wordsJSON + ` and also {"note": "ignored"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, words, err := ParseWords("openai", tt.raw)
			require.NoError(t, err)
			assert.Equal(t, "Hello World", text)
			require.Len(t, words, 2)
			assert.Equal(t, models.WordBox{Text: "World", X1: 0.25, Y1: 0.1, X2: 0.4, Y2: 0.15}, words[1])
		})
	}
}

func TestParseWordsBracesInsideStrings(t *testing.T) {
	raw := `noise {"words":[{"text":"fn() {","x1":0,"y1":0,"x2":1,"y2":1},{"text":"\"}\"","x1":0,"y1":0,"x2":1,"y2":1}]} tail }`
	text, words, err := ParseWords("claude", raw)
	require.NoError(t, err)
	assert.Equal(t, `fn() { "}"`, text)
	assert.Len(t, words, 2)
}

func TestParseWordsEmptyAndMissingList(t *testing.T) {
	for _, raw := range []string{`{"words":[]}`, `{}`, `{"words":null}`} {
		text, words, err := ParseWords("openai", raw)
		require.NoError(t, err, raw)
		assert.Empty(t, text)
		assert.Equal(t, []models.WordBox{}, words)
	}
}

func TestParseWordsDecodeErrors(t *testing.T) {
	for _, raw := range []string{"I could not read the image.", `{"words": [`, `{"words": "nope"}`} {
		_, _, err := ParseWords("claude", raw)
		var pe *apperrors.ProviderError
		require.ErrorAs(t, err, &pe, raw)
		assert.Equal(t, apperrors.KindDecode, pe.Kind)
		assert.Equal(t, raw, pe.Body)
		assert.Equal(t, "claude", pe.Provider)
	}
}

func TestParseProviderName(t *testing.T) {
	for in, want := range map[string]ProviderName{
		"gemini": Gemini, "OpenAI": OpenAI, " claude ": Claude, "ollama": Ollama,
	} {
		got, err := ParseProviderName(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseProviderName("mistral")
	var pe *apperrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apperrors.KindConfig, pe.Kind)

	assert.True(t, Claude.NeedsAPIKey())
	assert.False(t, Ollama.NeedsAPIKey())
}

func TestNewProviderRejectsUnknownName(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderName("bogus"), "k", Options{})
	assert.ErrorIs(t, err, apperrors.ErrProvider)
}

func TestTextPromptTruncatesExistingText(t *testing.T) {
	assert.NotContains(t, textPrompt(""), "basic OCR")

	short := textPrompt("hello")
	assert.True(t, strings.HasSuffix(short, "\nhello"))

	long := textPrompt(strings.Repeat("a", 1500))
	assert.Contains(t, long, strings.Repeat("a", 1000)+"...")
	assert.NotContains(t, long, strings.Repeat("a", 1001))
}

func TestPositionsPromptCarriesExistingText(t *testing.T) {
	assert.Equal(t, wordsPrompt, positionsPrompt(""))

	p := positionsPrompt("Helo Wrld")
	assert.True(t, strings.HasPrefix(p, wordsPrompt))
	assert.True(t, strings.HasSuffix(p, "\nHelo Wrld"))
}

func TestChatBaseURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"", "http://localhost:11434/api"},
		{"http://localhost:11434", "http://localhost:11434/api"},
		{"https://gpu-box/", "https://gpu-box/api"},
		{"http://10.0.0.5:8080", "http://10.0.0.5:8080/api"},
	}
	for _, tt := range tests {
		got, err := chatBaseURL(tt.host)
		require.NoError(t, err, tt.host)
		assert.Equal(t, tt.want, got)
	}

	_, err := chatBaseURL("::not a url")
	assert.Error(t, err)
}

func TestOllamaVisionProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string   `json:"role"`
				Content string   `json:"content"`
				Images  []string `json:"images"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llava:test", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Contains(t, req.Messages[1].Content, "basic-ocr-hint")
		assert.Equal(t, []string{"aGVsbG8="}, req.Messages[1].Images)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "llava:test",
			"message": map[string]any{"role": "assistant", "content": "  Hello World\n"},
			"done":    true,
		})
	}))
	defer srv.Close()

	p, err := NewProvider(context.Background(), Ollama, "", Options{OllamaHost: srv.URL, VisionModel: "llava:test"})
	require.NoError(t, err)

	text, words, err := p.OCRWithPositions(context.Background(), "aGVsbG8=", "basic-ocr-hint")
	require.NoError(t, err)
	assert.Equal(t, "Hello World", text)
	assert.Equal(t, []models.WordBox{}, words)
}

func TestOllamaVisionProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := NewProvider(context.Background(), Ollama, "", Options{OllamaHost: srv.URL})
	require.NoError(t, err)

	_, _, err = p.OCRWithPositions(context.Background(), "aGVsbG8=", "")
	var pe *apperrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apperrors.KindTransport, pe.Kind)
	assert.Contains(t, pe.Body, "model not found")

	_, _, err = p.OCRWithPositions(context.Background(), "%%%", "")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apperrors.KindDecode, pe.Kind)
}

func TestOpenAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "basic-ocr-hint")

		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "gpt-4o", body["model"])
		assert.InDelta(t, 0.1, body["temperature"], 1e-9)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "```json\n" + wordsJSON + "\n```"},
			}},
		})
	}))
	defer srv.Close()

	p, err := NewProvider(context.Background(), OpenAI, "sk-test", Options{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	text, words, err := p.OCRWithPositions(context.Background(), "aGVsbG8=", "basic-ocr-hint")
	require.NoError(t, err)
	assert.Equal(t, "Hello World", text)
	assert.Len(t, words, 2)
}

func TestOpenAIProviderErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, err := NewProvider(context.Background(), OpenAI, "bad", Options{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	_, _, err = p.OCRWithPositions(context.Background(), "aGVsbG8=", "")
	var pe *apperrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apperrors.KindTransport, pe.Kind)
	assert.Contains(t, pe.Body, "Incorrect API key provided")
}

func TestClaudeProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("X-Api-Key"))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "basic-ocr-hint")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       defaultClaudeModel,
			"stop_reason": "end_turn",
			"content":     []map[string]any{{"type": "text", "text": "Here you go: " + wordsJSON}},
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 20},
		})
	}))
	defer srv.Close()

	p, err := NewProvider(context.Background(), Claude, "sk-ant", Options{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	text, words, err := p.OCRWithPositions(context.Background(), "aGVsbG8=", "basic-ocr-hint")
	require.NoError(t, err)
	assert.Equal(t, "Hello World", text)
	assert.Len(t, words, 2)
}

func TestClaudeProviderErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	p, err := NewProvider(context.Background(), Claude, "bad", Options{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	_, _, err = p.OCRWithPositions(context.Background(), "aGVsbG8=", "")
	var pe *apperrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apperrors.KindTransport, pe.Kind)
	assert.Contains(t, pe.Body, "invalid x-api-key")
}
