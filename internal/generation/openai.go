package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"
)

// maxResponseSize limits the backend response body.
const maxResponseSize = 10 * 1024 * 1024

// Default base URLs per backend.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOllamaBaseURL = "http://localhost:11434/v1"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, Ollama, vLLM, OpenRouter).
type OpenAI struct {
	url         string
	model       string
	apiKey      string
	temperature *float64
	httpClient  *http.Client
	logger      *slog.Logger
}

// OpenAIOption configures an OpenAI generator.
type OpenAIOption func(*OpenAI)

// WithHTTPClient sets the HTTP client. The client's Timeout is not used to
// bound calls; wrap the generator with WithTimeout instead.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(o *OpenAI) {
		o.httpClient = c
	}
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) OpenAIOption {
	return func(o *OpenAI) {
		o.apiKey = key
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) OpenAIOption {
	return func(o *OpenAI) {
		o.temperature = &t
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) OpenAIOption {
	return func(o *OpenAI) {
		o.logger = l
	}
}

// NewOpenAI creates a generator for the chat completions endpoint under baseURL.
func NewOpenAI(baseURL, model string, opts ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		url:        chatCompletionsURL(baseURL),
		model:      model,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func chatCompletionsURL(baseURL string) string {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Generate sends prompt as a single user message and returns the first choice.
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       o.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: o.temperature,
	})
	if err != nil {
		return "", NewError(fmt.Errorf("build request body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return "", NewError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	o.logger.Debug("Sending generation request", "url", o.url, "model", o.model, "prompt_chars", len(prompt))

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", NewError(fmt.Errorf("generation request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", NewError(fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", NewError(statusError(resp.StatusCode, respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", NewError(fmt.Errorf("parse generation response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", NewError(fmt.Errorf("no choices in generation response"))
	}
	return parsed.Choices[0].Message.Content, nil
}

// maxErrorBody bounds the backend body quoted in status errors.
const maxErrorBody = 200

func statusError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(bodyStr[cut]) {
			cut--
		}
		bodyStr = bodyStr[:cut] + "..."
	}
	return fmt.Errorf("generation backend error (status %d): %s", statusCode, bodyStr)
}
