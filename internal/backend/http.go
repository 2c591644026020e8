package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// defaultCompletionTimeout — таймаут одного вызова генерации.
	defaultCompletionTimeout = 120 * time.Second

	// maxErrorBody — сколько байт тела ошибки читать для сообщения.
	maxErrorBody = 4 * 1024
)

// HTTPCompleter — клиент OpenAI-совместимого chat completions API.
//
// Потоковая генерация клиентом не поддерживается: флаг Stream
// передаётся в запросе, но ответ читается целиком.
type HTTPCompleter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// HTTPConfig — конфигурация HTTPCompleter.
type HTTPConfig struct {
	// BaseURL — адрес API, например "https://api.openai.com/v1".
	BaseURL string

	// APIKey — ключ авторизации (Bearer).
	APIKey string

	// Timeout — таймаут вызова (default: 120s).
	Timeout time.Duration
}

// NewHTTPCompleter создаёт нового клиента.
func NewHTTPCompleter(cfg HTTPConfig) *HTTPCompleter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}

	return &HTTPCompleter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// completionRequest — тело запроса chat completions.
type completionRequest struct {
	Model       string              `json:"model"`
	Messages    []completionMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Stream      bool                `json:"stream"`
	User        string              `json:"user,omitempty"`
}

// completionMessage — одно сообщение диалога.
type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionResponse — тело ответа chat completions.
type completionResponse struct {
	Choices []struct {
		Message completionMessage `json:"message"`
	} `json:"choices"`
}

// Complete выполняет один вызов генерации.
func (c *HTTPCompleter) Complete(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:       req.Model,
		Messages:    []completionMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      false,
		User:        req.User,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("completion failed: HTTP %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := parsed.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}
