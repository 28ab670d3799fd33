package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPCompleter — Completer поверх OpenAI-совместимого chat completions
// API (OpenAI, Ollama, vLLM и т.п.).
type HTTPCompleter struct {
	client  *http.Client
	baseURL string
	model   string
	apiKey  string
}

// HTTPCompleterConfig — конфигурация HTTPCompleter.
type HTTPCompleterConfig struct {
	// BaseURL — адрес API без завершающего слэша,
	// например "https://api.openai.com/v1".
	BaseURL string

	// Model — имя модели.
	Model string

	// APIKey — bearer-токен; пустой не отправляется.
	APIKey string

	// Client — HTTP-клиент; по умолчанию с таймаутом 120s.
	Client *http.Client
}

// NewHTTPCompleter создаёт HTTPCompleter.
func NewHTTPCompleter(cfg HTTPCompleterConfig) *HTTPCompleter {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &HTTPCompleter{
		client:  client,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete отправляет prompt одним user-сообщением и возвращает
// текст первого choice.
func (c *HTTPCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion API returned %d: %s", resp.StatusCode, data)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("completion API returned no choices")
	}

	return cr.Choices[0].Message.Content, nil
}
