package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"redraft/internal/provider"
)

const defaultModel = "gpt-4o-mini"

// Client talks to any OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey  string
	client  *http.Client
	baseURL string
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 120 * time.Second},
		baseURL: "https://api.openai.com/v1/chat/completions",
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *Client) Transform(ctx context.Context, chunkText, instructions string, params provider.Params) (string, error) {
	model := defaultModel
	if params.Model != "" {
		model = params.Model
	}

	reqBody := map[string]interface{}{
		"model": model,
		"messages": []message{
			{Role: "system", Content: instructions},
			{Role: "user", Content: chunkText},
		},
	}
	if params.Temperature > 0 {
		reqBody["temperature"] = params.Temperature
	}
	if params.MaxTokens > 0 {
		reqBody["max_tokens"] = params.MaxTokens
	}

	jsonBody, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", provider.Fatal("openai", "transform", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", provider.Transient("openai", "transform", provider.ErrTimeout)
		}
		return "", provider.Transient("openai", "transform", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", classifyStatus(resp.StatusCode, body)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", provider.Transient("openai", "transform", err)
	}

	if len(result.Choices) == 0 {
		return "", provider.Transient("openai", "transform", errors.New("empty response"))
	}
	if result.Choices[0].FinishReason == "content_filter" {
		return "", provider.Fatal("openai", "transform", provider.ErrContentRejected)
	}
	return result.Choices[0].Message.Content, nil
}

// classifyStatus maps HTTP status classes to the two-kind taxonomy.
func classifyStatus(status int, body []byte) error {
	detail := fmt.Errorf("openai api error: %d: %s", status, body)
	switch {
	case status == 429:
		return provider.Transient("openai", "transform", fmt.Errorf("%w: %v", provider.ErrRateLimited, detail))
	case status >= 500:
		return provider.Transient("openai", "transform", fmt.Errorf("%w: %v", provider.ErrUnavailable, detail))
	case status == 401 || status == 403:
		return provider.Fatal("openai", "transform", fmt.Errorf("%w: %v", provider.ErrUnauthorized, detail))
	default:
		return provider.Fatal("openai", "transform", fmt.Errorf("%w: %v", provider.ErrInvalidRequest, detail))
	}
}
