package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"redraft/internal/provider"
)

const defaultModel = "gemini-2.0-flash"

// Client implements the provider invocation contract for Gemini.
type Client struct {
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Client{client: client, model: defaultModel}, nil
}

func (c *Client) Transform(ctx context.Context, chunkText, instructions string, params provider.Params) (string, error) {
	model := c.model
	if params.Model != "" {
		model = params.Model
	}

	gm := c.client.GenerativeModel(model)
	if params.Temperature > 0 {
		gm.SetTemperature(float32(params.Temperature))
	}
	if params.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(params.MaxTokens))
	}
	gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(instructions)}}

	slog.DebugContext(ctx, "invoking gemini", "model", model, "length", len(chunkText))

	resp, err := gm.GenerateContent(ctx, genai.Text(chunkText))
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", provider.Fatal("gemini", "transform",
				fmt.Errorf("%w: %s", provider.ErrContentRejected, resp.PromptFeedback.BlockReason))
		}
		return "", provider.Transient("gemini", "transform", errors.New("empty response"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

// classify maps genai errors to the two-kind taxonomy at the adapter boundary.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return provider.Transient("gemini", "transform", provider.ErrTimeout)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return provider.Transient("gemini", "transform", fmt.Errorf("%w: %v", provider.ErrRateLimited, err))
		case apiErr.Code >= 500:
			return provider.Transient("gemini", "transform", fmt.Errorf("%w: %v", provider.ErrUnavailable, err))
		case apiErr.Code == 401 || apiErr.Code == 403:
			return provider.Fatal("gemini", "transform", fmt.Errorf("%w: %v", provider.ErrUnauthorized, err))
		case apiErr.Code >= 400:
			return provider.Fatal("gemini", "transform", fmt.Errorf("%w: %v", provider.ErrInvalidRequest, err))
		}
	}

	// Network-level failures without an HTTP status are worth retrying.
	return provider.Transient("gemini", "transform", err)
}
