package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Stream      bool            `json:"stream"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// newOpenAICaller speaks the OpenAI chat completions protocol, which
// OpenRouter also serves. baseURL includes the version segment.
func newOpenAICaller(client *http.Client, apiKey, model, baseURL, provider string) Func {
	return func(ctx context.Context, p Prompt) (string, error) {
		var messages []openAIMessage
		if sys := p.system(); sys != "" {
			messages = append(messages, openAIMessage{Role: "system", Content: sys})
		}
		messages = append(messages, openAIMessage{Role: "user", Content: p.User})

		data, err := json.Marshal(openAIRequest{
			Model:       model,
			Messages:    messages,
			Temperature: p.temperature(),
			MaxTokens:   defaultMaxTokens,
		})
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)
		if provider == ProviderOpenRouter {
			req.Header.Set("X-Title", "parley")
		}

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("%s request: %w", provider, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("%s API error (status %d): %s", provider, resp.StatusCode, string(body))
		}

		var result openAIResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("unmarshal response: %w", err)
		}

		if result.Error != nil {
			return "", fmt.Errorf("%s error: %s", provider, result.Error.Message)
		}

		if len(result.Choices) == 0 {
			return "", errors.New(provider + " returned no choices")
		}

		return result.Choices[0].Message.Content, nil
	}
}
