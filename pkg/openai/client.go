// Package openai is a minimal client for OpenAI-compatible embedding and
// chat-completion endpoints. The engine consumes it through narrow
// interfaces; nothing here knows about catalog semantics.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// DefaultBaseURL is the hosted API endpoint.
const DefaultBaseURL = "https://api.openai.com"

// Client talks to an OpenAI-compatible API.
type Client struct {
	baseURL    string
	apiKey     string
	embedModel string
	chatModel  string
	client     *http.Client
}

// New creates a Client. An empty baseURL selects the hosted endpoint.
func New(baseURL, apiKey, embedModel, chatModel string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		embedModel: embedModel,
		chatModel:  chatModel,
		client:     &http.Client{},
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed maps text to the provider's fixed-length vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var result embedResponse
	if err := c.post(ctx, "/v1/embeddings", embedRequest{Model: c.embedModel, Input: text}, &result); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("openai embed: empty response")
	}

	out := make([]float32, len(result.Data[0].Embedding))
	for i, v := range result.Data[0].Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one system+user exchange and returns the reply text.
// Temperature is pinned to zero; callers want deterministic structure, not
// prose.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	var result chatResponse
	if err := c.post(ctx, "/v1/chat/completions", req, &result); err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai chat: empty response")
	}
	return result.Choices[0].Message.Content, nil
}

const translateInstruction = `Translate the user's message from Chinese to English.
Reply with only the translation, nothing else. If the message is already
English, reply with it unchanged.`

// Translate renders Chinese text into English for the cross-lingual query
// variant.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	out, err := c.Complete(ctx, translateInstruction, text)
	if err != nil {
		return "", fmt.Errorf("openai translate: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
