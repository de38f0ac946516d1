// Package linebot implements the small slice of the LINE Messaging API the
// bot needs: webhook signature validation, event decoding, and replies with
// text or flex messages.
package linebot

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

// SignatureHeader carries the webhook body HMAC.
const SignatureHeader = "X-Line-Signature"

const replyEndpoint = "https://api.line.me/v2/bot/message/reply"

// Event types the bot reacts to.
const (
	EventMessage = "message"
	EventFollow  = "follow"
)

// Event is one webhook event.
type Event struct {
	Type       string  `json:"type"`
	ReplyToken string  `json:"replyToken"`
	Message    Message `json:"message"`
}

// Message is the message attached to a message event.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type webhookBody struct {
	Events []Event `json:"events"`
}

// ValidateSignature checks the webhook body HMAC against the channel secret.
func ValidateSignature(channelSecret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseWebhook decodes webhook events from a request body.
func ParseWebhook(body []byte) ([]Event, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, fmt.Errorf("linebot: parse webhook: %w", err)
	}
	return wb.Events, nil
}

// ReplyMessage is one outgoing message; either a text or a flex payload.
type ReplyMessage struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	AltText  string         `json:"altText,omitempty"`
	Contents map[string]any `json:"contents,omitempty"`
}

// TextMessage builds a plain text reply.
func TextMessage(text string) ReplyMessage {
	return ReplyMessage{Type: "text", Text: text}
}

// FlexMessage builds a flex reply.
func FlexMessage(altText string, contents map[string]any) ReplyMessage {
	return ReplyMessage{Type: "flex", AltText: altText, Contents: contents}
}

// Client sends replies through the Messaging API.
type Client struct {
	token    string
	endpoint string
	client   *http.Client
}

// NewClient creates a Client with a channel access token.
func NewClient(token string) *Client {
	return &Client{token: token, endpoint: replyEndpoint, client: &http.Client{}}
}

// Reply answers a webhook event via its reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, messages ...ReplyMessage) error {
	payload, err := json.Marshal(map[string]any{
		"replyToken": replyToken,
		"messages":   messages,
	})
	if err != nil {
		return fmt.Errorf("linebot: marshal reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("linebot: build reply: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("linebot: reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("linebot: reply status %d", resp.StatusCode)
	}
	return nil
}
