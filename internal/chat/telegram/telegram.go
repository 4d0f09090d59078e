// Package telegram implements chat.Messenger on the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nhle/trackrelay/internal/chat"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// Client is a minimal Bot API client. It is safe for concurrent use.
type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
}

var _ chat.Messenger = (*Client)(nil)

// NewClient creates a Bot API client. An empty apiURL selects DefaultAPIURL.
func NewClient(apiURL, token string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Channel returns the channel for a chat id or @username.
func (c *Client) Channel(chatID string) chat.Channel {
	return &channel{client: c, chatID: chatID}
}

type channel struct {
	client *Client
	chatID string
}

func (ch *channel) ID() string { return ch.chatID }

func (ch *channel) SendText(ctx context.Context, text string, formatted bool) error {
	req := sendMessageRequest{
		ChatID:                ch.chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	}
	if formatted {
		req.ParseMode = "Markdown"
	}
	return ch.client.call(ctx, ch.chatID, "sendMessage", req)
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// apiResponse is the envelope of every Bot API response.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// call invokes a Bot API method with a JSON body.
func (c *Client) call(ctx context.Context, chatID, method string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL embeds the token; report the method only.
		return fmt.Errorf("executing %s: %w", method, unwrapURLError(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("unexpected %s response (%d): %s", method, resp.StatusCode, string(respBody))
	}
	if envelope.OK {
		return nil
	}

	if envelope.ErrorCode == http.StatusBadRequest && isEntityParseError(envelope.Description) {
		return &chat.FormattingError{ChatID: chatID, Message: envelope.Description}
	}
	return fmt.Errorf("telegram %s failed (%d): %s", method, envelope.ErrorCode, envelope.Description)
}

// isEntityParseError matches the Bot API's markdown rejection, e.g.
// "Bad Request: can't parse entities: Can't find end of the entity".
func isEntityParseError(description string) bool {
	d := strings.ToLower(description)
	return strings.Contains(d, "can't parse entities") ||
		strings.Contains(d, "can't parse message text") ||
		strings.Contains(d, "can't find end of")
}

// unwrapURLError strips the *url.Error wrapper, whose message contains the
// request URL and therefore the bot token.
func unwrapURLError(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok && u.Unwrap() != nil {
		return u.Unwrap()
	}
	return err
}
