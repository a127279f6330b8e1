// Package telegram is a small Bot API client: long polling for updates and
// sending or editing text messages.
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

	"github.com/comigor/summarizer-go/internal/config"
)

// Client talks to one bot's Bot API endpoint.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a client for the bot identified by cfg.Token.
func NewClient(cfg config.TelegramConfig) *Client {
	return &Client{
		apiBase: strings.TrimRight(cfg.APIBase, "/") + "/bot" + cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// APIError is a response with "ok": false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Handle is the name a user goes by in stored history.
func (u User) Handle() string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Username string `json:"username"`
}

type Message struct {
	MessageID      int64  `json:"message_id"`
	From           *User  `json:"from,omitempty"`
	Chat           Chat   `json:"chat"`
	Date           int64  `json:"date"`
	Text           string `json:"text"`
	NewChatMembers []User `json:"new_chat_members,omitempty"`
}

type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message,omitempty"`
	EditedMessage *Message `json:"edited_message,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: encode request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram %s: read response: %w", method, err)
	}
	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("telegram %s: parse response (status %d): %w", method, resp.StatusCode, err)
	}
	if !r.OK {
		return &APIError{Method: method, Code: r.ErrorCode, Description: r.Description}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, result); err != nil {
		return fmt.Errorf("telegram %s: parse result: %w", method, err)
	}
	return nil
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout / time.Second),
		"allowed_updates": []string{"message", "edited_message"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

type keyboardButton struct {
	Text string `json:"text"`
}

type replyKeyboard struct {
	Keyboard       [][]keyboardButton `json:"keyboard"`
	ResizeKeyboard bool               `json:"resize_keyboard"`
}

type sendMessageRequest struct {
	ChatID      int64          `json:"chat_id"`
	Text        string         `json:"text"`
	ReplyMarkup *replyKeyboard `json:"reply_markup,omitempty"`
}

// SendMessage sends text to chatID, with a one-button-per-row reply keyboard
// when buttons is non-empty, and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, buttons []string) (int64, error) {
	req := sendMessageRequest{ChatID: chatID, Text: text}
	if len(buttons) > 0 {
		kb := &replyKeyboard{ResizeKeyboard: true}
		for _, b := range buttons {
			kb.Keyboard = append(kb.Keyboard, []keyboardButton{{Text: b}})
		}
		req.ReplyMarkup = kb
	}
	var sent Message
	if err := c.call(ctx, "sendMessage", req, &sent); err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditMessageText replaces the text of a message the bot sent.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

// Send, SendMenu and Edit let the client deliver router output.

func (c *Client) Send(ctx context.Context, chatID int64, text string) (int64, error) {
	return c.SendMessage(ctx, chatID, text, nil)
}

func (c *Client) SendMenu(ctx context.Context, chatID int64, text string, buttons []string) (int64, error) {
	return c.SendMessage(ctx, chatID, text, buttons)
}

func (c *Client) Edit(ctx context.Context, chatID, messageID int64, text string) error {
	return c.EditMessageText(ctx, chatID, messageID, text)
}
