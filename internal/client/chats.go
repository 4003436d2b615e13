package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/raphaelgruber/ragchat/internal/metrics"
)

// Message is one stored chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatSummary is one row of the chat index.
type ChatSummary struct {
	ChatID    string `json:"chat_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// ChatRecord is a stored chat with its messages.
type ChatRecord struct {
	ChatID    string    `json:"chat_id"`
	Title     string    `json:"title"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at,omitempty"`
	Messages  []Message `json:"messages"`
}

type saveChatInput struct {
	Title    *string   `json:"title,omitempty"`
	ChatID   string    `json:"chat_id,omitempty"`
	Messages []Message `json:"messages"`
}

// CreateChat stores a new chat under title. The raw response body is
// returned because the backend does not commit to one response shape.
func (c *Client) CreateChat(ctx context.Context, title string, messages []Message) ([]byte, error) {
	return c.saveChat(ctx, metrics.OpCreateChat, saveChatInput{
		Title:    &title,
		Messages: nonNil(messages),
	})
}

// UpdateChat replaces the messages of chatID. No title is sent, so the
// stored title is never renamed by an append.
func (c *Client) UpdateChat(ctx context.Context, chatID string, messages []Message) ([]byte, error) {
	if chatID == "" {
		return nil, fmt.Errorf("update chat: empty chat id")
	}
	return c.saveChat(ctx, metrics.OpUpdateChat, saveChatInput{
		ChatID:   chatID,
		Messages: nonNil(messages),
	})
}

func (c *Client) saveChat(ctx context.Context, op string, in saveChatInput) ([]byte, error) {
	req, err := c.jsonRequest(op, http.MethodPost, "/api/v1/chats/save", in)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req)
}

// ListChats returns the chat index of the current user as sent by the
// server, duplicates included.
func (c *Client) ListChats(ctx context.Context) ([]ChatSummary, error) {
	body, err := c.do(ctx, request{op: metrics.OpListChats, method: http.MethodGet, path: "/api/v1/chats/list"})
	if err != nil {
		return nil, err
	}

	var out struct {
		Items []ChatSummary `json:"items"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return out.Items, nil
}

// GetChat loads one chat with its messages.
func (c *Client) GetChat(ctx context.Context, chatID string) (*ChatRecord, error) {
	body, err := c.do(ctx, request{
		op:     metrics.OpGetChat,
		method: http.MethodGet,
		path:   "/api/v1/chats/" + url.PathEscape(chatID),
	})
	if err != nil {
		return nil, err
	}

	var rec ChatRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rec.ChatID == "" {
		rec.ChatID = chatID
	}
	return &rec, nil
}

// DeleteChat removes one chat.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	_, err := c.do(ctx, request{
		op:     metrics.OpDeleteChat,
		method: http.MethodDelete,
		path:   "/api/v1/chats/" + url.PathEscape(chatID),
	})
	return err
}

func nonNil(messages []Message) []Message {
	if messages == nil {
		return []Message{}
	}
	return messages
}
