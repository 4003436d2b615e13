package client

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/raphaelgruber/ragchat/internal/metrics"
)

// File is an attachment sent with a chat turn.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// ChatRequest is one user turn for the assistant.
type ChatRequest struct {
	UserID  string
	Message string
	// ChatID associates the turn with a persisted chat, if known.
	ChatID string
	TopK   int
	Files  []File
}

type chatInput struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
	TopK    int    `json:"top_k,omitempty"`
	ChatID  string `json:"chat_id,omitempty"`
}

// Chat sends a plain-text turn to POST /api/v1/chat.
// The raw response body is returned; its shape is not guaranteed.
func (c *Client) Chat(ctx context.Context, in ChatRequest) ([]byte, error) {
	req, err := c.jsonRequest(metrics.OpChat, http.MethodPost, "/api/v1/chat", chatInput{
		UserID:  in.UserID,
		Message: in.Message,
		TopK:    in.TopK,
		ChatID:  in.ChatID,
	})
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req)
}

// ChatWithAttachments sends a turn with files as multipart/form-data to
// POST /api/v1/chat/with-attachments.
func (c *Client) ChatWithAttachments(ctx context.Context, in ChatRequest) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"user_id", in.UserID},
		{"message", in.Message},
	}
	if in.TopK > 0 {
		fields = append(fields, struct{ name, value string }{"top_k", strconv.Itoa(in.TopK)})
	}
	if in.ChatID != "" {
		fields = append(fields, struct{ name, value string }{"chat_id", in.ChatID})
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f.name, err)
		}
	}

	for _, f := range in.Files {
		part, err := w.CreatePart(filePartHeader(f))
		if err != nil {
			return nil, fmt.Errorf("create part %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write part %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	return c.do(ctx, request{
		op:          metrics.OpChatAttachments,
		method:      http.MethodPost,
		path:        "/api/v1/chat/with-attachments",
		body:        &buf,
		contentType: w.FormDataContentType(),
	})
}

func filePartHeader(f File) textproto.MIMEHeader {
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
	h.Set("Content-Type", ct)
	return h
}

// ClearMemory drops the server-side short-term memory for userID.
func (c *Client) ClearMemory(ctx context.Context, userID string) error {
	req, err := c.jsonRequest(metrics.OpClearMemory, http.MethodPost, "/api/v1/memory/clear", map[string]string{
		"user_id": userID,
	})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, req)
	return err
}
