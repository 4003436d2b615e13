package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/raphaelgruber/ragchat/internal/config"
	"github.com/raphaelgruber/ragchat/internal/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short string", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"needs truncation", "hello world", 8, "hello..."},
		{"tiny max", "hello", 2, "he"},
		{"multibyte boundary", "系統錯誤", 8, "系..."},
		{"multibyte exact", "系統錯誤", 12, "系統錯誤"},
		{"multibyte tiny", "系統", 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.input, tt.maxLen))
		})
	}
}

func TestNewAPIErrorTruncatesPlainBodyOnRuneBoundary(t *testing.T) {
	body := []byte(strings.Repeat("錯", 100))
	apiErr := newAPIError(http.StatusBadGateway, body)
	assert.True(t, utf8.ValidString(apiErr.Detail))
	assert.LessOrEqual(t, len(apiErr.Detail), maxErrLogLen)
	assert.True(t, strings.HasSuffix(apiErr.Detail, "..."))
}

func TestLogCallLevels(t *testing.T) {
	var buf bytes.Buffer
	c := New("http://unused", nil, WithLogger(config.SetupLoggerWithWriters(io.Discard, &buf, slog.LevelInfo)))
	r := request{op: "chat", method: http.MethodPost, path: "/api/v1/chat"}

	c.logCall(r, 200, time.Millisecond, nil)
	assert.Empty(t, buf.String(), "fast successful calls stay at debug")

	c.logCall(r, 200, slowCallThreshold+time.Second, nil)
	assert.Contains(t, buf.String(), "slow backend call")

	buf.Reset()
	c.logCall(r, 502, time.Millisecond, errors.New(strings.Repeat("x", 500)))
	out := buf.String()
	assert.Contains(t, out, "backend call failed")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, strings.Repeat("x", maxErrLogLen))
}

func TestLoginBodyIsNotLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	c := New(srv.URL, credential.NewMemoryStore(""),
		WithLogger(config.SetupLoggerWithWriters(io.Discard, &buf, slog.LevelDebug)))

	_, err := c.Login(context.Background(), "alice", "hunter22")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "/api/v1/auth/login")
	assert.NotContains(t, buf.String(), "hunter22")
}
