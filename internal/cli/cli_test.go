package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/glamour"
	"github.com/raphaelgruber/ragchat/internal/auth"
	"github.com/raphaelgruber/ragchat/internal/client"
	"github.com/raphaelgruber/ragchat/internal/config"
	"github.com/raphaelgruber/ragchat/internal/conversation"
	"github.com/raphaelgruber/ragchat/internal/credential"
	"github.com/raphaelgruber/ragchat/internal/dispatch"
	"github.com/raphaelgruber/ragchat/internal/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteTable(t *testing.T) {
	m := auth.NewManager(credential.NewMemoryStore(""), nil, config.Discard())
	g := guard.New(m, "login", "chat")
	registerRoutes(g, rootCmd)

	tests := []struct {
		route string
		want  guard.Requirement
	}{
		{"login", guard.Guest},
		{"register", guard.Guest},
		{"whoami", guard.None},
		{"ping", guard.None},
		{"logout", guard.Auth},
		{"chat", guard.Auth},
		{"send", guard.Auth},
		{"new", guard.Auth},
		{"history", guard.Auth},
		{"history list", guard.Auth},
		{"history show", guard.Auth},
		{"history delete", guard.Auth},
	}
	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Requirement(tt.route))
		})
	}

	d := g.Check(t.Context(), "history show")
	assert.Equal(t, guard.Decision{RedirectTo: "login", Next: "history show"}, d)
}

func TestRouteName(t *testing.T) {
	assert.Equal(t, "history show", routeName(historyShowCmd))
	assert.Equal(t, "login", routeName(loginCmd))
}

func TestDescribeError(t *testing.T) {
	assert.Equal(t, "Chat not found", describeError(&client.APIError{Status: 404, Detail: "Chat not found"}))
	assert.Equal(t, "invalid username or password",
		describeError(fmt.Errorf("login: %w", &client.APIError{Status: 401})))
	assert.Equal(t, "boom", describeError(fmt.Errorf("boom")))
}

func TestReadAttachments(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	bin := filepath.Join(dir, "blob")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(bin, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, 0o644))

	files, err := readAttachments([]string{txt, bin})
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "notes.txt", files[0].Name)
	assert.Contains(t, files[0].ContentType, "text/plain")
	assert.Equal(t, []byte("hello"), files[0].Data)
	assert.Equal(t, "blob", files[1].Name)
	assert.Equal(t, "image/png", files[1].ContentType)

	_, err = readAttachments([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestSendModel(t *testing.T) {
	m := newSendModel(func() dispatch.Outcome { return dispatch.Outcome{} })
	assert.Contains(t, m.renderContent(), "thinking...")

	reply := conversation.NewTurn(conversation.RoleAssistant, "forty-two")
	next, cmd := m.Update(replyMsg{turn: reply})
	assert.Nil(t, cmd)
	m = next.(sendModel)
	assert.Contains(t, m.renderContent(), "forty-two")
	assert.Contains(t, m.renderContent(), "saving...")

	next, cmd = m.Update(sentMsg{outcome: dispatch.Outcome{Status: dispatch.StatusDelivered}})
	assert.NotNil(t, cmd)
	m = next.(sendModel)
	require.NotNil(t, m.outcome)
	assert.Equal(t, dispatch.StatusDelivered, m.outcome.Status)
	assert.NotContains(t, m.renderContent(), "saving...")
	assert.Contains(t, m.renderContent(), "forty-two")
}

func TestRenderTurn(t *testing.T) {
	assert.Contains(t, theme.renderTurn(conversation.NewTurn(conversation.RoleUser, "hi")), "you ›")
	assert.Contains(t, theme.renderTurn(conversation.NewTurn(conversation.RoleNotice, dispatch.Apology)), dispatch.Apology)
}

func TestRenderTurnMarkdown(t *testing.T) {
	reply := conversation.NewTurn(conversation.RoleAssistant, "## Sources\n\n* report.pdf\n* notes.txt")

	markdown = nil
	plain := theme.renderTurn(reply)
	assert.Contains(t, plain, "* report.pdf", "without a renderer the reply prints as is")

	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle("dark"), glamour.WithWordWrap(markdownWrap))
	require.NoError(t, err)
	markdown = r
	t.Cleanup(func() { markdown = nil })

	rendered := theme.renderTurn(reply)
	assert.Contains(t, rendered, "bot ›")
	assert.Contains(t, rendered, "report.pdf")
	assert.Contains(t, rendered, "notes.txt")
	assert.NotContains(t, rendered, "* report.pdf")
	assert.NotEqual(t, plain, rendered)

	notice := theme.renderTurn(conversation.NewTurn(conversation.RoleNotice, "**not markdown**"))
	assert.Contains(t, notice, "**not markdown**", "notices are never rendered as markdown")
}

func TestFailingCommandClosesLog(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RAGCHAT_SERVER_URL", "http://127.0.0.1:1")
	t.Setenv("RAGCHAT_CLIENT_TIMEOUT", "1s")
	t.Setenv("RAGCHAT_STATE_DIR", dir)
	t.Setenv("RAGCHAT_LOG_FILE", filepath.Join(dir, "ragchat.log"))
	t.Setenv("RAGCHAT_TAB", "test")

	var closed int
	t.Cleanup(func() { closeLog = nil })

	err := execute(t.Context(), []string{"ping"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not reachable")
	assert.Nil(t, closeLog, "log file is closed even though ping failed")

	closeLog = func() error { closed++; return nil }
	shutdownLogger()
	shutdownLogger()
	assert.Equal(t, 1, closed)
}
