package cli

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/ragchat/internal/client"
	"github.com/raphaelgruber/ragchat/internal/conversation"
	"github.com/raphaelgruber/ragchat/internal/dispatch"
)

// Theme holds the color scheme for the transcript.
type Theme struct {
	User    lipgloss.Color
	Reply   lipgloss.Color
	Notice  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	User:    lipgloss.Color("#5FAFD7"), // light blue
	Reply:   lipgloss.Color("#D0D0D0"), // light gray
	Notice:  lipgloss.Color("#FFAF00"), // amber
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

var theme = defaultTheme

// Style functions for dynamic theming
func (t Theme) userStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.User).Bold(true)
}

func (t Theme) replyStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Reply)
}

func (t Theme) noticeStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Notice).Italic(true)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// renderTurn formats one transcript turn.
func (t Theme) renderTurn(turn conversation.Turn) string {
	switch turn.Role {
	case conversation.RoleUser:
		return t.userStyle().Render("you ›") + " " + turn.Text
	case conversation.RoleNotice:
		return t.noticeStyle().Render("bot › " + turn.Text)
	default:
		if body, ok := renderMarkdown(turn.Text); ok {
			return t.successStyle().Render("bot ›") + "\n" + body
		}
		return t.successStyle().Render("bot ›") + " " + t.replyStyle().Render(turn.Text)
	}
}

// replyMsg carries a turn appended while the send is still running.
type replyMsg struct {
	turn conversation.Turn
}

// sentMsg carries the finished outcome.
type sentMsg struct {
	outcome dispatch.Outcome
}

// sendModel is the bubbletea model shown while a turn is in flight.
type sendModel struct {
	run     func() dispatch.Outcome
	spinner spinner.Model
	theme   Theme
	reply   *conversation.Turn
	outcome *dispatch.Outcome
}

// newSendModel creates a model that runs send in the background.
func newSendModel(send func() dispatch.Outcome) sendModel {
	return sendModel{
		run:     send,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		theme:   theme,
	}
}

// Init starts the spinner and the send.
func (m sendModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg { return sentMsg{outcome: m.run()} },
	)
}

// Update handles messages and returns the updated model.
func (m sendModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case replyMsg:
		m.reply = &msg.turn
		return m, nil

	case sentMsg:
		m.outcome = &msg.outcome
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	// Keys are ignored: an in-flight send cannot be cancelled.
	return m, nil
}

// View renders the reply (once known) and the spinner.
func (m sendModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m sendModel) renderContent() string {
	var b strings.Builder
	if m.reply != nil {
		b.WriteString(m.theme.renderTurn(*m.reply))
		b.WriteString("\n")
	}
	if m.outcome != nil {
		return b.String()
	}

	label := "thinking..."
	if m.reply != nil {
		label = "saving..."
	}
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.theme.hintStyle().Render(label))
	return b.String()
}

// sendWithProgress sends one turn, showing a spinner on a terminal.
// Turns appended after the user's own are printed as soon as they exist.
func sendWithProgress(ctx context.Context, text string, files []client.File) (dispatch.Outcome, error) {
	send := func() dispatch.Outcome { return ctl.Send(ctx, text, files) }

	if !stdoutIsTerminal() {
		ctl.Observe(func(t conversation.Turn) {
			if t.Role != conversation.RoleUser {
				fmt.Println(theme.renderTurn(t))
			}
		})
		defer ctl.Observe(nil)
		return send(), nil
	}

	p := tea.NewProgram(newSendModel(send))
	ctl.Observe(func(t conversation.Turn) {
		if t.Role != conversation.RoleUser {
			p.Send(replyMsg{turn: t})
		}
	})
	defer ctl.Observe(nil)

	finalModel, err := p.Run()
	if err != nil {
		return dispatch.Outcome{}, fmt.Errorf("progress UI error: %w", err)
	}
	m, ok := finalModel.(sendModel)
	if !ok || m.outcome == nil {
		return dispatch.Outcome{}, fmt.Errorf("send did not complete")
	}
	return *m.outcome, nil
}

// reportOutcome prints what the transcript does not already show.
func reportOutcome(out dispatch.Outcome) {
	switch out.Status {
	case dispatch.StatusRejected:
		fmt.Println(theme.hintStyle().Render(out.Err.Error()))
	case dispatch.StatusDiscarded:
		fmt.Println(theme.hintStyle().Render("conversation changed, reply dropped"))
	}
	if verbose && out.SyncErr != nil {
		fmt.Println(theme.hintStyle().Render("not saved: " + out.SyncErr.Error()))
	}
}
