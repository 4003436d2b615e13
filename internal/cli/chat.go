package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/ragchat/internal/dispatch"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat interactively",
	Long: `Start an interactive chat. The conversation open in this terminal is
resumed; every exchange is saved on the server as you go.

Commands inside the chat:
  /new            start a new conversation
  /history        list saved conversations
  /open <id>      open a saved conversation
  /delete <id>    delete a saved conversation
  /attach <path>  attach a file to the next message
  /stats          show backend call statistics
  /quit           leave`,
	Annotations: map[string]string{routeAnnotation: "auth"},
	Args:        cobra.NoArgs,
	RunE:        runChat,
}

var newCmd = &cobra.Command{
	Use:         "new",
	Short:       "Start a new conversation in this terminal",
	Annotations: map[string]string{routeAnnotation: "auth"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl.NewConversation(cmd.Context())
		fmt.Println("Started a new conversation.")
		return nil
	},
}

// repl holds state between lines of an interactive chat.
type repl struct {
	pending []string
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	name, _ := ctl.Auth.Identity()
	resumed, err := ctl.Resume(ctx)
	switch {
	case err != nil:
		fmt.Println(theme.errorStyle().Render(fmt.Sprintf(
			"Could not load conversation %s: %s", ctl.CurrentID(), describeError(err))))
		fmt.Println(theme.hintStyle().Render("Use /open to retry, or type to start a new conversation."))
	case resumed:
		printTranscript()
	default:
		fmt.Println(theme.hintStyle().Render(fmt.Sprintf("Hi %s. Type a message, or /quit to leave.", name)))
	}
	if err := ctl.History.Refresh(ctx); err != nil {
		logger.Debug("initial history refresh failed", "error", err)
	}

	r := &repl{}
	for {
		line, err := readLine(theme.userStyle().Render("› "))
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if line == "" && len(r.pending) == 0 {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				fmt.Println(theme.errorStyle().Render(err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		r.send(ctx, line)
	}
}

func (r *repl) send(ctx context.Context, text string) {
	files, err := readAttachments(r.pending)
	if err != nil {
		fmt.Println(theme.errorStyle().Render(err.Error()))
		return
	}

	out, err := sendWithProgress(ctx, text, files)
	if err != nil {
		fmt.Println(theme.errorStyle().Render(err.Error()))
		return
	}
	if out.Status != dispatch.StatusRejected {
		r.pending = nil
	}
	reportOutcome(out)
}

// command runs one slash command and reports whether to leave the chat.
func (r *repl) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		ctl.NewConversation(ctx)
		r.pending = nil
		fmt.Println(theme.hintStyle().Render("New conversation."))

	case "/history":
		if err := ctl.History.Refresh(ctx); err != nil {
			return false, fmt.Errorf("load history: %s", describeError(err))
		}
		printHistory()

	case "/open":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /open <chat-id>")
		}
		return false, showChat(ctx, args[0])

	case "/delete":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /delete <chat-id>")
		}
		return false, deleteChat(ctx, args[0], false)

	case "/attach":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: /attach <path>")
		}
		r.pending = append(r.pending, args...)
		fmt.Println(theme.hintStyle().Render(fmt.Sprintf("%d file(s) will be sent with the next message.", len(r.pending))))

	case "/stats":
		printStats()

	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
	return false, nil
}

func printStats() {
	snap := ctl.Metrics.Snapshot()
	fmt.Printf("Backend calls (session %.0fs):\n\n", snap.UptimeSeconds)
	if len(snap.Operations) == 0 {
		fmt.Println("  none yet")
		return
	}
	for _, op := range snap.Operations {
		fmt.Printf("  %-18s %4d calls  %3d errors  avg %6.0fms  max %6dms\n",
			op.Op, op.Count, op.Errors, op.AvgTimeMs, op.MaxTimeMs)
	}
	failing := snap.Failing()
	if len(failing) == 0 {
		return
	}
	fmt.Println()
	for _, op := range failing {
		fmt.Println(theme.errorStyle().Render(fmt.Sprintf("  %s: %s", op.Op, op.FailureSummary())))
		fmt.Println(theme.hintStyle().Render(fmt.Sprintf("    last at %s: %s",
			op.LastErrorAt.Format("15:04:05"), op.LastError)))
	}
}
