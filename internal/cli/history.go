package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/ragchat/internal/history"
	"github.com/spf13/cobra"
)

var historyDeleteForce bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List, show, or delete saved conversations",
	Long: `Work with conversations saved on the server.

Subcommands:
  list    List saved conversations, newest first (default)
  show    Print a saved conversation
  delete  Delete a saved conversation

Examples:
  ragchat history
  ragchat history show 2024-05-01-120000
  ragchat history delete 2024-05-01-120000 --force`,
	Annotations: map[string]string{routeAnnotation: "auth"},
	Args:        cobra.NoArgs,
	RunE:        runHistoryList,
}

var historyListCmd = &cobra.Command{
	Use:         "list",
	Short:       "List saved conversations",
	Annotations: map[string]string{routeAnnotation: "auth"},
	Args:        cobra.NoArgs,
	RunE:        runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:         "show <chat-id>",
	Short:       "Print a saved conversation",
	Annotations: map[string]string{routeAnnotation: "auth"},
	Args:        cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showChat(cmd.Context(), args[0])
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <chat-id>",
	Short: "Delete a saved conversation",
	Long: `Delete a saved conversation. If it is the conversation open in this
terminal, the terminal starts a new one.
Requires confirmation unless --force is used.`,
	Annotations: map[string]string{routeAnnotation: "auth"},
	Args:        cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := ctl.Resume(ctx); err != nil {
			logger.Debug("resume before delete failed", "error", err)
		}
		if err := ctl.History.Refresh(ctx); err != nil {
			logger.Debug("history refresh before delete failed", "error", err)
		}
		return deleteChat(ctx, args[0], historyDeleteForce)
	},
}

func init() {
	historyDeleteCmd.Flags().BoolVarP(&historyDeleteForce, "force", "f", false, "skip confirmation")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	if err := ctl.History.Refresh(cmd.Context()); err != nil {
		return fmt.Errorf("load history: %s", describeError(err))
	}
	printHistory()
	return nil
}

func printHistory() {
	items := ctl.History.Items()
	if len(items) == 0 {
		fmt.Println("No saved conversations.")
		return
	}

	current := ctl.Session.ServerID()
	if current == "" {
		current = ctl.CurrentID()
	}
	fmt.Printf("Conversations (%d):\n\n", len(items))
	for _, s := range items {
		mark := "  "
		if s.ServerID == current {
			mark = theme.successStyle().Render("* ")
		}
		created := "unknown date"
		if !s.CreatedAt.IsZero() {
			created = s.CreatedAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("%s%s  %s  %s\n", mark, s.ServerID, theme.hintStyle().Render(created), s.Title)
	}
}

// showChat opens a chat in this terminal and prints its transcript.
func showChat(ctx context.Context, id string) error {
	if err := ctl.Open(ctx, id); err != nil {
		return fmt.Errorf("%s", describeError(err))
	}
	printTranscript()
	return nil
}

func printTranscript() {
	if title := ctl.Session.Title(); title != "" {
		fmt.Println(theme.successStyle().Render(title))
		fmt.Println()
	}
	for _, t := range ctl.Session.Turns() {
		fmt.Println(theme.renderTurn(t))
	}
}

// deleteChat deletes a chat, asking first unless force is set.
func deleteChat(ctx context.Context, id string, force bool) error {
	confirmer := history.AlwaysConfirm
	if !force {
		confirmer = func(s history.Summary) bool {
			label := s.ServerID
			if s.Title != "" {
				label = fmt.Sprintf("%s (%s)", s.Title, s.ServerID)
			}
			fmt.Printf("About to delete: %s\n", label)
			return confirm("\nContinue?")
		}
	}

	deleted, err := ctl.History.Delete(ctx, id, confirmer)
	if err != nil {
		fmt.Println(theme.errorStyle().Render("Delete failed, please try again later."))
		return fmt.Errorf("%s", describeError(err))
	}
	if !deleted {
		fmt.Println("Cancelled.")
		return nil
	}
	fmt.Println(theme.successStyle().Render("✓ Deleted " + id))
	return nil
}
