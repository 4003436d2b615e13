package cli

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/ragchat/internal/client"
	"github.com/raphaelgruber/ragchat/internal/dispatch"
	"github.com/spf13/cobra"
)

var sendAttach []string

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send one message in this terminal's conversation",
	Long: `Send one message and print the reply. The message continues the
conversation open in this terminal, or starts a new one.

Examples:
  ragchat send "What changed in the Q3 report?"
  ragchat send "Summarize these" --attach notes.pdf --attach data.csv`,
	Annotations: map[string]string{routeAnnotation: "auth"},
	RunE:        runSend,
}

func init() {
	sendCmd.Flags().StringArrayVarP(&sendAttach, "attach", "a", nil, "file to attach (repeatable)")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	text := strings.Join(args, " ")

	files, err := readAttachments(sendAttach)
	if err != nil {
		return err
	}

	if _, err := ctl.Resume(ctx); err != nil {
		return fmt.Errorf("resume conversation %s: %s (retry, or run 'ragchat new' to start over)",
			ctl.CurrentID(), describeError(err))
	}
	out, err := sendWithProgress(ctx, text, files)
	if err != nil {
		return err
	}
	reportOutcome(out)

	switch out.Status {
	case dispatch.StatusRejected:
		return out.Err
	case dispatch.StatusFailed:
		return fmt.Errorf("send failed: %w", out.Err)
	}
	return nil
}

// readAttachments loads files from disk for a multipart send.
func readAttachments(paths []string) ([]client.File, error) {
	files := make([]client.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		ct := mime.TypeByExtension(filepath.Ext(p))
		if ct == "" {
			ct = http.DetectContentType(data)
		}
		files = append(files, client.File{
			Name:        filepath.Base(p),
			ContentType: ct,
			Data:        data,
		})
	}
	return files, nil
}
