package cli

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const markdownWrap = 80

// markdown renders assistant replies. Nil means replies print as plain text,
// which keeps piped output free of escape codes.
var markdown *glamour.TermRenderer

func setupMarkdown() {
	if !stdoutIsTerminal() {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(markdownWrap),
	)
	if err != nil {
		logger.Debug("markdown renderer unavailable, printing plain replies", "error", err)
		return
	}
	markdown = r
}

// renderMarkdown reports false when the text should be printed as is.
func renderMarkdown(text string) (string, bool) {
	if markdown == nil {
		return "", false
	}
	out, err := markdown.Render(text)
	if err != nil {
		return "", false
	}
	return strings.Trim(out, "\n"), true
}
