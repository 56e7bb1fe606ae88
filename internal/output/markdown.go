package output

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/davsync"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/syncconfig"
)

const (
	defaultMarkdownWidth = 80
	minMarkdownWidth     = 20
)

// TerminalWidth returns the current terminal width or a fallback when unavailable.
func TerminalWidth(fallback int) int {
	if fallback <= 0 {
		fallback = defaultMarkdownWidth
	}

	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}

	if cols := os.Getenv("COLUMNS"); cols != "" {
		if parsed, err := strconv.Atoi(cols); err == nil && parsed > 0 {
			return parsed
		}
	}

	return fallback
}

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// RenderMarkdown renders markdown using Glamour with terminal-aware wrapping.
func RenderMarkdown(text string) (string, error) {
	return RenderMarkdownWithWidth(text, TerminalWidth(defaultMarkdownWidth))
}

// RenderMarkdownWithWidth renders markdown using Glamour with explicit wrapping.
func RenderMarkdownWithWidth(text string, width int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if width < minMarkdownWidth {
		width = minMarkdownWidth
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}

	rendered, err := renderer.Render(text)
	if err != nil {
		return "", err
	}

	return strings.TrimRight(rendered, "\n"), nil
}

// StatusReport builds a markdown summary of the WebDAV sync state. The secret
// is never included.
func StatusReport(cfg *syncconfig.WebDAVConfig, st davsync.Status, recent []davsync.LogEntry) string {
	var sb strings.Builder
	sb.WriteString("# WebDAV sync\n\n")

	if cfg == nil {
		sb.WriteString("Not configured. Run `taskfuchs webdav configure`.\n")
		return sb.String()
	}

	sb.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Server | %s |\n", cfg.ServerURL)
	fmt.Fprintf(&sb, "| User | %s |\n", cfg.Username)
	fmt.Fprintf(&sb, "| Folder | `%s` |\n", cfg.Folder)
	fmt.Fprintf(&sb, "| State | %s |\n", st.State)
	fmt.Fprintf(&sb, "| Last sync | %s |\n", FormatTimeAgo(st.LastSync))
	if cfg.AutoSync {
		fmt.Fprintf(&sb, "| Auto-sync | every %d min |\n", cfg.IntervalMinutes)
	}
	if st.Error != "" {
		fmt.Fprintf(&sb, "\n**Last error:** %s\n", st.Error)
	}

	if len(recent) > 0 {
		sb.WriteString("\n## Recent activity\n\n")
		for _, e := range recent {
			fmt.Fprintf(&sb, "- `%s` **%s** %s\n", e.Timestamp.Local().Format("2006-01-02 15:04"), e.Severity, e.Message)
		}
	}
	return sb.String()
}
