package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const defaultWidth = 80

// NewRenderer returns a function that renders bot markdown (WhatsApp style
// *bold* and _italic_ included) for the terminal. When stdout is not a
// terminal the text is returned unchanged.
func NewRenderer() func(string) (string, error) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return func(s string) (string, error) { return s, nil }
	}

	width := defaultWidth
	if w, _, err := term.GetSize(fd); err == nil && w > 0 && w < width {
		width = w
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return func(s string) (string, error) { return s, nil }
	}

	return func(text string) (string, error) {
		out, err := r.Render(toMarkdown(text))
		if err != nil {
			return text, err
		}
		return strings.TrimRight(out, "\n"), nil
	}
}

// toMarkdown maps chat formatting to markdown: *bold* becomes **bold** and
// line breaks are kept.
func toMarkdown(text string) string {
	var sb strings.Builder
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		sb.WriteString(boldify(line))
		if i < len(lines)-1 {
			sb.WriteString("  \n")
		}
	}
	return sb.String()
}

func boldify(line string) string {
	parts := strings.Split(line, "*")
	if len(parts) < 3 {
		return line
	}
	var sb strings.Builder
	for i, p := range parts {
		if i > 0 {
			if i%2 == 1 && i == len(parts)-1 {
				sb.WriteString("*")
			} else {
				sb.WriteString("**")
			}
		}
		sb.WriteString(p)
	}
	return sb.String()
}
