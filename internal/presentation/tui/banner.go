package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the convoflow banner and the bot being simulated.
func PrintBanner(w io.Writer, botID, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{`   ___ ___  _ ____   _____  / _| | _____      __`, "#34d399"},
		{`  / __/ _ \| '_ \ \ / / _ \| |_| |/ _ \ \ /\ / /`, "#2dd4bf"},
		{` | (_| (_) | | | \ V / (_) |  _| | (_) \ V  V / `, "#22d3ee"},
		{`  \___\___/|_| |_|\_/ \___/|_| |_|\___/ \_/\_/  `, "#38bdf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, out.String(fmt.Sprintf("  simulator %s · bot %s · type exit to quit", version, botID)).Faint())
	fmt.Fprintln(w)
}
