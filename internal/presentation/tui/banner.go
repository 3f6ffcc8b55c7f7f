package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the Parley ASCII art banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	// Teal to indigo
	lines := []struct {
		text  string
		color string
	}{
		{"  ____            _            ", "#2dd4bf"},
		{" |  _ \\ __ _ _ __| | ___ _   _ ", "#22d3ee"},
		{" | |_) / _` | '__| |/ _ \\ | | |", "#38bdf8"},
		{" |  __/ (_| | |  | |  __/ |_| |", "#60a5fa"},
		{" |_|   \\__,_|_|  |_|\\___|\\__, |", "#818cf8"},
		{"                         |___/ ", "#a78bfa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
