// Package ansirender turns raw terminal output bytes into plain text for
// LLM context assembly, by feeding the bytes through a real terminal
// emulator rather than hand-rolling cursor/scroll semantics.
//
// Adapted from the teacher's VTerm wrapper (internal/egg/vterm.go): same
// emulator and scrollback-capture idiom, repurposed away from its original
// live reconnect-snapshot use (TUI rendering is explicitly out of scope
// here) and towards one-shot "render this command's output as text".
package ansirender

import (
	"strings"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"

	"github.com/omnish-sh/omnish/internal/ansiutil"
)

const defaultCols = 220
const defaultRows = 50

// renderer wraps a single-use vt.Emulator instance plus captured scrollback.
type renderer struct {
	mu         sync.Mutex
	emu        *vt.Emulator
	scrollback []string
}

func newRenderer(cols, rows int) *renderer {
	r := &renderer{emu: vt.NewEmulator(cols, rows)}
	r.emu.SetCallbacks(vt.Callbacks{
		ScrollOut: func(lines []uv.Line) {
			for _, line := range lines {
				r.scrollback = append(r.scrollback, line.Render())
			}
		},
	})
	return r
}

// PlainText renders raw output bytes (which may contain ANSI cursor motion,
// color codes, and OSC 133 markers) into scrollback-ordered plain text
// suitable for feeding to an LLM. Any escape sequences survive in the
// emulator's rendering and are stripped afterward.
func PlainText(data []byte) string {
	r := newRenderer(defaultCols, defaultRows)
	r.mu.Lock()
	_, _ = r.emu.Write(data)
	lines := append([]string{}, r.scrollback...)
	lines = append(lines, splitScreenLines(r.emu.Render())...)
	r.mu.Unlock()
	_ = r.emu.Close()

	var b strings.Builder
	for _, line := range lines {
		plain := strings.TrimRight(ansiutil.Strip([]byte(line)), " ")
		if plain == "" {
			continue
		}
		b.WriteString(plain)
		b.WriteByte('\n')
	}
	return b.String()
}

func splitScreenLines(rendered string) []string {
	return strings.Split(rendered, "\r\n")
}
