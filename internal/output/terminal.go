package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Terminal is a status surface for local runs. On a TTY it redraws the status in
// place; elsewhere every edit is appended as plain lines.
type Terminal struct {
	mu       sync.Mutex
	w        io.Writer
	tty      bool
	width    int
	rendered int
	history  []string
}

func NewTerminal(w io.Writer) *Terminal {
	t := &Terminal{w: w, width: 80}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.tty = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			t.width = width
		}
	}
	return t
}

func (t *Terminal) Edit(_ context.Context, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, text)

	lines := strings.Split(text, "\n")
	if !t.tty {
		_, err := fmt.Fprintln(t.w, text)
		return err
	}
	if t.rendered > 0 {
		fmt.Fprintf(t.w, "\033[%dA\033[J", t.rendered)
	}
	style := styleFor(text)
	for _, line := range lines {
		if _, err := fmt.Fprintln(t.w, style.Render(clip(line, t.width-2))); err != nil {
			return err
		}
	}
	// terminal states stay on screen; the next edit starts below them
	if isFinal(text) {
		t.rendered = 0
	} else {
		t.rendered = len(lines)
	}
	return nil
}

// History returns every text the surface was asked to show, oldest first.
func (t *Terminal) History() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.history...)
}

func styleFor(text string) lipgloss.Style {
	switch {
	case strings.HasPrefix(text, "✅"):
		return successStyle
	case strings.HasPrefix(text, "❌"):
		return errorStyle
	case strings.HasPrefix(text, "⬇️"), strings.HasPrefix(text, "📥"):
		return pendingStyle
	case strings.HasPrefix(text, "🗜"), strings.HasPrefix(text, "📤"):
		return infoStyle
	default:
		return detailStyle
	}
}

func isFinal(text string) bool {
	return strings.HasPrefix(text, "✅") || strings.HasPrefix(text, "❌")
}

func clip(line string, width int) string {
	if width <= 0 {
		return line
	}
	r := []rune(line)
	if len(r) <= width {
		return line
	}
	return string(r[:width-1]) + "…"
}
