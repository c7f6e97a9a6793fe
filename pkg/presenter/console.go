package presenter

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/harunnryd/asisten/pkg/assistant"
)

// Console prints lifecycle notifications as labelled, colored lines.
type Console struct {
	mu         sync.Mutex
	out        io.Writer
	user       lipgloss.Style
	thinking   lipgloss.Style
	assistant  lipgloss.Style
	failure    lipgloss.Style
	showThinks bool
}

type Options struct {
	// ShowThinking prints a line when a turn starts generating.
	ShowThinking bool
}

func NewConsole(out io.Writer, opts Options) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:        out,
		user:       r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		thinking:   r.NewStyle().Faint(true).Italic(true),
		assistant:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		failure:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		showThinks: opts.ShowThinking,
	}
}

func (c *Console) OnEvent(ev assistant.Event) {
	var line string
	switch ev.Kind {
	case assistant.UserSpoke:
		line = c.user.Render("[Tú]") + " " + ev.Text
	case assistant.AssistantResponding:
		if !c.showThinks {
			return
		}
		line = c.thinking.Render("[Pensando...]")
	case assistant.AssistantResponded:
		line = c.assistant.Render("[Asistente]") + " " + ev.Text
	case assistant.ErrorOccurred:
		line = c.failure.Render("[Error]") + " " + ev.Text
	default:
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, line)
}

var _ assistant.Listener = (*Console)(nil)
