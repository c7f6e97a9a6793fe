package presenter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/harunnryd/asisten/pkg/assistant"
)

func TestConsolePrintsLabelledLines(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, Options{})
	c.OnEvent(assistant.Event{Kind: assistant.UserSpoke, Text: "hola"})
	c.OnEvent(assistant.Event{Kind: assistant.AssistantResponding, Text: "hola"})
	c.OnEvent(assistant.Event{Kind: assistant.AssistantResponded, Text: "buenas"})
	c.OnEvent(assistant.Event{Kind: assistant.ErrorOccurred, Text: "No se pudo reconocer el audio"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	for i, want := range []string{"[Tú] hola", "[Asistente] buenas", "[Error] No se pudo reconocer el audio"} {
		if !strings.Contains(lines[i], want) {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want)
		}
	}
}

func TestConsoleShowsThinkingWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, Options{ShowThinking: true})
	c.OnEvent(assistant.Event{Kind: assistant.AssistantResponding})
	if !strings.Contains(buf.String(), "Pensando") {
		t.Fatalf("expected thinking line, got %q", buf.String())
	}
}
