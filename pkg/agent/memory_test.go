package agent

import (
	"testing"

	"github.com/harunnryd/asisten/pkg/llm"
)

func TestPruneKeepsSystemMessages(t *testing.T) {
	msgs := []map[string]any{
		llm.SystemMessage("reglas"),
		llm.UserMessage("uno"),
		llm.AssistantMessage("dos"),
		llm.UserMessage("tres"),
	}
	out := prune(msgs, 1, 0)
	if len(out) != 2 || llm.Role(out[0]) != llm.RoleSystem || llm.Content(out[1]) != "tres" {
		t.Fatalf("unexpected prune result %+v", out)
	}
}

func TestPruneByTokensKeepsNewest(t *testing.T) {
	msgs := []map[string]any{
		llm.UserMessage("uno dos tres cuatro"),
		llm.UserMessage("cinco seis siete ocho nueve diez"),
	}
	out := prune(msgs, 0, 2)
	if len(out) != 1 || llm.Content(out[0]) != "cinco seis siete ocho nueve diez" {
		t.Fatalf("unexpected prune result %+v", out)
	}
}

func TestSplitTokensHandlesAccents(t *testing.T) {
	if got := splitTokens("¿Qué día es Mañana?"); len(got) != 4 {
		t.Fatalf("expected 4 tokens, got %v", got)
	}
}
