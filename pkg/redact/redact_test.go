package redact

import (
	"strings"
	"testing"
)

func TestRedactDisabled(t *testing.T) {
	SetEnabled(false)
	in := "correo a@b.com y teléfono +54 379 456 7890"
	if got := Text(in); got != in {
		t.Fatalf("expected no redaction, got %q", got)
	}
}

func TestRedactEnabled(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	in := "correo a@b.com y teléfono +54 379 456 7890"
	got := Text(in)
	if got == in {
		t.Fatalf("expected redaction")
	}
	for _, want := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output %q", want, got)
		}
	}
}

func TestRedactCardAndAttr(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	got := Text("tarjeta 4111 1111 1111 1111")
	if !strings.Contains(got, "[REDACTED_CARD]") {
		t.Fatalf("expected card redaction, got %q", got)
	}
	attr := String("text", "a@b.com")
	if attr.Value.String() != "[REDACTED_EMAIL]" {
		t.Fatalf("unexpected attr value %q", attr.Value.String())
	}
}
