package errorsx

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonGenerate)
	if Reason(err) != ReasonGenerate {
		t.Fatalf("expected reason %s, got %s", ReasonGenerate, Reason(err))
	}
	if !HasReason(err, ReasonGenerate) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonRecognitionStart)
	second := Wrap(first, ReasonGenerate)
	if Reason(second) != ReasonRecognitionStart {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestWrapfKeepsChainAndReason(t *testing.T) {
	base := assertErr{}
	err := Wrapf(base, ReasonToolCall, "tool %s", "get_weather")
	if !strings.HasPrefix(err.Error(), "tool get_weather: boom") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to match base")
	}
	if Reason(err) != ReasonToolCall {
		t.Fatalf("expected reason %s, got %s", ReasonToolCall, Reason(err))
	}

	inner := Wrap(base, ReasonToolTimeout)
	outer := Wrapf(inner, ReasonToolCall, "retry")
	if Reason(outer) != ReasonToolTimeout {
		t.Fatalf("expected inner reason kept, got %s", Reason(outer))
	}
}

func TestNilAndUnknown(t *testing.T) {
	if Wrap(nil, ReasonSpeak) != nil || Wrapf(nil, ReasonSpeak, "x") != nil {
		t.Fatalf("expected nil passthrough")
	}
	if Reason(errors.New("plain")) != ReasonUnknown {
		t.Fatalf("expected unknown reason for plain errors")
	}
	if got := New(ReasonConfig, "bad").Error(); got != "bad" {
		t.Fatalf("unexpected message %q", got)
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
