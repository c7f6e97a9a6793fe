package turn

import (
	"fmt"
	"strings"
)

// Strategy decides whether an interim hypothesis is enough to barge in.
// Final results always interrupt.
type Strategy interface {
	Name() string
	BargeIn(interim string) bool
}

// AggressiveStrategy interrupts on the first non-empty interim hypothesis.
type AggressiveStrategy struct{}

func (AggressiveStrategy) Name() string { return "aggressive" }
func (AggressiveStrategy) BargeIn(interim string) bool {
	return strings.TrimSpace(interim) != ""
}

// PoliteStrategy ignores interim hypotheses and waits for the final result.
type PoliteStrategy struct{}

func (PoliteStrategy) Name() string        { return "polite" }
func (PoliteStrategy) BargeIn(string) bool { return false }

// WordThresholdStrategy interrupts once the interim hypothesis has MinWords words,
// which keeps short noise bursts from cancelling a valid answer.
type WordThresholdStrategy struct {
	MinWords int
}

func (WordThresholdStrategy) Name() string { return "words" }
func (s WordThresholdStrategy) BargeIn(interim string) bool {
	min := s.MinWords
	if min <= 0 {
		min = 1
	}
	return len(strings.Fields(interim)) >= min
}

// StrategyByName resolves a configured strategy name.
func StrategyByName(name string, minWords int) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "aggressive":
		return AggressiveStrategy{}, nil
	case "polite":
		return PoliteStrategy{}, nil
	case "words":
		return WordThresholdStrategy{MinWords: minWords}, nil
	default:
		return nil, fmt.Errorf("unknown turn strategy %q", name)
	}
}
