package deepgram

import (
	"strings"

	"github.com/harunnryd/asisten/pkg/adapters/stt"
)

// assembler joins is_final segments into one utterance. speech_final or
// UtteranceEnd closes the utterance as a Final; an UtteranceEnd after
// detected speech with nothing transcribed is a NoMatch.
type assembler struct {
	segments []string
	heard    bool
}

func (a *assembler) transcript(text string, isFinal, speechFinal bool) []stt.Event {
	text = strings.TrimSpace(text)
	var out []stt.Event
	if text != "" {
		a.heard = true
		if isFinal {
			a.segments = append(a.segments, text)
			if !speechFinal {
				out = append(out, stt.Interim(a.joined("")))
			}
		} else {
			out = append(out, stt.Interim(a.joined(text)))
		}
	}
	if speechFinal {
		if final := a.joined(""); final != "" {
			out = append(out, stt.Final(final))
		}
		a.reset()
	}
	return out
}

func (a *assembler) speechStarted() {
	a.heard = true
}

func (a *assembler) utteranceEnd() []stt.Event {
	defer a.reset()
	if final := a.joined(""); final != "" {
		return []stt.Event{stt.Final(final)}
	}
	if a.heard {
		return []stt.Event{stt.NoMatch()}
	}
	return nil
}

func (a *assembler) joined(current string) string {
	parts := a.segments
	if current != "" {
		parts = append(append([]string(nil), parts...), current)
	}
	return strings.Join(parts, " ")
}

func (a *assembler) reset() {
	a.segments = nil
	a.heard = false
}
