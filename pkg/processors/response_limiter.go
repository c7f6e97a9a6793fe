package processors

import (
	"strings"
	"unicode"
)

type ResponseLimiterConfig struct {
	MaxChars     int
	MaxSentences int
}

// ResponseLimiter keeps spoken replies short enough for a voice turn. A zero
// limit disables that bound.
type ResponseLimiter struct {
	cfg ResponseLimiterConfig
}

func NewResponseLimiter(cfg ResponseLimiterConfig) *ResponseLimiter {
	cfg.MaxChars = max(cfg.MaxChars, 0)
	cfg.MaxSentences = max(cfg.MaxSentences, 0)
	return &ResponseLimiter{cfg: cfg}
}

func (r *ResponseLimiter) Name() string { return "response_limiter" }

// Enabled reports whether any bound is configured.
func (r *ResponseLimiter) Enabled() bool {
	return r.cfg.MaxChars > 0 || r.cfg.MaxSentences > 0
}

// Limit truncates text to the configured sentence and character budget.
// With no bounds configured the text is returned untouched.
func (r *ResponseLimiter) Limit(text string) string {
	if !r.Enabled() {
		return text
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	truncated := truncateSentences(text, r.cfg.MaxSentences)
	return truncateChars(truncated, r.cfg.MaxChars)
}

func truncateSentences(text string, maxSentences int) string {
	if maxSentences <= 0 {
		return text
	}
	var out strings.Builder
	count := 0
	runes := []rune(text)
	for i, r := range runes {
		out.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// "3.5" and "..." do not end a sentence
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		count++
		if count >= maxSentences {
			break
		}
	}
	result := strings.TrimSpace(out.String())
	if result == "" {
		return text
	}
	return result
}

// truncateChars cuts at a word boundary without splitting a rune.
func truncateChars(text string, maxChars int) string {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}
	cut := string(runes[:maxChars])
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > maxChars/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}
