package processors

import (
	"regexp"
	"sort"
	"strings"
)

type TextNormalizerConfig struct {
	Replacements map[string]string
}

type replacement struct {
	re *regexp.Regexp
	to string
}

// TextNormalizer performs case-insensitive phrase replacements so that the
// generator sees consistent domain terms.
type TextNormalizer struct {
	rules []replacement
}

func NewTextNormalizer(cfg TextNormalizerConfig) *TextNormalizer {
	keys := make([]string, 0, len(cfg.Replacements))
	for from := range cfg.Replacements {
		if strings.TrimSpace(from) != "" {
			keys = append(keys, from)
		}
	}
	// longer phrases win over their prefixes
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	rules := make([]replacement, 0, len(keys))
	for _, from := range keys {
		rules = append(rules, replacement{
			re: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(from)),
			to: cfg.Replacements[from],
		})
	}
	return &TextNormalizer{rules: rules}
}

func (t *TextNormalizer) Name() string { return "text_normalizer" }

// Normalize applies every replacement to text.
func (t *TextNormalizer) Normalize(text string) string {
	if t == nil || len(t.rules) == 0 {
		return text
	}
	out := text
	for _, r := range t.rules {
		out = r.re.ReplaceAllLiteralString(out, r.to)
	}
	return out
}
