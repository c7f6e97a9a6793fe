package configutil

import (
	"slices"
	"strings"
)

// Schema lists the keys a provider accepts in its settings map. Key matching
// ignores case, underscores and hyphens, so "voiceId" satisfies "voice_id".
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// SchemaError reports every offending key at once so a config can be fixed in
// one pass.
type SchemaError struct {
	Path    string
	Missing []string
	Unknown []string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	if len(e.Missing) > 0 {
		b.WriteString("missing: ")
		b.WriteString(strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		if len(e.Missing) > 0 {
			b.WriteString("; ")
		}
		b.WriteString("unknown: ")
		b.WriteString(strings.Join(e.Unknown, ", "))
	}
	return b.String()
}

// Validate checks input and prefixes failures with path,
// e.g. "vendors.tts.settings: missing: voice_id".
func (s Schema) Validate(path string, input map[string]any) error {
	err := s.check(input)
	if err == nil {
		return nil
	}
	err.Path = path
	return err
}

// ValidateSettings is Validate without a path prefix.
func ValidateSettings(input map[string]any, schema Schema) error {
	if err := schema.check(input); err != nil {
		return err
	}
	return nil
}

func (s Schema) check(input map[string]any) *SchemaError {
	present := make(map[string]any, len(input))
	for k, v := range input {
		present[normalizeKey(k)] = v
	}
	known := func(key string) bool {
		nk := normalizeKey(key)
		return slices.ContainsFunc(s.Required, func(r string) bool { return normalizeKey(r) == nk }) ||
			slices.ContainsFunc(s.Optional, func(o string) bool { return normalizeKey(o) == nk })
	}

	out := &SchemaError{}
	for _, key := range s.Required {
		if v, ok := present[normalizeKey(key)]; !ok || blank(v) {
			out.Missing = append(out.Missing, key)
		}
	}
	if !s.AllowUnknown {
		for k := range input {
			if !known(k) {
				out.Unknown = append(out.Unknown, k)
			}
		}
	}
	if len(out.Missing) == 0 && len(out.Unknown) == 0 {
		return nil
	}
	slices.Sort(out.Missing)
	slices.Sort(out.Unknown)
	return out
}

func blank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}
