package agent

import (
	"strings"
	"unicode"

	"github.com/harunnryd/asisten/pkg/llm"
)

// prune applies the history and token limits, oldest non-system messages first.
func prune(messages []map[string]any, maxHistory, maxTokens int) []map[string]any {
	if len(messages) == 0 {
		return messages
	}
	if maxHistory > 0 {
		messages = pruneByHistory(messages, maxHistory)
	}
	if maxTokens > 0 {
		messages = pruneByTokens(messages, maxTokens)
	}
	return messages
}

func pruneByHistory(messages []map[string]any, maxHistory int) []map[string]any {
	nonSystem := nonSystemIndices(messages)
	if len(nonSystem) <= maxHistory {
		return messages
	}
	toDrop := len(nonSystem) - maxHistory
	drop := make(map[int]struct{}, toDrop)
	for i := 0; i < toDrop; i++ {
		drop[nonSystem[i]] = struct{}{}
	}
	filtered := make([]map[string]any, 0, len(messages)-toDrop)
	for idx, msg := range messages {
		if _, ok := drop[idx]; ok {
			continue
		}
		filtered = append(filtered, msg)
	}
	return filtered
}

// pruneByTokens never drops the newest message.
func pruneByTokens(messages []map[string]any, maxTokens int) []map[string]any {
	for estimateMessagesTokens(messages) > maxTokens {
		nonSystem := nonSystemIndices(messages)
		if len(nonSystem) <= 1 {
			return messages
		}
		dropIdx := nonSystem[0]
		filtered := make([]map[string]any, 0, len(messages)-1)
		for i, msg := range messages {
			if i == dropIdx {
				continue
			}
			filtered = append(filtered, msg)
		}
		messages = filtered
	}
	return messages
}

func nonSystemIndices(messages []map[string]any) []int {
	out := make([]int, 0, len(messages))
	for i, msg := range messages {
		if !strings.EqualFold(llm.Role(msg), llm.RoleSystem) {
			out = append(out, i)
		}
	}
	return out
}

func estimateMessagesTokens(messages []map[string]any) int {
	total := 0
	for _, msg := range messages {
		total += len(splitTokens(llm.Content(msg)))
	}
	return total
}

func splitTokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
