package llm

import "strings"

// DefaultContextSize is used for models missing from the table.
const DefaultContextSize = 64000

// contextWindows lists known context sizes in tokens, matched by prefix,
// longest prefix first.
var contextWindows = []struct {
	prefix string
	size   int
}{
	{"deepseek-reasoner", 64000},
	{"deepseek-chat", 64000},
	{"gpt-4o-mini", 128000},
	{"gpt-4o", 128000},
	{"o1-preview", 128000},
	{"o1-mini", 128000},
	{"gemini-2.0-pro", 2000000},
	{"gemini-2.0-flash", 1000000},
	{"gemini-1.5-pro", 1000000},
	{"gemini-1.5-flash", 1000000},
	{"claude-", 200000},
}

// ContextWindow returns the context size of model in tokens.
func ContextWindow(model string) int {
	m := strings.ToLower(strings.TrimSpace(model))

	for _, w := range contextWindows {
		if strings.HasPrefix(m, w.prefix) {
			return w.size
		}
	}

	return DefaultContextSize
}
