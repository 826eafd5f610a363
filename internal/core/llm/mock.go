package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	mockModel        = "mock"
	mockEchoRunes    = 300
	mockThemeMaxRune = 120
)

// mockProvider answers without a network call. It echoes the head of the
// prompt so local runs show which stage produced the text.
type mockProvider struct{}

func NewMockProvider() Provider {
	return &mockProvider{}
}

func (p *mockProvider) Name() ProviderName   { return ProviderMock }
func (p *mockProvider) IsAvailable() bool    { return true }
func (p *mockProvider) Priority() int        { return PriorityMock }
func (p *mockProvider) DefaultModel() string { return mockModel }

func (p *mockProvider) Complete(_ context.Context, req Request) (Completion, error) {
	var text string

	switch req.Task {
	case TaskTheme:
		text = truncateRunes(lastLine(req.User), mockThemeMaxRune)
	default:
		text = fmt.Sprintf("[mock %s]\n%s", req.Task, truncateRunes(req.User, mockEchoRunes))
	}

	recordTokenUsage(ProviderMock, mockModel, req.Task, 0, 0, true)

	return Completion{Text: text, Model: mockModel, Provider: ProviderMock}, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}

	return s
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	return string([]rune(s)[:n])
}
