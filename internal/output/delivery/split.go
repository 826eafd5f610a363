// Package delivery formats analysis results as Telegram messages and sends them.
package delivery

import (
	"regexp"
	"strings"
	"unicode/utf16"
)

// MaxMessageLength is the Telegram text limit in UTF-16 code units.
const MaxMessageLength = 4096

var (
	sentenceEnd = regexp.MustCompile(`[.!?]\s+`)
	wordRegex   = regexp.MustCompile(`\S+\s*`)
)

// textLen returns the length Telegram applies its limit to.
func textLen(s string) int {
	n := 0

	for _, r := range s {
		n += utf16.RuneLen(r)
	}

	return n
}

// SplitMessage splits text into parts of at most limit UTF-16 units. Text
// that fits is returned whole. Otherwise sentences (ending in . ! or ? and
// whitespace) are packed greedily, overlong sentences are split by words and
// overlong words by characters. Whitespace between sentences is kept.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}

	if textLen(text) <= limit {
		return []string{text}
	}

	s := &splitter{limit: limit}

	for _, sentence := range splitSentences(text) {
		if textLen(sentence) <= limit {
			s.add(sentence)
			continue
		}

		for _, word := range wordRegex.FindAllString(sentence, -1) {
			if textLen(word) <= limit {
				s.add(word)
				continue
			}

			for _, piece := range splitUnits(word, limit) {
				s.add(piece)
			}
		}
	}

	s.flush()

	return s.parts
}

type splitter struct {
	limit  int
	parts  []string
	cur    strings.Builder
	curLen int
}

func (s *splitter) add(piece string) {
	n := textLen(piece)
	if s.curLen+n > s.limit {
		s.flush()
	}

	s.cur.WriteString(piece)
	s.curLen += n
}

func (s *splitter) flush() {
	if part := strings.TrimSpace(s.cur.String()); part != "" {
		s.parts = append(s.parts, part)
	}

	s.cur.Reset()
	s.curLen = 0
}

// splitSentences cuts text after every sentence terminator, keeping the
// whitespace that follows it with the preceding sentence.
func splitSentences(text string) []string {
	var out []string

	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = append(out, text[start:loc[1]])
		start = loc[1]
	}

	if start < len(text) {
		out = append(out, text[start:])
	}

	return out
}

// splitUnits cuts s into pieces of at most limit UTF-16 units without
// breaking surrogate pairs.
func splitUnits(s string, limit int) []string {
	var (
		out   []string
		start int
		units int
	)

	for i, r := range s {
		n := utf16.RuneLen(r)
		if units+n > limit && units > 0 {
			out = append(out, s[start:i])
			start = i
			units = 0
		}

		units += n
	}

	if start < len(s) {
		out = append(out, s[start:])
	}

	return out
}
