// Package tokens estimates how many model tokens a text costs.
//
// The exact scheme encodes text with a tiktoken BPE. When the encoding cannot
// be loaded or encoding fails, the counter falls back to a rune-based
// approximation of four runes per token, rounded down and never below one for
// non-empty text. Counting never fails.
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"
)

// Scheme names a tokenization scheme.
type Scheme string

const (
	// SchemeCL100K is the BPE used by GPT-4 class models. DeepSeek and Gemini
	// tokenizers differ slightly but stay within a few percent on prose.
	SchemeCL100K Scheme = "cl100k_base"
	// SchemeApprox skips the tokenizer and always uses the approximation.
	SchemeApprox Scheme = "approx"
)

const runesPerToken = 4

type encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
}

// Counter counts tokens under one scheme. Safe for concurrent use.
type Counter struct {
	scheme Scheme
	load   func() (encoder, error)
	logger *zerolog.Logger

	once sync.Once
	enc  encoder
}

// New returns a counter for the scheme.
func New(scheme Scheme, logger *zerolog.Logger) *Counter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Counter{
		scheme: scheme,
		logger: logger,
		load: func() (encoder, error) {
			return tiktoken.GetEncoding(string(scheme))
		},
	}
}

// Scheme returns the configured scheme.
func (c *Counter) Scheme() Scheme {
	return c.scheme
}

// Count returns the token cost of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}

	enc := c.encoder()
	if enc == nil {
		return Approximate(text)
	}

	n, ok := c.encode(enc, text)
	if !ok {
		return Approximate(text)
	}

	return n
}

func (c *Counter) encoder() encoder {
	if c.scheme == SchemeApprox {
		return nil
	}

	c.once.Do(func() {
		enc, err := c.load()
		if err != nil {
			c.logger.Warn().Err(err).Str("scheme", string(c.scheme)).Msg("tokenizer unavailable, using approximation")
			return
		}

		c.enc = enc
	})

	return c.enc
}

func (c *Counter) encode(enc encoder, text string) (n int, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn().Interface("panic", r).Msg("tokenizer failed, using approximation")

			ok = false
		}
	}()

	return len(enc.Encode(text, nil, nil)), true
}

// Approximate estimates tokens as runes/4 rounded down, at least 1 for
// non-empty text.
func Approximate(text string) int {
	if text == "" {
		return 0
	}

	n := utf8.RuneCountInString(text) / runesPerToken
	if n < 1 {
		return 1
	}

	return n
}
