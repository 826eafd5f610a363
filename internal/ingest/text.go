package ingest

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// DateLayout is the storage format of material dates.
const DateLayout = "2006-01-02"

// TitleRunes is the length of titles derived from message text.
const TitleRunes = 100

var knownDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02 15:04:05",
	DateLayout,
}

// NormalizeDate converts a published date to YYYY-MM-DD. Known feed layouts
// are tried first, then free-form parsing. Unparseable input is returned
// unchanged.
func NormalizeDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return raw
	}

	for _, layout := range knownDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout)
		}
	}

	if t, err := dateparse.ParseAny(s); err == nil {
		return t.Format(DateLayout)
	}

	return raw
}

// FormatDate renders t in the storage date format.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// StripHTML returns the visible text of an HTML fragment.
func StripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}

	var sb strings.Builder

	z := html.NewTokenizer(strings.NewReader(fragment))
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "li":
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if n := string(name); (n == "script" || n == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

// CleanText strips markup, applies NFC normalization and collapses whitespace.
func CleanText(s string) string {
	s = StripHTML(s)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	s = norm.NFC.String(s)

	return strings.Join(strings.Fields(s), " ")
}

// ComposeText builds the stored material text from its parts, skipping empty
// ones and parts already contained in the previous one.
func ComposeText(parts ...string) string {
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = CleanText(p)
		if p == "" {
			continue
		}

		if n := len(out); n > 0 && strings.Contains(out[n-1], p) {
			continue
		}

		out = append(out, p)
	}

	return strings.Join(out, " ")
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	return string([]rune(s)[:n])
}
