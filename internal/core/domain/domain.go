package domain

import "time"

// Source types.
const (
	SourceTypeRSS      = "rss"
	SourceTypeTelegram = "telegram"
)

// Material is one retrieved content unit: an article or a channel post.
type Material struct {
	ID         string
	URL        string
	Title      string
	Text       string
	Category   string
	Date       string // YYYY-MM-DD when the source date could be parsed
	SourceType string
	Score      float32 // retrieval relevance, zero for date-range lookups
}

// Source is a feed or channel the ingester reads from.
type Source struct {
	ID        string
	URL       string
	Type      string
	Category  string
	CreatedAt time.Time
}

// Subscription holds the categories a user receives daily digests for.
type Subscription struct {
	UserID     int64
	Categories []string
}

// Has reports whether the subscription contains the category.
func (s Subscription) Has(category string) bool {
	for _, c := range s.Categories {
		if c == category {
			return true
		}
	}

	return false
}
