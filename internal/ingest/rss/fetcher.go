// Package rss reads materials from RSS and Atom feeds.
package rss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/ingest"
)

// ErrUnexpectedStatus is returned for non-2xx responses.
var ErrUnexpectedStatus = errors.New("unexpected http status")

const (
	maxFeedBytes    = 10 << 20
	maxArticleBytes = 5 << 20
	acceptHeader    = "application/rss+xml, application/atom+xml, text/xml;q=0.9, */*;q=0.8"
	defaultTimeout  = 30 * time.Second
)

// Config configures a Fetcher.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// FetchArticles enables readability extraction of the linked page for
	// items that carry no content.
	FetchArticles bool
}

// Fetcher implements ingest.Fetcher for RSS sources.
type Fetcher struct {
	client *http.Client
	cfg    Config
	logger *zerolog.Logger
}

var _ ingest.Fetcher = (*Fetcher)(nil)

// New creates a Fetcher. A nil client gets a default one with cfg.Timeout.
func New(client *http.Client, cfg Config, logger *zerolog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	l := logger.With().Str("component", "rss").Logger()

	return &Fetcher{client: client, cfg: cfg, logger: &l}
}

// Fetch downloads and parses the feed of source.
func (f *Fetcher) Fetch(ctx context.Context, source domain.Source) ([]domain.Material, error) {
	body, err := f.get(ctx, source.URL, acceptHeader, maxFeedBytes)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", source.URL, err)
	}

	materials := make([]domain.Material, 0, len(feed.Items))

	for _, item := range feed.Items {
		if item == nil || strings.TrimSpace(item.Link) == "" {
			continue
		}

		materials = append(materials, f.toMaterial(ctx, item, source))
	}

	f.logger.Debug().Str("source", source.URL).Int("items", len(materials)).Msg("feed parsed")

	return materials, nil
}

func (f *Fetcher) toMaterial(ctx context.Context, item *gofeed.Item, source domain.Source) domain.Material {
	content := item.Content
	if strings.TrimSpace(content) == "" && f.cfg.FetchArticles {
		content = f.articleText(ctx, item.Link)
	}

	return domain.Material{
		URL:        strings.TrimSpace(item.Link),
		Title:      ingest.CleanText(item.Title),
		Text:       ingest.ComposeText(item.Title, item.Description, content),
		Category:   source.Category,
		Date:       itemDate(item),
		SourceType: domain.SourceTypeRSS,
	}
}

func itemDate(item *gofeed.Item) string {
	switch {
	case item.PublishedParsed != nil:
		return ingest.FormatDate(*item.PublishedParsed)
	case item.UpdatedParsed != nil:
		return ingest.FormatDate(*item.UpdatedParsed)
	case item.Published != "":
		return ingest.NormalizeDate(item.Published)
	default:
		return ingest.NormalizeDate(item.Updated)
	}
}

// articleText returns the readable text of the page, or "" on any failure.
func (f *Fetcher) articleText(ctx context.Context, link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}

	body, err := f.get(ctx, link, "text/html", maxArticleBytes)
	if err != nil {
		f.logger.Debug().Err(err).Str("url", link).Msg("article fetch failed")
		return ""
	}
	defer body.Close()

	article, err := readability.FromReader(body, u)
	if err != nil {
		f.logger.Debug().Err(err).Str("url", link).Msg("readability failed")
		return ""
	}

	return article.TextContent
}

type limitedBody struct {
	io.Reader
	io.Closer
}

func (f *Fetcher) get(ctx context.Context, rawURL, accept string, limit int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", rawURL, err)
	}

	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	req.Header.Set("Accept", accept)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, rawURL, resp.StatusCode)
	}

	return limitedBody{Reader: io.LimitReader(resp.Body, limit), Closer: resp.Body}, nil
}
