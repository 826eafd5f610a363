package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>Games</title>
  <link>https://example.com</link>
  <item>
    <title>Новая игра</title>
    <link>https://example.com/a</link>
    <description><![CDATA[<p>Описание <b>игры</b></p>]]></description>
    <content:encoded><![CDATA[Полный текст]]></content:encoded>
    <pubDate>Mon, 06 May 2024 10:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Без ссылки</title>
    <description>skip me</description>
  </item>
</channel>
</rss>`

func TestFetchParsesItems(t *testing.T) {
	var gotUA string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	f := New(srv.Client(), Config{UserAgent: "test-agent"}, &logger)

	materials, err := f.Fetch(context.Background(), domain.Source{URL: srv.URL, Type: domain.SourceTypeRSS, Category: "games"})
	require.NoError(t, err)
	require.Len(t, materials, 1)

	m := materials[0]
	assert.Equal(t, "https://example.com/a", m.URL)
	assert.Equal(t, "Новая игра", m.Title)
	assert.Equal(t, "Новая игра Описание игры Полный текст", m.Text)
	assert.Equal(t, "2024-05-06", m.Date)
	assert.Equal(t, "games", m.Category)
	assert.Equal(t, domain.SourceTypeRSS, m.SourceType)
	assert.Equal(t, "test-agent", gotUA)
}

func TestFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := New(srv.Client(), Config{}, nil)

	_, err := f.Fetch(context.Background(), domain.Source{URL: srv.URL})
	require.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestFetchInvalidFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not a feed"))
	}))
	defer srv.Close()

	f := New(srv.Client(), Config{}, nil)

	_, err := f.Fetch(context.Background(), domain.Source{URL: srv.URL})
	require.Error(t, err)
}
