package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	db "github.com/lueurxax/trend-digest-bot/internal/storage"
)

// ErrMissingColumns is returned when the CSV header lacks a required column.
var ErrMissingColumns = errors.New("csv header must contain url, type and category")

// SourceStore persists sources added by an import.
type SourceStore interface {
	SourceExists(ctx context.Context, url string) (bool, error)
	AddSource(ctx context.Context, url, sourceType, category string) (domain.Source, error)
}

var _ SourceStore = (*db.DB)(nil)

// ImportReport summarizes a CSV import.
type ImportReport struct {
	Added   int
	Skipped int
	Errors  int
}

// ImportSources reads a CSV with a url,type,category header and adds every
// source whose URL is not stored yet.
func ImportSources(ctx context.Context, store SourceStore, r io.Reader, logger *zerolog.Logger) (ImportReport, error) {
	var report ImportReport

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return report, fmt.Errorf("read csv header: %w", err)
	}

	idx, err := headerIndex(header)
	if err != nil {
		return report, err
	}

	seen := make(map[string]bool)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			logger.Warn().Err(err).Msg("bad csv row")
			report.Errors++

			continue
		}

		src, ok := rowSource(record, idx)
		if !ok {
			report.Errors++
			continue
		}

		if seen[src.URL] {
			report.Skipped++
			continue
		}

		seen[src.URL] = true

		exists, err := store.SourceExists(ctx, src.URL)
		if err != nil {
			logger.Error().Err(err).Str(logKeySource, src.URL).Msg("check source failed")
			report.Errors++

			continue
		}

		if exists {
			report.Skipped++
			continue
		}

		if _, err := store.AddSource(ctx, src.URL, src.Type, src.Category); err != nil {
			if errors.Is(err, db.ErrDuplicateSource) {
				report.Skipped++
				continue
			}

			logger.Error().Err(err).Str(logKeySource, src.URL).Msg("add source failed")
			report.Errors++

			continue
		}

		logger.Info().Str(logKeySource, src.URL).Str("type", src.Type).Str("category", src.Category).Msg("source added")
		report.Added++
	}

	return report, nil
}

type columns struct{ url, typ, category int }

func headerIndex(header []string) (columns, error) {
	idx := columns{url: -1, typ: -1, category: -1}

	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "url":
			idx.url = i
		case "type":
			idx.typ = i
		case "category":
			idx.category = i
		}
	}

	if idx.url < 0 || idx.typ < 0 || idx.category < 0 {
		return idx, ErrMissingColumns
	}

	return idx, nil
}

func rowSource(record []string, idx columns) (domain.Source, bool) {
	need := max(idx.url, idx.typ, idx.category)
	if len(record) <= need {
		return domain.Source{}, false
	}

	src := domain.Source{
		URL:      strings.TrimSpace(record[idx.url]),
		Type:     strings.ToLower(strings.TrimSpace(record[idx.typ])),
		Category: strings.TrimSpace(record[idx.category]),
	}

	if src.URL == "" || (src.Type != domain.SourceTypeRSS && src.Type != domain.SourceTypeTelegram) {
		return domain.Source{}, false
	}

	return src, true
}
