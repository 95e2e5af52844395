// Package extract reads one record's fields from the current detail view.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/reelscraper/internal/browser"
	"github.com/kiranshivaraju/reelscraper/internal/ladder"
	"github.com/kiranshivaraju/reelscraper/internal/locator"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

// Config tunes the extractor.
type Config struct {
	// Settle is the pause before the view is inspected.
	Settle time.Duration
	// MinCaptionLength rejects shorter text as UI chrome.
	MinCaptionLength int
}

// Extractor reads records from detail views.
type Extractor struct {
	catalog *locator.Catalog
	counter Normalizer
	cfg     Config
}

// New returns an Extractor.
func New(catalog *locator.Catalog, counter Normalizer, cfg Config) *Extractor {
	return &Extractor{catalog: catalog, counter: counter, cfg: cfg}
}

// Extract reads the current view. Each field that cannot be read is left
// empty; only failing to read the page URL, or cancellation, is an error.
func (x *Extractor) Extract(ctx context.Context, page browser.Page, target models.Target, columns []string) (*models.Record, error) {
	if err := ladder.Pause(ctx, x.cfg.Settle); err != nil {
		return nil, err
	}

	u, err := page.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading detail url: %w", err)
	}
	rec := &models.Record{URL: u, Title: target.Identifier()}

	rec.Caption = x.caption(ctx, page)
	rec.PostedAt = x.postedAt(ctx, page)
	if slices.Contains(columns, models.ColumnLikes) {
		rec.Likes = x.count(ctx, page, x.catalog.Likes)
	}
	if slices.Contains(columns, models.ColumnComments) {
		rec.Comments = x.count(ctx, page, x.catalog.Comments)
	}
	if slices.Contains(columns, models.ColumnViewCount) {
		rec.ViewCount = x.count(ctx, page, x.catalog.Views)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (x *Extractor) caption(ctx context.Context, page browser.Page) string {
	var caption string
	_, err := x.catalog.Caption.ResolveFunc(ctx, page, func(ctx context.Context, el browser.Element) (bool, error) {
		text, err := el.Text(ctx)
		if err != nil {
			return false, err
		}
		text = strings.TrimSpace(text)
		if utf8.RuneCountInString(text) <= x.cfg.MinCaptionLength {
			return false, nil
		}
		caption = text
		return true, nil
	})
	if err != nil {
		slog.Debug("caption not found", "error", err)
		return ""
	}
	return caption
}

// postedAt prefers the machine-readable datetime attribute of the first time
// element that has one, falling back to its title.
func (x *Extractor) postedAt(ctx context.Context, page browser.Page) string {
	var posted string
	_, err := x.catalog.Time.ResolveFunc(ctx, page, func(ctx context.Context, el browser.Element) (bool, error) {
		for _, attr := range []string{"datetime", "title"} {
			v, ok, err := el.Attribute(ctx, attr)
			if err != nil {
				return false, err
			}
			if ok && v != "" {
				posted = v
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		slog.Debug("posted time not found", "error", err)
		return ""
	}
	return posted
}

// count returns the normalized counter of the first element in chain whose
// text contains a number.
func (x *Extractor) count(ctx context.Context, page browser.Page, chain locator.Chain) string {
	var value string
	_, err := chain.ResolveFunc(ctx, page, func(ctx context.Context, el browser.Element) (bool, error) {
		text, err := el.Text(ctx)
		if err != nil {
			return false, err
		}
		v, ok := x.counter.Normalize(text)
		if ok {
			value = v
		}
		return ok, nil
	})
	if err != nil {
		slog.Debug("counter not found", "chain", chain.Name, "error", err)
		return ""
	}
	return value
}
