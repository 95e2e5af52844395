// Package iterate walks detail views one item at a time, extracting a record
// from each.
package iterate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/reelscraper/internal/browser"
	"github.com/kiranshivaraju/reelscraper/internal/ladder"
	"github.com/kiranshivaraju/reelscraper/internal/locator"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

var errNotAdvanced = errors.New("detail url did not change")

// Extractor reads the record shown in the current view.
type Extractor interface {
	Extract(ctx context.Context, page browser.Page, target models.Target, columns []string) (*models.Record, error)
}

// Config tunes the iterator.
type Config struct {
	// Wait is the lower bound of the inter-item delay; the upper bound is
	// 2×Wait.
	Wait time.Duration
	// AdvanceTimeout bounds how long an advance step waits for the URL to
	// change.
	AdvanceTimeout time.Duration
}

// Iterator collects records by stepping through detail views.
type Iterator struct {
	catalog   *locator.Catalog
	extractor Extractor
	cfg       Config
}

// New returns an Iterator.
func New(catalog *locator.Catalog, x Extractor, cfg Config) *Iterator {
	if cfg.AdvanceTimeout <= 0 {
		cfg.AdvanceTimeout = 3 * time.Second
	}
	return &Iterator{catalog: catalog, extractor: x, cfg: cfg}
}

// Collect extracts up to limit records starting from the current detail
// view. It stops early, without error, the first time advancing fails. Only
// cancellation is returned as an error, together with the records collected
// so far.
func (it *Iterator) Collect(ctx context.Context, page browser.Page, target models.Target, limit int, columns []string) ([]models.Record, error) {
	records := make([]models.Record, 0, limit)
	for position := 0; position < limit; position++ {
		rec, err := it.extractor.Extract(ctx, page, target, columns)
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			slog.Warn("extraction failed, skipping item",
				"target", target.Identifier(), "position", position, "error", err)
		} else {
			records = append(records, *rec)
		}

		if position == limit-1 {
			break
		}
		if err := it.advance(ctx, page); err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			slog.Info("no next item, stopping early",
				"target", target.Identifier(), "collected", len(records), "error", err)
			break
		}
		if err := ladder.Pause(ctx, ladder.Jitter(it.cfg.Wait, 2*it.cfg.Wait)); err != nil {
			return records, err
		}
	}
	return records, nil
}

// advance moves to the next item with a "next" affordance, falling back to
// the right arrow key. A step only counts if the detail URL changed.
func (it *Iterator) advance(ctx context.Context, page browser.Page) error {
	from, err := page.URL(ctx)
	if err != nil {
		return fmt.Errorf("reading detail url: %w", err)
	}

	_, used, err := ladder.Climb(ctx, []ladder.Step[struct{}]{
		{Name: "next_affordance", Do: func(ctx context.Context) (struct{}, error) {
			el, err := it.catalog.Next.Resolve(ctx, page)
			if err != nil {
				return struct{}{}, err
			}
			if err := browser.ClickWithin(ctx, el, it.cfg.AdvanceTimeout); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, it.waitForChange(ctx, page, from)
		}},
		{Name: "arrow_right", Do: func(ctx context.Context) (struct{}, error) {
			if err := page.Press(ctx, browser.KeyArrowRight); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, it.waitForChange(ctx, page, from)
		}},
	}, ladder.Always)
	if err != nil {
		return err
	}
	slog.Debug("advanced to next item", "via", used)
	return nil
}

func (it *Iterator) waitForChange(ctx context.Context, page browser.Page, from string) error {
	ctx, cancel := context.WithTimeout(ctx, it.cfg.AdvanceTimeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		u, err := page.URL(ctx)
		if err == nil && u != from {
			return nil
		}
		select {
		case <-ctx.Done():
			return errNotAdvanced
		case <-ticker.C:
		}
	}
}
