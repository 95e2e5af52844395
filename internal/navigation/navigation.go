// Package navigation loads listing pages with escalating wait strategies and
// confirms arrival before extraction starts.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/reelscraper/internal/browser"
	"github.com/kiranshivaraju/reelscraper/internal/diagnostics"
	"github.com/kiranshivaraju/reelscraper/internal/ladder"
	"github.com/kiranshivaraju/reelscraper/internal/locator"
	"github.com/kiranshivaraju/reelscraper/pkg/links"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

// ErrNavigationFailed is matched by every *NavigationError.
var ErrNavigationFailed = errors.New("navigation failed")

// NavigationError reports that a target's listing page could not be reached
// after every retry.
type NavigationError struct {
	Target   models.Target
	Attempts int
	LastURL  string
	Err      error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed after %d attempts (last url %q): %v",
		e.Target.Identifier(), e.Attempts, e.LastURL, e.Err)
}

func (e *NavigationError) Is(target error) bool { return target == ErrNavigationFailed }

func (e *NavigationError) Unwrap() error { return e.Err }

// Timeouts bounds each rung of the wait ladder.
type Timeouts struct {
	NetworkIdle time.Duration
	Load        time.Duration
	None        time.Duration
}

// DefaultTimeouts returns the per-strategy navigation timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{NetworkIdle: 15 * time.Second, Load: 20 * time.Second, None: 25 * time.Second}
}

// Load navigates page to url, waiting for network idle, then for the load
// event, then for nothing. Only a timeout moves on to the next strategy.
func Load(ctx context.Context, page browser.Page, url string, t Timeouts) error {
	rung := func(wait browser.WaitCondition, d time.Duration) ladder.Step[struct{}] {
		return ladder.Step[struct{}]{
			Name: wait.String(),
			Do: func(ctx context.Context) (struct{}, error) {
				if d > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, d)
					defer cancel()
				}
				return struct{}{}, page.Navigate(ctx, url, wait)
			},
		}
	}
	_, used, err := ladder.Climb(ctx, []ladder.Step[struct{}]{
		rung(browser.WaitNetworkIdle, t.NetworkIdle),
		rung(browser.WaitLoad, t.Load),
		rung(browser.WaitNone, t.None),
	}, browser.IsTimeout)
	if err != nil {
		return fmt.Errorf("loading %s: %w", url, err)
	}
	slog.Debug("page loaded", "url", url, "wait", used)
	return nil
}

// Config tunes the controller.
type Config struct {
	Retries    int
	RetryDelay time.Duration
	// Settle is the pause after a navigation before the page is inspected.
	Settle   time.Duration
	Timeouts Timeouts
	// ClickTimeout bounds the click on the reels tab.
	ClickTimeout time.Duration
}

// Controller visits target listing pages.
type Controller struct {
	links   links.Builder
	catalog *locator.Catalog
	diag    diagnostics.Hook
	cfg     Config
}

// NewController returns a Controller. A nil hook disables diagnostic capture.
func NewController(l links.Builder, catalog *locator.Catalog, diag diagnostics.Hook, cfg Config) *Controller {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.ClickTimeout <= 0 {
		cfg.ClickTimeout = 5 * time.Second
	}
	if diag == nil {
		diag = diagnostics.Nop{}
	}
	return &Controller{links: l, catalog: catalog, diag: diag, cfg: cfg}
}

// Visit loads the target's listing page and confirms that the resulting URL
// names the target. The whole visit is retried up to the configured count.
func (c *Controller) Visit(ctx context.Context, page browser.Page, target models.Target) error {
	url := c.links.Listing(target)
	var lastErr error
	var lastURL string

	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		landed, err := c.visitOnce(ctx, page, target, url)
		if err == nil {
			slog.Info("navigated to listing", "target", target.Identifier(), "url", landed, "attempt", attempt)
			return ladder.Pause(ctx, c.cfg.Settle)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr, lastURL = err, landed
		slog.Warn("navigation attempt failed",
			"target", target.Identifier(), "attempt", attempt, "of", c.cfg.Retries, "error", err)

		if attempt < c.cfg.Retries {
			if err := ladder.Pause(ctx, c.cfg.RetryDelay); err != nil {
				return err
			}
		}
	}

	navErr := &NavigationError{Target: target, Attempts: c.cfg.Retries, LastURL: lastURL, Err: lastErr}
	return diagnostics.Guard(ctx, c.diag, page, "navigation_failed_"+target.Value, navErr)
}

func (c *Controller) visitOnce(ctx context.Context, page browser.Page, target models.Target, url string) (string, error) {
	if err := Load(ctx, page, url, c.cfg.Timeouts); err != nil {
		return "", err
	}
	if err := ladder.Pause(ctx, c.cfg.Settle); err != nil {
		return "", err
	}

	markers := c.catalog.ListingMarkers
	if target.Kind == models.TargetHashtag {
		markers = c.catalog.HashtagMarkers
	}
	if _, err := markers.Resolve(ctx, page); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Warn("no content markers found, continuing", "target", target.Identifier())
	}

	if target.Kind == models.TargetHashtag {
		if err := c.openReelsTab(ctx, page); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			slog.Warn("could not open reels tab", "target", target.Identifier(), "error", err)
		}
	}

	landed, err := page.URL(ctx)
	if err != nil {
		return "", fmt.Errorf("reading current url: %w", err)
	}
	if !namesTarget(landed, target.Token()) {
		return landed, fmt.Errorf("landed on %s, expected a url containing %q", landed, target.Token())
	}
	return landed, nil
}

// namesTarget reports whether the landed URL contains token. Browsers report
// non-ASCII path segments percent-encoded, so the decoded form is checked too.
func namesTarget(landed, token string) bool {
	if strings.Contains(landed, token) {
		return true
	}
	decoded, err := url.PathUnescape(landed)
	return err == nil && strings.Contains(decoded, token)
}

func (c *Controller) openReelsTab(ctx context.Context, page browser.Page) error {
	tab, err := c.catalog.ReelsTab.Resolve(ctx, page)
	if err != nil {
		return err
	}
	if err := browser.ClickWithin(ctx, tab, c.cfg.ClickTimeout); err != nil {
		return fmt.Errorf("clicking reels tab: %w", err)
	}
	return ladder.Pause(ctx, c.cfg.Settle)
}
