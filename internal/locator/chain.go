// Package locator resolves UI elements through ordered lists of candidate
// selectors so that markup drift across locales and variants does not break
// extraction.
package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/reelscraper/internal/browser"
	"github.com/kiranshivaraju/reelscraper/internal/ladder"
)

// ErrExhausted is matched by every *ExhaustedError.
var ErrExhausted = errors.New("locator exhausted")

var errNoQualifying = errors.New("no visible, enabled match")

// ExhaustedError reports that no selector in a chain produced a usable
// element.
type ExhaustedError struct {
	Chain     string
	Attempted []string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("locator %q exhausted after %d selectors: %s",
		e.Chain, len(e.Attempted), strings.Join(e.Attempted, ", "))
}

// Is makes errors.Is(err, ErrExhausted) succeed.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Accept is an extra predicate an element must satisfy. It may have side
// effects (reading text, for example).
type Accept func(ctx context.Context, el browser.Element) (bool, error)

// Chain is an ordered list of selectors tried with a per-selector wait.
type Chain struct {
	Name      string             `yaml:"-"`
	Timeout   time.Duration      `yaml:"timeout"`
	Selectors []browser.Selector `yaml:"selectors"`
}

// WithTimeout returns a copy of c using d as the per-selector wait.
func (c Chain) WithTimeout(d time.Duration) Chain {
	c.Timeout = d
	return c
}

// Resolve returns the first visible, enabled element matched by the chain.
func (c Chain) Resolve(ctx context.Context, page browser.Page) (browser.Element, error) {
	return c.ResolveFunc(ctx, page, nil)
}

// ResolveFunc is Resolve with an additional accept predicate. Cancellation of
// ctx is returned unchanged; anything else that prevents a match moves on to
// the next selector.
func (c Chain) ResolveFunc(ctx context.Context, page browser.Page, accept Accept) (browser.Element, error) {
	steps := make([]ladder.Step[browser.Element], 0, len(c.Selectors))
	attempted := make([]string, 0, len(c.Selectors))
	for _, sel := range c.Selectors {
		steps = append(steps, ladder.Step[browser.Element]{
			Name: sel.String(),
			Do: func(ctx context.Context) (browser.Element, error) {
				attempted = append(attempted, sel.String())
				return c.try(ctx, page, sel, accept)
			},
		})
	}

	el, _, err := ladder.Climb(ctx, steps, ladder.Always)
	if err == nil {
		return el, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, &ExhaustedError{Chain: c.Name, Attempted: attempted}
}

func (c Chain) try(ctx context.Context, page browser.Page, sel browser.Selector, accept Accept) (browser.Element, error) {
	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.Timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, c.Timeout)
	}
	els, err := page.Query(waitCtx, sel)
	cancel()
	if err != nil {
		return nil, err
	}

	for _, el := range els {
		ok, err := usable(ctx, el)
		if err != nil || !ok {
			continue
		}
		if accept != nil {
			ok, err = accept(ctx, el)
			if err != nil || !ok {
				continue
			}
		}
		return el, nil
	}
	return nil, errNoQualifying
}

func usable(ctx context.Context, el browser.Element) (bool, error) {
	visible, err := el.Visible(ctx)
	if err != nil || !visible {
		return false, err
	}
	return el.Enabled(ctx)
}
