// Package browser defines the automation surface the extraction engine
// drives. Implementations live in subpackages: chromium for a real browser
// and sim for an in-memory site used by tests and dry runs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a wait condition or element query does not
// complete within its deadline.
var ErrTimeout = errors.New("browser: timeout")

// WaitCondition selects how long Navigate waits after issuing a navigation.
type WaitCondition int

const (
	// WaitNetworkIdle waits until the page has no network activity.
	WaitNetworkIdle WaitCondition = iota
	// WaitLoad waits for the load event.
	WaitLoad
	// WaitNone returns as soon as the navigation is committed.
	WaitNone
)

func (w WaitCondition) String() string {
	switch w {
	case WaitNetworkIdle:
		return "networkidle"
	case WaitLoad:
		return "load"
	case WaitNone:
		return "none"
	default:
		return fmt.Sprintf("wait(%d)", int(w))
	}
}

// Key is a keyboard key the engine can press.
type Key string

const (
	KeyEnter      Key = "Enter"
	KeyArrowRight Key = "ArrowRight"
)

// Selector describes a UI element: a CSS selector, optionally narrowed to
// elements whose text contains Text (case-insensitive).
type Selector struct {
	CSS  string `yaml:"css"`
	Text string `yaml:"text,omitempty"`
}

func (s Selector) String() string {
	if s.Text == "" {
		return s.CSS
	}
	return fmt.Sprintf("%s:has-text(%q)", s.CSS, s.Text)
}

// Launcher starts browsers.
type Launcher interface {
	// Launch starts a browser, restoring state from a previously saved
	// storage artifact when state is non-empty.
	Launch(ctx context.Context, state []byte) (Browser, error)
}

// Browser is one running browser with a single page.
type Browser interface {
	Page() Page
	// StorageState serializes the authentication state so a later Launch
	// can restore it.
	StorageState(ctx context.Context) ([]byte, error)
	Close() error
}

// Page is the single visible page of a Browser.
type Page interface {
	Navigate(ctx context.Context, url string, wait WaitCondition) error
	URL(ctx context.Context) (string, error)
	// Query waits until sel matches at least one element or ctx is done, in
	// which case the returned error wraps ErrTimeout.
	Query(ctx context.Context, sel Selector) ([]Element, error)
	// QueryAll returns the current matches without waiting.
	QueryAll(ctx context.Context, sel Selector) ([]Element, error)
	Press(ctx context.Context, key Key) error
	Screenshot(ctx context.Context) ([]byte, error)
}

// Element is a node on the current page.
type Element interface {
	Visible(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
	// ForceClick activates the element without actionability checks.
	ForceClick(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Value(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
}

// IsTimeout reports whether err is a wait timeout, either ErrTimeout or an
// expired context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// ClickWithin clicks el but gives up after d. Drivers retry a click on a
// covered element until their context ends, so every click the engine makes
// goes through here. Expiry of d is reported as ErrTimeout; cancellation of
// ctx is returned unchanged.
func ClickWithin(ctx context.Context, el Element, d time.Duration) error {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	err := el.Click(cctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if cctx.Err() != nil {
		return fmt.Errorf("%w: click did not complete within %s", ErrTimeout, d)
	}
	return err
}
