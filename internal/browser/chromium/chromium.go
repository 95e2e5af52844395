// Package chromium drives a real Chromium instance through the DevTools
// protocol using go-rod.
package chromium

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/kiranshivaraju/reelscraper/internal/browser"
)

const pollInterval = 100 * time.Millisecond

// Options configures how browsers are started.
type Options struct {
	// Bin is the browser executable. Empty lets rod pick or download one.
	Bin string
	// ControlURL connects to an already running browser instead of
	// launching one.
	ControlURL string
	Headless   bool
	// Locale is sent as the browser language and Accept-Language header.
	Locale string
}

// Launcher implements browser.Launcher.
type Launcher struct {
	opts Options
}

// NewLauncher returns a Launcher with the given options.
func NewLauncher(opts Options) *Launcher {
	return &Launcher{opts: opts}
}

// Launch starts (or connects to) a browser, restores cookies from state and
// opens a blank page.
func (l *Launcher) Launch(ctx context.Context, state []byte) (browser.Browser, error) {
	var proc *launcher.Launcher
	controlURL := l.opts.ControlURL
	if controlURL == "" {
		proc = launcher.New().Headless(l.opts.Headless)
		if l.opts.Bin != "" {
			proc = proc.Bin(l.opts.Bin)
		}
		if l.opts.Locale != "" {
			proc = proc.Set(flags.Flag("lang"), l.opts.Locale)
		}
		u, err := proc.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chromium: %w", err)
		}
		controlURL = u
	}

	rb := rod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		if proc != nil {
			proc.Kill()
		}
		return nil, fmt.Errorf("connect to chromium: %w", err)
	}

	b := &Browser{rod: rb, proc: proc}
	if err := b.restore(state); err != nil {
		_ = b.Close()
		return nil, err
	}

	pg, err := rb.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	if l.opts.Locale != "" {
		if _, err := pg.SetExtraHeaders([]string{"Accept-Language", l.opts.Locale}); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("set locale header: %w", err)
		}
	}
	b.page = &page{rod: pg}
	return b, nil
}

// Browser wraps a connected rod browser.
type Browser struct {
	rod  *rod.Browser
	proc *launcher.Launcher
	page *page
}

// storageState is the persisted session artifact: the browser's cookies.
type storageState struct {
	Cookies []*proto.NetworkCookie `json:"cookies"`
}

func (b *Browser) restore(state []byte) error {
	if len(state) == 0 {
		return nil
	}
	var st storageState
	if err := json.Unmarshal(state, &st); err != nil {
		return fmt.Errorf("decode storage state: %w", err)
	}
	if len(st.Cookies) == 0 {
		return nil
	}
	if err := b.rod.SetCookies(proto.CookiesToParams(st.Cookies)); err != nil {
		return fmt.Errorf("restore cookies: %w", err)
	}
	return nil
}

// Page implements browser.Browser.
func (b *Browser) Page() browser.Page { return b.page }

// StorageState implements browser.Browser.
func (b *Browser) StorageState(ctx context.Context) ([]byte, error) {
	cookies, err := b.rod.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return json.Marshal(storageState{Cookies: cookies})
}

// Close closes the browser and, when it was launched by us, waits for the
// process to exit and removes its profile directory.
func (b *Browser) Close() error {
	err := b.rod.Close()
	if b.proc != nil {
		b.proc.Cleanup()
	}
	return err
}

type page struct {
	rod *rod.Page
}

func (p *page) Navigate(ctx context.Context, url string, wait browser.WaitCondition) error {
	pg := p.rod.Context(ctx)
	switch wait {
	case browser.WaitNetworkIdle:
		idle := pg.WaitNavigation(proto.PageLifecycleEventNameNetworkIdle)
		if err := pg.Navigate(url); err != nil {
			return timeoutOr(ctx, err)
		}
		idle()
		if ctx.Err() != nil {
			return timeoutOr(ctx, ctx.Err())
		}
		return nil
	case browser.WaitLoad:
		if err := pg.Navigate(url); err != nil {
			return timeoutOr(ctx, err)
		}
		return timeoutOr(ctx, pg.WaitLoad())
	default:
		return timeoutOr(ctx, pg.Navigate(url))
	}
}

func (p *page) URL(ctx context.Context) (string, error) {
	info, err := p.rod.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Query polls until sel matches or ctx is done.
func (p *page) Query(ctx context.Context, sel browser.Selector) ([]browser.Element, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		els, err := p.QueryAll(ctx, sel)
		if err == nil && len(els) > 0 {
			return els, nil
		}
		select {
		case <-ctx.Done():
			return nil, timeoutOr(ctx, fmt.Errorf("no element matches %s", sel))
		case <-ticker.C:
		}
	}
}

func (p *page) QueryAll(ctx context.Context, sel browser.Selector) ([]browser.Element, error) {
	found, err := p.rod.Context(ctx).Elements(sel.CSS)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(sel.Text)
	out := make([]browser.Element, 0, len(found))
	for _, el := range found {
		if needle != "" {
			text, err := el.Context(ctx).Text()
			if err != nil || !strings.Contains(strings.ToLower(text), needle) {
				continue
			}
		}
		out = append(out, &element{rod: el})
	}
	return out, nil
}

func (p *page) Press(ctx context.Context, key browser.Key) error {
	var k input.Key
	switch key {
	case browser.KeyEnter:
		k = input.Enter
	case browser.KeyArrowRight:
		k = input.ArrowRight
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
	return p.rod.Context(ctx).Keyboard.Press(k)
}

func (p *page) Screenshot(ctx context.Context) ([]byte, error) {
	return p.rod.Context(ctx).Screenshot(true, nil)
}

type element struct {
	rod *rod.Element
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	return e.rod.Context(ctx).Visible()
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	disabled, err := e.rod.Context(ctx).Disabled()
	return !disabled, err
}

func (e *element) Click(ctx context.Context) error {
	return e.rod.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) ForceClick(ctx context.Context) error {
	_, err := e.rod.Context(ctx).Eval(`() => this.click()`)
	return err
}

func (e *element) Fill(ctx context.Context, value string) error {
	el := e.rod.Context(ctx)
	if _, err := el.Eval(`() => { this.value = "" }`); err != nil {
		return err
	}
	return el.Input(value)
}

func (e *element) Value(ctx context.Context) (string, error) {
	res, err := e.rod.Context(ctx).Eval(`() => this.value`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.rod.Context(ctx).Text()
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.rod.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// timeoutOr maps an expired deadline to browser.ErrTimeout.
func timeoutOr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", browser.ErrTimeout, err)
	}
	return err
}
