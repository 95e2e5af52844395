package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/kiranshivaraju/reelscraper/internal/browser"
)

var errClosed = errors.New("sim: browser closed")

type storageState struct {
	Authenticated bool `json:"authenticated"`
}

// Launcher launches simulated browsers against Site.
type Launcher struct {
	Site *Site
}

// Launch implements browser.Launcher.
func (l Launcher) Launch(ctx context.Context, state []byte) (browser.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := &Browser{site: l.Site, values: map[*html.Node]string{}}
	if len(state) > 0 {
		var st storageState
		if err := json.Unmarshal(state, &st); err != nil {
			return nil, fmt.Errorf("sim: decoding storage state: %w", err)
		}
		b.authenticated = st.Authenticated
	}
	b.render("about:blank", "<html><body></body></html>")
	l.Site.record(func() { l.Site.launches++ })
	return b, nil
}

// Browser is a simulated browser with a single page.
type Browser struct {
	site *Site

	mu            sync.Mutex
	authenticated bool
	closed        bool
	url           string
	doc           *goquery.Document
	values        map[*html.Node]string
}

// Page implements browser.Browser.
func (b *Browser) Page() browser.Page { return (*page)(b) }

// StorageState implements browser.Browser.
func (b *Browser) StorageState(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errClosed
	}
	return json.Marshal(storageState{Authenticated: b.authenticated})
}

// Close implements browser.Browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	b.closed = true
	b.site.record(func() { b.site.closes++ })
	return nil
}

// Authenticated reports whether the browser holds a logged-in state.
func (b *Browser) Authenticated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authenticated
}

func (b *Browser) render(u, markup string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
	}
	b.url = u
	b.doc = doc
	b.values = map[*html.Node]string{}
}

// goTo must be called with b.mu held.
func (b *Browser) goTo(target string) {
	if u, err := url.Parse(target); err == nil {
		u.Fragment = ""
		target = u.String()
	}
	landed, markup := b.site.resolve(target, b.authenticated)
	b.render(landed, markup)
	b.site.record(func() { b.site.history = append(b.site.history, landed) })
}

func (b *Browser) resolveHref(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	base, err := url.Parse(b.url)
	if err != nil || base.Scheme == "about" {
		base, _ = url.Parse(b.site.BaseURL + "/")
	}
	return base.ResolveReference(ref).String()
}

// submitLogin checks the login form's fields against the site credentials.
// Must be called with b.mu held.
func (b *Browser) submitLogin() {
	user := b.fieldValue(`input[name="username"]`)
	pass := b.fieldValue(`input[name="password"]`)
	b.site.record(func() { b.site.loginSubmits++ })
	if b.site.Username == "" || user != b.site.Username || pass != b.site.Password {
		return
	}
	b.authenticated = true
	next := b.site.AfterLogin
	if next == "" {
		next = b.site.HomeURL
	}
	b.goTo(next)
}

func (b *Browser) fieldValue(css string) string {
	sel := b.doc.Find(css).First()
	if sel.Length() == 0 {
		return ""
	}
	if v, ok := b.values[sel.Get(0)]; ok {
		return v
	}
	v, _ := sel.Attr("value")
	return v
}

func (b *Browser) onLoginPage() bool {
	return b.url == b.site.LoginURL
}

type page Browser

func (p *page) b() *Browser { return (*Browser)(p) }

func (p *page) Navigate(ctx context.Context, target string, wait browser.WaitCondition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := p.b()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	b.goTo(target)
	if b.site.FailWaits[wait] {
		return fmt.Errorf("%w: waiting for %s on %s", browser.ErrTimeout, wait, target)
	}
	return nil
}

func (p *page) URL(ctx context.Context) (string, error) {
	b := p.b()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", errClosed
	}
	return b.url, nil
}

// Query never waits: simulated pages are static, so a selector that does not
// match now will never match.
func (p *page) Query(ctx context.Context, sel browser.Selector) ([]browser.Element, error) {
	els, err := p.QueryAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: no element matches %s", browser.ErrTimeout, sel)
	}
	return els, nil
}

func (p *page) QueryAll(ctx context.Context, sel browser.Selector) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := p.b()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errClosed
	}
	var out []browser.Element
	needle := strings.ToLower(sel.Text)
	b.doc.Find(sel.CSS).Each(func(_ int, s *goquery.Selection) {
		if needle != "" && !strings.Contains(strings.ToLower(s.Text()), needle) {
			return
		}
		out = append(out, &element{b: b, sel: s, doc: b.doc})
	})
	return out, nil
}

func (p *page) Press(ctx context.Context, key browser.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := p.b()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	switch key {
	case browser.KeyEnter:
		if b.onLoginPage() {
			b.submitLogin()
		}
	case browser.KeyArrowRight:
		if href, ok := b.doc.Find(`link[rel="next"]`).First().Attr("href"); ok {
			b.goTo(b.resolveHref(href))
		}
	}
	return nil
}

func (p *page) Screenshot(ctx context.Context) ([]byte, error) {
	b := p.b()
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, errClosed
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))); err != nil {
		return nil, err
	}
	b.site.record(func() { b.site.screenshots++ })
	return buf.Bytes(), nil
}

type element struct {
	b   *Browser
	sel *goquery.Selection
	doc *goquery.Document
}

// stale reports whether the page has been replaced since the element was
// found. Must be called with b.mu held.
func (e *element) stale() error {
	if e.b.closed {
		return errClosed
	}
	if e.b.doc != e.doc {
		return errors.New("sim: element is detached from the page")
	}
	return nil
}

func hidden(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	if t, _ := s.Attr("type"); t == "hidden" {
		return true
	}
	style, _ := s.Attr("style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	e.b.mu.Lock()
	defer e.b.mu.Unlock()
	if err := e.stale(); err != nil {
		return false, err
	}
	if hidden(e.sel) {
		return false, nil
	}
	visible := true
	e.sel.Parents().EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if hidden(s) {
			visible = false
		}
		return visible
	})
	return visible, nil
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	e.b.mu.Lock()
	defer e.b.mu.Unlock()
	if err := e.stale(); err != nil {
		return false, err
	}
	if _, ok := e.sel.Attr("disabled"); ok {
		return false, nil
	}
	if v, _ := e.sel.Attr("aria-disabled"); v == "true" {
		return false, nil
	}
	return true, nil
}

func (e *element) Click(ctx context.Context) error {
	return e.activate(ctx, false)
}

func (e *element) ForceClick(ctx context.Context) error {
	return e.activate(ctx, true)
}

// activate follows the element's href (or data-href). Elements marked
// data-intercept swallow ordinary clicks; data-intercept="all" swallows
// forced clicks too. data-intercept="cover" makes an ordinary click wait
// until ctx is done, the way a real driver keeps retrying a click on a
// covered element.
func (e *element) activate(ctx context.Context, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !force && e.covered() {
		<-ctx.Done()
		return ctx.Err()
	}
	e.b.mu.Lock()
	defer e.b.mu.Unlock()
	if err := e.stale(); err != nil {
		return err
	}
	if v, ok := e.sel.Attr("data-intercept"); ok && (!force || v == "all") {
		return nil
	}
	if e.b.onLoginPage() && e.isSubmit() {
		e.b.submitLogin()
		return nil
	}
	href, ok := e.sel.Attr("href")
	if !ok {
		href, ok = e.sel.Attr("data-href")
	}
	if ok && href != "" {
		e.b.goTo(e.b.resolveHref(href))
	}
	return nil
}

func (e *element) covered() bool {
	e.b.mu.Lock()
	defer e.b.mu.Unlock()
	v, _ := e.sel.Attr("data-intercept")
	return v == "cover"
}

func (e *element) isSubmit() bool {
	if t, _ := e.sel.Attr("type"); t == "submit" {
		return true
	}
	_, ok := e.sel.Attr("data-submit")
	return ok
}

func (e *element) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.b.mu.Lock()
	defer e.b.mu.Unlock()
	if err := e.stale(); err != nil {
		return err
	}
	if _, ok := e.sel.Attr("data-drop-input"); ok {
		return nil
	}
	e.b.values[e.sel.Get(0)] = value
	return nil
}

func (e *element) Value(ctx context.Context) (string, error) {
	e.b.mu.Lock()
	defer e.b.mu.Unlock()
	if err := e.stale(); err != nil {
		return "", err
	}
	if v, ok := e.b.values[e.sel.Get(0)]; ok {
		return v, nil
	}
	v, _ := e.sel.Attr("value")
	return v, nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	e.b.mu.Lock()
	defer e.b.mu.Unlock()
	if err := e.stale(); err != nil {
		return "", err
	}
	return e.sel.Text(), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	e.b.mu.Lock()
	defer e.b.mu.Unlock()
	if err := e.stale(); err != nil {
		return "", false, err
	}
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}
