// Package session acquires an authenticated browser session, reusing a
// persisted artifact when it is still live and logging in otherwise.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kiranshivaraju/reelscraper/internal/browser"
	"github.com/kiranshivaraju/reelscraper/internal/diagnostics"
	"github.com/kiranshivaraju/reelscraper/internal/ladder"
	"github.com/kiranshivaraju/reelscraper/internal/locator"
	"github.com/kiranshivaraju/reelscraper/internal/navigation"
	"github.com/kiranshivaraju/reelscraper/pkg/links"
)

// State is a step of the acquisition state machine.
type State string

const (
	NoSession        State = "no_session"
	CheckingLiveness State = "checking_liveness"
	Live             State = "live"
	Stale            State = "stale"
	LoggingIn        State = "logging_in"
	Authenticated    State = "authenticated"
	LoginFailed      State = "login_failed"
	Persisted        State = "persisted"
)

var (
	// ErrConfiguration is returned when credentials are missing. It is not
	// retried.
	ErrConfiguration = errors.New("session: credentials are not configured")
	// ErrLoginFailed is matched by every *LoginError.
	ErrLoginFailed = errors.New("session: login failed")
)

// LoginError reports that the login flow did not reach an authenticated
// page.
type LoginError struct {
	URL string
	Err error
}

func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login failed at %q: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("login failed at %q", e.URL)
}

func (e *LoginError) Is(target error) bool { return target == ErrLoginFailed }

func (e *LoginError) Unwrap() error { return e.Err }

// Credentials identify the scraping account.
type Credentials struct {
	Identity string
	Secret   string
}

// Session is an acquired browser session. The caller owns Browser and must
// close it.
type Session struct {
	Browser       browser.Browser
	Page          browser.Page
	Authenticated bool
	ArtifactPath  string
	// Trail is every state the acquisition passed through, in order.
	Trail []State
}

func (s *Session) enter(st State) {
	s.Trail = append(s.Trail, st)
}

// State returns the last state reached.
func (s *Session) State() State {
	if len(s.Trail) == 0 {
		return NoSession
	}
	return s.Trail[len(s.Trail)-1]
}

// Config tunes the manager.
type Config struct {
	// Wait is the base settle interval. Liveness checks settle for 2×Wait
	// and login for 5×Wait.
	Wait     time.Duration
	Timeouts navigation.Timeouts
	// ClickTimeout bounds each click on the submit button or a prompt.
	ClickTimeout time.Duration
}

// Manager acquires sessions one at a time.
type Manager struct {
	launcher  browser.Launcher
	artifacts ArtifactStore
	catalog   *locator.Catalog
	links     links.Builder
	creds     Credentials
	diag      diagnostics.Hook
	cfg       Config

	mu sync.Mutex
}

// NewManager returns a Manager. A nil hook disables diagnostic capture.
func NewManager(l browser.Launcher, artifacts ArtifactStore, catalog *locator.Catalog, lb links.Builder, creds Credentials, diag diagnostics.Hook, cfg Config) *Manager {
	if diag == nil {
		diag = diagnostics.Nop{}
	}
	if cfg.ClickTimeout <= 0 {
		cfg.ClickTimeout = 5 * time.Second
	}
	return &Manager{
		launcher:  l,
		artifacts: artifacts,
		catalog:   catalog,
		links:     lb,
		creds:     creds,
		diag:      diag,
		cfg:       cfg,
	}
}

// Acquire launches a browser and brings it to an authenticated state. On any
// error the browser has already been closed.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{ArtifactPath: m.artifacts.Location()}
	s.enter(NoSession)

	state, err := m.artifacts.Load(ctx)
	if err != nil {
		slog.Warn("ignoring unreadable session artifact", "path", s.ArtifactPath, "error", err)
		state = nil
	}
	if len(state) == 0 && !m.creds.complete() {
		return nil, m.missingCredentials()
	}

	b, err := m.launcher.Launch(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	s.Browser, s.Page = b, b.Page()

	ok := false
	defer func() {
		if !ok {
			if err := b.Close(); err != nil {
				slog.Warn("closing browser after failed acquisition", "error", err)
			}
		}
	}()

	if len(state) > 0 {
		s.enter(CheckingLiveness)
		if m.live(ctx, s.Page) {
			s.enter(Live)
			s.Authenticated = true
			ok = true
			slog.Info("reusing live session", "path", s.ArtifactPath)
			return s, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.enter(Stale)
		slog.Info("session artifact is stale, logging in", "path", s.ArtifactPath)
	}

	s.enter(LoggingIn)
	if err := m.login(ctx, s.Page); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.enter(LoginFailed)
		if errors.Is(err, ErrConfiguration) {
			return nil, err
		}
		return nil, diagnostics.Guard(ctx, m.diag, s.Page, "login_failed", err)
	}
	s.enter(Authenticated)
	s.Authenticated = true

	if err := m.persist(ctx, b); err != nil {
		slog.Warn("could not persist session artifact", "path", s.ArtifactPath, "error", err)
	} else {
		s.enter(Persisted)
	}
	ok = true
	return s, nil
}

// live reports whether any logged-in indicator shows up on the home page.
// Every failure degrades to false.
func (m *Manager) live(ctx context.Context, page browser.Page) bool {
	if err := navigation.Load(ctx, page, m.links.Home(), m.cfg.Timeouts); err != nil {
		slog.Warn("liveness check could not load home", "error", err)
		return false
	}
	if err := ladder.Pause(ctx, 2*m.cfg.Wait); err != nil {
		return false
	}
	if _, err := m.catalog.LoggedIn.Resolve(ctx, page); err != nil {
		slog.Info("no logged-in indicator found", "error", err)
		return false
	}
	return true
}

func (m *Manager) login(ctx context.Context, page browser.Page) error {
	if !m.creds.complete() {
		return m.missingCredentials()
	}

	if err := navigation.Load(ctx, page, m.links.Login(), m.cfg.Timeouts); err != nil {
		return m.loginError(ctx, page, fmt.Errorf("loading login page: %w", err))
	}
	if err := ladder.Pause(ctx, 2*m.cfg.Wait); err != nil {
		return err
	}
	if _, err := m.catalog.LoginForm.Resolve(ctx, page); err != nil {
		return m.loginError(ctx, page, fmt.Errorf("login form: %w", err))
	}

	fillIdentity := func(ctx context.Context, el browser.Element) (bool, error) {
		if err := el.Fill(ctx, m.creds.Identity); err != nil {
			return false, err
		}
		got, err := el.Value(ctx)
		if err != nil {
			return false, err
		}
		if got != m.creds.Identity {
			slog.Warn("identity field did not keep the typed value")
			return false, nil
		}
		return true, nil
	}
	if _, err := m.catalog.Identity.ResolveFunc(ctx, page, fillIdentity); err != nil {
		return m.loginError(ctx, page, fmt.Errorf("identity field: %w", err))
	}

	fillSecret := func(ctx context.Context, el browser.Element) (bool, error) {
		return true, el.Fill(ctx, m.creds.Secret)
	}
	if _, err := m.catalog.Secret.ResolveFunc(ctx, page, fillSecret); err != nil {
		return m.loginError(ctx, page, fmt.Errorf("secret field: %w", err))
	}

	if err := m.submit(ctx, page); err != nil {
		return m.loginError(ctx, page, err)
	}
	if err := ladder.Pause(ctx, 5*m.cfg.Wait); err != nil {
		return err
	}
	m.dismissInterstitials(ctx, page)

	u, err := page.URL(ctx)
	if err != nil {
		return m.loginError(ctx, page, fmt.Errorf("reading url: %w", err))
	}
	if !m.links.IsAuthenticatedURL(u) {
		return &LoginError{URL: u}
	}
	slog.Info("login succeeded", "url", u)
	return nil
}

// submit clicks the first submit button and falls back to the Enter key.
func (m *Manager) submit(ctx context.Context, page browser.Page) error {
	btn, err := m.catalog.Submit.Resolve(ctx, page)
	if err == nil {
		if err = browser.ClickWithin(ctx, btn, m.cfg.ClickTimeout); err == nil {
			return nil
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	slog.Info("no submit button worked, pressing Enter", "error", err)
	if err := page.Press(ctx, browser.KeyEnter); err != nil {
		return fmt.Errorf("submitting login form: %w", err)
	}
	return nil
}

// dismissInterstitials clicks post-login prompts away. Failures are ignored.
func (m *Manager) dismissInterstitials(ctx context.Context, page browser.Page) {
	for i := 0; i < len(m.catalog.Interstitials.Selectors); i++ {
		el, err := m.catalog.Interstitials.Resolve(ctx, page)
		if err != nil {
			return
		}
		if err := browser.ClickWithin(ctx, el, m.cfg.ClickTimeout); err != nil {
			slog.Debug("could not dismiss prompt", "error", err)
			return
		}
		if err := ladder.Pause(ctx, 2*m.cfg.Wait); err != nil {
			return
		}
	}
}

func (m *Manager) persist(ctx context.Context, b browser.Browser) error {
	data, err := b.StorageState(ctx)
	if err != nil {
		return fmt.Errorf("reading storage state: %w", err)
	}
	return m.artifacts.Save(ctx, data)
}

func (m *Manager) loginError(ctx context.Context, page browser.Page, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	u, _ := page.URL(ctx)
	return &LoginError{URL: u, Err: err}
}

func (m *Manager) missingCredentials() error {
	var missing []string
	if m.creds.Identity == "" {
		missing = append(missing, "INSTA_USER")
	}
	if m.creds.Secret == "" {
		missing = append(missing, "INSTA_PASS")
	}
	return fmt.Errorf("%w: %s not set", ErrConfiguration, strings.Join(missing, ", "))
}

func (c Credentials) complete() bool {
	return c.Identity != "" && c.Secret != ""
}
