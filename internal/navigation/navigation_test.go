package navigation

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/reelscraper/internal/browser"
	"github.com/kiranshivaraju/reelscraper/internal/browser/sim"
	"github.com/kiranshivaraju/reelscraper/internal/locator"
	"github.com/kiranshivaraju/reelscraper/pkg/links"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

const base = "https://sim.test"

type countingHook struct{ n int }

func (h *countingHook) Capture(context.Context, browser.Page, string) (string, error) {
	h.n++
	return "", nil
}

func setup(t *testing.T, site *sim.Site) (browser.Page, *Controller, *countingHook) {
	t.Helper()
	b, err := sim.Launcher{Site: site}.Launch(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	cat, err := locator.DefaultCatalog()
	require.NoError(t, err)

	hook := &countingHook{}
	ctrl := NewController(links.New(base), cat, hook, Config{
		Retries:  3,
		Timeouts: DefaultTimeouts(),
	})
	return b.Page(), ctrl, hook
}

func TestVisit_UserListing(t *testing.T) {
	site := sim.NewSite(base)
	site.Pages[base+"/alice/reels/"] = `<html><body><main><a href="/reel/1/">r</a></main></body></html>`
	page, ctrl, hook := setup(t, site)

	err := ctrl.Visit(context.Background(), page, models.UserTarget("alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{base + "/alice/reels/"}, site.History())
	assert.Zero(t, hook.n)
}

func TestVisit_MissingMarkersIsOnlyAWarning(t *testing.T) {
	site := sim.NewSite(base)
	site.Pages[base+"/alice/reels/"] = `<html><body><p>nothing here</p></body></html>`
	page, ctrl, _ := setup(t, site)

	require.NoError(t, ctrl.Visit(context.Background(), page, models.UserTarget("alice")))
}

func TestVisit_TokenNeverPresentExhaustsRetries(t *testing.T) {
	site := sim.NewSite(base)
	site.Redirects[base+"/alice/reels/"] = base + "/explore/"
	site.Pages[base+"/explore/"] = `<html><body><main></main></body></html>`
	page, ctrl, hook := setup(t, site)

	err := ctrl.Visit(context.Background(), page, models.UserTarget("alice"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNavigationFailed)

	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, 3, navErr.Attempts)
	assert.Equal(t, base+"/explore/", navErr.LastURL)
	assert.Equal(t, "alice", navErr.Target.Value)

	assert.Len(t, site.History(), 3, "one navigation per attempt")
	assert.Equal(t, 1, hook.n, "diagnostic captured once at the failure boundary")
}

func TestVisit_HashtagOpensReelsTab(t *testing.T) {
	site := sim.NewSite(base)
	site.Pages[base+"/explore/tags/golang/"] = `<html><body><main>
<a href="/explore/tags/golang/reels/">Reels</a></main></body></html>`
	site.Pages[base+"/explore/tags/golang/reels/"] = `<html><body><main></main></body></html>`
	page, ctrl, _ := setup(t, site)

	require.NoError(t, ctrl.Visit(context.Background(), page, models.HashtagTarget("golang")))
	u, _ := page.URL(context.Background())
	assert.Equal(t, base+"/explore/tags/golang/reels/", u)
}

func TestVisit_NonASCIIHashtag(t *testing.T) {
	tag := models.HashtagTarget("ラーメン")
	require.NoError(t, tag.Validate())

	listing := base + "/explore/tags/" + url.PathEscape("ラーメン") + "/"
	site := sim.NewSite(base)
	site.Pages[listing] = `<html><body><main><a href="/reel/1/">r</a></main></body></html>`
	page, ctrl, hook := setup(t, site)

	require.NoError(t, ctrl.Visit(context.Background(), page, tag))
	assert.Equal(t, []string{listing}, site.History())
	assert.Zero(t, hook.n)
}

func TestNamesTarget(t *testing.T) {
	assert.True(t, namesTarget(base+"/alice/reels/", "alice"))
	assert.True(t, namesTarget(base+"/explore/tags/%E3%83%A9%E3%83%BC%E3%83%A1%E3%83%B3/", "ラーメン"))
	assert.False(t, namesTarget(base+"/accounts/login/", "alice"))
	assert.False(t, namesTarget(base+"/bad%zz/", "ラーメン"))
}

func TestVisit_Cancelled(t *testing.T) {
	site := sim.NewSite(base)
	page, ctrl, hook := setup(t, site)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ctrl.Visit(ctx, page, models.UserTarget("alice"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, hook.n)
}

func TestLoad_EscalatesOnTimeout(t *testing.T) {
	site := sim.NewSite(base)
	site.Pages[base+"/"] = "<html><body>home</body></html>"
	site.FailWaits[browser.WaitNetworkIdle] = true
	site.FailWaits[browser.WaitLoad] = true
	page, _, _ := setup(t, site)

	require.NoError(t, Load(context.Background(), page, base+"/", DefaultTimeouts()))
	assert.Len(t, site.History(), 3)
}

func TestLoad_AllStrategiesTimeOut(t *testing.T) {
	site := sim.NewSite(base)
	for _, w := range []browser.WaitCondition{browser.WaitNetworkIdle, browser.WaitLoad, browser.WaitNone} {
		site.FailWaits[w] = true
	}
	page, _, _ := setup(t, site)

	err := Load(context.Background(), page, base+"/", DefaultTimeouts())
	assert.ErrorIs(t, err, browser.ErrTimeout)
}

// failingPage fails every navigation with a fixed error.
type failingPage struct {
	browser.Page
	err   error
	calls []browser.WaitCondition
}

func (p *failingPage) Navigate(_ context.Context, _ string, w browser.WaitCondition) error {
	p.calls = append(p.calls, w)
	return p.err
}

func TestLoad_NonTimeoutErrorDoesNotEscalate(t *testing.T) {
	p := &failingPage{err: errors.New("net::ERR_NAME_NOT_RESOLVED")}

	err := Load(context.Background(), p, base+"/", Timeouts{NetworkIdle: time.Second})
	assert.ErrorContains(t, err, "ERR_NAME_NOT_RESOLVED")
	assert.Equal(t, []browser.WaitCondition{browser.WaitNetworkIdle}, p.calls)
}
