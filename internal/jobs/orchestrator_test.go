package jobs_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/reelscraper/internal/browser"
	"github.com/kiranshivaraju/reelscraper/internal/browser/sim"
	"github.com/kiranshivaraju/reelscraper/internal/extract"
	"github.com/kiranshivaraju/reelscraper/internal/iterate"
	"github.com/kiranshivaraju/reelscraper/internal/jobs"
	"github.com/kiranshivaraju/reelscraper/internal/locator"
	"github.com/kiranshivaraju/reelscraper/internal/navigation"
	"github.com/kiranshivaraju/reelscraper/internal/progress"
	"github.com/kiranshivaraju/reelscraper/internal/session"
	"github.com/kiranshivaraju/reelscraper/internal/sink"
	"github.com/kiranshivaraju/reelscraper/pkg/links"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

const base = "https://sim.test"

// detailPage renders one reel. An empty next means the last item.
func detailPage(owner, id, next string) string {
	nextBtn := ""
	if next != "" {
		nextBtn = fmt.Sprintf(`<button aria-label="Next" data-href="/reel/%s/">Next</button>`, next)
	}
	return fmt.Sprintf(`<html><body><article>
<h1>%s</h1><div><span>Caption for %s that is comfortably long</span></div>
<time datetime="2024-05-01T10:00:00.000Z" title="May 1, 2024">May 1</time>
%s
</article></body></html>`, owner, id, nextBtn)
}

// addReels publishes a listing at listingURL whose reels are chained in order.
func addReels(site *sim.Site, listingURL, owner string, ids []string, entryAttrs string) {
	if len(ids) == 0 {
		site.Pages[listingURL] = `<html><body><main><p>No posts yet</p></main></body></html>`
		return
	}
	site.Pages[listingURL] = fmt.Sprintf(
		`<html><body><main><article><a %s href="/reel/%s/">first</a></article></main></body></html>`, entryAttrs, ids[0])
	for i, id := range ids {
		next := ""
		if i+1 < len(ids) {
			next = ids[i+1]
		}
		site.Pages[base+"/reel/"+id+"/"] = detailPage(owner, id, next)
	}
}

func newSite() *sim.Site {
	site := sim.NewSite(base)
	site.Pages[site.HomeURL] = `<html><body><nav role="navigation"><a href="/me/">me</a></nav></body></html>`
	addReels(site, base+"/alice/reels/", "alice", []string{"a1", "a2", "a3", "a4"}, "")
	addReels(site, base+"/bob/reels/", "bob", []string{"b1"}, "")
	addReels(site, base+"/explore/tags/sunset/", "sunset", []string{"s1", "s2"}, "")
	return site
}

// recordingTracker keeps every published snapshot.
type recordingTracker struct {
	*progress.MemoryTracker
	mu      sync.Mutex
	history []models.Progress
	onPut   func(models.Progress)
}

func newRecordingTracker() *recordingTracker {
	return &recordingTracker{MemoryTracker: progress.NewMemoryTracker()}
}

func (r *recordingTracker) Put(ctx context.Context, p models.Progress) error {
	r.mu.Lock()
	r.history = append(r.history, p)
	hook := r.onPut
	r.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return r.MemoryTracker.Put(ctx, p)
}

func (r *recordingTracker) percents() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, p := range r.history {
		if len(out) == 0 || out[len(out)-1] != p.Percent {
			out = append(out, p.Percent)
		}
	}
	return out
}

type harness struct {
	site    *sim.Site
	tracker *recordingTracker
	sink    *sink.FileSink
	orch    *jobs.Orchestrator
}

func newHarness(t *testing.T, site *sim.Site, nav jobs.Navigator) *harness {
	t.Helper()
	cat, err := locator.DefaultCatalog()
	require.NoError(t, err)
	lb := links.New(base)

	artifacts := session.FileArtifacts{Path: filepath.Join(t.TempDir(), "session.json")}
	require.NoError(t, artifacts.Save(context.Background(), []byte(`{"authenticated":true}`)))
	mgr := session.NewManager(sim.Launcher{Site: site}, artifacts, cat, lb, session.Credentials{}, nil,
		session.Config{Timeouts: navigation.DefaultTimeouts()})

	if nav == nil {
		nav = navigation.NewController(lb, cat, nil, navigation.Config{Retries: 2, Timeouts: navigation.DefaultTimeouts()})
	}
	counter, err := extract.NormalizerFor("en")
	require.NoError(t, err)
	items := iterate.New(cat, extract.New(cat, counter, extract.Config{MinCaptionLength: 20}),
		iterate.Config{AdvanceTimeout: 200 * time.Millisecond})

	h := &harness{
		site:    site,
		tracker: newRecordingTracker(),
		sink:    sink.NewFileSink(t.TempDir()),
	}
	h.orch = jobs.NewOrchestrator(mgr, nav, items, cat, lb, h.sink, h.tracker,
		jobs.Config{ActivationTimeout: 200 * time.Millisecond, Timeouts: navigation.DefaultTimeouts()})
	return h
}

func newJob(limit int, columns []string, targets ...models.Target) *models.Job {
	return &models.Job{ID: uuid.New(), Targets: targets, ItemLimit: limit, Columns: columns, State: models.JobStateQueued}
}

func readTable(t *testing.T, h *harness, id uuid.UUID) *sink.Table {
	t.Helper()
	art, err := h.sink.Open(context.Background(), id)
	require.NoError(t, err)
	tbl, err := sink.ReadCSV(strings.NewReader(string(art.Data)))
	require.NoError(t, err)
	return tbl
}

func TestRun_SingleUserThreeItems(t *testing.T) {
	h := newHarness(t, newSite(), nil)
	job := newJob(3, nil, models.UserTarget("alice"))

	require.NoError(t, h.orch.Run(context.Background(), job))

	assert.Equal(t, models.JobStateDone, job.State)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 3, job.RecordCount)

	tbl := readTable(t, h, job.ID)
	assert.Equal(t, []string{"url", "title", "caption", "posted_at"}, tbl.Columns)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, base+"/reel/a1/", tbl.Rows[0][0])
	assert.Equal(t, base+"/reel/a3/", tbl.Rows[2][0])
	assert.Equal(t, "alice", tbl.Rows[0][1])
	assert.Equal(t, "2024-05-01T10:00:00.000Z", tbl.Rows[0][3])
	assert.Equal(t, 1, h.site.Closes())
}

func TestRun_ProgressSequence(t *testing.T) {
	h := newHarness(t, newSite(), nil)
	job := newJob(2, []string{"likes"},
		models.UserTarget("alice"), models.UserTarget("bob"), models.HashtagTarget("sunset"))

	require.NoError(t, h.orch.Run(context.Background(), job))

	assert.Equal(t, []int{0, 33, 66, 100}, h.tracker.percents())
	tbl := readTable(t, h, job.ID)
	assert.Equal(t, []string{"url", "title", "caption", "posted_at", "likes"}, tbl.Columns)
	assert.Len(t, tbl.Rows, 2+1+2)
	assert.Equal(t, "#sunset", tbl.Rows[4][1])
}

func TestRun_BrowserReleasedBeforeTerminalState(t *testing.T) {
	site := newSite()
	h := newHarness(t, site, nil)
	var closesAtTerminal []int
	h.tracker.onPut = func(p models.Progress) {
		if p.State.Terminal() {
			closesAtTerminal = append(closesAtTerminal, site.Closes())
		}
	}

	require.NoError(t, h.orch.Run(context.Background(), newJob(1, nil, models.UserTarget("alice"))))
	assert.Equal(t, []int{1}, closesAtTerminal)
}

func TestRun_NoResults(t *testing.T) {
	site := newSite()
	addReels(site, base+"/carol/reels/", "carol", nil, "")
	h := newHarness(t, site, nil)
	job := newJob(3, nil, models.UserTarget("carol"))

	err := h.orch.Run(context.Background(), job)
	assert.ErrorIs(t, err, jobs.ErrNoResults)
	assert.Equal(t, models.JobStateError, job.State)
	assert.Equal(t, "no results", job.ErrorMessage)
	assert.Equal(t, 100, job.Progress)

	_, err = h.sink.Open(context.Background(), job.ID)
	assert.ErrorIs(t, err, sink.ErrResultMissing, "an empty table is never written")

	svc := jobs.NewService(h.tracker, nil, h.sink)
	_, err = svc.Result(context.Background(), job.ID)
	assert.ErrorIs(t, err, jobs.ErrNotReady)
	assert.Equal(t, 1, site.Closes())
}

func TestRun_UnreachableTargetIsSkipped(t *testing.T) {
	site := newSite()
	site.Redirects[base+"/ghost/reels/"] = base + "/"
	h := newHarness(t, site, nil)
	job := newJob(1, nil, models.UserTarget("ghost"), models.UserTarget("bob"))

	require.NoError(t, h.orch.Run(context.Background(), job))
	tbl := readTable(t, h, job.ID)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "bob", tbl.Rows[0][1])
	assert.Equal(t, []int{0, 50, 100}, h.tracker.percents())
}

type panickingNavigator struct {
	jobs.Navigator
	bad string
}

func (p panickingNavigator) Visit(ctx context.Context, page browser.Page, t models.Target) error {
	if t.Value == p.bad {
		panic("boom")
	}
	return p.Navigator.Visit(ctx, page, t)
}

func TestRun_PanicInTargetIsRecovered(t *testing.T) {
	cat, err := locator.DefaultCatalog()
	require.NoError(t, err)
	inner := navigation.NewController(links.New(base), cat, nil, navigation.Config{Retries: 1, Timeouts: navigation.DefaultTimeouts()})
	h := newHarness(t, newSite(), panickingNavigator{Navigator: inner, bad: "alice"})
	job := newJob(1, nil, models.UserTarget("alice"), models.UserTarget("bob"))

	require.NoError(t, h.orch.Run(context.Background(), job))
	assert.Equal(t, 1, job.RecordCount)
	assert.Equal(t, 1, h.site.Closes())
}

func TestRun_ForcedActivationWhenClickIntercepted(t *testing.T) {
	site := newSite()
	addReels(site, base+"/dave/reels/", "dave", []string{"d1"}, "data-intercept")
	h := newHarness(t, site, nil)
	job := newJob(1, nil, models.UserTarget("dave"))

	require.NoError(t, h.orch.Run(context.Background(), job))
	tbl := readTable(t, h, job.ID)
	assert.Equal(t, base+"/reel/d1/", tbl.Rows[0][0])
}

func TestRun_CoveredEntryDoesNotStallActivation(t *testing.T) {
	site := newSite()
	addReels(site, base+"/fay/reels/", "fay", []string{"f1"}, `data-intercept="cover"`)
	h := newHarness(t, site, nil)
	job := newJob(1, nil, models.UserTarget("fay"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	started := time.Now()
	require.NoError(t, h.orch.Run(ctx, job))
	assert.Less(t, time.Since(started), 5*time.Second)

	tbl := readTable(t, h, job.ID)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, base+"/reel/f1/", tbl.Rows[0][0])
}

func TestRun_DirectNavigationWhenAllClicksIntercepted(t *testing.T) {
	site := newSite()
	addReels(site, base+"/erin/reels/", "erin", []string{"e1", "e2"}, `data-intercept="all"`)
	h := newHarness(t, site, nil)
	job := newJob(2, nil, models.UserTarget("erin"))

	require.NoError(t, h.orch.Run(context.Background(), job))
	tbl := readTable(t, h, job.ID)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, base+"/reel/e1/", tbl.Rows[0][0])
}

type failingSessions struct{ err error }

func (f failingSessions) Acquire(context.Context) (*session.Session, error) { return nil, f.err }

func TestRun_SessionFailureIsTerminal(t *testing.T) {
	cat, err := locator.DefaultCatalog()
	require.NoError(t, err)
	tracker := progress.NewMemoryTracker()
	orch := jobs.NewOrchestrator(failingSessions{err: session.ErrConfiguration}, nil, nil, cat,
		links.New(base), sink.NewFileSink(t.TempDir()), tracker, jobs.Config{})
	job := newJob(1, nil, models.UserTarget("alice"))

	err = orch.Run(context.Background(), job)
	assert.ErrorIs(t, err, session.ErrConfiguration)
	assert.Equal(t, models.JobStateError, job.State)

	p, found, _ := tracker.Get(context.Background(), job.ID)
	require.True(t, found)
	assert.Equal(t, models.JobStateError, p.State)
	assert.NotEmpty(t, p.Reason)
}

type cancellingNavigator struct {
	jobs.Navigator
	cancel context.CancelFunc
}

func (c cancellingNavigator) Visit(ctx context.Context, page browser.Page, t models.Target) error {
	c.cancel()
	<-ctx.Done()
	return ctx.Err()
}

func TestRun_CancellationReleasesBrowserThenErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	site := newSite()
	h := newHarness(t, site, cancellingNavigator{cancel: cancel})
	job := newJob(1, nil, models.UserTarget("alice"), models.UserTarget("bob"))

	err := h.orch.Run(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.JobStateError, job.State)
	assert.Equal(t, "cancelled", job.ErrorMessage)
	assert.Equal(t, 1, site.Closes())
}
