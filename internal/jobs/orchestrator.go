// Package jobs runs scrape jobs: one browser session per job, targets
// processed strictly in order, results handed to a sink.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kiranshivaraju/reelscraper/internal/browser"
	"github.com/kiranshivaraju/reelscraper/internal/ladder"
	"github.com/kiranshivaraju/reelscraper/internal/locator"
	"github.com/kiranshivaraju/reelscraper/internal/navigation"
	"github.com/kiranshivaraju/reelscraper/internal/progress"
	"github.com/kiranshivaraju/reelscraper/internal/session"
	"github.com/kiranshivaraju/reelscraper/internal/sink"
	"github.com/kiranshivaraju/reelscraper/pkg/links"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

var tracer = otel.Tracer("reelscraper.internal.jobs")

// ErrNoResults is returned when a job finishes without a single record.
var ErrNoResults = errors.New("no results")

var errNotDetail = errors.New("activation did not open a detail view")

// Reasons recorded on failed jobs.
const (
	ReasonCancelled = "cancelled"
	ReasonNoResults = "no results"
)

// SessionSource hands out authenticated browser sessions.
type SessionSource interface {
	Acquire(ctx context.Context) (*session.Session, error)
}

// Navigator brings the page to a target's listing.
type Navigator interface {
	Visit(ctx context.Context, page browser.Page, target models.Target) error
}

// Collector walks detail views starting from the current one.
type Collector interface {
	Collect(ctx context.Context, page browser.Page, target models.Target, limit int, columns []string) ([]models.Record, error)
}

// Config tunes the orchestrator.
type Config struct {
	// Settle is the pause after activating an entry point.
	Settle time.Duration
	// ActivationTimeout bounds how long each activation technique waits for
	// a detail view to appear.
	ActivationTimeout time.Duration
	Timeouts          navigation.Timeouts
}

// Orchestrator executes a single job from start to terminal state.
type Orchestrator struct {
	sessions SessionSource
	nav      Navigator
	items    Collector
	catalog  *locator.Catalog
	links    links.Builder
	sink     sink.Sink
	tracker  progress.Tracker
	cfg      Config
}

// NewOrchestrator wires an Orchestrator.
func NewOrchestrator(sessions SessionSource, nav Navigator, items Collector, catalog *locator.Catalog,
	lb links.Builder, out sink.Sink, tracker progress.Tracker, cfg Config) *Orchestrator {
	if cfg.ActivationTimeout <= 0 {
		cfg.ActivationTimeout = 5 * time.Second
	}
	return &Orchestrator{
		sessions: sessions,
		nav:      nav,
		items:    items,
		catalog:  catalog,
		links:    lb,
		sink:     out,
		tracker:  tracker,
		cfg:      cfg,
	}
}

// Run drives job to a terminal state. The job's State, Progress,
// RecordCount, ResultLocation and ErrorMessage are updated in place and
// published to the tracker. The returned error is nil only when the job
// ends in state done.
func (o *Orchestrator) Run(ctx context.Context, job *models.Job) (err error) {
	ctx, span := tracer.Start(ctx, "job.run")
	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.Int("job.targets", len(job.Targets)),
		attribute.Int("job.item_limit", job.ItemLimit),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := slog.With("job_id", job.ID)
	job.State = models.JobStateRunning
	o.publish(ctx, job)

	sess, err := o.sessions.Acquire(ctx)
	if err != nil {
		log.Error("session acquisition failed", "error", err)
		return o.fail(ctx, job, reasonFor(ctx, err), err)
	}
	log.Info("session acquired", "state", sess.State(), "authenticated", sess.Authenticated)

	records := o.runTargets(ctx, sess, job)

	if ctx.Err() != nil {
		return o.fail(ctx, job, ReasonCancelled, ctx.Err())
	}
	if len(records) == 0 {
		log.Warn("job produced no records")
		return o.fail(ctx, job, ReasonNoResults, ErrNoResults)
	}

	table := sink.BuildTable(records, job.Columns)
	loc, err := o.sink.Write(ctx, job.ID, table)
	if err != nil {
		log.Error("writing result table failed", "error", err)
		return o.fail(ctx, job, "result write failed: "+err.Error(), err)
	}

	job.RecordCount = len(table.Rows)
	job.ResultLocation = loc
	job.Progress = 100
	job.State = models.JobStateDone
	o.publish(ctx, job)
	log.Info("job completed", "records", job.RecordCount, "location", loc)
	return nil
}

// runTargets processes every target in order and releases the browser
// before returning, so no terminal state is ever written with a live
// session.
func (o *Orchestrator) runTargets(ctx context.Context, sess *session.Session, job *models.Job) []models.Record {
	defer func() {
		if err := sess.Browser.Close(); err != nil {
			slog.Warn("closing browser failed", "job_id", job.ID, "error", err)
		}
	}()

	var records []models.Record
	total := len(job.Targets)
	for k, target := range job.Targets {
		if ctx.Err() != nil {
			break
		}
		recs := o.runTarget(ctx, sess.Page, job, target)
		records = append(records, recs...)

		if pct := 100 * (k + 1) / total; pct > job.Progress {
			job.Progress = pct
		}
		o.publish(ctx, job)
	}
	return records
}

// runTarget never fails the job: errors and panics are logged and the
// target yields no records.
func (o *Orchestrator) runTarget(ctx context.Context, page browser.Page, job *models.Job, target models.Target) (records []models.Record) {
	ctx, span := tracer.Start(ctx, "job.target")
	span.SetAttributes(
		attribute.String("target.kind", string(target.Kind)),
		attribute.String("target.value", target.Value),
	)
	log := slog.With("job_id", job.ID, "target", target.Identifier())

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing target", "panic", r, "stack", string(debug.Stack()))
			span.SetStatus(codes.Error, fmt.Sprint(r))
			records = nil
		}
		span.SetAttributes(attribute.Int("target.records", len(records)))
		span.End()
	}()

	fail := func(msg string, err error) []models.Record {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		log.Warn(msg, "error", err)
		return nil
	}

	if err := o.nav.Visit(ctx, page, target); err != nil {
		return fail("target unreachable, skipping", err)
	}

	entry, err := o.catalog.EntryPoints.Resolve(ctx, page)
	if err != nil {
		if errors.Is(err, locator.ErrExhausted) {
			log.Info("no entry points on listing, target is empty")
			return nil
		}
		return fail("looking up entry points failed", err)
	}

	if err := o.activate(ctx, page, entry); err != nil {
		return fail("could not open first item", err)
	}

	records, err = o.items.Collect(ctx, page, target, job.ItemLimit, job.Columns)
	if err != nil {
		log.Warn("collection interrupted", "collected", len(records), "error", err)
	}
	log.Info("target done", "records", len(records))
	return records
}

// activate opens the entry point's detail view: an ordinary click, then a
// forced click, then navigating to the entry's href directly.
func (o *Orchestrator) activate(ctx context.Context, page browser.Page, entry browser.Element) error {
	_, used, err := ladder.Climb(ctx, []ladder.Step[struct{}]{
		{Name: "click", Do: func(ctx context.Context) (struct{}, error) {
			if err := browser.ClickWithin(ctx, entry, o.cfg.ActivationTimeout); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, o.waitForDetail(ctx, page)
		}},
		{Name: "force_click", Do: func(ctx context.Context) (struct{}, error) {
			if err := entry.ForceClick(ctx); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, o.waitForDetail(ctx, page)
		}},
		{Name: "navigate_href", Do: func(ctx context.Context) (struct{}, error) {
			href, ok, err := entry.Attribute(ctx, "href")
			if err != nil {
				return struct{}{}, err
			}
			if !ok || href == "" {
				return struct{}{}, errors.New("entry point has no href")
			}
			if err := navigation.Load(ctx, page, o.links.Absolute(href), o.cfg.Timeouts); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, o.waitForDetail(ctx, page)
		}},
	}, ladder.Always)
	if err != nil {
		return err
	}
	slog.Debug("entry point activated", "via", used)
	return ladder.Pause(ctx, o.cfg.Settle)
}

func (o *Orchestrator) waitForDetail(ctx context.Context, page browser.Page) error {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ActivationTimeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		u, err := page.URL(ctx)
		if err == nil && links.IsDetail(u) {
			return nil
		}
		select {
		case <-ctx.Done():
			return errNotDetail
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) fail(ctx context.Context, job *models.Job, reason string, err error) error {
	job.State = models.JobStateError
	job.ErrorMessage = reason
	o.publish(ctx, job)
	return err
}

// publish replaces the job's whole progress record.
func (o *Orchestrator) publish(ctx context.Context, job *models.Job) {
	job.UpdatedAt = time.Now().UTC()
	if o.tracker == nil {
		return
	}
	if err := o.tracker.Put(context.WithoutCancel(ctx), job.Snapshot()); err != nil {
		slog.Warn("publishing progress failed", "job_id", job.ID, "error", err)
	}
}

func reasonFor(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return ReasonCancelled
	}
	return err.Error()
}
