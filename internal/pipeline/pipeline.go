// Package pipeline runs one pass of scrape, deduplicate, plan and append.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/casalert/internal/config"
	"github.com/steveyegge/casalert/internal/deduplication"
	"github.com/steveyegge/casalert/internal/metrics"
	"github.com/steveyegge/casalert/internal/notify"
	"github.com/steveyegge/casalert/internal/scraper"
	"github.com/steveyegge/casalert/internal/storage"
	"github.com/steveyegge/casalert/internal/types"
)

// ErrNoScrapers is returned by Run when no source is enabled
var ErrNoScrapers = errors.New("no sources enabled")

// Titles used for run notifications
const (
	SuccessTitle = "CAS Alert Scraper"
	ErrorTitle   = "CAS Alert Scraper Error"
)

// Options configures a Pipeline
type Options struct {
	Scrapers     []scraper.Scraper
	Store        storage.Store
	Deduplicator *deduplication.Deduplicator // required
	Planner      *deduplication.Planner      // nil = NewPlanner(Logger)
	Notifier     notify.Notifier             // nil = notify.Nop
	Metrics      *metrics.Metrics            // nil = no metrics
	Logger       *slog.Logger                // nil = discard

	MaxAlertsPerRun int  // 0 = no cap
	DryRun          bool // plan only, never append

	// RunHistory prunes old runs after each recorded run when enabled
	RunHistory config.RunHistoryConfig

	// Now overrides the clock in tests
	Now func() time.Time
}

// Pipeline wires scrapers, the dedup engine and a store
type Pipeline struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New creates a pipeline
func New(opts Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Deduplicator == nil {
		return nil, fmt.Errorf("deduplicator is required")
	}
	if opts.MaxAlertsPerRun < 0 {
		return nil, fmt.Errorf("max alerts per run cannot be negative (got %d)", opts.MaxAlertsPerRun)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Planner == nil {
		opts.Planner = deduplication.NewPlanner(opts.Logger)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		opts:   opts,
		logger: opts.Logger.With("component", "pipeline"),
		now:    now,
	}, nil
}

// Collection is the combined output of every scraper in a run
type Collection struct {
	// Alerts holds CAS alerts first, then GOV.UK, each in page order
	Alerts []*types.Alert

	// Counts is the number of alerts each source returned
	Counts map[types.Source]int

	// Failed maps each failed source to its error
	Failed map[types.Source]error
}

// Err joins the per-source failures, or returns nil
func (c *Collection) Err() error {
	if len(c.Failed) == 0 {
		return nil
	}
	sources := make([]types.Source, 0, len(c.Failed))
	for s := range c.Failed {
		sources = append(sources, s)
	}
	slices.SortFunc(sources, func(a, b types.Source) int { return sourceRank(a) - sourceRank(b) })
	errs := make([]error, 0, len(sources))
	for _, s := range sources {
		errs = append(errs, fmt.Errorf("%s: %w", s, c.Failed[s]))
	}
	return errors.Join(errs...)
}

func sourceRank(s types.Source) int {
	switch s {
	case types.SourceCAS:
		return 0
	case types.SourceGOVUK:
		return 1
	}
	return 2
}

// Collect runs every scraper concurrently. A failing scraper does not cancel
// the others; the returned error is non-nil only when every scraper failed.
func (p *Pipeline) Collect(ctx context.Context) (*Collection, error) {
	if len(p.opts.Scrapers) == 0 {
		return nil, ErrNoScrapers
	}

	ordered := slices.Clone(p.opts.Scrapers)
	slices.SortStableFunc(ordered, func(a, b scraper.Scraper) int {
		return sourceRank(a.Source()) - sourceRank(b.Source())
	})

	results := make([][]*types.Alert, len(ordered))
	errs := make([]error, len(ordered))

	var g errgroup.Group
	for i, s := range ordered {
		g.Go(func() error {
			start := p.now()
			alerts, err := s.Scrape(ctx)
			if err != nil {
				p.logger.Error("source failed", "source", s.Source(), "error", err)
				errs[i] = err
				return nil
			}
			p.logger.Info("source scraped", "source", s.Source(), "alerts", len(alerts),
				"elapsed", p.now().Sub(start).Round(time.Millisecond))
			results[i] = alerts
			return nil
		})
	}
	_ = g.Wait()

	c := &Collection{
		Counts: make(map[types.Source]int),
		Failed: make(map[types.Source]error),
	}
	for i, s := range ordered {
		if errs[i] != nil {
			c.Failed[s.Source()] = errs[i]
			continue
		}
		c.Counts[s.Source()] += len(results[i])
		c.Alerts = append(c.Alerts, results[i]...)
	}

	if len(c.Failed) == len(ordered) {
		return c, fmt.Errorf("failed to scrape any source: %w", c.Err())
	}
	return c, nil
}

// Run performs one complete pass. The returned run is always non-nil and
// describes the outcome; the error is non-nil when the run failed.
func (p *Pipeline) Run(ctx context.Context) (*types.ScrapeRun, error) {
	run := types.NewScrapeRun(p.now())
	run.DryRun = p.opts.DryRun
	logger := p.logger.With("run_id", run.ID)
	logger.Info("run started", "sources", len(p.opts.Scrapers), "dry_run", run.DryRun)

	added, status, err := p.execute(ctx, run, logger)
	run.Finish(p.now(), status, err)

	if err != nil {
		logger.Error("run failed", "error", err, "duration", run.Duration())
		p.notify(ctx, logger, notify.Notification{
			Title:   ErrorTitle,
			Message: err.Error(),
			RunID:   run.ID,
		})
	} else {
		logger.Info("run finished",
			"status", run.Status,
			"scraped", run.TotalScraped(),
			"unique", run.Unique,
			"added", run.Added,
			"duration", run.Duration())
		if added > 0 && !run.DryRun {
			p.notify(ctx, logger, notify.Notification{
				Title:     SuccessTitle,
				Message:   fmt.Sprintf("Found %d new alerts", added),
				RunID:     run.ID,
				NewAlerts: added,
			})
		}
	}

	p.record(ctx, logger, run)
	p.opts.Metrics.ObserveRun(run)
	return run, err
}

func (p *Pipeline) execute(ctx context.Context, run *types.ScrapeRun, logger *slog.Logger) (int, types.RunStatus, error) {
	collected, err := p.Collect(ctx)
	if collected != nil {
		for source, n := range collected.Counts {
			run.Scraped[source] = n
		}
	}
	if err != nil {
		return 0, types.RunStatusFailed, err
	}
	status := types.RunStatusSucceeded
	if len(collected.Failed) > 0 {
		status = types.RunStatusPartial
		logger.Warn("continuing with partial results", "error", collected.Err())
	}

	result := p.opts.Deduplicator.RemoveDuplicates(collected.Alerts)
	run.ExactDuplicates = result.Stats.ExactDuplicateCount
	run.FuzzyDuplicates = result.Stats.FuzzyDuplicateCount
	run.Unique = result.Stats.UniqueCount

	existing, err := p.opts.Store.GetExistingAlerts(ctx)
	if err != nil {
		return 0, types.RunStatusFailed, fmt.Errorf("failed to read existing alerts: %w", err)
	}

	plan := p.opts.Planner.PlanAdditions(existing, result.Unique)
	run.KnownSkipped = plan.Skipped()

	toAdd := plan.ToAdd
	if limit := p.opts.MaxAlertsPerRun; limit > 0 && len(toAdd) > limit {
		logger.Warn("new alerts exceed per-run limit, truncating",
			"new", len(toAdd), "limit", limit)
		toAdd = toAdd[:limit]
	}

	if len(toAdd) == 0 {
		logger.Info("no new alerts")
		return 0, status, nil
	}
	if run.DryRun {
		for _, a := range toAdd {
			logger.Info("would add alert", "alert", a.String())
		}
		return len(toAdd), status, nil
	}

	if err := p.opts.Store.Append(ctx, toAdd); err != nil {
		return 0, types.RunStatusFailed, fmt.Errorf("failed to append %d alerts: %w", len(toAdd), err)
	}
	run.Added = len(toAdd)
	return len(toAdd), status, nil
}

// notify failures are logged; they never fail the run
func (p *Pipeline) notify(ctx context.Context, logger *slog.Logger, n notify.Notification) {
	n.SentAt = p.now()
	if err := p.opts.Notifier.Notify(ctx, n); err != nil {
		logger.Warn("failed to send notification", "title", n.Title, "error", err)
	}
}

func (p *Pipeline) record(ctx context.Context, logger *slog.Logger, run *types.ScrapeRun) {
	recorder, ok := p.opts.Store.(storage.RunRecorder)
	if !ok {
		return
	}
	// Record even when the run context was cancelled
	ctx = context.WithoutCancel(ctx)
	if err := recorder.RecordRun(ctx, run); err != nil {
		logger.Warn("failed to record run", "error", err)
		return
	}
	if !p.opts.RunHistory.Enabled() {
		return
	}
	deleted, err := recorder.CleanupRuns(ctx, p.opts.RunHistory)
	if err != nil {
		logger.Warn("failed to clean up run history", "error", err)
		return
	}
	if deleted > 0 {
		logger.Debug("cleaned up run history", "deleted", deleted)
	}
}
