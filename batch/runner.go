// Package batch runs the export workflow over a list of products with one
// shared browser session and persists the run summary.
package batch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/dojo-export/models"
	"github.com/use-agent/dojo-export/session"
	"github.com/use-agent/dojo-export/webhook"
	"github.com/use-agent/dojo-export/workflow"
)

// ErrAuthFailed aborts a run before any product is processed.
var ErrAuthFailed = models.NewAutomationError(models.ErrCodeAuthFailed, "failed to login to DefectDojo", nil)

// Session is the browser session a run drives. session.Manager implements it.
type Session interface {
	Open() error
	Authenticate(ctx context.Context, creds session.Credentials) bool
	Page() workflow.Page
	Close()
}

// ProcessFunc exports one product on page. workflow.Exporter.Process
// satisfies it.
type ProcessFunc func(ctx context.Context, page workflow.Page, productName string) *models.ProductResult

// Notifier receives the completed run. webhook.Notifier implements it.
type Notifier interface {
	DeliverWithRetry(ctx context.Context, event *webhook.Event) error
}

// Options configures a Runner.
type Options struct {
	OutputDir   string
	Credentials session.Credentials

	// ProductDelay spaces consecutive products. Zero disables pacing.
	ProductDelay time.Duration

	// Notifier is optional.
	Notifier Notifier

	// Now defaults to time.Now.
	Now func() time.Time
}

// Runner processes products one at a time, in order.
type Runner struct {
	session Session
	process ProcessFunc
	opts    Options
}

// NewRunner creates a Runner.
func NewRunner(s Session, process ProcessFunc, opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{session: s, process: process, opts: opts}
}

// Run opens the session, logs in once, processes every product and writes
// the summary. Product failures are recorded in the summary; only launch,
// login and summary persistence errors are returned. The session is closed
// on every path.
func (r *Runner) Run(ctx context.Context, products []string) (*models.RunSummary, string, error) {
	started := r.opts.Now()
	slog.Info("starting run", "products", len(products))

	defer r.session.Close()

	if err := r.session.Open(); err != nil {
		return nil, "", err
	}
	if !r.session.Authenticate(ctx, r.opts.Credentials) {
		return nil, "", ErrAuthFailed
	}

	page := r.session.Page()
	pacer := newPacer(r.opts.ProductDelay)
	results := make([]*models.ProductResult, 0, len(products))

	for i, name := range products {
		if i > 0 {
			if err := pacer.wait(ctx); err != nil {
				slog.Debug("pacing skipped", "error", err)
			}
		}
		result := r.process(ctx, page, name)
		pacer.mark()
		results = append(results, result)
		slog.Info("product processed",
			"product", name,
			"index", i+1,
			"of", len(products),
			"success", result.Success,
		)
	}

	summary := models.NewRunSummary(results, started, r.opts.Now())
	path, err := WriteSummary(r.opts.OutputDir, summary)
	if err != nil {
		return summary, "", err
	}
	slog.Info("summary saved",
		"path", path,
		"total", summary.TotalProducts,
		"successful", summary.Successful,
		"failed", summary.Failed,
	)

	r.notify(ctx, summary)
	return summary, path, nil
}

func (r *Runner) notify(ctx context.Context, summary *models.RunSummary) {
	if r.opts.Notifier == nil {
		return
	}
	event := &webhook.Event{
		Type:      webhook.EventRunCompleted,
		RunID:     summary.RunID,
		Timestamp: summary.Timestamp.Unix(),
		Data:      summary,
	}
	if err := r.opts.Notifier.DeliverWithRetry(ctx, event); err != nil {
		slog.Error("webhook delivery exhausted all retries", "run_id", summary.RunID, "error", err)
	}
}

// pacer inserts a pause of delay between the end of one product and the
// start of the next.
type pacer struct {
	delay time.Duration
	lim   *rate.Limiter
}

func newPacer(delay time.Duration) *pacer {
	p := &pacer{delay: delay}
	p.reset()
	return p
}

func (p *pacer) reset() {
	if p.delay <= 0 {
		p.lim = rate.NewLimiter(rate.Inf, 1)
		return
	}
	p.lim = rate.NewLimiter(rate.Every(p.delay), 1)
}

// mark starts a full delay window: a fresh limiter is drained, so the next
// wait lasts until delay has passed since mark however long the product took.
func (p *pacer) mark() {
	p.reset()
	p.lim.Allow()
}

func (p *pacer) wait(ctx context.Context) error { return p.lim.Wait(ctx) }
