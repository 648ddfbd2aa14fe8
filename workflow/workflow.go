// Package workflow exports the findings of a product's latest DefectDojo
// engagement by driving a Page through a fixed sequence of states:
//
//	search -> open product -> select latest engagement -> extract id
//	       -> filter findings -> export
//
// A product that does not exist ends the sequence after search. A
// download that is never confirmed is recorded on the result but does not
// fail the product. Any other error fails only the product being processed.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/dojo-export/models"
)

// Options configures an Exporter. Zero durations take the defaults below.
type Options struct {
	// BaseURL is the DefectDojo root without a trailing slash.
	BaseURL string

	// OutputDir receives the exported spreadsheets.
	OutputDir string

	// FilenameTemplate may contain {moduleName} and {version}.
	FilenameTemplate string

	StepTimeout     time.Duration // default: 30s
	TableTimeout    time.Duration // default: 10s
	OptionTimeout   time.Duration // default: 5s
	DownloadTimeout time.Duration // default: 15s

	// Now stamps results; defaults to time.Now.
	Now func() time.Time
}

func (o *Options) defaults() {
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.FilenameTemplate == "" {
		o.FilenameTemplate = "{moduleName}_findings_{version}.xlsx"
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = 30 * time.Second
	}
	if o.TableTimeout <= 0 {
		o.TableTimeout = 10 * time.Second
	}
	if o.OptionTimeout <= 0 {
		o.OptionTimeout = 5 * time.Second
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = 15 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Exporter runs the export workflow. It holds no per-product state and
// may be reused for any number of products.
type Exporter struct {
	opts Options
}

// New creates an Exporter.
func New(opts Options) *Exporter {
	opts.defaults()
	return &Exporter{opts: opts}
}

type state int

const (
	stateSearch state = iota
	stateOpenProduct
	stateSelectLatest
	stateExtractID
	stateFilterFindings
	stateExport
	stateDone
)

func (s state) String() string {
	switch s {
	case stateSearch:
		return "search"
	case stateOpenProduct:
		return "open_product"
	case stateSelectLatest:
		return "select_latest_engagement"
	case stateExtractID:
		return "extract_engagement_id"
	case stateFilterFindings:
		return "filter_findings"
	case stateExport:
		return "export"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// run is the per-product working set threaded through the states.
type run struct {
	page         Page
	product      string
	result       *models.ProductResult
	engagementID string
	log          *slog.Logger
}

type stepFunc func(ctx context.Context, r *run) (state, error)

func (e *Exporter) stepFor(s state) stepFunc {
	switch s {
	case stateSearch:
		return e.search
	case stateOpenProduct:
		return e.openProduct
	case stateSelectLatest:
		return e.selectLatest
	case stateExtractID:
		return e.extractID
	case stateFilterFindings:
		return e.filterFindings
	case stateExport:
		return e.export
	default:
		return nil
	}
}

// Process exports the latest engagement of productName. It never returns
// nil and never panics on page errors: failures are recorded on the result.
func (e *Exporter) Process(ctx context.Context, page Page, productName string) *models.ProductResult {
	r := &run{
		page:    page,
		product: productName,
		result:  models.NewProductResult(productName, e.opts.Now()),
		log:     slog.With("product", productName),
	}
	r.log.Info("processing product")

	for s := stateSearch; s != stateDone; {
		step := e.stepFor(s)
		if step == nil {
			r.fail(s, fmt.Errorf("no step for %s", s))
			break
		}
		next, err := step(ctx, r)
		if err != nil {
			r.fail(s, err)
			break
		}
		r.log.Debug("step complete", "step", s.String(), "next", next.String())
		s = next
	}
	return r.result
}

func (r *run) fail(s state, err error) {
	r.log.Error("product failed", "step", s.String(), "error", err)
	r.result.Success = false
	r.result.SetError(err.Error())
}

func (e *Exporter) withStep(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opts.StepTimeout)
}

func (e *Exporter) search(ctx context.Context, r *run) (state, error) {
	ctx, cancel := e.withStep(ctx)
	defer cancel()

	if err := r.page.Navigate(ctx, e.opts.BaseURL+"/product"); err != nil {
		return 0, models.Categorize(err, models.ErrCodeNavigation, "open product list")
	}
	if err := r.page.Click(ctx, productFilterToggle); err != nil {
		return 0, elementErr(err, productFilterToggle)
	}
	if err := r.page.Fill(ctx, productNameInput, SearchName(r.product)); err != nil {
		return 0, elementErr(err, productNameInput)
	}
	if err := r.page.Click(ctx, applyFiltersButton); err != nil {
		return 0, elementErr(err, applyFiltersButton)
	}

	snap, err := takeSnapshot(ctx, r.page)
	if err != nil {
		return 0, models.Categorize(err, models.ErrCodeNavigation, "read product list")
	}
	if snap.contains(noProductsText) {
		r.log.Warn("no products found, skipping")
		r.result.Success = true
		r.result.SetError(models.NoteProductNotFound)
		return stateDone, nil
	}
	return stateOpenProduct, nil
}

func (e *Exporter) openProduct(ctx context.Context, r *run) (state, error) {
	ctx, cancel := e.withStep(ctx)
	defer cancel()

	link := productLink(SearchName(r.product))
	if err := r.page.Click(ctx, link); err != nil {
		return 0, elementErr(err, link)
	}

	snap, err := takeSnapshot(ctx, r.page)
	if err != nil {
		return 0, models.Categorize(err, models.ErrCodeNavigation, "read product page")
	}
	if idx, text := snap.firstLinkMatching(engagementsLinkRe); idx >= 0 {
		r.log.Debug("opening engagements", "link", text)
		if err := r.page.ClickNth(ctx, allLinks, idx); err != nil {
			return 0, elementErr(err, allLinks)
		}
	} else {
		r.log.Warn("engagements link not found on product page")
	}

	if err := r.page.Click(ctx, viewEngagementsLink); err != nil {
		return 0, elementErr(err, viewEngagementsLink)
	}
	return stateSelectLatest, nil
}

// selectLatest opens the first row of the engagements table. DefectDojo
// lists the most recent engagement first.
func (e *Exporter) selectLatest(ctx context.Context, r *run) (state, error) {
	ctx, cancel := e.withStep(ctx)
	defer cancel()

	tableCtx, tableCancel := context.WithTimeout(ctx, e.opts.TableTimeout)
	err := r.page.WaitVisible(tableCtx, engagementRows)
	tableCancel()
	if err != nil {
		return 0, elementErr(err, engagementRows)
	}

	text, err := r.page.Text(ctx, latestEngagement)
	if err != nil {
		return 0, elementErr(err, latestEngagement)
	}
	r.result.EngagementVersion = models.Str(strings.TrimSpace(text))
	r.result.ModuleName = models.Str(ModuleName(r.product))

	if err := r.page.Click(ctx, latestEngagement); err != nil {
		return 0, elementErr(err, latestEngagement)
	}
	return stateExtractID, nil
}

func (e *Exporter) extractID(ctx context.Context, r *run) (state, error) {
	ctx, cancel := e.withStep(ctx)
	defer cancel()

	url, err := r.page.URL(ctx)
	if err != nil {
		return 0, models.Categorize(err, models.ErrCodeNavigation, "read engagement address")
	}
	id, ok := EngagementID(url)
	if !ok {
		return 0, models.NewAutomationError(models.ErrCodeEngagementID,
			fmt.Sprintf("could not extract engagement ID from %q", url), nil)
	}
	r.engagementID = id
	r.result.EngagementID = models.Str(id)
	r.log = r.log.With("engagementId", id)
	return stateFilterFindings, nil
}

func (e *Exporter) filterFindings(ctx context.Context, r *run) (state, error) {
	ctx, cancel := e.withStep(ctx)
	defer cancel()

	if err := r.page.Navigate(ctx, e.opts.BaseURL+"/finding/open"); err != nil {
		return 0, models.Categorize(err, models.ErrCodeNavigation, "open findings list")
	}
	if err := r.page.Dismiss(ctx); err != nil {
		return 0, models.Categorize(err, models.ErrCodeElement, "dismiss overlays")
	}
	for _, loc := range []Locator{findingFilterToggle, engagementDropdown} {
		if err := r.page.Click(ctx, loc); err != nil {
			return 0, elementErr(err, loc)
		}
	}
	if err := r.page.Fill(ctx, engagementSearchBox, r.engagementID); err != nil {
		return 0, elementErr(err, engagementSearchBox)
	}

	if err := e.selectEngagementOption(ctx, r); err != nil {
		return 0, err
	}

	if err := r.page.Dismiss(ctx); err != nil {
		return 0, models.Categorize(err, models.ErrCodeElement, "dismiss overlays")
	}
	if err := r.page.Click(ctx, applyFiltersButton); err != nil {
		return 0, elementErr(err, applyFiltersButton)
	}
	return stateExport, nil
}

func (e *Exporter) export(ctx context.Context, r *run) (state, error) {
	stepCtx, cancel := e.withStep(ctx)
	defer cancel()

	snap, err := takeSnapshot(stepCtx, r.page)
	if err != nil {
		return 0, models.Categorize(err, models.ErrCodeNavigation, "read findings list")
	}
	findings := snap.count(findingMatcher)

	if err := r.page.Click(stepCtx, exportMenuButton); err != nil {
		return 0, elementErr(err, exportMenuButton)
	}

	name := ExportFilename(e.opts.FilenameTemplate,
		models.Deref(r.result.ModuleName), models.Deref(r.result.EngagementVersion))
	dest := filepath.Join(e.opts.OutputDir, name)

	dlCtx, dlCancel := context.WithTimeout(ctx, e.opts.DownloadTimeout)
	err = r.page.Download(dlCtx, excelExportLink, dest)
	dlCancel()

	// The export was triggered either way; a missing download is only noted.
	r.result.Success = true
	if err != nil {
		note := models.NoteDownloadTimeout
		if findings == 0 {
			note = models.NoteNoFindingsTimeout
		}
		r.result.SetError(note)
		r.log.Warn("export not confirmed", "file", name, "findings", findings, "error", err)
		return stateDone, nil
	}

	r.result.ExcelPath = models.Str(dest)
	r.log.Info("export saved", "path", dest, "findings", findings)
	return stateDone, nil
}

func elementErr(err error, loc Locator) error {
	return models.Categorize(err, models.ErrCodeElement, "locate "+loc.String())
}
