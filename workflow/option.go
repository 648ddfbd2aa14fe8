package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/use-agent/dojo-export/models"
)

// optionLookup tries one way of choosing the engagement filter option.
// It reports found=false when its strategy does not apply, and an error
// only when the page failed underneath it.
type optionLookup struct {
	name string
	find func(ctx context.Context, e *Exporter, r *run) (found bool, err error)
}

// optionLookups are tried in order; the first that finds the option wins.
var optionLookups = []optionLookup{
	{name: "exact", find: exactOption},
	{name: "scan", find: scanOption},
}

// exactOption reads the positional option slot and clicks it when its text
// contains the engagement id. A slot that never becomes visible within
// OptionTimeout is treated like a mismatch and hands over to the scan.
func exactOption(ctx context.Context, e *Exporter, r *run) (bool, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, e.opts.OptionTimeout)
	text, err := r.page.Text(lookupCtx, engagementOptionPath)
	cancel()
	if err != nil {
		r.log.Debug("positional option not visible", "error", err)
		return false, nil
	}
	if !strings.Contains(text, r.engagementID) {
		r.log.Debug("positional option does not match", "text", collapseSpace(text))
		return false, nil
	}
	if err := r.page.Click(ctx, engagementOptionPath); err != nil {
		return false, elementErr(err, engagementOptionPath)
	}
	return true, nil
}

// scanOption enumerates every selectable option and clicks the first whose
// text contains the engagement id.
func scanOption(ctx context.Context, _ *Exporter, r *run) (bool, error) {
	snap, err := takeSnapshot(ctx, r.page)
	if err != nil {
		return false, models.Categorize(err, models.ErrCodeNavigation, "read engagement options")
	}
	idx, text := snap.firstOptionContaining(r.engagementID)
	if idx < 0 {
		return false, nil
	}
	r.log.Debug("engagement option found by scan", "index", idx, "text", text)
	if err := r.page.ClickNth(ctx, engagementOptions, idx); err != nil {
		return false, elementErr(err, engagementOptions)
	}
	return true, nil
}

// selectEngagementOption picks the filter option for the engagement id. When
// no lookup finds one the product fails with OPTION_NOT_FOUND rather than
// applying the filters unchanged and exporting unfiltered findings.
func (e *Exporter) selectEngagementOption(ctx context.Context, r *run) error {
	for _, lookup := range optionLookups {
		found, err := lookup.find(ctx, e, r)
		if err != nil {
			return err
		}
		if found {
			r.log.Debug("engagement option selected", "strategy", lookup.name)
			return nil
		}
	}
	return models.NewAutomationError(models.ErrCodeOptionNotFound,
		fmt.Sprintf("no engagement filter option contains %q", r.engagementID), nil)
}
