package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/dojo-export/models"
	"github.com/use-agent/dojo-export/workflow"
)

// idleWindow is how long the network must stay quiet to count as idle.
const idleWindow = 300 * time.Millisecond

// Page drives a single rod page. Every call binds the caller's context to
// the page, so element lookups retry until they succeed or ctx is done.
type Page struct {
	browser     *rod.Browser
	page        *rod.Page
	downloadDir string

	// hijacked pages wait for a stable DOM instead of request idle, since
	// request idle tracking conflicts with the hijack router.
	hijacked bool
}

var _ workflow.Page = (*Page)(nil)

func (p *Page) bind(ctx context.Context) *rod.Page {
	return p.page.Context(ctx)
}

// settle runs action and then waits for the page to go quiet. For request
// idle the listener must be registered before the action, or in-flight
// requests are missed and the wait returns instantly.
func (p *Page) settle(rp *rod.Page, action func() error) error {
	if p.hijacked {
		if err := action(); err != nil {
			return err
		}
		if err := rp.WaitDOMStable(idleWindow, 0.1); err != nil {
			slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
		}
		return rp.GetContext().Err()
	}

	waitIdle := rp.WaitRequestIdle(idleWindow, nil, nil, nil)
	if err := action(); err != nil {
		return err
	}
	waitIdle()
	return rp.GetContext().Err()
}

func (p *Page) element(rp *rod.Page, loc workflow.Locator) (*rod.Element, error) {
	var (
		el  *rod.Element
		err error
	)
	switch {
	case loc.XPath != "":
		el, err = rp.ElementX(loc.XPath)
	case loc.Text != "":
		el, err = rp.ElementR(loc.CSS, loc.Text)
	default:
		el, err = rp.Element(loc.CSS)
	}
	if err != nil {
		return nil, fmt.Errorf("element %s not found: %w", loc, err)
	}
	return el, nil
}

func (p *Page) visible(rp *rod.Page, loc workflow.Locator) (*rod.Element, error) {
	el, err := p.element(rp, loc)
	if err != nil {
		return nil, err
	}
	if err := el.WaitVisible(); err != nil {
		return nil, fmt.Errorf("element %s not visible: %w", loc, err)
	}
	return el, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	rp := p.bind(ctx)
	return p.settle(rp, func() error {
		if err := rp.Navigate(url); err != nil {
			return fmt.Errorf("navigate to %s: %w", url, err)
		}
		return rp.WaitLoad()
	})
}

func (p *Page) Click(ctx context.Context, loc workflow.Locator) error {
	rp := p.bind(ctx)
	el, err := p.visible(rp, loc)
	if err != nil {
		return err
	}
	return p.settle(rp, func() error {
		return el.Click(proto.InputMouseButtonLeft, 1)
	})
}

func (p *Page) ClickNth(ctx context.Context, loc workflow.Locator, n int) error {
	rp := p.bind(ctx)
	var (
		els rod.Elements
		err error
	)
	if loc.XPath != "" {
		els, err = rp.ElementsX(loc.XPath)
	} else {
		els, err = rp.Elements(loc.CSS)
	}
	if err != nil {
		return fmt.Errorf("elements %s: %w", loc, err)
	}
	if n < 0 || n >= len(els) {
		return fmt.Errorf("elements %s: index %d out of range (%d matches)", loc, n, len(els))
	}
	el := els[n]
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("element %s[%d] not visible: %w", loc, n, err)
	}
	return p.settle(rp, func() error {
		return el.Click(proto.InputMouseButtonLeft, 1)
	})
}

func (p *Page) Fill(ctx context.Context, loc workflow.Locator, value string) error {
	el, err := p.visible(p.bind(ctx), loc)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select %s: %w", loc, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("input into %s: %w", loc, err)
	}
	return nil
}

func (p *Page) Text(ctx context.Context, loc workflow.Locator) (string, error) {
	el, err := p.visible(p.bind(ctx), loc)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (p *Page) WaitVisible(ctx context.Context, loc workflow.Locator) error {
	_, err := p.visible(p.bind(ctx), loc)
	return err
}

// Dismiss clicks the top-left corner, outside any dropdown.
func (p *Page) Dismiss(ctx context.Context) error {
	rp := p.bind(ctx)
	if err := rp.Mouse.MoveTo(proto.Point{X: 1, Y: 1}); err != nil {
		return err
	}
	if err := rp.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	if err := rp.WaitDOMStable(idleWindow, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge after dismiss", "error", err)
	}
	return ctx.Err()
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	return p.bind(ctx).HTML()
}

func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.bind(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Download arms the browser-level download listener, clicks trigger and
// moves the completed file from the staging directory to dest.
func (p *Page) Download(ctx context.Context, trigger workflow.Locator, dest string) error {
	rp := p.bind(ctx)
	el, err := p.visible(rp, trigger)
	if err != nil {
		return err
	}

	wait := p.browser.Context(ctx).WaitDownload(p.downloadDir)
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", trigger, err)
	}
	info := wait()

	if ctx.Err() != nil {
		return models.NewAutomationError(models.ErrCodeDownloadTimeout, "download not confirmed", ctx.Err())
	}
	if info == nil {
		return models.NewAutomationError(models.ErrCodeDownloadTimeout, "download did not start", nil)
	}

	staged := filepath.Join(p.downloadDir, info.GUID)
	if _, err := os.Stat(staged); err != nil {
		return models.NewAutomationError(models.ErrCodeDownloadTimeout, "downloaded file missing", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dest), err)
	}
	if err := os.Rename(staged, dest); err != nil {
		return errors.Join(fmt.Errorf("move download to %s", dest), err)
	}
	slog.Debug("download saved", "suggested", info.SuggestedFilename, "path", dest)
	return nil
}
