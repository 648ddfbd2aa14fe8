package workflow

import (
	"context"
	"fmt"
)

// Locator identifies an element on the page. XPath takes precedence over
// CSS. When Text is set the element must also match CSS and have text
// content matching the Text regular expression.
type Locator struct {
	CSS   string
	XPath string
	Text  string
}

// String renders the locator for logs and error messages.
func (l Locator) String() string {
	switch {
	case l.XPath != "":
		return "xpath=" + l.XPath
	case l.Text != "":
		return fmt.Sprintf("%s /%s/", l.CSS, l.Text)
	default:
		return l.CSS
	}
}

// Page is the browser surface the workflow drives. Every method blocks until
// its condition holds or ctx is done.
type Page interface {
	// Navigate loads url and waits for the network to go idle.
	Navigate(ctx context.Context, url string) error

	// Click waits for the first element matching loc to be visible, clicks
	// it and waits for the network to go idle.
	Click(ctx context.Context, loc Locator) error

	// ClickNth clicks the n-th (zero based) element matching loc.CSS in
	// document order.
	ClickNth(ctx context.Context, loc Locator, n int) error

	// Fill replaces the value of the input matching loc.
	Fill(ctx context.Context, loc Locator, value string) error

	// Text waits for loc to be visible and returns its text content.
	Text(ctx context.Context, loc Locator) (string, error)

	// WaitVisible waits for loc to be visible.
	WaitVisible(ctx context.Context, loc Locator) error

	// Dismiss clicks an empty corner of the page to close open dropdowns.
	Dismiss(ctx context.Context) error

	// HTML returns the current rendered document.
	HTML(ctx context.Context) (string, error)

	// URL returns the address of the current document.
	URL(ctx context.Context) (string, error)

	// Download clicks trigger and waits for the resulting download to
	// complete, saving it to dest. It fails once ctx is done.
	Download(ctx context.Context, trigger Locator, dest string) error
}
