package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// fakePage is an in-memory DefectDojo: each path maps to an HTML document
// and clicks move between paths according to nav.
type fakePage struct {
	base string
	path string

	pages   map[string]string // path -> document
	nav     map[string]string // navKey(path, locator) -> next path
	texts   map[string]string // locator -> text content
	missing map[string]bool   // locator -> absent

	download func(ctx context.Context, dest string) error

	filled      map[string]string
	clicks      []string
	navigations []string
}

func newFakePage(base string) *fakePage {
	return &fakePage{
		base:    base,
		pages:   map[string]string{},
		nav:     map[string]string{},
		texts:   map[string]string{},
		missing: map[string]bool{},
		filled:  map[string]string{},
	}
}

func navKey(path, key string) string { return path + "|" + key }

func nthKey(loc Locator, n int) string { return fmt.Sprintf("%s[%d]", loc, n) }

func (f *fakePage) lookup(key string) error {
	if f.missing[key] {
		return errors.New("no element matches " + key)
	}
	return nil
}

func (f *fakePage) click(key string) error {
	if err := f.lookup(key); err != nil {
		return err
	}
	f.clicks = append(f.clicks, key)
	if next, ok := f.nav[navKey(f.path, key)]; ok {
		f.path = next
	}
	return nil
}

func (f *fakePage) clicked(key string) bool {
	for _, c := range f.clicks {
		if c == key {
			return true
		}
	}
	return false
}

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.navigations = append(f.navigations, url)
	f.path = strings.TrimPrefix(url, f.base)
	return nil
}

func (f *fakePage) Click(_ context.Context, loc Locator) error {
	return f.click(loc.String())
}

func (f *fakePage) ClickNth(_ context.Context, loc Locator, n int) error {
	return f.click(nthKey(loc, n))
}

func (f *fakePage) Fill(_ context.Context, loc Locator, value string) error {
	if err := f.lookup(loc.String()); err != nil {
		return err
	}
	f.filled[loc.String()] = value
	return nil
}

func (f *fakePage) Text(_ context.Context, loc Locator) (string, error) {
	if err := f.lookup(loc.String()); err != nil {
		return "", err
	}
	text, ok := f.texts[loc.String()]
	if !ok {
		return "", fmt.Errorf("waiting for %s: %w", loc, context.DeadlineExceeded)
	}
	return text, nil
}

func (f *fakePage) WaitVisible(_ context.Context, loc Locator) error {
	return f.lookup(loc.String())
}

func (f *fakePage) Dismiss(context.Context) error { return nil }

func (f *fakePage) HTML(context.Context) (string, error) {
	if doc, ok := f.pages[f.path]; ok {
		return doc, nil
	}
	return "<html><body></body></html>", nil
}

func (f *fakePage) URL(context.Context) (string, error) {
	return f.base + f.path, nil
}

func (f *fakePage) Download(ctx context.Context, trigger Locator, dest string) error {
	if err := f.click(trigger.String()); err != nil {
		return err
	}
	if f.download != nil {
		return f.download(ctx, dest)
	}
	return os.WriteFile(dest, []byte("PK\x03\x04"), 0o644)
}
