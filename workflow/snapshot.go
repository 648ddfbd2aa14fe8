package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var (
	linkMatcher    = cascadia.MustCompile(allLinks.CSS)
	optionMatcher  = cascadia.MustCompile(engagementOptions.CSS)
	findingMatcher = cascadia.MustCompile(findingRowsCSS)
)

// snapshot is a parsed copy of the page used for read-only queries, so
// scanning many elements costs one round trip instead of one per element.
type snapshot struct {
	doc *goquery.Document
}

func takeSnapshot(ctx context.Context, page Page) (*snapshot, error) {
	raw, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return parseSnapshot(raw)
}

func parseSnapshot(raw string) (*snapshot, error) {
	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	return &snapshot{doc: goquery.NewDocumentFromNode(root)}, nil
}

// contains reports whether the body text contains text.
func (s *snapshot) contains(text string) bool {
	return strings.Contains(s.doc.Find("body").Text(), text)
}

// count returns the number of elements matching m.
func (s *snapshot) count(m goquery.Matcher) int {
	return s.doc.FindMatcher(m).Length()
}

// firstMatching returns the index among elements matching m of the first
// whose whitespace-collapsed text satisfies match, or -1.
func (s *snapshot) firstMatching(m goquery.Matcher, match func(string) bool) (int, string) {
	idx, text := -1, ""
	s.doc.FindMatcher(m).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		t := collapseSpace(sel.Text())
		if t != "" && match(t) {
			idx, text = i, t
			return false
		}
		return true
	})
	return idx, text
}

// firstLinkMatching finds the first link whose text matches re.
func (s *snapshot) firstLinkMatching(re *regexp.Regexp) (int, string) {
	return s.firstMatching(linkMatcher, re.MatchString)
}

// firstOptionContaining finds the first selectable option whose text
// contains needle.
func (s *snapshot) firstOptionContaining(needle string) (int, string) {
	return s.firstMatching(optionMatcher, func(t string) bool {
		return strings.Contains(t, needle)
	})
}
