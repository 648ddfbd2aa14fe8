package workflow

import (
	"strings"
)

// searchSegments is how many leading path segments the product search
// field accepts reliably.
const searchSegments = 3

// SearchName truncates a hierarchical product name to its first three
// slash-separated segments.
func SearchName(productName string) string {
	parts := strings.Split(productName, "/")
	if len(parts) > searchSegments {
		parts = parts[:searchSegments]
	}
	return strings.Join(parts, "/")
}

// ModuleName returns the last slash-separated segment of productName.
func ModuleName(productName string) string {
	parts := strings.Split(productName, "/")
	return parts[len(parts)-1]
}

// EngagementID extracts the numeric engagement id from a page address.
func EngagementID(url string) (string, bool) {
	m := engagementIDRe.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// pathUnsafe keeps substituted values from escaping the output directory.
var pathUnsafe = strings.NewReplacer("/", "_", `\`, "_")

// ExportFilename substitutes {moduleName} and {version} into template.
func ExportFilename(template, moduleName, version string) string {
	return strings.NewReplacer(
		"{moduleName}", pathUnsafe.Replace(moduleName),
		"{version}", pathUnsafe.Replace(version),
	).Replace(template)
}

// collapseSpace trims s and folds internal whitespace runs to single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
