package workflow

import "regexp"

// DefectDojo page structure. These match the stock 2.x templates.
var (
	productFilterToggle = Locator{CSS: "#show-filters"}
	productNameInput    = Locator{CSS: "#id_name"}
	applyFiltersButton  = Locator{CSS: "button", Text: "Apply Filters"}
	viewEngagementsLink = Locator{CSS: "a", Text: "View Engagements"}

	engagementRows   = Locator{CSS: "#open tbody tr"}
	latestEngagement = Locator{CSS: "#open > tbody > tr:nth-child(1) > td:nth-child(2) > a"}

	findingFilterToggle  = Locator{CSS: `[aria-label="show-filters"], #show-filters`}
	engagementDropdown   = Locator{CSS: "div:nth-child(13) > .dropdown > .btn"}
	engagementSearchBox  = Locator{CSS: `input[role="combobox"][aria-label="Search"], .bs-searchbox input`}
	engagementOptionPath = Locator{XPath: "/html/body/div[5]/div/div[2]/ul/li/a/span[2]"}
	engagementOptions    = Locator{CSS: `[role="option"]`}

	exportMenuButton = Locator{CSS: `[aria-label="dropdown-menu"]`}
	excelExportLink  = Locator{CSS: "a", Text: "Excel Export"}

	allLinks = Locator{CSS: "a"}
)

// Snapshot markers.
const (
	noProductsText = "No products found"
	findingRowsCSS = "tbody tr"
)

var (
	engagementsLinkRe = regexp.MustCompile(`^Engagements \d+`)
	engagementIDRe    = regexp.MustCompile(`/engagement/(\d+)`)
)

// productLink matches the product list entry for the truncated name.
func productLink(name string) Locator {
	return Locator{CSS: "a", Text: regexp.QuoteMeta(name)}
}
