package workflow

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchName(t *testing.T) {
	assert.Equal(t, "team/platform/backend", SearchName("team/platform/backend/svc-auth"))
	assert.Equal(t, "team/platform", SearchName("team/platform"))
	assert.Equal(t, "standalone", SearchName("standalone"))
}

func TestModuleName(t *testing.T) {
	assert.Equal(t, "svc-auth", ModuleName("team/platform/backend/svc-auth"))
	assert.Equal(t, "standalone", ModuleName("standalone"))
}

func TestEngagementID(t *testing.T) {
	id, ok := EngagementID("https://dojo.test/engagement/1234?tab=findings")
	assert.True(t, ok)
	assert.Equal(t, "1234", id)

	_, ok = EngagementID("https://dojo.test/engagement/all")
	assert.False(t, ok)
	_, ok = EngagementID("https://dojo.test/product/7")
	assert.False(t, ok)
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "svc-auth_findings_v2.3.xlsx",
		ExportFilename("{moduleName}_findings_{version}.xlsx", "svc-auth", "v2.3"))
	assert.Equal(t, "svc-auth_release_2026_10.xlsx",
		ExportFilename("{moduleName}_{version}.xlsx", "svc-auth", "release/2026/10"))
	assert.Equal(t, "static.xlsx", ExportFilename("static.xlsx", "svc-auth", "v1"))
}

func TestSnapshot_FirstLinkMatching(t *testing.T) {
	snap, err := parseSnapshot(`<html><body>
		<a>Engagement Survey</a>
		<a>
			Engagements
			<span>12</span>
		</a>
		<a>Engagements 3</a>
	</body></html>`)
	require.NoError(t, err)

	idx, text := snap.firstLinkMatching(engagementsLinkRe)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "Engagements 12", text)

	idx, _ = snap.firstLinkMatching(regexp.MustCompile(`^Findings`))
	assert.Equal(t, -1, idx)
}

func TestSnapshot_CountAndContains(t *testing.T) {
	snap, err := parseSnapshot(`<table><thead><tr><th>Title</th></tr></thead>
		<tbody><tr><td>a</td></tr><tr><td>b</td></tr><tr><td>c</td></tr></tbody></table>
		<p>No products found</p>`)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.count(findingMatcher))
	assert.True(t, snap.contains(noProductsText))
	assert.False(t, snap.contains("Engagements"))
}

func TestLocatorString(t *testing.T) {
	assert.Equal(t, "#id_name", productNameInput.String())
	assert.Equal(t, "a /Excel Export/", excelExportLink.String())
	assert.Equal(t, "xpath=/html/body/div[5]/div/div[2]/ul/li/a/span[2]", engagementOptionPath.String())
}
