package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/dojo-export/models"
)

const (
	testBase    = "https://dojo.test"
	testProduct = "team/platform/backend/svc-auth"
)

var testNow = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

// dojoSite builds a fake instance where testProduct has engagement 42
// labelled "v2.3" with two open findings.
func dojoSite() *fakePage {
	f := newFakePage(testBase)

	f.pages["/product/filtered"] = `<html><body><table><tbody>
		<tr><td><a href="/product/7">team/platform/backend</a></td></tr>
	</tbody></table></body></html>`
	f.pages["/product/7"] = `<html><body>
		<a href="/">Home</a>
		<a href="/product">Products</a>
		<a href="#" class="dropdown-toggle">
			Engagements
			<span class="badge">3</span>
		</a>
		<a href="/product/7/engagements">View Engagements</a>
	</body></html>`
	f.pages["/finding/open"] = `<html><body>
		<ul><li role="option"><a><span>Engagement 17</span></a></li>
		<li role="option"><a><span>Engagement 42 (v2.3)</span></a></li></ul>
	</body></html>`
	f.pages["/finding/open/filtered"] = `<html><body><table><tbody>
		<tr><td>SQL injection</td></tr><tr><td>Weak cipher</td></tr>
	</tbody></table></body></html>`

	f.nav[navKey("/product", applyFiltersButton.String())] = "/product/filtered"
	f.nav[navKey("/product/filtered", productLink("team/platform/backend").String())] = "/product/7"
	f.nav[navKey("/product/7", viewEngagementsLink.String())] = "/product/7/engagements"
	f.nav[navKey("/product/7/engagements", latestEngagement.String())] = "/engagement/42"
	f.nav[navKey("/finding/open", applyFiltersButton.String())] = "/finding/open/filtered"

	f.texts[latestEngagement.String()] = "  v2.3\n"
	f.texts[engagementOptionPath.String()] = "Engagement 42 (v2.3)"
	return f
}

func newTestExporter(t *testing.T) (*Exporter, string) {
	dir := t.TempDir()
	return New(Options{
		BaseURL:   testBase + "/",
		OutputDir: dir,
		Now:       func() time.Time { return testNow },
	}), dir
}

func TestProcess_ExportsLatestEngagement(t *testing.T) {
	e, dir := newTestExporter(t)
	page := dojoSite()

	r := e.Process(context.Background(), page, testProduct)

	require.Nil(t, r.Error, models.Deref(r.Error))
	assert.True(t, r.Success)
	assert.Equal(t, testProduct, r.ProductName)
	assert.Equal(t, testNow, r.Timestamp)
	assert.Equal(t, "42", models.Deref(r.EngagementID))
	assert.Equal(t, "v2.3", models.Deref(r.EngagementVersion))
	assert.Equal(t, "svc-auth", models.Deref(r.ModuleName))

	want := filepath.Join(dir, "svc-auth_findings_v2.3.xlsx")
	assert.Equal(t, want, models.Deref(r.ExcelPath))
	assert.FileExists(t, want)

	assert.Equal(t, "team/platform/backend", page.filled[productNameInput.String()])
	assert.Equal(t, "42", page.filled[engagementSearchBox.String()])
	assert.True(t, page.clicked(nthKey(allLinks, 2)), "engagements link should be clicked by index")
	assert.True(t, page.clicked(engagementOptionPath.String()))
	assert.False(t, page.clicked(nthKey(engagementOptions, 1)))
	assert.Equal(t, []string{testBase + "/product", testBase + "/finding/open"}, page.navigations)
}

func TestProcess_CustomTemplate(t *testing.T) {
	dir := t.TempDir()
	e := New(Options{BaseURL: testBase, OutputDir: dir, FilenameTemplate: "findings-{version}-{moduleName}.xlsx"})

	r := e.Process(context.Background(), dojoSite(), testProduct)

	assert.True(t, r.Success)
	assert.Equal(t, filepath.Join(dir, "findings-v2.3-svc-auth.xlsx"), models.Deref(r.ExcelPath))
}

func TestProcess_ProductNotFound(t *testing.T) {
	e, _ := newTestExporter(t)
	page := dojoSite()
	page.pages["/product/filtered"] = `<html><body><p>No products found.</p></body></html>`

	r := e.Process(context.Background(), page, testProduct)

	assert.True(t, r.Success)
	assert.Equal(t, models.NoteProductNotFound, models.Deref(r.Error))
	assert.Contains(t, models.Deref(r.Error), "not found")
	assert.Nil(t, r.ExcelPath)
	assert.Nil(t, r.EngagementID)
	assert.False(t, page.clicked(productLink("team/platform/backend").String()))
}

func TestProcess_EngagementIDMissing(t *testing.T) {
	e, _ := newTestExporter(t)
	page := dojoSite()
	page.nav[navKey("/product/7/engagements", latestEngagement.String())] = "/engagement/latest"

	r := e.Process(context.Background(), page, testProduct)

	assert.False(t, r.Success)
	assert.Contains(t, models.Deref(r.Error), models.ErrCodeEngagementID)
	assert.Contains(t, models.Deref(r.Error), "/engagement/latest")
	assert.Equal(t, "v2.3", models.Deref(r.EngagementVersion))
	assert.Nil(t, r.EngagementID)
	assert.Nil(t, r.ExcelPath)
}

func TestProcess_FallsBackToOptionScan(t *testing.T) {
	e, _ := newTestExporter(t)
	page := dojoSite()
	page.texts[engagementOptionPath.String()] = "Engagement 17"

	r := e.Process(context.Background(), page, testProduct)

	assert.True(t, r.Success)
	assert.NotNil(t, r.ExcelPath)
	assert.False(t, page.clicked(engagementOptionPath.String()))
	assert.True(t, page.clicked(nthKey(engagementOptions, 1)))
}

func TestProcess_ScanWhenPositionalOptionAbsent(t *testing.T) {
	e, _ := newTestExporter(t)
	page := dojoSite()
	delete(page.texts, engagementOptionPath.String())

	r := e.Process(context.Background(), page, testProduct)

	assert.True(t, r.Success)
	assert.True(t, page.clicked(nthKey(engagementOptions, 1)))
}

func TestProcess_ScanPicksFirstSubstringMatch(t *testing.T) {
	e, _ := newTestExporter(t)
	page := dojoSite()
	page.texts[engagementOptionPath.String()] = "Engagement 9"
	page.pages["/finding/open"] = `<html><body><ul>
		<li role="option">Engagement 9</li>
		<li role="option">Engagement 420</li>
		<li role="option">Engagement 42</li>
	</ul></body></html>`

	e.Process(context.Background(), page, testProduct)

	assert.True(t, page.clicked(nthKey(engagementOptions, 1)))
	assert.False(t, page.clicked(nthKey(engagementOptions, 2)))
}

func TestProcess_NoMatchingOption(t *testing.T) {
	e, _ := newTestExporter(t)
	page := dojoSite()
	page.texts[engagementOptionPath.String()] = "Engagement 17"
	page.pages["/finding/open"] = `<html><body><ul><li role="option">Engagement 17</li></ul></body></html>`

	r := e.Process(context.Background(), page, testProduct)

	assert.False(t, r.Success)
	assert.Contains(t, models.Deref(r.Error), models.ErrCodeOptionNotFound)
	assert.False(t, page.clicked(exportMenuButton.String()))
}

func TestProcess_DownloadTimeoutIsSoft(t *testing.T) {
	tests := []struct {
		name     string
		findings string
		want     string
	}{
		{"with findings", "<tr><td>XSS</td></tr>", models.NoteDownloadTimeout},
		{"without findings", "", models.NoteNoFindingsTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, dir := newTestExporter(t)
			page := dojoSite()
			page.pages["/finding/open/filtered"] = fmt.Sprintf(
				"<html><body><table><tbody>%s</tbody></table></body></html>", tt.findings)
			page.download = func(context.Context, string) error {
				return fmt.Errorf("waiting for download: %w", context.DeadlineExceeded)
			}

			r := e.Process(context.Background(), page, testProduct)

			assert.True(t, r.Success)
			assert.Equal(t, tt.want, models.Deref(r.Error))
			assert.Nil(t, r.ExcelPath)
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestProcess_DownloadWaitIsBounded(t *testing.T) {
	e := New(Options{BaseURL: testBase, OutputDir: t.TempDir(), DownloadTimeout: 20 * time.Millisecond})
	page := dojoSite()
	page.download = func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	start := time.Now()
	r := e.Process(context.Background(), page, testProduct)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, r.Success)
	assert.Equal(t, models.NoteDownloadTimeout, models.Deref(r.Error))
}

func TestProcess_MissingElementFailsProduct(t *testing.T) {
	e, _ := newTestExporter(t)
	page := dojoSite()
	page.missing[viewEngagementsLink.String()] = true

	r := e.Process(context.Background(), page, testProduct)

	assert.False(t, r.Success)
	assert.Contains(t, models.Deref(r.Error), models.ErrCodeElement)
	assert.Contains(t, models.Deref(r.Error), "View Engagements")
	assert.Nil(t, r.EngagementVersion)
}

func TestProcess_EngagementsTableNeverRenders(t *testing.T) {
	e, _ := newTestExporter(t)
	page := dojoSite()
	page.missing[engagementRows.String()] = true

	r := e.Process(context.Background(), page, testProduct)

	assert.False(t, r.Success)
	assert.Contains(t, models.Deref(r.Error), "#open tbody tr")
}

func TestProcess_ContinuesWithoutEngagementsLink(t *testing.T) {
	e, _ := newTestExporter(t)
	page := dojoSite()
	page.pages["/product/7"] = `<html><body><a href="/product/7/engagements">View Engagements</a></body></html>`

	r := e.Process(context.Background(), page, testProduct)

	assert.True(t, r.Success)
	assert.True(t, page.clicked(viewEngagementsLink.String()))
}
