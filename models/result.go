package models

import (
	"time"

	"github.com/google/uuid"
)

// Informational notes recorded on results that still count as successful.
const (
	NoteProductNotFound   = "Product not found in DefectDojo"
	NoteNoFindingsTimeout = "No findings found - export may have timed out"
	NoteDownloadTimeout   = "Export clicked but download timed out"
)

// ProductResult is the outcome of exporting one product.
type ProductResult struct {
	ProductName string    `json:"productName"`
	Timestamp   time.Time `json:"timestamp"`

	// Success is false only for product-level failures. A product that was
	// not found, or whose download was not confirmed, still succeeds.
	Success bool `json:"success"`

	EngagementID      *string `json:"engagementId"`
	EngagementVersion *string `json:"engagementVersion"`
	ModuleName        *string `json:"moduleName"`

	// ExcelPath is set only when the download completed.
	ExcelPath *string `json:"excelPath"`

	Error *string `json:"error"`
}

// NewProductResult starts a result for productName stamped with now.
func NewProductResult(productName string, now time.Time) *ProductResult {
	return &ProductResult{
		ProductName: productName,
		Timestamp:   now.UTC(),
	}
}

// SetError records msg as the result's error note.
func (r *ProductResult) SetError(msg string) {
	r.Error = &msg
}

// Str returns a pointer to s, for the nullable result fields.
func Str(s string) *string {
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// RunSummary aggregates all product results of one invocation.
type RunSummary struct {
	RunID         string           `json:"runId"`
	Timestamp     time.Time        `json:"timestamp"`
	DurationMs    int64            `json:"durationMs"`
	TotalProducts int              `json:"totalProducts"`
	Successful    int              `json:"successful"`
	Failed        int              `json:"failed"`
	Results       []*ProductResult `json:"results"`
}

// NewRunSummary builds the summary for results, which must already be in
// input order.
func NewRunSummary(results []*ProductResult, started, finished time.Time) *RunSummary {
	s := &RunSummary{
		RunID:         uuid.NewString(),
		Timestamp:     finished.UTC(),
		DurationMs:    finished.Sub(started).Milliseconds(),
		TotalProducts: len(results),
		Results:       results,
	}
	if s.Results == nil {
		s.Results = []*ProductResult{}
	}
	for _, r := range results {
		if r.Success {
			s.Successful++
		} else {
			s.Failed++
		}
	}
	return s
}

// FailedResults returns the results with Success == false, in order.
func (s *RunSummary) FailedResults() []*ProductResult {
	var failed []*ProductResult
	for _, r := range s.Results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}
