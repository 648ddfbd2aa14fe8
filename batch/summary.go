package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/dojo-export/models"
)

const (
	summaryPrefix = "summary_"
	summarySuffix = ".json"

	// summaryTimeLayout is an ISO timestamp with ':' replaced so the name
	// is valid on every filesystem.
	summaryTimeLayout = "2006-01-02T15-04-05"
)

// SummaryFilename returns the file name of the summary written at t.
func SummaryFilename(t time.Time) string {
	return summaryPrefix + t.UTC().Format(summaryTimeLayout) + summarySuffix
}

func isSummaryFile(name string) bool {
	return strings.HasPrefix(name, summaryPrefix) && strings.HasSuffix(name, summarySuffix)
}

// WriteSummary removes every previous summary in dir and writes s as the
// only one. It returns the path written.
func WriteSummary(dir string, s *models.RunSummary) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", models.NewAutomationError(models.ErrCodeSummaryWrite, "list output directory", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isSummaryFile(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return "", models.NewAutomationError(models.ErrCodeSummaryWrite,
				fmt.Sprintf("remove previous summary %s", e.Name()), err)
		}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", models.NewAutomationError(models.ErrCodeSummaryWrite, "encode summary", err)
	}

	path := filepath.Join(dir, SummaryFilename(s.Timestamp))
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", models.NewAutomationError(models.ErrCodeSummaryWrite, "write summary", err)
	}
	return path, nil
}
