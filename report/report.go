// Package report renders the end-of-run console report.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/use-agent/dojo-export/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D26A"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF3838"))
	noteStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB800"))
)

// Render formats the summary: totals, then every failed product with its
// error, then successful products that carry a note.
func Render(s *models.RunSummary, summaryPath string) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("AUTOMATION COMPLETED"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Total products:"), s.TotalProducts)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Successful:"), successStyle.Render(fmt.Sprint(s.Successful)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Failed:"), failStyle.Render(fmt.Sprint(s.Failed)))
	if summaryPath != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Summary:"), summaryPath)
	}

	if failed := s.FailedResults(); len(failed) > 0 {
		b.WriteString("\n")
		b.WriteString(failStyle.Render("Failed products:"))
		b.WriteString("\n")
		for _, r := range failed {
			fmt.Fprintf(&b, "  - %s: %s\n", r.ProductName, models.Deref(r.Error))
		}
	}

	var noted []*models.ProductResult
	for _, r := range s.Results {
		if r.Success && r.Error != nil {
			noted = append(noted, r)
		}
	}
	if len(noted) > 0 {
		b.WriteString("\n")
		b.WriteString(noteStyle.Render("Notes:"))
		b.WriteString("\n")
		for _, r := range noted {
			fmt.Fprintf(&b, "  - %s: %s\n", r.ProductName, *r.Error)
		}
	}
	return b.String()
}

// Print writes Render's output to w.
func Print(w io.Writer, s *models.RunSummary, summaryPath string) error {
	_, err := io.WriteString(w, Render(s, summaryPath))
	return err
}
