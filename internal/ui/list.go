package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/vsa/internal/models"
)

var (
	_ list.Item = analysisItem{}
)

// analysisItem wraps [models.AnalysisSummary] to implement [list.Item].
type analysisItem struct {
	summary models.AnalysisSummary
}

func (i analysisItem) FilterValue() string { return i.summary.Title + " " + i.summary.URL }
func (i analysisItem) Title() string       { return i.summary.DisplayTitle() }
func (i analysisItem) Description() string {
	parts := []string{statusIcon(i.summary.Status) + " " + string(i.summary.Status)}
	if !i.summary.CreatedAt.IsZero() {
		parts = append(parts, i.summary.CreatedAt.Local().Format("Jan 2 15:04"))
	}
	return strings.Join(parts, " • ")
}

func analysisItems(summaries []models.AnalysisSummary) []list.Item {
	items := make([]list.Item, len(summaries))
	for i, s := range summaries {
		items[i] = analysisItem{summary: s}
	}
	return items
}

func statusIcon(s models.Status) string {
	switch s {
	case models.StatusCompleted:
		return "✓"
	case models.StatusError:
		return "✗"
	case models.StatusInProgress:
		return "…"
	default:
		return "•"
	}
}

func stepLine(step models.StepEvent) string {
	line := fmt.Sprintf("%s %s", statusIcon(step.Status), step.Step)
	if step.Message != "" {
		line = fmt.Sprintf("%s: %s", line, step.Message)
	}
	return line
}
