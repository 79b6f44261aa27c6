// package formatter exports completed analysis details to various formats (JSON, CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/vsa/internal/models"
	"github.com/desertthunder/vsa/internal/shared"
)

// Format is an export file format.
type Format string

const (
	JSON     Format = "json"
	CSV      Format = "csv"
	Markdown Format = "markdown"
	Text     Format = "txt"
)

// ParseFormat accepts the format names and common aliases used on the command line.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	case "txt", "text":
		return Text, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (json, csv, markdown, txt)", shared.ErrInvalidArgument, s)
	}
}

// Ext is the file extension written for the format.
func (f Format) Ext() string {
	if f == Markdown {
		return "md"
	}
	return string(f)
}

// Bar renders ratio as a fixed-width bar of filled and empty blocks.
func Bar(ratio float64, width int) string {
	if width <= 0 {
		return ""
	}
	ratio = min(max(ratio, 0), 1)
	filled := int(ratio*float64(width) + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// Percent formats ratio as a whole percentage.
func Percent(ratio float64) string {
	return strconv.Itoa(int(ratio*100+0.5)) + "%"
}

type breakdownJSON struct {
	Category string  `json:"category"`
	Total    int     `json:"total"`
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

type exportJSON struct {
	models.CompletedDetail
	Breakdowns []breakdownJSON `json:"breakdowns"`
}

// ExportToJSON converts a CompletedDetail to indented JSON with per-category breakdowns appended
func ExportToJSON(detail models.CompletedDetail) ([]byte, error) {
	out := exportJSON{CompletedDetail: detail, Breakdowns: []breakdownJSON{}}
	if out.Sentiment == nil {
		out.Sentiment = models.SentimentDocument{}
	}
	for _, b := range detail.Sentiment.Breakdowns() {
		out.Breakdowns = append(out.Breakdowns, breakdownJSON{
			Category: b.Category,
			Total:    b.Total,
			Positive: b.Positive,
			Neutral:  b.Neutral,
			Negative: b.Negative,
		})
	}
	return shared.MarshalJSON(out, true)
}

// ExportToCSV converts a CompletedDetail to CSV with one row per classified utterance: Category, Sentiment, Score, Sentence
func ExportToCSV(detail models.CompletedDetail) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Category", "Sentiment", "Score", "Sentence"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, name := range detail.Sentiment.Categories() {
		for _, rec := range detail.Sentiment[name].Sentiments {
			record := []string{
				name,
				string(rec.Sentiment),
				strconv.FormatFloat(rec.Score, 'f', 4, 64),
				rec.Sentence,
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a CompletedDetail to Markdown with a breakdown table and the full transcription
func ExportToMarkdown(detail models.CompletedDetail) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", detail.DisplayTitle()))
	buf.WriteString(fmt.Sprintf("**Analysis**: `%s`\n", detail.AnalysisID))
	if detail.URL != "" {
		buf.WriteString(fmt.Sprintf("**Video**: <%s>\n", detail.URL))
	}
	buf.WriteString("\n## Sentiment\n\n")

	breakdowns := detail.Sentiment.Breakdowns()
	if len(breakdowns) == 0 {
		buf.WriteString("_No categories were detected._\n")
	} else {
		buf.WriteString("| Category | Utterances | Positive | Neutral | Negative |\n")
		buf.WriteString("|---|---:|---:|---:|---:|\n")
		for _, b := range breakdowns {
			buf.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s |\n",
				b.Category, b.Total, Percent(b.Positive), Percent(b.Neutral), Percent(b.Negative)))
		}
	}

	buf.WriteString("\n## Transcription\n\n")
	if strings.TrimSpace(detail.Transcription) == "" {
		buf.WriteString("_No transcription available._\n")
	} else {
		buf.WriteString(strings.TrimSpace(detail.Transcription) + "\n")
	}

	return buf.Bytes(), nil
}

// ExportToText converts a CompletedDetail to plain text with breakdown bars
func ExportToText(detail models.CompletedDetail) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Analysis: %s\n", detail.DisplayTitle()))
	buf.WriteString(fmt.Sprintf("ID: %s\n", detail.AnalysisID))
	if detail.URL != "" {
		buf.WriteString(fmt.Sprintf("URL: %s\n", detail.URL))
	}

	breakdowns := detail.Sentiment.Breakdowns()
	buf.WriteString(fmt.Sprintf("Categories: %d\n\n", len(breakdowns)))

	for _, b := range breakdowns {
		buf.WriteString(fmt.Sprintf("%s (%d)\n", b.Category, b.Total))
		buf.WriteString(fmt.Sprintf("  positive %s %s\n", Bar(b.Positive, 20), Percent(b.Positive)))
		buf.WriteString(fmt.Sprintf("  neutral  %s %s\n", Bar(b.Neutral, 20), Percent(b.Neutral)))
		buf.WriteString(fmt.Sprintf("  negative %s %s\n", Bar(b.Negative, 20), Percent(b.Negative)))
	}

	if t := strings.TrimSpace(detail.Transcription); t != "" {
		buf.WriteString("\nTranscription:\n")
		buf.WriteString(t + "\n")
	}

	return buf.Bytes(), nil
}

// Export renders detail in the requested format.
func Export(detail models.CompletedDetail, format Format) ([]byte, error) {
	switch format {
	case JSON:
		return ExportToJSON(detail)
	case CSV:
		return ExportToCSV(detail)
	case Markdown:
		return ExportToMarkdown(detail)
	case Text:
		return ExportToText(detail)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteExport writes detail to path in the requested format.
//
// Defaults to {analysis_id}.{ext} as the filename.
func WriteExport(detail models.CompletedDetail, format Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s.%s", detail.AnalysisID, format.Ext())
	}

	data, err := Export(detail, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", format, err)
	}

	return path, nil
}
