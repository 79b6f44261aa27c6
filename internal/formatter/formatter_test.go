package formatter

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/vsa/internal/models"
	"github.com/desertthunder/vsa/internal/shared"
	th "github.com/desertthunder/vsa/internal/testing"
)

func testDetail() models.CompletedDetail {
	return models.CompletedDetail{
		AnalysisID:    "a1",
		Title:         "Phone Review",
		URL:           "https://youtu.be/a1",
		Transcription: "The battery is great. The price, however, is too high.",
		Sentiment: models.SentimentDocument{
			"battery": {Sentiments: []models.SentimentRecord{
				{Sentiment: models.Positive, Score: 0.91, Sentence: "The battery is great."},
			}},
			"price": {Sentiments: []models.SentimentRecord{
				{Sentiment: models.Negative, Score: 0.8, Sentence: "The price, however, is too high."},
				{Sentiment: models.Neutral, Score: 0.5, Sentence: "It costs 999."},
			}},
			"design": {},
		},
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(testDetail())
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}

		var out struct {
			AnalysisID string `json:"analysis_id"`
			Breakdowns []struct {
				Category string  `json:"category"`
				Total    int     `json:"total"`
				Negative float64 `json:"negative"`
			} `json:"breakdowns"`
			Sentiment map[string]any `json:"sentiment"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if out.AnalysisID != "a1" {
			t.Errorf("expected analysis id a1, got %s", out.AnalysisID)
		}
		if len(out.Breakdowns) != 2 {
			t.Fatalf("expected empty category to be skipped, got %d breakdowns", len(out.Breakdowns))
		}
		if out.Breakdowns[1].Category != "price" || out.Breakdowns[1].Negative != 0.5 {
			t.Errorf("unexpected price breakdown %+v", out.Breakdowns[1])
		}
		if len(out.Sentiment) != 3 {
			t.Errorf("expected raw document to be kept, got %d categories", len(out.Sentiment))
		}
	})

	t.Run("ExportToJSON Empty Sentiment", func(t *testing.T) {
		data, err := ExportToJSON(models.CompletedDetail{AnalysisID: "a2"})
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}
		output := string(data)
		if !strings.Contains(output, `"sentiment": {}`) || !strings.Contains(output, `"breakdowns": []`) {
			t.Errorf("expected empty collections rather than null, got: %s", output)
		}
	})

	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(testDetail())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if lines[0] != "Category,Sentiment,Score,Sentence" {
			t.Errorf("CSV missing headers, got: %s", lines[0])
		}
		if len(lines) != 4 {
			t.Fatalf("expected one row per utterance, got %d lines", len(lines))
		}
		if lines[1] != "battery,positive,0.9100,The battery is great." {
			t.Errorf("unexpected first row %q", lines[1])
		}
		if !strings.Contains(lines[2], `"The price, however, is too high."`) {
			t.Errorf("expected sentence with comma to be quoted, got %q", lines[2])
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(testDetail())
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# Phone Review",
			"**Analysis**: `a1`",
			"**Video**: <https://youtu.be/a1>",
			"| battery | 1 | 100% | 0% | 0% |",
			"| price | 2 | 0% | 50% | 50% |",
			"## Transcription",
			"The battery is great.",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got: %s", want, output)
			}
		}
	})

	t.Run("ExportToMarkdown Empty", func(t *testing.T) {
		data, _ := ExportToMarkdown(models.CompletedDetail{AnalysisID: "a3"})
		output := string(data)

		if !strings.Contains(output, "# Untitled") {
			t.Errorf("expected placeholder title, got: %s", output)
		}
		if !strings.Contains(output, "_No categories were detected._") || !strings.Contains(output, "_No transcription available._") {
			t.Errorf("expected empty-state notes, got: %s", output)
		}
		if strings.Contains(output, "**Video**") {
			t.Error("expected no video line without a URL")
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(testDetail())
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"Analysis: Phone Review",
			"Categories: 2",
			"price (2)",
			"  negative " + Bar(0.5, 20) + " 50%",
			"Transcription:",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("text missing %q, got: %s", want, output)
			}
		}
	})
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ext  string
	}{
		{"", JSON, "json"},
		{"JSON", JSON, "json"},
		{"csv", CSV, "csv"},
		{"md", Markdown, "md"},
		{"markdown", Markdown, "md"},
		{"text", Text, "txt"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want || got.Ext() != tt.ext {
				t.Errorf("expected %s (.%s), got %s (.%s)", tt.want, tt.ext, got, got.Ext())
			}
		})
	}

	t.Run("Unknown", func(t *testing.T) {
		if _, err := ParseFormat("xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := Export(testDetail(), Format("xml")); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument from Export, got %v", err)
		}
	})
}

func TestBar(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		width int
		want  string
	}{
		{"Empty", 0, 4, "░░░░"},
		{"Half", 0.5, 4, "██░░"},
		{"Full", 1, 4, "████"},
		{"Clamped High", 1.7, 2, "██"},
		{"Clamped Low", -1, 2, "░░"},
		{"Zero Width", 0.5, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Bar(tt.ratio, tt.width); got != tt.want {
				t.Errorf("Bar(%v, %d) = %q, want %q", tt.ratio, tt.width, got, tt.want)
			}
		})
	}

	if got := Percent(0.333); got != "33%" {
		t.Errorf("expected 33%%, got %s", got)
	}
}

func TestWriters(t *testing.T) {
	t.Run("WithDefaultPath", func(t *testing.T) {
		tempDir := t.TempDir()
		originalDir := th.MustGetwd(t)
		th.MustChdir(t, tempDir)
		defer th.MustChdir(t, originalDir)

		path, err := WriteExport(testDetail(), Markdown, "")
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if path != "a1.md" {
			t.Errorf("Expected file 'a1.md', got '%s'", path)
		}

		th.AssertFileExists(t, path)
		if content := th.MustReadFile(t, path); !strings.Contains(content, "# Phone Review") {
			t.Errorf("Markdown file missing title")
		}
	})

	t.Run("WithCustomPath", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")

		got, err := WriteExport(testDetail(), CSV, path)
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != path {
			t.Errorf("Expected %s, got %s", path, got)
		}
		if content := th.MustReadFile(t, path); !strings.HasPrefix(content, "Category,Sentiment") {
			t.Errorf("CSV file missing headers")
		}
	})

	t.Run("InvalidPath", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "dir", "out.txt")
		if _, err := WriteExport(testDetail(), Text, path); err == nil {
			t.Error("expected error for missing parent directory")
		}
	})
}
