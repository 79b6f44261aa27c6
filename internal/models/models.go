package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle status shared by analyses and their steps.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// ParseStatus normalizes a backend status token.
//
// The backend stores running analyses as "processing", which maps to [StatusInProgress].
// Unknown tokens map to [StatusPending].
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in_progress", "processing", "running":
		return StatusInProgress
	case "completed", "done":
		return StatusCompleted
	case "error", "failed":
		return StatusError
	default:
		return StatusPending
	}
}

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	*s = ParseStatus(raw)
	return nil
}

// Timestamp decodes both RFC 3339 and the naive ISO-8601 form the backend emits (no zone, interpreted as UTC).
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses s using the layouts accepted on the wire.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}

	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}

	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// AnalysisSummary is one entry of the analysis registry as reported by the last server snapshot.
type AnalysisSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Status    Status    `json:"status"`
	CreatedAt Timestamp `json:"created_at"`
}

// DisplayTitle returns the title, or a placeholder for analyses the backend has not named yet.
func (a AnalysisSummary) DisplayTitle() string {
	if strings.TrimSpace(a.Title) == "" {
		return "Untitled"
	}
	return a.Title
}

// StepEvent is one progress unit within a run. Immutable once received.
type StepEvent struct {
	Step      string    `json:"step"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	Timestamp Timestamp `json:"timestamp"`
}

// CompletedDetail is the terminal success payload of a run.
type CompletedDetail struct {
	AnalysisID    string            `json:"analysis_id"`
	Title         string            `json:"title"`
	URL           string            `json:"url,omitempty"`
	Transcription string            `json:"transcription"`
	Sentiment     SentimentDocument `json:"sentiment"`
}

// DisplayTitle returns the title, or a placeholder when the backend sent none.
func (d CompletedDetail) DisplayTitle() string {
	if strings.TrimSpace(d.Title) == "" {
		return "Untitled"
	}
	return d.Title
}
