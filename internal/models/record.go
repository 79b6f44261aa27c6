package models

import "strings"

// AnalysisRecord is a registry entry as the backend stores it.
//
// Snapshots carry whole records, so completed entries may already include their transcription and sentiment.
type AnalysisRecord struct {
	ID            string             `json:"id"`
	Title         string             `json:"title"`
	URL           string             `json:"url"`
	Status        Status             `json:"status"`
	CreatedAt     Timestamp          `json:"created_at"`
	Transcription string             `json:"transcription"`
	Sentiment     *SentimentDocument `json:"sentiment"`
}

// Summary projects the record onto the registry's summary fields.
func (r AnalysisRecord) Summary() AnalysisSummary {
	return AnalysisSummary{
		ID:        r.ID,
		Title:     r.Title,
		URL:       r.URL,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
}

// Detail returns the terminal detail embedded in a completed record. ok is false for records without results.
func (r AnalysisRecord) Detail() (d CompletedDetail, ok bool) {
	if r.Status != StatusCompleted || r.ID == "" {
		return d, false
	}
	if strings.TrimSpace(r.Transcription) == "" && r.Sentiment == nil {
		return d, false
	}

	d = CompletedDetail{
		AnalysisID:    r.ID,
		Title:         r.Title,
		URL:           r.URL,
		Transcription: r.Transcription,
		Sentiment:     SentimentDocument{},
	}
	if r.Sentiment != nil {
		d.Sentiment = *r.Sentiment
	}
	return d, true
}
