package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// SentimentLabel is the closed 3-way classification of one utterance.
type SentimentLabel string

const (
	Positive SentimentLabel = "positive"
	Neutral  SentimentLabel = "neutral"
	Negative SentimentLabel = "negative"
)

// ParseSentimentLabel maps backend label tokens (English or Polish) onto the closed enum.
//
// Anything unrecognized folds into [Neutral], matching how the backend translates classifier output.
func ParseSentimentLabel(s string) SentimentLabel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "pozytywny":
		return Positive
	case "negative", "negatywny":
		return Negative
	default:
		return Neutral
	}
}

func (l *SentimentLabel) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("sentiment label: %w", err)
	}
	*l = ParseSentimentLabel(raw)
	return nil
}

// SentimentRecord is one classified utterance.
type SentimentRecord struct {
	Sentiment SentimentLabel `json:"sentiment"`
	Score     float64        `json:"score,omitempty"`
	Sentence  string         `json:"sentence,omitempty"`
}

// SentimentCategory holds the utterance records matched to one category.
type SentimentCategory struct {
	Sentiments []SentimentRecord `json:"sentiments"`
}

// SentimentDocument maps category name to its utterance records.
//
// On the wire the document may arrive bare, wrapped as {"message": {...}}, or as an empty list when the backend found nothing.
type SentimentDocument map[string]SentimentCategory

func (d *SentimentDocument) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || trimmed[0] == '[' {
		*d = SentimentDocument{}
		return nil
	}

	var envelope struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err == nil && len(envelope.Message) > 0 {
		msg := bytes.TrimSpace(envelope.Message)
		if len(msg) > 0 && (msg[0] == '{' || msg[0] == '[' || bytes.Equal(msg, []byte("null"))) {
			return d.UnmarshalJSON(msg)
		}
	}

	raw := map[string]SentimentCategory{}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("sentiment document: %w", err)
	}
	*d = raw
	return nil
}

// Categories returns category names in lexical order.
func (d SentimentDocument) Categories() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SentimentBreakdown is the positive/neutral/negative split of one category.
type SentimentBreakdown struct {
	Category      string
	Total         int
	PositiveCount int
	NeutralCount  int
	NegativeCount int
	Positive      float64
	Neutral       float64
	Negative      float64
}

// Breakdown aggregates the category's records. ok is false when the category has no records.
func (c SentimentCategory) Breakdown(name string) (b SentimentBreakdown, ok bool) {
	b.Category = name
	b.Total = len(c.Sentiments)
	if b.Total == 0 {
		return b, false
	}

	for _, rec := range c.Sentiments {
		switch rec.Sentiment {
		case Positive:
			b.PositiveCount++
		case Negative:
			b.NegativeCount++
		default:
			b.NeutralCount++
		}
	}

	total := float64(b.Total)
	b.Positive = float64(b.PositiveCount) / total
	b.Neutral = float64(b.NeutralCount) / total
	b.Negative = float64(b.NegativeCount) / total
	return b, true
}

// Breakdowns aggregates every non-empty category, ordered by category name.
func (d SentimentDocument) Breakdowns() []SentimentBreakdown {
	out := make([]SentimentBreakdown, 0, len(d))
	for _, name := range d.Categories() {
		if b, ok := d[name].Breakdown(name); ok {
			out = append(out, b)
		}
	}
	return out
}
