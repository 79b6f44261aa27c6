package services

import (
	"context"

	"github.com/desertthunder/vsa/internal/models"
)

// Analyzer runs the two-stage pipeline over REST: transcription, then sentiment analysis of the stored transcript.
type Analyzer interface {
	Transcribe(ctx context.Context, videoURL, model string) (*TranscriptionResult, error)
	AnalyzeSentiment(ctx context.Context, transcriptionID string) (models.SentimentDocument, error)
}

var _ Analyzer = (*APIService)(nil)
