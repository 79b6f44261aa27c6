// Package models defines the domain types observed over the live analysis session.
//
// The package contains three groups of types:
//
// 1. Registry entries
//   - [AnalysisSummary] : id, title, url, status and creation time of one analysis
//   - [Status] : pending, in_progress, completed, error (backend "processing" normalizes to in_progress)
//
// 2. Run progress
//   - [StepEvent] : one immutable progress unit of the active run
//   - [CompletedDetail] : transcription and sentiment of a finished run
//
// 3. Sentiment
//   - [SentimentDocument] : category name to utterance records, decoded from bare, enveloped or empty-list forms
//   - [SentimentBreakdown] : per-category positive/neutral/negative fractions; empty categories are omitted
//
// [Timestamp] accepts RFC 3339 as well as the zone-less ISO-8601 strings the backend produces.
package models
