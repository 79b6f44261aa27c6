// Package repositories implements SQLite persistence for data observed over the live session.
//
// Key Implementations:
//   - [DetailRepository] : completed analysis details (transcription and sentiment) keyed by analysis id
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
