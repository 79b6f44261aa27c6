// Package tasks implements the REST performance harness with real-time progress reporting.
//
// # Bench
//
// [Bench.Run] repeats the two-stage pipeline against the backend:
//
//  1. Transcribe : POST the video URL and model, record the elapsed time and transcription id
//  2. Analyze : POST the id to the sentiment endpoint, record the elapsed time and category count
//
// Iterations run on an [errgroup.Group] bounded by the configured worker count. A shared [rate.Limiter]
// paces the requests issued by every worker. A failed iteration is recorded in its [BenchSample] and does not stop the
// others; an authentication failure cancels the whole run since every later request would fail the same way.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
