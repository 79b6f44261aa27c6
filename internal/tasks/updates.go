package tasks

import (
	"fmt"
	"time"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Transcribe Phase = iota
	Analyze
	Summarize
)

func (p Phase) String() string {
	switch p {
	case Transcribe:
		return "transcribe"
	case Analyze:
		return "analyze"
	case Summarize:
		return "summarize"
	default:
		return ""
	}
}

func transcribeUpdate(step, total int, url string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Transcribe,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Transcribing %s...", step, total, url),
	}
}

func analyzeUpdate(step, total int, id string, took time.Duration) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Analyze,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Transcribed in %s, analyzing %s...", step, total, took.Round(time.Millisecond), id),
	}
}

func sampleUpdate(step, total int, s BenchSample) ProgressUpdate {
	if s.Err != nil {
		return ProgressUpdate{
			Phase:   Summarize,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ iteration %d: %v", step, total, s.Iteration, s.Err),
			Data:    s,
		}
	}
	return ProgressUpdate{
		Phase:   Summarize,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ iteration %d (%s + %s)", step, total, s.Iteration,
			s.Transcribe.Round(time.Millisecond), s.Analyze.Round(time.Millisecond)),
		Data: s,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
		// Channel full, skip this update
	}
}
