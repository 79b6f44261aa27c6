package session

import "github.com/desertthunder/vsa/internal/models"

// View is the screen the session state calls for.
type View int

const (
	ViewForm View = iota
	ViewProcessing
	ViewResults
)

func (v View) String() string {
	switch v {
	case ViewProcessing:
		return "processing"
	case ViewResults:
		return "results"
	default:
		return "form"
	}
}

func (v View) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// Selection is a registry entry chosen for display, with its last known terminal detail when cached.
type Selection struct {
	Summary models.AnalysisSummary
	Detail  *models.CompletedDetail
}

// SelectView derives the view from the run and the selection. A failed run stays on the processing view so the
// error reads as the last step.
func SelectView(run RunState, sel *Selection) View {
	switch run.Phase {
	case PhaseRequested, PhaseStreaming:
		return ViewProcessing
	case PhaseFailed:
		if len(run.Steps) > 0 {
			return ViewProcessing
		}
	case PhaseCompleted:
		if run.Detail != nil {
			return ViewResults
		}
	}

	if sel != nil {
		return ViewResults
	}
	return ViewForm
}
