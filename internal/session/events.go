package session

import (
	"encoding/json"
	"fmt"

	"github.com/desertthunder/vsa/internal/models"
	"github.com/desertthunder/vsa/internal/shared"
	"github.com/desertthunder/vsa/internal/socket"
)

// Server to client events
const (
	EventConnected        = "connected"
	EventAnalysesList     = "analyses_list"
	EventAnalysisStep     = "analysis_step"
	EventAnalysisComplete = "analysis_complete"
	EventAnalysisError    = "analysis_error"
	EventError            = "error"
)

// Client to server events
const (
	EventGetAnalyses   = "get_analyses"
	EventStartAnalysis = "start_analysis"
)

// Event is one entry of the session's ordered queue. Every state change goes through the reducer as an Event.
type Event interface {
	event()
}

// StepPushed carries one progress step reported for AnalysisID.
type StepPushed struct {
	AnalysisID string
	Step       models.StepEvent
}

// RunCompleted carries the terminal success payload of a run.
type RunCompleted struct {
	Detail models.CompletedDetail
}

// RunFailed carries a backend-reported run failure. AnalysisID is empty when the backend rejected the request
// before creating a job.
type RunFailed struct {
	AnalysisID string
	Message    string
}

// RegistrySnapshot replaces the registry. Details holds the results embedded in completed records.
type RegistrySnapshot struct {
	Summaries []models.AnalysisSummary
	Details   []models.CompletedDetail
}

// ConnectionChanged reports a channel status transition.
type ConnectionChanged struct {
	Change socket.StatusChange
}

// ServerError carries a backend error that is not tied to a run, such as a rejected registry request.
type ServerError struct {
	Message string
}

// RunRequested resets the tracker ahead of a start command.
type RunRequested struct {
	URL   string
	Model string
}

// AnalysisSelected selects a registry entry for display.
type AnalysisSelected struct {
	Summary models.AnalysisSummary
}

// FormRequested returns to the submission form.
type FormRequested struct{}

func (StepPushed) event()        {}
func (RunCompleted) event()      {}
func (RunFailed) event()         {}
func (RegistrySnapshot) event()  {}
func (ConnectionChanged) event() {}
func (ServerError) event()       {}
func (RunRequested) event()      {}
func (AnalysisSelected) event()  {}
func (FormRequested) event()     {}

type tokenPayload struct {
	Token string `json:"token"`
}

type startPayload struct {
	URL   string `json:"url"`
	Model string `json:"model"`
	Token string `json:"token"`
}

type stepPayload struct {
	AnalysisID string           `json:"analysis_id"`
	Step       models.StepEvent `json:"step"`
}

type errorPayload struct {
	AnalysisID string `json:"analysis_id"`
	Error      string `json:"error"`
}

type messagePayload struct {
	Message string `json:"message"`
}

type listPayload struct {
	Analyses []models.AnalysisRecord `json:"analyses"`
}

// DecodeStep decodes an analysis_step payload.
func DecodeStep(data json.RawMessage) (StepPushed, error) {
	var p stepPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return StepPushed{}, fmt.Errorf("%w: %s: %v", shared.ErrProtocol, EventAnalysisStep, err)
	}
	return StepPushed{AnalysisID: p.AnalysisID, Step: p.Step}, nil
}

// DecodeComplete decodes an analysis_complete payload.
func DecodeComplete(data json.RawMessage) (RunCompleted, error) {
	var d models.CompletedDetail
	if err := json.Unmarshal(data, &d); err != nil {
		return RunCompleted{}, fmt.Errorf("%w: %s: %v", shared.ErrProtocol, EventAnalysisComplete, err)
	}
	if d.Sentiment == nil {
		d.Sentiment = models.SentimentDocument{}
	}
	return RunCompleted{Detail: d}, nil
}

// DecodeFailure decodes an analysis_error payload.
func DecodeFailure(data json.RawMessage) (RunFailed, error) {
	var p errorPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return RunFailed{}, fmt.Errorf("%w: %s: %v", shared.ErrProtocol, EventAnalysisError, err)
	}
	if p.Error == "" {
		p.Error = "unknown error"
	}
	return RunFailed{AnalysisID: p.AnalysisID, Message: p.Error}, nil
}

// DecodeSnapshot decodes an analyses_list payload.
func DecodeSnapshot(data json.RawMessage) (RegistrySnapshot, error) {
	var p listPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return RegistrySnapshot{}, fmt.Errorf("%w: %s: %v", shared.ErrProtocol, EventAnalysesList, err)
	}

	snap := RegistrySnapshot{Summaries: make([]models.AnalysisSummary, 0, len(p.Analyses))}
	for _, rec := range p.Analyses {
		snap.Summaries = append(snap.Summaries, rec.Summary())
		if d, ok := rec.Detail(); ok {
			snap.Details = append(snap.Details, d)
		}
	}
	return snap, nil
}

// DecodeMessage decodes the {message} payload shared by connected and error events.
func DecodeMessage(data json.RawMessage) (string, error) {
	var p messagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("%w: message: %v", shared.ErrProtocol, err)
	}
	return p.Message, nil
}
