package server

import (
	"encoding/json"
	"net/http"

	"github.com/desertthunder/vsa/internal/models"
	"github.com/desertthunder/vsa/internal/session"
	"github.com/desertthunder/vsa/internal/socket"
)

// SnapshotSource yields the latest session state. [*session.Session] satisfies it.
type SnapshotSource interface {
	Snapshot() session.Snapshot
}

// StatusHandler exposes the live session snapshot as JSON.
//
// GET /status returns the full snapshot; GET /healthz answers 200 while the event channel is connected and 503 otherwise.
type StatusHandler struct {
	source SnapshotSource
}

var _ Handler = (*StatusHandler)(nil)

// NewStatusHandler creates a [StatusHandler] reading from source.
func NewStatusHandler(source SnapshotSource) *StatusHandler {
	return &StatusHandler{source: source}
}

func (h *StatusHandler) Routes() []string {
	return []string{"/status", "/healthz"}
}

type runJSON struct {
	Phase      session.Phase           `json:"phase"`
	AnalysisID string                  `json:"analysis_id,omitempty"`
	URL        string                  `json:"url,omitempty"`
	Steps      []models.StepEvent      `json:"steps"`
	Detail     *models.CompletedDetail `json:"detail,omitempty"`
	Failure    string                  `json:"failure,omitempty"`
}

type selectionJSON struct {
	Summary models.AnalysisSummary  `json:"summary"`
	Detail  *models.CompletedDetail `json:"detail,omitempty"`
}

type statusJSON struct {
	Seq         uint64                   `json:"seq"`
	Status      socket.Status            `json:"status"`
	Reason      string                   `json:"reason,omitempty"`
	Error       string                   `json:"error,omitempty"`
	View        session.View             `json:"view"`
	Analyses    []models.AnalysisSummary `json:"analyses"`
	Run         runJSON                  `json:"run"`
	Selection   *selectionJSON           `json:"selection,omitempty"`
	ServerError string                   `json:"server_error,omitempty"`
}

func newStatusJSON(snap session.Snapshot) statusJSON {
	out := statusJSON{
		Seq:         snap.Seq,
		Status:      snap.Status,
		Reason:      snap.StatusReason,
		View:        snap.View,
		Analyses:    snap.Registry,
		ServerError: snap.ServerError,
		Run: runJSON{
			Phase:      snap.Run.Phase,
			AnalysisID: snap.Run.AnalysisID,
			URL:        snap.Run.URL,
			Steps:      snap.Run.Steps,
			Detail:     snap.Run.Detail,
		},
	}
	if snap.StatusErr != nil {
		out.Error = snap.StatusErr.Error()
	}
	if snap.Run.Failure != nil {
		out.Run.Failure = snap.Run.Failure.Error()
	}
	if out.Analyses == nil {
		out.Analyses = []models.AnalysisSummary{}
	}
	if out.Run.Steps == nil {
		out.Run.Steps = []models.StepEvent{}
	}
	if snap.Selection != nil {
		out.Selection = &selectionJSON{Summary: snap.Selection.Summary, Detail: snap.Selection.Detail}
	}
	return out
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := h.source.Snapshot()
	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/healthz":
		code := http.StatusOK
		if snap.Status != socket.StatusConnected {
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": snap.Status.String()})
	default:
		json.NewEncoder(w).Encode(newStatusJSON(snap))
	}
}
