package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/vsa/internal/models"
	"github.com/desertthunder/vsa/internal/shared"
	"github.com/desertthunder/vsa/internal/socket"
)

// DefaultModel is the transcription model sent with every start command unless configured otherwise.
const DefaultModel = "whisperpy-base"

// Sender is the outbound half of the event channel.
type Sender interface {
	Send(event string, payload any) error
	Status() socket.Status
}

// Dispatcher validates user intents and turns them into commands.
//
// Preconditions are checked locally and a rejected intent never reaches the network. The dispatcher never mutates
// run or registry state itself; resets travel through the session queue ahead of the command they precede.
type Dispatcher struct {
	sender     Sender
	model      string
	credential func() shared.Credential
	enqueue    func(context.Context, Event) error
}

// StartRun submits url for analysis. modelHint overrides the configured model when not blank.
func (d *Dispatcher) StartRun(ctx context.Context, url, modelHint string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("%w: video url is required", shared.ErrValidation)
	}
	if status := d.sender.Status(); status != socket.StatusConnected {
		return fmt.Errorf("%w: cannot start analysis while %s", shared.ErrNotConnected, status)
	}

	model := d.model
	if hint := strings.TrimSpace(modelHint); hint != "" {
		model = hint
	}

	if err := d.enqueue(ctx, RunRequested{URL: url, Model: model}); err != nil {
		return err
	}

	payload := startPayload{URL: url, Model: model, Token: d.credential().Token()}
	if err := d.sender.Send(EventStartAnalysis, payload); err != nil {
		_ = d.enqueue(ctx, RunFailed{Message: err.Error()})
		return err
	}
	return nil
}

// SelectAnalysis shows summary without any network effect, abandoning the step view.
func (d *Dispatcher) SelectAnalysis(ctx context.Context, summary models.AnalysisSummary) error {
	return d.enqueue(ctx, AnalysisSelected{Summary: summary})
}

// NewAnalysis clears the selection and the step view.
func (d *Dispatcher) NewAnalysis(ctx context.Context) error {
	return d.enqueue(ctx, FormRequested{})
}

// Refresh asks the backend for a fresh registry snapshot.
func (d *Dispatcher) Refresh() error {
	return d.sender.Send(EventGetAnalyses, tokenPayload{Token: d.credential().Token()})
}
