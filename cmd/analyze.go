package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vsa/internal/formatter"
	"github.com/desertthunder/vsa/internal/models"
	"github.com/desertthunder/vsa/internal/session"
	"github.com/desertthunder/vsa/internal/shared"
)

// Analyze runs one analysis over the live session, printing steps as they arrive and the result at the end.
//
// A failed run returns its error so the process exits non-zero.
func (r *Runner) Analyze(ctx context.Context, cmd *cli.Command) error {
	url := strings.TrimSpace(cmd.StringArg("url"))
	if url == "" {
		return fmt.Errorf("%w: video url", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	sess, err := r.startSession(ctx, cmd.String("model"), r.details())
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Dispatcher().StartRun(ctx, url, cmd.String("model")); err != nil {
		return err
	}
	r.writePlain("Analyzing %s\n", url)

	printed := 0
	snap, err := await(ctx, sess, func(s session.Snapshot) (bool, error) {
		if s.Run.URL != url {
			return false, nil
		}
		if n := len(s.Run.History); n > printed {
			for _, step := range s.Run.History[printed:] {
				r.writeStep(step)
			}
			printed = n
		}

		switch s.Run.Phase {
		case session.PhaseCompleted, session.PhaseFailed:
			return true, nil
		case session.PhaseRequested:
			if s.ServerError != "" {
				return false, fmt.Errorf("%w: %s", shared.ErrRun, s.ServerError)
			}
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	if snap.Run.Phase == session.PhaseFailed {
		return snap.Run.Failure
	}

	r.logger.Info("analysis completed", "analysis_id", snap.Run.AnalysisID)
	out, err := formatter.Export(*snap.Run.Detail, format)
	if err != nil {
		return err
	}
	r.writePlain("\n")
	_, err = r.output.Write(out)
	return err
}

func (r *Runner) writeStep(step models.StepEvent) {
	r.writePlain("%s %s: %s\n", statusIcon(step.Status), step.Step, step.Message)
}
