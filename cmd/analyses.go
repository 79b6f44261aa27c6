package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vsa/internal/formatter"
	"github.com/desertthunder/vsa/internal/models"
	"github.com/desertthunder/vsa/internal/repositories"
	"github.com/desertthunder/vsa/internal/session"
	"github.com/desertthunder/vsa/internal/shared"
)

const listTimeout = 30 * time.Second

// AnalysesList connects, waits for the backend's registry snapshot and prints it.
//
// Results embedded in the snapshot are written to the detail cache on the way.
func (r *Runner) AnalysesList(ctx context.Context, cmd *cli.Command) error {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	sess, err := r.startSession(ctx, "", r.details())
	if err != nil {
		return err
	}
	defer sess.Close()

	snap, err := await(ctx, sess, func(s session.Snapshot) (bool, error) {
		if s.Synced {
			return true, nil
		}
		if s.ServerError != "" {
			return false, fmt.Errorf("%w: %s", shared.ErrAPIRequest, s.ServerError)
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("failed to list analyses: %w", err)
	}

	if cmd.Bool("json") {
		registry := snap.Registry
		if registry == nil {
			registry = []models.AnalysisSummary{}
		}
		return r.writeJSON(registry, true)
	}

	r.writePlainHeader(fmt.Sprintf("Analyses (%d)", len(snap.Registry)))
	if len(snap.Registry) == 0 {
		return r.writePlain("No analyses yet. Start one with 'vsa analyze <url>'.\n")
	}
	for _, a := range snap.Registry {
		r.writePlain("%s %-36s  %-20s  %s\n", statusIcon(a.Status), a.ID, formatTime(a.CreatedAt.Time), a.DisplayTitle())
	}
	return nil
}

// AnalysesShow prints the cached result of an analysis.
func (r *Runner) AnalysesShow(ctx context.Context, cmd *cli.Command) error {
	detail, err := r.cachedDetail(ctx, cmd.StringArg("id"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(detail, true)
	}

	out, err := formatter.ExportToText(*detail)
	if err != nil {
		return err
	}
	_, err = r.output.Write(out)
	return err
}

// AnalysesExport writes the cached result of an analysis to a file.
func (r *Runner) AnalysesExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	detail, err := r.cachedDetail(ctx, cmd.StringArg("id"))
	if err != nil {
		return err
	}

	path, err := formatter.WriteExport(*detail, format, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("exported analysis", "analysis_id", detail.AnalysisID, "format", format, "path", path)
	return r.writePlain("✓ Exported %s to %s\n", detail.DisplayTitle(), path)
}

// AnalysesCached lists every result in the local cache, most recent first.
func (r *Runner) AnalysesCached(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}

	records, err := repositories.NewDetailRepository(db).List(ctx)
	if err != nil {
		return err
	}

	r.writePlainHeader(fmt.Sprintf("Cached results (%d)", len(records)))
	for _, rec := range records {
		r.writePlain("%-36s  %-20s  %3d categories  %s\n",
			rec.Detail.AnalysisID, formatTime(rec.UpdatedAt), len(rec.Detail.Sentiment.Breakdowns()), rec.Detail.DisplayTitle())
	}
	return nil
}

func (r *Runner) cachedDetail(ctx context.Context, id string) (*models.CompletedDetail, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: analysis id", shared.ErrMissingArgument)
	}

	db, err := r.database()
	if err != nil {
		return nil, err
	}

	detail, err := repositories.NewDetailRepository(db).Get(ctx, id)
	if errors.Is(err, shared.ErrAnalysisNotFound) {
		return nil, fmt.Errorf("%w (run 'vsa analyses list' to refresh the cache)", err)
	}
	return detail, err
}

func statusIcon(s models.Status) string {
	switch s {
	case models.StatusCompleted:
		return "✓"
	case models.StatusError:
		return "✗"
	case models.StatusInProgress:
		return "…"
	default:
		return "•"
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
