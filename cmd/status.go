package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vsa/internal/session"
	"github.com/desertthunder/vsa/internal/socket"
)

const statusTimeout = 15 * time.Second

type statusReport struct {
	Backend   string `json:"backend"`
	Greeting  string `json:"greeting,omitempty"`
	REST      string `json:"rest"`
	Channel   string `json:"channel"`
	Analyses  int    `json:"analyses"`
	ChannelOK bool   `json:"channel_ok"`
	RESTOK    bool   `json:"rest_ok"`
}

// Status checks the REST root endpoint and the event channel, reporting each independently.
//
// Either check failing makes the command fail after the report is printed.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	report := statusReport{Backend: r.config.Backend.URL}

	greeting, restErr := r.apiService(ctx).Health(ctx)
	if restErr != nil {
		r.logger.Warn("health check failed", "error", restErr)
		report.REST = restErr.Error()
	} else {
		report.REST, report.RESTOK, report.Greeting = "ok", true, greeting
	}

	chanErr := r.probeChannel(ctx, &report)
	if chanErr != nil {
		r.logger.Warn("event channel check failed", "error", chanErr)
		report.Channel = chanErr.Error()
	}

	if cmd.Bool("json") {
		if err := r.writeJSON(report, true); err != nil {
			return err
		}
	} else {
		r.writePlainHeader("Backend Status")
		r.writePlain("Backend:  %s\n", report.Backend)
		r.writePlain("%s REST:   %s\n", checkIcon(report.RESTOK), report.REST)
		if report.Greeting != "" {
			r.writePlain("          %s\n", report.Greeting)
		}
		r.writePlain("%s Events: %s\n", checkIcon(report.ChannelOK), report.Channel)
		if report.ChannelOK {
			r.writePlain("          %d analyses\n", report.Analyses)
		}
	}

	if restErr != nil {
		return restErr
	}
	return chanErr
}

func (r *Runner) probeChannel(ctx context.Context, report *statusReport) error {
	sess, err := r.startSession(ctx, "", nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	snap, err := await(ctx, sess, func(s session.Snapshot) (bool, error) {
		return s.Status == socket.StatusConnected && s.Synced, nil
	})
	if err != nil {
		return err
	}

	report.Channel, report.ChannelOK, report.Analyses = snap.Status.String(), true, len(snap.Registry)
	return nil
}

func checkIcon(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
