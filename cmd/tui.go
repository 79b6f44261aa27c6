package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vsa/internal/server"
	"github.com/desertthunder/vsa/internal/shared"
	"github.com/desertthunder/vsa/internal/ui"
)

// TUI launches the interactive terminal UI over a live session.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	model := cmd.String("model")
	if model == "" {
		model = r.config.Session.Model
	}

	sess, err := r.startSession(ctx, model, r.details())
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	addr := cmd.String("status-addr")
	if addr == "" && cmd.Bool("status") {
		addr = r.config.Status.Addr()
	}
	if addr != "" {
		srv := server.New(addr, server.NewStatusRouter(sess, shared.WithLogger(r.logger, "component", "status")))
		go func() { serveErr <- server.Serve(ctx, srv, r.logger) }()
		r.logger.Info("status server listening", "addr", addr)
	} else {
		close(serveErr)
	}

	p := tea.NewProgram(ui.NewModel(ctx, sess, sess.Dispatcher(), model), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running TUI: %w", err)
	}

	cancel()
	if err := <-serveErr; err != nil {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}
