package main

import (
	"context"
	"errors"

	"github.com/desertthunder/vsa/internal/repositories"
	"github.com/desertthunder/vsa/internal/session"
	"github.com/desertthunder/vsa/internal/shared"
	"github.com/desertthunder/vsa/internal/socket"
)

// startSession connects a live session bound to the invocation's credential. The caller owns Close.
func (r *Runner) startSession(ctx context.Context, model string, store *repositories.DetailRepository) (*session.Session, error) {
	cred, err := r.credential(ctx)
	if err != nil {
		return nil, err
	}

	sess, err := r.newSession(model, store)
	if err != nil {
		return nil, err
	}

	if err := sess.Start(ctx, cred); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

// await blocks until cond reports done for a published snapshot, cond fails, or the connection is lost for good.
//
// Updates coalesce, so cond sees the latest state rather than every intermediate one. Consumers that need every
// step read [session.RunState.History].
func await(ctx context.Context, sess *session.Session, cond func(session.Snapshot) (bool, error)) (session.Snapshot, error) {
	snap := sess.Snapshot()
	for {
		if done, err := cond(snap); done || err != nil {
			return snap, err
		}
		if err := connectionLost(snap); err != nil {
			return snap, err
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case next, ok := <-sess.Updates():
			if !ok {
				return snap, shared.ErrClosed
			}
			snap = next
		}
	}
}

// connectionLost reports the error that ended the channel's reconnect cycle, if any.
func connectionLost(snap session.Snapshot) error {
	if snap.Status != socket.StatusDisconnected || snap.StatusErr == nil {
		return nil
	}

	switch {
	case snap.StatusReason == socket.ReasonRetriesExhausted:
		return snap.StatusErr
	case errors.Is(snap.StatusErr, shared.ErrAuth):
		return snap.StatusErr
	default:
		return nil
	}
}
