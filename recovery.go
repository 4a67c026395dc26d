package mobly

import (
	"context"
)

// HandleTemporaryDisconnect pauses every alive service, runs fn and resumes
// the paused services afterwards, even if fn fails or panics.
//
// fn's error is returned unchanged; resume failures are recorded.
func (m *Manager) HandleTemporaryDisconnect(ctx context.Context, fn func(context.Context) error) error {
	m.PauseAll(ctx)
	defer m.ResumeAll(context.WithoutCancel(ctx))

	return fn(ctx)
}

// HandleFullReset stops every alive service, runs fn and starts every
// registered service that is not alive afterwards, even if fn fails or
// panics.
//
// fn's error is returned unchanged; start failures are recorded.
func (m *Manager) HandleFullReset(ctx context.Context, fn func(context.Context) error) error {
	return m.fullReset(ctx, fn, nil)
}

// fullReset is HandleFullReset with a hook that runs after fn and before
// the services are started again.
func (m *Manager) fullReset(ctx context.Context, fn func(context.Context) error, beforeRestart func(context.Context)) error {
	m.StopAll(ctx)
	defer func() {
		restoreCtx := context.WithoutCancel(ctx)
		if beforeRestart != nil {
			beforeRestart(restoreCtx)
		}
		m.StartAll(restoreCtx)
	}()

	return fn(ctx)
}
