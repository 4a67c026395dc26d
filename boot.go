package mobly

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Boot polling defaults
const (
	// DefaultBootTimeout bounds how long a BootPoller waits for boot completion
	DefaultBootTimeout = 15 * time.Minute

	// DefaultBootPollInterval is the pause between two boot probes
	DefaultBootPollInterval = 5 * time.Second
)

var errNotBooted = errors.New("boot not completed")

// BootWaiter blocks until the device has finished booting after a reset.
type BootWaiter interface {
	WaitForBoot(ctx context.Context) error
}

// BootWaiterFunc adapts a function to BootWaiter
type BootWaiterFunc func(ctx context.Context) error

// WaitForBoot calls f(ctx)
func (f BootWaiterFunc) WaitForBoot(ctx context.Context) error {
	return f(ctx)
}

// BootProbe asks the device once whether it has finished booting. An error
// means the device could not be asked, which is expected while it reboots.
type BootProbe func(ctx context.Context) (bool, error)

// BootPoller is a BootWaiter that calls a BootProbe at a fixed interval until
// it reports completion or the timeout expires.
type BootPoller struct {
	probe    BootProbe
	interval time.Duration
	timeout  time.Duration
	logger   logrus.FieldLogger
}

// BootPollerOption configures a BootPoller
type BootPollerOption func(*BootPoller)

// WithBootTimeout sets how long the poller waits in total
func WithBootTimeout(d time.Duration) BootPollerOption {
	return func(p *BootPoller) {
		p.timeout = d
	}
}

// WithBootPollInterval sets the pause between two probes
func WithBootPollInterval(d time.Duration) BootPollerOption {
	return func(p *BootPoller) {
		p.interval = d
	}
}

// WithBootPollerLogger sets the logger probe failures are reported to
func WithBootPollerLogger(l logrus.FieldLogger) BootPollerOption {
	return func(p *BootPoller) {
		p.logger = l
	}
}

// NewBootPoller creates a BootPoller around probe
func NewBootPoller(probe BootProbe, opts ...BootPollerOption) *BootPoller {
	p := &BootPoller{
		probe:    probe,
		interval: DefaultBootPollInterval,
		timeout:  DefaultBootTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = discardLogger()
	}
	return p
}

// WaitForBoot probes until the device reports boot completion. Probe errors
// are tolerated until the timeout; the last one is wrapped into the
// returned ErrBootTimeout.
func (p *BootPoller) WaitForBoot(ctx context.Context) error {
	if p.probe == nil {
		return errors.New("mobly: boot probe not set")
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var lastErr error
	op := func() error {
		done, err := p.probe(waitCtx)
		if err != nil {
			lastErr = err
			return err
		}
		lastErr = nil
		if !done {
			return errNotBooted
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		p.logger.WithError(err).WithField("retry_in", next).Debug("device has not completed boot")
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(p.interval), waitCtx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if lastErr != nil {
			return fmt.Errorf("%w within %s: %w", ErrBootTimeout, p.timeout, lastErr)
		}
		return fmt.Errorf("%w within %s", ErrBootTimeout, p.timeout)
	}
	return nil
}
