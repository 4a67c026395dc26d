package mobly

import (
	"context"
)

// Service is the capability every auxiliary service attached to a device
// session implements. The manager relies on nothing beyond these methods.
//
// Start is never issued to a service that reports alive, and Stop and Pause
// are only issued to services that report alive.
type Service interface {
	// Start brings the service up with the given configuration.
	Start(ctx context.Context, configs any) error
	// Stop shuts the service down.
	Stop(ctx context.Context) error
	// Pause suspends the service, e.g. while the device is disconnected.
	Pause(ctx context.Context) error
	// Resume restores a paused service.
	Resume(ctx context.Context) error
	// IsAlive reports whether the service is running.
	IsAlive() bool
}

// Factory constructs a Service for the given owner and configuration.
// Construction must not start the service.
type Factory func(owner, configs any) (Service, error)
