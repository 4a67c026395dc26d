// Package mobly manages the auxiliary services attached to a device under
// test, such as a log capture or an RPC bridge.
//
// The core is the Manager, an ordered registry of named services that share
// one device session. Each service implements the Service capability and is
// constructed through a Factory:
//
//	mgr := mobly.NewManager(device)
//
//	// Construct and start the service
//	err := mgr.Register(ctx, "logcat", logtail.New,
//	    mobly.WithConfigs(logtail.Config{Source: "/var/log/device.log"}),
//	)
//
//	// Typed access by alias
//	tailer, ok := mobly.Lookup[*logtail.Tailer](mgr, "logcat")
//
// # Bulk Operations
//
// StartAll, StopAll, PauseAll, ResumeAll and UnregisterAll walk the
// registry in registration order and issue one call per service. A service
// that fails does not stop the batch: its failure is handed to the
// ErrorRecorder as a non-fatal error with a fixed message such as
//
//	Failed to stop service "logcat".
//
// and the next service is processed. Configuration mistakes (duplicate or
// unknown alias, invalid factory) are returned as *ConfigError instead.
//
// # Recovery
//
// Two brackets restore services around device level events:
//
//	// USB unplugged: services are paused, then resumed
//	err = mgr.HandleTemporaryDisconnect(ctx, func(ctx context.Context) error {
//	    return unplugAndReplug(ctx)
//	})
//
//	// Reboot: services are stopped, then started again
//	err = mgr.HandleFullReset(ctx, reboot)
//
// Restoration always runs, even when the bracketed function fails, and its
// own failures are recorded rather than returned.
//
// Session wraps a Manager with the identity of the device (serial, debug
// tag, log directory) and waits for the device to boot inside
// HandleFullReset.
package mobly
