package mobly

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager owns the services attached to one device session. Services are
// kept in registration order and every bulk operation walks them in that
// order, one at a time.
//
// Failures of individual services during bulk operations are recorded with
// the ErrorRecorder and never returned. Bulk operations on one Manager must
// not run concurrently.
type Manager struct {
	// Timeout is the per-call timeout applied to each service call
	Timeout time.Duration

	owner    any
	recorder ErrorRecorder
	logger   logrus.FieldLogger
	metrics  *Metrics

	// mu guards entries and index, never held across service calls
	mu      sync.Mutex
	entries []*entry
	index   map[string]*entry
}

type entry struct {
	alias   string
	svc     Service
	configs any
	// paused is set once PauseAll has attempted to pause the service
	paused bool
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithRecorder sets the recorder non-fatal failures are reported to
func WithRecorder(r ErrorRecorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithLogger sets the logger used for lifecycle transitions
func WithLogger(l logrus.FieldLogger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics enables Prometheus metrics
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithTimeout sets the per-call timeout
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.Timeout = d
	}
}

// NewManager creates a Manager for owner, which is handed to every service
// factory. Without WithRecorder a fresh Recorder is used.
func NewManager(owner any, opts ...ManagerOption) *Manager {
	m := &Manager{
		Timeout: DefaultOperationTimeout,
		owner:   owner,
		index:   make(map[string]*entry),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = discardLogger()
	}
	if m.recorder == nil {
		m.recorder = NewRecorder(WithRecorderLogger(m.logger), WithRecorderMetrics(m.metrics))
	}

	return m
}

// Recorder returns the recorder failures are reported to
func (m *Manager) Recorder() ErrorRecorder {
	return m.recorder
}

// registerOptions holds per-registration settings
type registerOptions struct {
	configs      any
	startService bool
}

// RegisterOption configures a single Register call
type RegisterOption func(*registerOptions)

// WithConfigs passes configs to the factory and to every Start call
func WithConfigs(configs any) RegisterOption {
	return func(o *registerOptions) {
		o.configs = configs
	}
}

// WithStartService controls whether Register starts the service. Default true.
func WithStartService(start bool) RegisterOption {
	return func(o *registerOptions) {
		o.startService = start
	}
}

// Register constructs a service with factory and adds it under alias.
//
// Configuration mistakes (empty or duplicate alias, nil factory, a factory
// that fails or yields no Service) return a *ConfigError and leave the
// registry untouched. If the service is started and Start fails, the
// *OpError is returned and the service stays registered.
func (m *Manager) Register(ctx context.Context, alias string, factory Factory, opts ...RegisterOption) error {
	o := registerOptions{startService: true}
	for _, opt := range opts {
		opt(&o)
	}

	if alias == "" {
		return &ConfigError{Reason: "service alias must not be empty", Err: ErrInvalidService}
	}
	if factory == nil {
		return &ConfigError{
			Alias:  alias,
			Reason: fmt.Sprintf("service factory for %q is nil", alias),
			Err:    ErrInvalidService,
		}
	}
	if m.has(alias) {
		return duplicateAliasError(alias)
	}

	svc, err := factory(m.owner, o.configs)
	if err != nil {
		return &ConfigError{
			Alias:  alias,
			Reason: fmt.Sprintf("failed to construct service %q: %v", alias, err),
			Err:    err,
		}
	}
	if svc == nil {
		return &ConfigError{
			Alias:  alias,
			Reason: fmt.Sprintf("factory for %q did not produce a Service", alias),
			Err:    ErrInvalidService,
		}
	}

	e := &entry{alias: alias, svc: svc, configs: o.configs}

	m.mu.Lock()
	if _, ok := m.index[alias]; ok {
		m.mu.Unlock()
		return duplicateAliasError(alias)
	}
	m.entries = append(m.entries, e)
	m.index[alias] = e
	n := len(m.entries)
	m.mu.Unlock()

	m.metrics.setRegistered(n)
	m.logger.WithField("alias", alias).Debug("service registered")

	if !o.startService {
		return nil
	}
	return m.call(ctx, e, OpStart, func(ctx context.Context) error {
		return e.svc.Start(ctx, e.configs)
	})
}

// Unregister stops the service under alias if it is alive and removes it.
// A failing Stop is recorded; the service is removed regardless.
func (m *Manager) Unregister(ctx context.Context, alias string) error {
	m.mu.Lock()
	e, ok := m.index[alias]
	m.mu.Unlock()
	if !ok {
		return unknownAliasError(alias)
	}

	m.unregister(ctx, e)
	return nil
}

// UnregisterAll unregisters every service in registration order. The
// registry is empty afterwards even if some services failed to stop.
func (m *Manager) UnregisterAll(ctx context.Context) {
	for _, e := range m.snapshot() {
		m.unregister(ctx, e)
	}
}

// unregister stops e if it may be alive and removes it. A service whose
// IsAlive panics is stopped anyway.
func (m *Manager) unregister(ctx context.Context, e *entry) {
	defer m.remove(e)

	if alive, ok := m.alive(e, OpUnregister); alive || !ok {
		if err := m.call(ctx, e, OpUnregister, func(ctx context.Context) error {
			return e.svc.Stop(ctx)
		}); err != nil {
			m.record(err)
		}
	}
}

func (m *Manager) remove(e *entry) {
	m.mu.Lock()
	if cur, ok := m.index[e.alias]; ok && cur == e {
		delete(m.index, e.alias)
		for i, x := range m.entries {
			if x == e {
				m.entries = append(m.entries[:i], m.entries[i+1:]...)
				break
			}
		}
	}
	n := len(m.entries)
	m.mu.Unlock()

	m.metrics.setRegistered(n)
	m.logger.WithField("alias", e.alias).Debug("service unregistered")
}

// StartAll starts every registered service that is not alive, passing the
// configs given at registration. Failures are recorded.
func (m *Manager) StartAll(ctx context.Context) {
	for _, e := range m.snapshot() {
		if alive, ok := m.alive(e, OpStart); alive || !ok {
			continue
		}
		if err := m.call(ctx, e, OpStart, func(ctx context.Context) error {
			return e.svc.Start(ctx, e.configs)
		}); err != nil {
			m.record(err)
			continue
		}
		e.paused = false
	}
}

// StopAll stops every alive service. Services stay registered. Failures are
// recorded.
func (m *Manager) StopAll(ctx context.Context) {
	for _, e := range m.snapshot() {
		if alive, _ := m.alive(e, OpStop); !alive {
			continue
		}
		if err := m.call(ctx, e, OpStop, func(ctx context.Context) error {
			return e.svc.Stop(ctx)
		}); err != nil {
			m.record(err)
			continue
		}
		e.paused = false
	}
}

// PauseAll pauses every alive service. Each service a pause was attempted on
// is remembered for ResumeAll, including those whose Pause failed.
func (m *Manager) PauseAll(ctx context.Context) {
	for _, e := range m.snapshot() {
		if alive, _ := m.alive(e, OpPause); !alive {
			continue
		}
		e.paused = true
		if err := m.call(ctx, e, OpPause, func(ctx context.Context) error {
			return e.svc.Pause(ctx)
		}); err != nil {
			m.record(err)
		}
	}
}

// ResumeAll resumes the services paused by PauseAll. Services this manager
// did not pause are left alone. Failures are recorded.
func (m *Manager) ResumeAll(ctx context.Context) {
	for _, e := range m.snapshot() {
		if !e.paused {
			continue
		}
		e.paused = false
		if err := m.call(ctx, e, OpResume, func(ctx context.Context) error {
			return e.svc.Resume(ctx)
		}); err != nil {
			m.record(err)
		}
	}
}

// IsAnyAlive reports whether any registered service is alive. A service
// whose IsAlive panics is recorded and counted as not alive.
func (m *Manager) IsAnyAlive() bool {
	for _, e := range m.snapshot() {
		if alive, _ := m.alive(e, OpQuery); alive {
			return true
		}
	}
	return false
}

// Get returns the service registered under alias
func (m *Manager) Get(alias string) (Service, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.index[alias]
	if !ok {
		return nil, false
	}
	return e.svc, true
}

// Lookup returns the service registered under alias as a T. It reports
// false if the alias is unknown or the service is not a T.
func Lookup[T Service](m *Manager, alias string) (T, bool) {
	var zero T
	svc, ok := m.Get(alias)
	if !ok {
		return zero, false
	}
	t, ok := svc.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Aliases returns the registered aliases in registration order
func (m *Manager) Aliases() []string {
	entries := m.snapshot()
	aliases := make([]string, len(entries))
	for i, e := range entries {
		aliases[i] = e.alias
	}
	return aliases
}

// Len returns the number of registered services
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) has(alias string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.index[alias]
	return ok
}

func (m *Manager) snapshot() []*entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// call runs op against a single service. Errors and panics are returned as
// *OpError.
func (m *Manager) call(ctx context.Context, e *entry, op Operation, fn func(context.Context) error) (err error) {
	opCtx := ctx
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	log := m.logger.WithFields(logrus.Fields{"alias": e.alias, "op": op.String()})

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		m.metrics.observeOp(op, err)
		if err != nil {
			err = &OpError{Op: op, Alias: e.alias, Err: err}
			return
		}
		log.Debug("service operation completed")
	}()

	return fn(opCtx)
}

// alive asks e whether it is alive. A panic is recorded as a failure of op
// and reported with ok false; the service then counts as not alive.
func (m *Manager) alive(e *entry, op Operation) (alive, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			alive, ok = false, false
			m.metrics.observeOp(op, errAliveCheck)
			m.record(&OpError{Op: op, Alias: e.alias, Err: fmt.Errorf("%w: panic: %v", errAliveCheck, r)})
		}
	}()
	return e.svc.IsAlive(), true
}

func (m *Manager) record(err error) {
	var oe *OpError
	if !errors.As(err, &oe) {
		m.recorder.Record("", err.Error(), err)
		return
	}
	m.recorder.Record(oe.Alias, oe.Message(), oe.Err)
}
