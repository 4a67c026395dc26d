package mobly

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Log directory defaults
const (
	// DefaultLogBaseDir is the directory per-device log directories are
	// created under when no base is configured
	DefaultLogBaseDir = "logs"

	// LogDirPrefix prefixes the default per-device log directory name
	LogDirPrefix = "AndroidDevice"
)

// Session is the handle of one device under test. It owns the Manager of
// the services attached to the device and is the owner those services are
// constructed with.
type Session struct {
	mu       sync.RWMutex
	serial   string
	debugTag string
	logPath  string
	logBase  string
	// logPathDefaulted is set while logPath is derived from logBase and
	// the serial
	logPathDefaulted bool

	services   *Manager
	recorder   ErrorRecorder
	bootWaiter BootWaiter
	logger     logrus.FieldLogger
	metrics    *Metrics
	timeout    time.Duration
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithLogBaseDir sets the directory the default per-device log directory is
// created under
func WithLogBaseDir(dir string) SessionOption {
	return func(s *Session) {
		s.logBase = dir
	}
}

// WithLogPath sets the directory service output is written to, overriding
// the per-device default
func WithLogPath(path string) SessionOption {
	return func(s *Session) {
		s.logPath = path
	}
}

// WithBootWaiter sets how HandleFullReset waits for the device to come back
func WithBootWaiter(w BootWaiter) SessionOption {
	return func(s *Session) {
		s.bootWaiter = w
	}
}

// WithSessionLogger sets the logger of the session and its services
func WithSessionLogger(l logrus.FieldLogger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// WithSessionRecorder sets the recorder of the session and its services
func WithSessionRecorder(r ErrorRecorder) SessionOption {
	return func(s *Session) {
		s.recorder = r
	}
}

// WithSessionMetrics enables Prometheus metrics for the session's services
func WithSessionMetrics(m *Metrics) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithOperationTimeout sets the per-call timeout of the session's services
func WithOperationTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.timeout = d
	}
}

// NewSession creates a session for the device with the given serial
func NewSession(serial string, opts ...SessionOption) (*Session, error) {
	if serial == "" {
		return nil, errors.New("mobly: device serial must not be empty")
	}

	s := &Session{
		serial:   serial,
		debugTag: serial,
		logBase:  DefaultLogBaseDir,
		timeout:  DefaultOperationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logPath == "" {
		s.logPath = defaultLogPath(s.logBase, serial)
		s.logPathDefaulted = true
	}

	if s.logger == nil {
		s.logger = discardLogger()
	}
	s.logger = s.logger.WithField("serial", serial)
	if s.recorder == nil {
		s.recorder = NewRecorder(WithRecorderLogger(s.logger), WithRecorderMetrics(s.metrics))
	}

	s.services = NewManager(s,
		WithRecorder(s.recorder),
		WithLogger(s.logger),
		WithMetrics(s.metrics),
		WithTimeout(s.timeout),
	)
	return s, nil
}

// Services returns the manager of the services attached to the device
func (s *Session) Services() *Manager {
	return s.services
}

// Recorder returns the recorder non-fatal failures are reported to
func (s *Session) Recorder() ErrorRecorder {
	return s.recorder
}

// Serial returns the device serial
func (s *Session) Serial() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serial
}

// DebugTag returns the tag used to prefix session errors
func (s *Session) DebugTag() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.debugTag
}

// SetDebugTag changes the tag used to prefix session errors
func (s *Session) SetDebugTag(tag string) {
	s.mu.Lock()
	s.debugTag = tag
	s.mu.Unlock()
}

// LogPath returns the directory service output is written to
func (s *Session) LogPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logPath
}

// UpdateSerial points the session at a new serial. It is refused while any
// service is alive since running services are bound to the old serial. A
// default log path follows the new serial.
func (s *Session) UpdateSerial(serial string) error {
	if serial == "" {
		return s.errorf("device serial must not be empty")
	}
	if s.services.IsAnyAlive() {
		return s.wrap(fmt.Errorf("cannot change device serial number when there is service running: %w", ErrServicesRunning))
	}

	s.mu.Lock()
	if s.debugTag == s.serial {
		s.debugTag = serial
	}
	s.serial = serial
	if s.logPathDefaulted {
		s.logPath = defaultLogPath(s.logBase, serial)
	}
	s.mu.Unlock()
	return nil
}

// SetLogPath moves the log directory. It is refused while any service is
// alive or if path already contains files.
func (s *Session) SetLogPath(path string) error {
	if s.services.IsAnyAlive() {
		return s.wrap(fmt.Errorf("cannot change log path when there is service running: %w", ErrServicesRunning))
	}

	entries, err := os.ReadDir(path)
	switch {
	case err == nil && len(entries) > 0:
		return s.wrap(fmt.Errorf("logs already exist at %q: %w", path, ErrLogsExist))
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return s.wrap(fmt.Errorf("reading log path: %w", err))
	}
	if err := os.MkdirAll(path, DirMode); err != nil {
		return s.wrap(fmt.Errorf("creating log path: %w", err))
	}

	s.mu.Lock()
	s.logPath = path
	s.logPathDefaulted = false
	s.mu.Unlock()
	return nil
}

// HandleTemporaryDisconnect brackets fn with PauseAll and ResumeAll. Use it
// around work that drops the connection to the device, such as unplugging
// USB.
func (s *Session) HandleTemporaryDisconnect(ctx context.Context, fn func(context.Context) error) error {
	return s.services.HandleTemporaryDisconnect(ctx, fn)
}

// WaitForBootCompletion blocks until the session's BootWaiter reports the
// device booted. Without a BootWaiter it returns at once.
func (s *Session) WaitForBootCompletion(ctx context.Context) error {
	if s.bootWaiter == nil {
		return nil
	}
	if err := s.bootWaiter.WaitForBoot(ctx); err != nil {
		return s.wrap(err)
	}
	return nil
}

// HandleFullReset brackets fn with StopAll and StartAll. Use it around work
// that reboots the device. Before services are started again the session
// waits for the device to boot; a failed wait is recorded and the services
// are started anyway.
func (s *Session) HandleFullReset(ctx context.Context, fn func(context.Context) error) error {
	return s.services.fullReset(ctx, fn, func(ctx context.Context) {
		if err := s.WaitForBootCompletion(ctx); err != nil {
			s.recorder.Record(s.DebugTag(), "Failed to wait for device boot completion.", err)
		}
	})
}

// Close unregisters every service of the session
func (s *Session) Close(ctx context.Context) {
	s.services.UnregisterAll(ctx)
}

func (s *Session) wrap(err error) error {
	return &SessionError{Tag: s.DebugTag(), Err: err}
}

func (s *Session) errorf(format string, args ...any) error {
	return s.wrap(fmt.Errorf(format, args...))
}

// defaultLogPath returns <base>/AndroidDevice<serial> with characters that
// are reserved in file names replaced by '-'.
func defaultLogPath(base, serial string) string {
	return filepath.Join(base, LogDirPrefix+sanitizeFileName(serial))
}

func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(`<>:"/\|?*`, r) {
			return '-'
		}
		return r
	}, name)
}
