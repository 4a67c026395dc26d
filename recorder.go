package mobly

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrorRecorder accepts non-fatal failures without interrupting the caller.
type ErrorRecorder interface {
	Record(alias, message string, cause error)
}

// ErrorRecord is one recorded non-fatal failure
type ErrorRecord struct {
	// ID uniquely identifies the record
	ID string `yaml:"id"`
	// Time is when the failure was recorded
	Time time.Time `yaml:"time"`
	// Alias is the service or session the failure originated from
	Alias string `yaml:"alias"`
	// Message is the fixed failure message
	Message string `yaml:"message"`
	// Details is the message followed by the cause
	Details string `yaml:"details"`

	cause error
}

// Cause returns the error the failure was recorded with, if any
func (r ErrorRecord) Cause() error {
	return r.cause
}

// recordError presents an ErrorRecord as an error
type recordError struct {
	rec ErrorRecord
}

func (e *recordError) Error() string { return e.rec.Details }

func (e *recordError) Unwrap() error { return e.rec.cause }

// Recorder is the default ErrorRecorder. It keeps records in memory and is
// safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	records []ErrorRecord
	logger  logrus.FieldLogger
	metrics *Metrics
	now     func() time.Time
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger recorded failures are reported to
func WithRecorderLogger(l logrus.FieldLogger) RecorderOption {
	return func(r *Recorder) {
		r.logger = l
	}
}

// WithRecorderMetrics counts recorded failures
func WithRecorderMetrics(m *Metrics) RecorderOption {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// NewRecorder creates an empty Recorder
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		logger: discardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends a failure. It never fails.
func (r *Recorder) Record(alias, message string, cause error) {
	details := message
	if cause != nil {
		details = fmt.Sprintf("%s %v", message, cause)
	}

	rec := ErrorRecord{
		ID:      uuid.New().String(),
		Time:    r.now(),
		Alias:   alias,
		Message: message,
		Details: details,
		cause:   cause,
	}

	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()

	r.metrics.observeRecorded()
	r.logger.WithFields(logrus.Fields{
		"alias":     alias,
		"record_id": rec.ID,
	}).WithError(cause).Error(message)
}

// Count returns the number of recorded failures
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Records returns a copy of the recorded failures in recording order
func (r *Recorder) Records() []ErrorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Err returns nil if nothing was recorded, otherwise a *MultiError holding
// every record
func (r *Recorder) Err() error {
	merr := &MultiError{}
	for _, rec := range r.Records() {
		merr.Add(&recordError{rec: rec})
	}
	return merr.Err()
}

// Reset drops all records
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
