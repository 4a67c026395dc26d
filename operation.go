package mobly

import (
	"io/fs"
	"time"
)

// Session and report constants
const (
	// DefaultDebugTagPrefix is the device kind shown in session error messages
	DefaultDebugTagPrefix = "Device"

	// DefaultOperationTimeout is the per-service call timeout applied by the
	// manager. Zero leaves timeouts to the services themselves.
	DefaultOperationTimeout time.Duration = 0

	// ReportFileName is the default file name of the error report
	ReportFileName = "errors.yaml"
)

// File modes
const (
	// DirMode is the default mode for created directories
	DirMode fs.FileMode = 0o755

	// FileMode is the default mode for created files
	FileMode fs.FileMode = 0o644
)

// Operation represents a lifecycle operation issued to a service
type Operation int

const (
	// OpUnknown represents an unknown operation
	OpUnknown Operation = iota
	// OpStart starts the service
	OpStart
	// OpStop stops the service
	OpStop
	// OpPause suspends the service without stopping it
	OpPause
	// OpResume resumes a paused service
	OpResume
	// OpUnregister stops a service as part of removing it from the registry
	OpUnregister
	// OpQuery asks a service whether it is alive outside any lifecycle call
	OpQuery
)

// Operation string constants
const (
	opUnknownStr    = "unknown"
	opStartStr      = "start"
	opStopStr       = "stop"
	opPauseStr      = "pause"
	opResumeStr     = "resume"
	opUnregisterStr = "unregister"
	opQueryStr      = "query"
)

// String returns the string representation of an Operation
func (op Operation) String() string {
	switch op {
	case OpStart:
		return opStartStr
	case OpStop:
		return opStopStr
	case OpPause:
		return opPauseStr
	case OpResume:
		return opResumeStr
	case OpUnregister:
		return opUnregisterStr
	case OpQuery:
		return opQueryStr
	default:
		return opUnknownStr
	}
}

// subject returns the verb and noun used in failure messages for this operation
func (op Operation) subject() (verb, noun string) {
	switch op {
	case OpUnregister:
		return opStopStr, "service instance"
	default:
		return op.String(), "service"
	}
}
