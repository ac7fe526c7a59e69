package dfu

import (
	"time"

	"github.com/moffa90/go-nrfdfu/protocol"
)

// Progress phases.
const (
	// PhaseSelecting is reported when a payload's transfer state is queried
	PhaseSelecting = "selecting"

	// PhaseResuming is reported when a previous transfer is being continued
	PhaseResuming = "resuming"

	// PhaseTransferring is reported after each executed chunk
	PhaseTransferring = "transferring"

	// PhaseComplete is reported when a payload is fully transferred
	PhaseComplete = "complete"
)

// Progress contains information about the transfer progress.
// Passed to ProgressCallback while payloads are sent.
type Progress struct {
	// Phase is one of the Phase* constants
	Phase string

	// UpdateIndex is the 0-based index of the update being sent by an Operation
	UpdateIndex int

	// UpdateCount is the number of updates in the Operation (0 outside an Operation)
	UpdateCount int

	// UpdateName is the manifest entry of the update, e.g. "application"
	UpdateName string

	// ObjectType is the payload being sent
	ObjectType protocol.ObjectType

	// BytesSent is the number of payload bytes the device has accepted
	BytesSent int

	// TotalBytes is the payload length
	TotalBytes int

	// Percentage is BytesSent relative to TotalBytes (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time since the payload send started
	ElapsedTime time.Duration
}

// ProgressCallback is called during a transfer to report progress.
// Implementations should return quickly to avoid stalling the transfer.
//
// Example:
//
//	op := dfu.NewOperation(pkg, transport,
//	    dfu.WithProgressCallback(func(p dfu.Progress) {
//	        fmt.Printf("[%d/%d %s] %s %.1f%%\n",
//	            p.UpdateIndex+1, p.UpdateCount, p.ObjectType, p.Phase, p.Percentage)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface. Package logging provides
// adapters for zap and logrus.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
