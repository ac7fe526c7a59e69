package dfu

import (
	"context"

	"github.com/moffa90/go-nrfdfu/protocol"
)

// Transport is the object protocol a bootloader link must implement.
// The chunking, resume and retry logic in Transfer is written against it.
//
// Implementations must not interleave two requests; Transfer never
// issues a request before the previous one returned.
type Transport interface {
	// CreateObject creates an object of typ with room for size bytes.
	CreateObject(ctx context.Context, typ protocol.ObjectType, size uint32) error

	// WriteObject appends data to the current object. crcSoFar and
	// offsetSoFar describe the bytes already accepted, and the returned
	// checksum covers them plus data.
	WriteObject(ctx context.Context, data []byte, crcSoFar, offsetSoFar uint32) (protocol.Checksum, error)

	// ChecksumObject asks the device for the offset and CRC32 of the
	// selected type. The arguments are the values the caller expects.
	ChecksumObject(ctx context.Context, offset, crcSoFar uint32) (protocol.Checksum, error)

	// ExecuteObject commits the current object.
	ExecuteObject(ctx context.Context) error

	// SelectObject selects typ and reports its transfer state.
	SelectObject(ctx context.Context, typ protocol.ObjectType) (protocol.ObjectStatus, error)

	// AbortObject leaves DFU mode.
	AbortObject(ctx context.Context) error
}

// ErrorSource is implemented by transports that observe errors outside
// the call that is waiting, e.g. on a reader goroutine. TakeError
// returns the pending error, if any, and clears it.
type ErrorSource interface {
	TakeError() error
}
