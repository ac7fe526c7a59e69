package dfu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moffa90/go-nrfdfu/protocol"
)

// Link is the raw side of a framed, stream-oriented transport. Writes
// are single requests; the link hands decoded responses back through
// Exchange.Deliver.
type Link interface {
	// Ready prepares the link before a request, e.g. by negotiating the
	// PRN interval and MTU. It must be idempotent.
	Ready(ctx context.Context) error

	// WriteCommand sends one request frame.
	WriteCommand(ctx context.Context, cmd []byte) error

	// WriteData sends one piece of object data. The device does not
	// answer it directly.
	WriteData(ctx context.Context, data []byte) error
}

type reply struct {
	pkt protocol.Packet
	err error
}

// Exchange turns a Link into a Transport: it pairs each request with the
// single response delivered for it and checks packet receipt
// notifications while object data is written.
//
// At most one response may be buffered and at most one reader may wait.
// Deliver may be called from any goroutine; the Transport methods must
// not be called concurrently.
type Exchange struct {
	link   Link
	config Config

	mu      sync.Mutex
	pending *reply
	waiter  chan reply
	lastErr error
	unit    int

	prnCount int
}

// NewExchange creates an Exchange over link.
func NewExchange(link Link, opts ...Option) *Exchange {
	if link == nil {
		panic("link cannot be nil")
	}
	return &Exchange{link: link, config: newConfig(opts)}
}

// PRN returns the configured packet receipt notification interval.
func (e *Exchange) PRN() int {
	return e.config.PRN
}

// SetTransferUnit derives the largest write payload from a raw MTU
// reported by the device.
func (e *Exchange) SetTransferUnit(mtu uint16) error {
	unit := protocol.TransferUnit(mtu)
	if unit < 4 {
		return &protocol.Error{
			Code:   protocol.CodeUnexpectedResponseBytes,
			Detail: fmt.Sprintf("(get-mtu) MTU %d leaves no room for data", mtu),
		}
	}
	e.mu.Lock()
	e.unit = unit
	e.mu.Unlock()
	e.config.logInfo("negotiated transfer unit", "mtu", mtu, "unit", unit)
	return nil
}

// TransferUnit returns the largest write payload, or 0 if none was negotiated.
func (e *Exchange) TransferUnit() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unit
}

// Read returns the next response.
//
// A buffered response is returned at once. Otherwise Read waits for
// Deliver until the read timeout elapses (protocol.ErrReadTimeout) or
// ctx is done. A Read while another is waiting fails with
// protocol.ErrReadConflict and leaves the waiting one untouched.
func (e *Exchange) Read(ctx context.Context) (protocol.Packet, error) {
	e.mu.Lock()
	if e.waiter != nil {
		e.mu.Unlock()
		return protocol.Packet{}, protocol.ErrReadConflict
	}
	if r := e.pending; r != nil {
		e.pending = nil
		e.mu.Unlock()
		return r.pkt, r.err
	}
	ch := make(chan reply, 1)
	e.waiter = ch
	e.mu.Unlock()

	timer := time.NewTimer(e.config.ReadTimeout)
	defer timer.Stop()

	var cause error
	select {
	case r := <-ch:
		return r.pkt, r.err
	case <-timer.C:
		cause = &protocol.Error{Code: protocol.CodeReadTimeout, Detail: fmt.Sprintf("(no response after %s)", e.config.ReadTimeout)}
	case <-ctx.Done():
		cause = ctx.Err()
	}

	e.mu.Lock()
	if e.waiter == ch {
		e.waiter = nil
	}
	e.mu.Unlock()

	// Deliver may have won the race after the timer fired.
	select {
	case r := <-ch:
		return r.pkt, r.err
	default:
	}
	return protocol.Packet{}, cause
}

// Deliver hands one decoded frame to the exchange. A frame that fails to
// parse is still delivered, and the waiting Read returns the parse error.
// Deliver fails with protocol.ErrDuplicateMessage if the previous
// response has not been read yet.
func (e *Exchange) Deliver(frame []byte) error {
	pkt, err := protocol.ParseResponse(frame)
	r := reply{pkt: pkt, err: err}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil {
		return &protocol.Error{Code: protocol.CodeDuplicateMessage, Detail: fmt.Sprintf("(% X)", frame)}
	}
	if e.waiter != nil {
		e.waiter <- r
		e.waiter = nil
		return nil
	}
	e.pending = &r
	return nil
}

// SetError records an error observed outside a request, for the next
// TakeError. Only the first error is kept until it is taken.
func (e *Exchange) SetError(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastErr == nil {
		e.lastErr = err
	}
}

// TakeError returns and clears the recorded out-of-band error.
func (e *Exchange) TakeError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.lastErr
	e.lastErr = nil
	return err
}

// Reset drops any buffered response, recorded error and notification count.
// Transports call it when the link is reopened.
func (e *Exchange) Reset() {
	e.mu.Lock()
	e.pending = nil
	e.lastErr = nil
	e.mu.Unlock()
	e.prnCount = 0
}

// Request sends cmd and returns the payload of its response, which must
// answer opcode with n bytes. It does not call Link.Ready.
func (e *Exchange) Request(ctx context.Context, cmd []byte, opcode byte, n int) ([]byte, error) {
	e.config.logDebug("request", "op", protocol.OpcodeName(opcode), "len", len(cmd))
	if err := e.link.WriteCommand(ctx, cmd); err != nil {
		return nil, fmt.Errorf("write %s: %w", protocol.OpcodeName(opcode), err)
	}
	pkt, err := e.Read(ctx)
	if err != nil {
		return nil, err
	}
	return pkt.Assert(opcode, n)
}

func (e *Exchange) request(ctx context.Context, cmd []byte, opcode byte, n int) ([]byte, error) {
	if err := e.link.Ready(ctx); err != nil {
		return nil, err
	}
	return e.Request(ctx, cmd, opcode, n)
}

// CreateObject implements Transport. The device restarts its
// notification count for the new object.
func (e *Exchange) CreateObject(ctx context.Context, typ protocol.ObjectType, size uint32) error {
	cmd, err := protocol.BuildCreateObjectCmd(typ, size)
	if err != nil {
		return err
	}
	if _, err := e.request(ctx, cmd, protocol.OpCreateObject, 0); err != nil {
		return err
	}
	e.prnCount = 0
	return nil
}

// WriteObject implements Transport. data is split into pieces of at most
// TransferUnit bytes. With a PRN interval of n, every nth piece is
// followed by the device's checksum notification, which must match the
// running offset and CRC32.
func (e *Exchange) WriteObject(ctx context.Context, data []byte, crcSoFar, offsetSoFar uint32) (protocol.Checksum, error) {
	sum := protocol.Checksum{Offset: offsetSoFar, CRC: crcSoFar}
	if err := e.link.Ready(ctx); err != nil {
		return sum, err
	}

	unit := e.TransferUnit()
	for len(data) > 0 {
		n := len(data)
		if unit > 0 && n > unit {
			n = unit
		}
		piece := data[:n]
		data = data[n:]

		if err := e.link.WriteData(ctx, piece); err != nil {
			return sum, fmt.Errorf("write data: %w", err)
		}
		sum.Offset += uint32(n)
		sum.CRC = protocol.UpdateCRC32(sum.CRC, piece)

		e.prnCount++
		if e.config.PRN <= 0 || e.prnCount < e.config.PRN {
			continue
		}
		e.prnCount = 0

		got, err := e.readChecksum(ctx)
		if err != nil {
			return sum, err
		}
		if got != sum {
			e.config.logError("notification mismatch",
				"offset", sum.Offset, "crc", fmt.Sprintf("0x%08X", sum.CRC),
				"device_offset", got.Offset, "device_crc", fmt.Sprintf("0x%08X", got.CRC),
			)
			return sum, &protocol.ChecksumMismatchError{
				ExpectedOffset: sum.Offset,
				ActualOffset:   got.Offset,
				Expected:       sum.CRC,
				Actual:         got.CRC,
			}
		}
		e.config.logDebug("notification", "offset", got.Offset)
	}
	return sum, nil
}

// ChecksumObject implements Transport. It resets the notification count.
func (e *Exchange) ChecksumObject(ctx context.Context, offset, crcSoFar uint32) (protocol.Checksum, error) {
	if err := e.link.Ready(ctx); err != nil {
		return protocol.Checksum{}, err
	}
	if err := e.link.WriteCommand(ctx, protocol.BuildCalcChecksumCmd()); err != nil {
		return protocol.Checksum{}, fmt.Errorf("write checksum: %w", err)
	}
	e.prnCount = 0
	return e.readChecksum(ctx)
}

func (e *Exchange) readChecksum(ctx context.Context) (protocol.Checksum, error) {
	pkt, err := e.Read(ctx)
	if err != nil {
		return protocol.Checksum{}, err
	}
	data, err := pkt.Assert(protocol.OpCalcChecksum, protocol.ChecksumResponseSize)
	if err != nil {
		return protocol.Checksum{}, err
	}
	return protocol.ParseChecksumResponse(data)
}

// ExecuteObject implements Transport.
func (e *Exchange) ExecuteObject(ctx context.Context) error {
	_, err := e.request(ctx, protocol.BuildExecuteCmd(), protocol.OpExecute, 0)
	return err
}

// SelectObject implements Transport.
func (e *Exchange) SelectObject(ctx context.Context, typ protocol.ObjectType) (protocol.ObjectStatus, error) {
	cmd, err := protocol.BuildSelectObjectCmd(typ)
	if err != nil {
		return protocol.ObjectStatus{}, err
	}
	data, err := e.request(ctx, cmd, protocol.OpSelectObject, protocol.SelectResponseSize)
	if err != nil {
		return protocol.ObjectStatus{}, err
	}
	return protocol.ParseSelectResponse(data)
}

// AbortObject implements Transport. The device does not answer an abort.
func (e *Exchange) AbortObject(ctx context.Context) error {
	if err := e.link.Ready(ctx); err != nil {
		return err
	}
	return e.link.WriteCommand(ctx, protocol.BuildAbortCmd())
}
