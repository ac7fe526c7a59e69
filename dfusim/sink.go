package dfusim

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/moffa90/go-nrfdfu/protocol"
)

// Default object size limits, matching the nRF5 SDK bootloader.
const (
	DefaultCommandMaxSize = 256
	DefaultDataMaxSize    = 4096
)

// Call is one primitive invocation recorded by a Sink.
type Call struct {
	// Op is the protocol opcode of the primitive
	Op byte

	// Type is the object type for create and select
	Type protocol.ObjectType

	// Size is the requested size for create
	Size uint32

	// Data is a copy of the written bytes for write
	Data []byte
}

type object struct {
	data     []byte
	executed int
	max      uint32

	// current object bounds; size 0 means no object is open
	start int
	size  int
}

// Sink is an in-memory DFU target. It implements dfu.Transport directly
// and is the object store behind Device.
//
// Sink is safe for concurrent use.
type Sink struct {
	mu       sync.Mutex
	objects  map[protocol.ObjectType]*object
	selected protocol.ObjectType

	lastCommand []byte
	corrupt     int
	aborted     bool
	calls       []Call
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithMaxObjectSize sets the largest object of typ the sink accepts.
func WithMaxObjectSize(typ protocol.ObjectType, size uint32) SinkOption {
	return func(s *Sink) {
		s.objects[typ].max = size
	}
}

// NewSink creates an empty Sink.
func NewSink(opts ...SinkOption) *Sink {
	s := &Sink{
		objects: map[protocol.ObjectType]*object{
			protocol.ObjectCommand: {max: DefaultCommandMaxSize},
			protocol.ObjectData:    {max: DefaultDataMaxSize},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preload sets the stored bytes of typ as if a previous transfer had
// been interrupted. The first executed bytes count as executed; any
// remainder is held in an open object of at most one chunk.
func (s *Sink) Preload(typ protocol.ObjectType, data []byte, executed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.objects[typ]
	o.data = append([]byte(nil), data...)
	o.executed = executed
	o.start, o.size = executed, 0
	if executed < len(data) {
		o.size = int(o.max)
	}
	if typ == protocol.ObjectCommand && executed == len(data) {
		s.lastCommand = append([]byte(nil), data...)
	}
}

// CorruptChecksums makes the next n checksum answers report a wrong CRC.
func (s *Sink) CorruptChecksums(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrupt = n
}

// Data returns a copy of the stored bytes of typ.
func (s *Sink) Data(typ protocol.ObjectType) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.objects[typ].data...)
}

// Executed returns how many bytes of typ have been executed.
func (s *Sink) Executed(typ protocol.ObjectType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[typ].executed
}

// Aborted reports whether an abort was received.
func (s *Sink) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Calls returns the recorded primitive invocations.
func (s *Sink) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many recorded calls used opcode op.
func (s *Sink) Count(op byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (s *Sink) record(c Call) {
	s.calls = append(s.calls, c)
}

// MaxSize returns the object size limit of typ.
func (s *Sink) MaxSize(typ protocol.ObjectType) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[typ].max
}

// CreateObject implements dfu.Transport.
func (s *Sink) CreateObject(_ context.Context, typ protocol.ObjectType, size uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Op: protocol.OpCreateObject, Type: typ, Size: size})

	o, ok := s.objects[typ]
	if !ok {
		return &protocol.Error{Code: protocol.CodeInvalidPayloadType, Detail: fmt.Sprintf("got 0x%02X", byte(typ))}
	}
	if size > o.max {
		return &protocol.Error{Code: protocol.CodeMoreBytesThanChunk, Detail: fmt.Sprintf("(create %d bytes, limit %d)", size, o.max)}
	}

	if typ == protocol.ObjectCommand {
		// A new command object starts a new update.
		o.data, o.executed = nil, 0
		s.lastCommand = nil
	} else {
		o.data = o.data[:o.executed]
	}
	o.start, o.size = len(o.data), int(size)
	s.selected = typ
	return nil
}

// WriteObject implements dfu.Transport. It checks crcSoFar and
// offsetSoFar against what it holds.
func (s *Sink) WriteObject(_ context.Context, data []byte, crcSoFar, offsetSoFar uint32) (protocol.Checksum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Op: protocol.OpWrite, Type: s.selected, Data: append([]byte(nil), data...)})

	o, ok := s.objects[s.selected]
	if !ok {
		return protocol.Checksum{}, protocol.ErrMustHavePayload
	}
	if offsetSoFar != uint32(len(o.data)) {
		return protocol.Checksum{}, &protocol.Error{
			Code:   protocol.CodeUnexpectedBytes,
			Detail: fmt.Sprintf("(write at offset %d, holding %d)", offsetSoFar, len(o.data)),
		}
	}
	if crc := protocol.CRC32(o.data); crc != crcSoFar {
		return protocol.Checksum{}, &protocol.Error{
			Code:   protocol.CodeMismatchedCRC32,
			Detail: fmt.Sprintf("(got 0x%08X, holding 0x%08X)", crcSoFar, crc),
		}
	}
	if err := s.write(o, data); err != nil {
		return protocol.Checksum{}, err
	}
	return protocol.Checksum{Offset: uint32(len(o.data)), CRC: protocol.CRC32(o.data)}, nil
}

// write appends to the open object of o. s.mu must be held.
func (s *Sink) write(o *object, data []byte) error {
	if o.size == 0 {
		return protocol.ErrMustHavePayload
	}
	if len(o.data)-o.start+len(data) > o.size {
		return &protocol.Error{
			Code:   protocol.CodeMoreBytesThanChunk,
			Detail: fmt.Sprintf("(object of %d bytes)", o.size),
		}
	}
	o.data = append(o.data, data...)
	return nil
}

// ChecksumObject implements dfu.Transport.
func (s *Sink) ChecksumObject(_ context.Context, _, _ uint32) (protocol.Checksum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Op: protocol.OpCalcChecksum, Type: s.selected})
	return s.checksum()
}

// checksum reports the selected object's state. s.mu must be held.
func (s *Sink) checksum() (protocol.Checksum, error) {
	o, ok := s.objects[s.selected]
	if !ok {
		return protocol.Checksum{}, protocol.ErrMustHavePayload
	}
	sum := protocol.Checksum{Offset: uint32(len(o.data)), CRC: protocol.CRC32(o.data)}
	if s.corrupt > 0 {
		s.corrupt--
		sum.CRC = ^sum.CRC
	}
	return sum, nil
}

// ExecuteObject implements dfu.Transport. Executing twice is a no-op.
func (s *Sink) ExecuteObject(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Op: protocol.OpExecute, Type: s.selected})

	o, ok := s.objects[s.selected]
	if !ok {
		return protocol.ErrMustHavePayload
	}
	o.executed = len(o.data)
	o.start, o.size = len(o.data), 0

	if s.selected == protocol.ObjectCommand && !bytes.Equal(o.data, s.lastCommand) {
		// A different init command invalidates any stored image.
		s.lastCommand = append([]byte(nil), o.data...)
		d := s.objects[protocol.ObjectData]
		d.data, d.executed, d.start, d.size = nil, 0, 0, 0
	}
	return nil
}

// SelectObject implements dfu.Transport.
func (s *Sink) SelectObject(_ context.Context, typ protocol.ObjectType) (protocol.ObjectStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Op: protocol.OpSelectObject, Type: typ})

	o, ok := s.objects[typ]
	if !ok {
		return protocol.ObjectStatus{}, &protocol.Error{Code: protocol.CodeInvalidPayloadType, Detail: fmt.Sprintf("got 0x%02X", byte(typ))}
	}
	s.selected = typ
	return protocol.ObjectStatus{MaxSize: o.max, Offset: uint32(len(o.data)), CRC: protocol.CRC32(o.data)}, nil
}

// AbortObject implements dfu.Transport.
func (s *Sink) AbortObject(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Op: protocol.OpAbort})
	s.aborted = true
	return nil
}

// push appends data to the selected object, as a raw write request does.
func (s *Sink) push(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Op: protocol.OpWrite, Type: s.selected, Data: append([]byte(nil), data...)})

	o, ok := s.objects[s.selected]
	if !ok {
		return protocol.ErrMustHavePayload
	}
	return s.write(o, data)
}

// notify returns the selected object's state without recording a call.
func (s *Sink) notify() (protocol.Checksum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checksum()
}
