package dfusim

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/moffa90/go-nrfdfu/protocol"
	"github.com/moffa90/go-nrfdfu/slip"
)

// DefaultMTU is the MTU a Device reports unless configured otherwise.
const DefaultMTU = 131

// Device simulates an nRF5 serial DFU bootloader. It decodes SLIP
// framed requests, applies them to a Sink and answers like the real
// bootloader, including packet receipt notifications.
type Device struct {
	sink            *Sink
	mtu             uint16
	hw              protocol.HardwareVersion
	images          []protocol.FirmwareImage
	protocolVersion uint8

	mu       sync.Mutex
	prn      int
	prnCount int
	failures []failure
	requests []byte
}

type failure struct {
	op, result, ext byte
	skip            int
}

// DeviceOption configures a Device.
type DeviceOption func(*Device)

// WithSink sets the object store.
func WithSink(s *Sink) DeviceOption {
	return func(d *Device) {
		d.sink = s
	}
}

// WithMTU sets the MTU reported to the host.
func WithMTU(mtu uint16) DeviceOption {
	return func(d *Device) {
		d.mtu = mtu
	}
}

// WithHardwareVersion sets the hardware version reported to the host.
func WithHardwareVersion(hw protocol.HardwareVersion) DeviceOption {
	return func(d *Device) {
		d.hw = hw
	}
}

// WithFirmwareImages sets the image slots reported to the host.
func WithFirmwareImages(images ...protocol.FirmwareImage) DeviceOption {
	return func(d *Device) {
		d.images = images
	}
}

// NewDevice creates a Device. Without options it behaves like an nRF52832
// with a 131 byte MTU and no installed images.
func NewDevice(opts ...DeviceOption) *Device {
	d := &Device{
		mtu:             DefaultMTU,
		protocolVersion: 1,
		hw: protocol.HardwareVersion{
			Part:    0x52832,
			Variant: 0x41414230,
			Memory:  protocol.MemoryConfig{ROMSize: 0x80000, RAMSize: 0x10000, ROMPageSize: 0x1000},
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sink == nil {
		d.sink = NewSink()
	}
	return d
}

// Sink returns the object store.
func (d *Device) Sink() *Sink {
	return d.sink
}

// FailNext makes the next request with opcode op fail with result, and
// ext when result is protocol.ResultExtendedError.
func (d *Device) FailNext(op, result, ext byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, failure{op: op, result: result, ext: ext})
}

// FailAfter is FailNext, but the first n requests with opcode op are
// handled normally.
func (d *Device) FailAfter(op byte, n int, result, ext byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, failure{op: op, result: result, ext: ext, skip: n})
}

// Requests returns the opcodes received so far.
func (d *Device) Requests() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.requests...)
}

// PRN returns the notification interval the host configured.
func (d *Device) PRN() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prn
}

// Serve answers requests read from rw until it is closed.
func (d *Device) Serve(rw io.ReadWriter) error {
	dec := slip.NewDecoder(0)
	buf := make([]byte, 4096)

	for {
		n, err := rw.Read(buf)
		if n > 0 {
			frames, _ := dec.Decode(buf[:n])
			for _, f := range frames {
				resp := d.Handle(f)
				if resp == nil {
					continue
				}
				if _, werr := rw.Write(slip.Encode(resp)); werr != nil {
					if isClosed(werr) {
						return nil
					}
					return werr
				}
			}
		}
		if err != nil {
			if isClosed(err) {
				return nil
			}
			return err
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}

// Handle processes one unframed request and returns the unframed
// response, or nil when the device stays silent.
func (d *Device) Handle(req []byte) []byte {
	if len(req) == 0 {
		return nil
	}
	op := req[0]

	d.mu.Lock()
	d.requests = append(d.requests, op)
	f, failed := d.takeFailure(op)
	d.mu.Unlock()

	if failed {
		if f.result == protocol.ResultExtendedError {
			return protocol.EncodeResponse(op, f.result, []byte{f.ext})
		}
		return protocol.EncodeResponse(op, f.result, nil)
	}

	ctx := context.Background()

	switch op {
	case protocol.OpProtocolVersion:
		return success(op, []byte{d.protocolVersion})

	case protocol.OpCreateObject:
		if len(req) != 6 {
			return protocol.EncodeResponse(op, protocol.ResultInvalidParameter, nil)
		}
		err := d.sink.CreateObject(ctx, protocol.ObjectType(req[1]), binary.LittleEndian.Uint32(req[2:]))
		d.resetCount()
		return respond(op, err, nil)

	case protocol.OpSetPRN:
		if len(req) != 3 {
			return protocol.EncodeResponse(op, protocol.ResultInvalidParameter, nil)
		}
		d.mu.Lock()
		d.prn = int(binary.LittleEndian.Uint16(req[1:]))
		d.prnCount = 0
		d.mu.Unlock()
		return success(op, nil)

	case protocol.OpCalcChecksum:
		sum, err := d.sink.ChecksumObject(ctx, 0, 0)
		d.resetCount()
		return respond(op, err, encodeChecksum(sum))

	case protocol.OpExecute:
		return respond(op, d.sink.ExecuteObject(ctx), nil)

	case protocol.OpSelectObject:
		if len(req) != 2 {
			return protocol.EncodeResponse(op, protocol.ResultInvalidParameter, nil)
		}
		st, err := d.sink.SelectObject(ctx, protocol.ObjectType(req[1]))
		payload := make([]byte, protocol.SelectResponseSize)
		binary.LittleEndian.PutUint32(payload[0:], st.MaxSize)
		binary.LittleEndian.PutUint32(payload[4:], st.Offset)
		binary.LittleEndian.PutUint32(payload[8:], st.CRC)
		return respond(op, err, payload)

	case protocol.OpGetMTU:
		payload := make([]byte, 2)
		binary.LittleEndian.PutUint16(payload, d.mtu)
		return success(op, payload)

	case protocol.OpWrite:
		if err := d.sink.push(req[1:]); err != nil {
			return respond(op, err, nil)
		}
		if !d.countWrite() {
			return nil
		}
		sum, err := d.sink.notify()
		return respond(protocol.OpCalcChecksum, err, encodeChecksum(sum))

	case protocol.OpHardwareVersion:
		payload := make([]byte, protocol.HardwareVersionResponseSize)
		binary.LittleEndian.PutUint32(payload[0:], d.hw.Part)
		binary.LittleEndian.PutUint32(payload[4:], d.hw.Variant)
		binary.LittleEndian.PutUint32(payload[8:], d.hw.Memory.ROMSize)
		binary.LittleEndian.PutUint32(payload[12:], d.hw.Memory.RAMSize)
		binary.LittleEndian.PutUint32(payload[16:], d.hw.Memory.ROMPageSize)
		return success(op, payload)

	case protocol.OpFirmwareVersion:
		if len(req) != 2 {
			return protocol.EncodeResponse(op, protocol.ResultInvalidParameter, nil)
		}
		payload := make([]byte, protocol.FirmwareVersionResponseSize)
		idx := int(req[1])
		if idx >= len(d.images) {
			payload[0] = protocol.ImageTypeNone
			return success(op, payload)
		}
		img := d.images[idx]
		payload[0] = byte(img.Type)
		binary.LittleEndian.PutUint32(payload[1:], img.Version)
		binary.LittleEndian.PutUint32(payload[5:], img.Address)
		binary.LittleEndian.PutUint32(payload[9:], img.Length)
		return success(op, payload)

	case protocol.OpAbort:
		_ = d.sink.AbortObject(ctx)
		return nil

	default:
		return protocol.EncodeResponse(op, protocol.ResultOpCodeNotSupported, nil)
	}
}

// takeFailure pops the first scripted failure for op. d.mu must be held.
func (d *Device) takeFailure(op byte) (failure, bool) {
	for i, f := range d.failures {
		if f.op != op {
			continue
		}
		if f.skip > 0 {
			d.failures[i].skip--
			return failure{}, false
		}
		d.failures = append(d.failures[:i], d.failures[i+1:]...)
		return f, true
	}
	return failure{}, false
}

func (d *Device) resetCount() {
	d.mu.Lock()
	d.prnCount = 0
	d.mu.Unlock()
}

// countWrite counts one write and reports whether a notification is due.
func (d *Device) countWrite() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.prn == 0 {
		return false
	}
	d.prnCount++
	if d.prnCount < d.prn {
		return false
	}
	d.prnCount = 0
	return true
}

func success(op byte, payload []byte) []byte {
	return protocol.EncodeResponse(op, protocol.ResultSuccess, payload)
}

// respond encodes err as the bootloader would, or payload on success.
func respond(op byte, err error, payload []byte) []byte {
	if err == nil {
		return success(op, payload)
	}

	code, _ := protocol.CodeOf(err)
	switch {
	case code.IsResponse():
		return protocol.EncodeResponse(op, byte(code), nil)
	case code.IsExtended():
		return protocol.EncodeResponse(op, protocol.ResultExtendedError, []byte{byte(code)})
	case code == protocol.CodeMustHavePayload:
		return protocol.EncodeResponse(op, protocol.ResultOperationNotPermitted, nil)
	case code == protocol.CodeMoreBytesThanChunk:
		return protocol.EncodeResponse(op, protocol.ResultInsufficientResources, nil)
	case code == protocol.CodeInvalidPayloadType:
		return protocol.EncodeResponse(op, protocol.ResultUnsupportedType, nil)
	default:
		return protocol.EncodeResponse(op, protocol.ResultOperationFailed, nil)
	}
}

func encodeChecksum(sum protocol.Checksum) []byte {
	payload := make([]byte, protocol.ChecksumResponseSize)
	binary.LittleEndian.PutUint32(payload[0:], sum.Offset)
	binary.LittleEndian.PutUint32(payload[4:], sum.CRC)
	return payload
}
