package dfu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-nrfdfu/protocol"
)

// Transfer sends init packets and firmware images through a Transport.
// It resumes an interrupted transfer when the device state permits and
// resends corrupted chunks.
//
// A Transfer is not safe for concurrent use.
type Transfer struct {
	transport Transport
	config    Config
}

// NewTransfer creates a Transfer over t.
//
// Example:
//
//	x := dfu.NewTransfer(transport,
//	    dfu.WithLogger(logger),
//	    dfu.WithMaxRetries(3),
//	)
//	if err := x.SendInitPacket(ctx, update.InitPacket); err != nil {
//	    return err
//	}
//	return x.SendFirmwareImage(ctx, update.FirmwareImage)
func NewTransfer(t Transport, opts ...Option) *Transfer {
	if t == nil {
		panic("transport cannot be nil")
	}
	return &Transfer{transport: t, config: newConfig(opts)}
}

// payload is the state of one SendPayload call.
type payload struct {
	typ     protocol.ObjectType
	data    []byte
	chunk   uint32
	started time.Time
}

type chunkResult int

const (
	chunkDone chunkResult = iota
	chunkRetry
	chunkFailed
)

// SendInitPacket sends data as the command object.
func (x *Transfer) SendInitPacket(ctx context.Context, data []byte) error {
	return x.SendPayload(ctx, protocol.ObjectCommand, data)
}

// SendFirmwareImage sends data as the data object.
func (x *Transfer) SendFirmwareImage(ctx context.Context, data []byte) error {
	return x.SendPayload(ctx, protocol.ObjectData, data)
}

// SendPayload sends data as an object of typ, continuing a previous
// transfer when the device already holds a matching prefix.
//
// The device state reported by select decides what is sent:
//   - offset 0: everything, from the first chunk
//   - CRC of the first offset bytes differs: nothing, the transfer fails
//     with protocol.ErrPreDFUInterrupted and must be restarted
//   - offset == len(data): nothing, the object is executed once more
//   - offset on a chunk boundary: the object is executed once more, then
//     the transfer continues at offset
//   - otherwise: the rest of the current chunk, then the remaining chunks
func (x *Transfer) SendPayload(ctx context.Context, typ protocol.ObjectType, data []byte) error {
	if !typ.Valid() {
		return &protocol.Error{Code: protocol.CodeInvalidPayloadType, Detail: fmt.Sprintf("got 0x%02X", byte(typ))}
	}

	p := &payload{typ: typ, data: data, started: time.Now()}
	total := uint32(len(data))
	reexecuted := false

	for {
		x.progress(p, PhaseSelecting, 0)

		var st protocol.ObjectStatus
		err := x.check(func() (err error) {
			st, err = x.transport.SelectObject(ctx, typ)
			return err
		})
		if err != nil {
			return fmt.Errorf("select %s object: %w", typ, err)
		}
		if st.MaxSize == 0 {
			return &protocol.Error{Code: protocol.CodeUnexpectedResponseBytes, Detail: "(select) device reported a zero object size"}
		}
		p.chunk = st.MaxSize

		x.config.logInfo("selected object",
			"type", typ.String(),
			"offset", st.Offset,
			"crc", fmt.Sprintf("0x%08X", st.CRC),
			"max_size", st.MaxSize,
			"length", total,
		)

		if st.Offset == 0 {
			end := min(total, p.chunk)
			if err := x.create(ctx, typ, end); err != nil {
				return err
			}
			return x.sendChunks(ctx, p, 0, end, 0)
		}

		if st.Offset > total {
			return &protocol.Error{
				Code:   protocol.CodeUnexpectedBytes,
				Detail: fmt.Sprintf("(device holds %d bytes of a %d byte %s payload)", st.Offset, total, typ),
			}
		}

		if crc := protocol.CRC32(data[:st.Offset]); crc != st.CRC {
			x.config.logError("cannot resume transfer",
				"type", typ.String(),
				"offset", st.Offset,
				"local_crc", fmt.Sprintf("0x%08X", crc),
				"device_crc", fmt.Sprintf("0x%08X", st.CRC),
			)
			return &protocol.Error{
				Code:   protocol.CodePreDFUInterrupted,
				Detail: fmt.Sprintf("(%s offset %d: local crc 0x%08X, device crc 0x%08X)", typ, st.Offset, crc, st.CRC),
			}
		}

		if st.Offset == total {
			x.config.logInfo("payload already transferred", "type", typ.String(), "length", total)
			if err := x.execute(ctx, typ); err != nil {
				return err
			}
			x.progress(p, PhaseComplete, total)
			return nil
		}

		x.progress(p, PhaseResuming, st.Offset)

		rem := st.Offset % p.chunk
		if rem == 0 && !reexecuted {
			// The device may not have processed the execute for the
			// previous chunk. Executing twice is a no-op.
			if err := x.execute(ctx, typ); err != nil {
				return err
			}
			reexecuted = true
			continue
		}

		end := min(total, st.Offset+p.chunk-rem)
		if rem == 0 {
			if err := x.create(ctx, typ, end-st.Offset); err != nil {
				return err
			}
		}
		x.config.logInfo("resuming transfer", "type", typ.String(), "offset", st.Offset, "chunk_end", end)
		return x.sendChunks(ctx, p, st.Offset, end, st.CRC)
	}
}

// sendChunks sends data[start:end], whose object already exists, and
// then every following chunk. crc is the CRC32 of data[:start].
func (x *Transfer) sendChunks(ctx context.Context, p *payload, start, end, crc uint32) error {
	total := uint32(len(p.data))

	for {
		crcAtEnd, err := x.sendChunk(ctx, p, start, end, crc)
		if err != nil {
			return err
		}
		if err := x.execute(ctx, p.typ); err != nil {
			return err
		}
		x.progress(p, PhaseTransferring, end)

		if end >= total {
			x.config.logInfo("payload transferred",
				"type", p.typ.String(),
				"length", total,
				"elapsed", time.Since(p.started).String(),
			)
			x.progress(p, PhaseComplete, end)
			return nil
		}

		next := min(total, end+p.chunk)
		if err := x.create(ctx, p.typ, next-end); err != nil {
			return err
		}
		start, end, crc = end, next, crcAtEnd
	}
}

// sendChunk writes data[start:end] and verifies it, resending the whole
// chunk from its aligned start on a mismatch. It returns the CRC32 of
// data[:end].
func (x *Transfer) sendChunk(ctx context.Context, p *payload, start, end, crcSoFar uint32) (uint32, error) {
	for attempt := 0; ; attempt++ {
		crc, result, err := x.tryChunk(ctx, p, start, end, crcSoFar)
		switch result {
		case chunkDone:
			return crc, nil
		case chunkFailed:
			return 0, err
		}

		if attempt >= x.config.MaxRetries {
			x.config.logError("giving up on chunk",
				"type", p.typ.String(),
				"start", start,
				"end", end,
				"attempts", attempt+1,
				"error", err,
			)
			return 0, &protocol.Error{
				Code:   protocol.CodeTooManyWriteFailures,
				Detail: fmt.Sprintf("(%s bytes %d-%d, %d attempts)", p.typ, start, end, attempt+1),
				Err:    err,
			}
		}

		start -= start % p.chunk
		crcSoFar = protocol.CRC32(p.data[:start])

		x.config.logInfo("retrying chunk",
			"type", p.typ.String(),
			"attempt", attempt+1,
			"start", start,
			"end", end,
			"error", err,
		)

		if err := x.create(ctx, p.typ, end-start); err != nil {
			return 0, err
		}
	}
}

// tryChunk makes one attempt at data[start:end].
func (x *Transfer) tryChunk(ctx context.Context, p *payload, start, end, crcSoFar uint32) (uint32, chunkResult, error) {
	want := protocol.UpdateCRC32(crcSoFar, p.data[start:end])

	x.config.logDebug("sending chunk", "type", p.typ.String(), "start", start, "end", end)

	err := x.check(func() error {
		_, err := x.transport.WriteObject(ctx, p.data[start:end], crcSoFar, start)
		return err
	})
	if err != nil {
		var mismatch *protocol.ChecksumMismatchError
		if errors.As(err, &mismatch) {
			return 0, chunkRetry, err
		}
		return 0, chunkFailed, fmt.Errorf("write %s object at offset %d: %w", p.typ, start, err)
	}

	var got protocol.Checksum
	err = x.check(func() (err error) {
		got, err = x.transport.ChecksumObject(ctx, end, want)
		return err
	})
	if err != nil {
		return 0, chunkFailed, fmt.Errorf("checksum %s object: %w", p.typ, err)
	}

	if got.Offset != end {
		return 0, chunkRetry, &protocol.Error{
			Code:   protocol.CodeUnexpectedBytes,
			Detail: fmt.Sprintf("(device reports offset %d, expected %d)", got.Offset, end),
		}
	}
	if got.CRC != want {
		return 0, chunkRetry, &protocol.ChecksumMismatchError{
			ExpectedOffset: end,
			ActualOffset:   got.Offset,
			Expected:       want,
			Actual:         got.CRC,
		}
	}
	return want, chunkDone, nil
}

// Restart discards any resumable state by creating an empty command object.
func (x *Transfer) Restart(ctx context.Context) error {
	x.config.logInfo("discarding previous transfer state")
	return x.create(ctx, protocol.ObjectCommand, protocol.RestartObjectSize)
}

// Abort asks the device to leave DFU mode.
func (x *Transfer) Abort(ctx context.Context) error {
	return x.check(func() error {
		return x.transport.AbortObject(ctx)
	})
}

func (x *Transfer) create(ctx context.Context, typ protocol.ObjectType, size uint32) error {
	err := x.check(func() error {
		return x.transport.CreateObject(ctx, typ, size)
	})
	if err != nil {
		return fmt.Errorf("create %s object of %d bytes: %w", typ, size, err)
	}
	return nil
}

func (x *Transfer) execute(ctx context.Context, typ protocol.ObjectType) error {
	err := x.check(func() error {
		return x.transport.ExecuteObject(ctx)
	})
	if err != nil {
		return fmt.Errorf("execute %s object: %w", typ, err)
	}
	return nil
}

// check runs fn between two looks at the transport's out-of-band error
// slot, so an error seen by a background reader is never lost.
func (x *Transfer) check(fn func() error) error {
	src, _ := x.transport.(ErrorSource)
	if src != nil {
		if err := src.TakeError(); err != nil {
			return err
		}
	}

	err := fn()

	if src != nil {
		if late := src.TakeError(); late != nil {
			if err == nil {
				return late
			}
			return errors.Join(err, late)
		}
	}
	return err
}

func (x *Transfer) progress(p *payload, phase string, sent uint32) {
	total := len(p.data)
	percentage := 100.0
	if total > 0 {
		percentage = float64(sent) / float64(total) * 100
	}
	x.config.reportProgress(Progress{
		Phase:       phase,
		ObjectType:  p.typ,
		BytesSent:   int(sent),
		TotalBytes:  total,
		Percentage:  percentage,
		ElapsedTime: time.Since(p.started),
	})
}
