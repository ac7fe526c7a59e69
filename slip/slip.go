// Package slip implements SLIP (RFC 1055) framing as used by the nRF
// serial DFU bootloader.
//
// Encode wraps a message between END bytes and escapes END and ESC
// inside it. Decoder consumes an arbitrarily chunked byte stream and
// returns each complete message.
package slip

import (
	"fmt"

	"github.com/moffa90/go-nrfdfu/protocol"
)

// Reserved octets.
const (
	END    = 0xC0
	ESC    = 0xDB
	ESCEND = 0xDC
	ESCESC = 0xDD
)

// DefaultMaxMessageSize bounds the decoder buffer.
const DefaultMaxMessageSize = 10 * 1024 * 1024

// Encode frames msg as END, escaped msg, END.
func Encode(msg []byte) []byte {
	out := make([]byte, 0, len(msg)+2+len(msg)/8)
	out = append(out, END)
	for _, b := range msg {
		switch b {
		case END:
			out = append(out, ESC, ESCEND)
		case ESC:
			out = append(out, ESC, ESCESC)
		default:
			out = append(out, b)
		}
	}
	return append(out, END)
}

// Decoder reassembles messages from a SLIP stream. It is not safe for
// concurrent use.
type Decoder struct {
	buf        []byte
	escape     bool
	discarding bool
	max        int
}

// NewDecoder returns a decoder that rejects messages longer than max
// bytes. A max of 0 means DefaultMaxMessageSize.
func NewDecoder(max int) *Decoder {
	if max <= 0 {
		max = DefaultMaxMessageSize
	}
	return &Decoder{max: max}
}

// Decode consumes p and returns the messages it completed, in order.
// Empty messages are not returned.
//
// When a message grows past the limit, its bytes are dropped up to the
// next END and Decode returns an error wrapping protocol.ErrMessageTooLarge
// along with any messages completed in p. Decoding continues normally
// on the next call.
func (d *Decoder) Decode(p []byte) ([][]byte, error) {
	var (
		msgs [][]byte
		err  error
	)

	for _, b := range p {
		if b == END {
			if !d.discarding && len(d.buf) > 0 {
				msg := make([]byte, len(d.buf))
				copy(msg, d.buf)
				msgs = append(msgs, msg)
			}
			d.reset()
			continue
		}
		if d.discarding {
			continue
		}

		if d.escape {
			d.escape = false
			switch b {
			case ESCEND:
				b = END
			case ESCESC:
				b = ESC
			}
		} else if b == ESC {
			d.escape = true
			continue
		}

		if len(d.buf) >= d.max {
			err = &protocol.Error{
				Code:   protocol.CodeMessageTooLarge,
				Detail: fmt.Sprintf("limit is %d bytes", d.max),
			}
			d.reset()
			d.discarding = true
			continue
		}
		d.buf = append(d.buf, b)
	}

	return msgs, err
}

// Buffered returns the number of bytes of the message in progress.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) reset() {
	d.buf = d.buf[:0]
	d.escape = false
	d.discarding = false
}
