package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	goserial "go.bug.st/serial"

	"github.com/moffa90/go-nrfdfu/dfu"
	"github.com/moffa90/go-nrfdfu/protocol"
	"github.com/moffa90/go-nrfdfu/slip"
)

// ErrClosed is returned for requests on a closed Transport.
var ErrClosed = errors.New("serial transport closed")

// readPollInterval bounds a blocking port read so the reader notices Close.
const readPollInterval = 100 * time.Millisecond

// Replaced in tests.
var (
	getPortsList = goserial.GetPortsList
	openPort     = func(name string, mode *goserial.Mode) (goserial.Port, error) {
		return goserial.Open(name, mode)
	}
)

// Transport is a DFU transport over a serial port. The embedded Exchange
// provides the dfu.Transport methods.
//
// The port is opened on first use. Responses are read by a background
// goroutine; errors it sees are reported by the next request.
type Transport struct {
	*dfu.Exchange

	config Config
	name   string
	opener func(ctx context.Context) (io.ReadWriteCloser, error)

	readyMu   sync.Mutex
	readyPort io.ReadWriteCloser

	mu     sync.Mutex
	port   io.ReadWriteCloser
	done   chan struct{}
	closed bool
}

// New creates a Transport for the named port, e.g. "/dev/ttyACM0" or "COM3".
//
// Example:
//
//	port := serial.New("/dev/ttyACM0", serial.WithPRN(8))
//	defer port.Close()
//
//	hw, err := port.HardwareVersion(ctx)
func New(portName string, opts ...Option) *Transport {
	t := newTransport(opts)
	t.name = portName
	t.opener = t.openSerial
	return t
}

// NewWithPort creates a Transport over an already open stream, such as a
// USB CDC device or a net.Conn to a simulator. Close closes rwc.
func NewWithPort(rwc io.ReadWriteCloser, opts ...Option) *Transport {
	if rwc == nil {
		panic("port cannot be nil")
	}
	t := newTransport(opts)
	t.name = "stream"
	used := false
	t.opener = func(context.Context) (io.ReadWriteCloser, error) {
		if used {
			return nil, ErrClosed
		}
		used = true
		return rwc, nil
	}
	return t
}

func newTransport(opts []Option) *Transport {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	t := &Transport{config: cfg}
	t.Exchange = dfu.NewExchange(t,
		dfu.WithPRN(cfg.PRN),
		dfu.WithReadTimeout(cfg.ReadTimeout),
		dfu.WithLogger(cfg.Logger),
	)
	return t
}

// ListPorts returns the names of the serial ports on the system.
func ListPorts() ([]string, error) {
	return getPortsList()
}

// Open opens the port if it is not open yet. Requests open it as needed.
func (t *Transport) Open(ctx context.Context) error {
	_, err := t.connect(ctx)
	return err
}

// Ready implements dfu.Link. It negotiates the PRN interval and the
// transfer unit once per opened port.
func (t *Transport) Ready(ctx context.Context) error {
	t.readyMu.Lock()
	defer t.readyMu.Unlock()

	port, err := t.connect(ctx)
	if err != nil {
		return err
	}
	if t.readyPort == port {
		return nil
	}

	cmd, err := protocol.BuildSetPRNCmd(t.config.PRN)
	if err != nil {
		return err
	}
	if _, err := t.Request(ctx, cmd, protocol.OpSetPRN, 0); err != nil {
		return fmt.Errorf("set PRN: %w", err)
	}

	data, err := t.Request(ctx, protocol.BuildGetMTUCmd(), protocol.OpGetMTU, protocol.MTUResponseSize)
	if err != nil {
		return fmt.Errorf("get MTU: %w", err)
	}
	mtu, err := protocol.ParseMTUResponse(data)
	if err != nil {
		return err
	}
	if err := t.SetTransferUnit(mtu); err != nil {
		return err
	}

	t.config.logInfo("serial transport ready", "port", t.name, "prn", t.config.PRN, "mtu", mtu)
	t.readyPort = port
	return nil
}

// WriteCommand implements dfu.Link.
func (t *Transport) WriteCommand(ctx context.Context, cmd []byte) error {
	port, err := t.connect(ctx)
	if err != nil {
		return err
	}
	// Some bootloaders read a leading END as an empty frame and answer it.
	frame := slip.Encode(cmd)[1:]
	t.config.logDebug("sending frame", "op", protocol.OpcodeName(cmd[0]), "len", len(frame))
	if _, err := port.Write(frame); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// WriteData implements dfu.Link.
func (t *Transport) WriteData(ctx context.Context, data []byte) error {
	return t.WriteCommand(ctx, protocol.BuildWriteCmd(data))
}

// Close stops the reader and closes the port. It is safe to call more
// than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	port, done := t.port, t.done
	t.port = nil
	t.mu.Unlock()

	if port == nil {
		return nil
	}
	err := port.Close()
	<-done
	t.config.logInfo("closed serial port", "port", t.name)
	return err
}

func (t *Transport) connect(ctx context.Context) (io.ReadWriteCloser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	if t.port != nil {
		return t.port, nil
	}

	port, err := t.opener(ctx)
	if err != nil {
		return nil, err
	}
	t.Reset()
	t.port = port
	t.done = make(chan struct{})
	go t.readLoop(port, t.done)
	return port, nil
}

func (t *Transport) openSerial(ctx context.Context) (io.ReadWriteCloser, error) {
	name, err := t.findPort(ctx)
	if err != nil {
		return nil, err
	}

	mode := &goserial.Mode{
		BaudRate: t.config.BaudRate,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	}
	p, err := openPort(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := p.SetDTR(true); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set DTR on %s: %w", name, err)
	}
	if err := p.SetReadTimeout(readPollInterval); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}

	t.config.logInfo("opened serial port", "port", name, "baud", t.config.BaudRate)
	return p, nil
}

// findPort polls the port list for t.name, ignoring case.
func (t *Transport) findPort(ctx context.Context) (string, error) {
	if t.name == "" {
		return "", protocol.ErrNoPortSpecified
	}

	var lastErr error
	for attempt := 0; attempt < max(t.config.PortRetries, 1); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(t.config.PortRetryInterval):
			}
		}

		ports, err := getPortsList()
		if err != nil {
			lastErr = err
			continue
		}
		for _, p := range ports {
			if strings.EqualFold(p, t.name) {
				return p, nil
			}
		}
		t.config.logDebug("waiting for serial port", "port", t.name, "attempt", attempt+1)
	}

	return "", &protocol.Error{Code: protocol.CodePortNotFound, Detail: fmt.Sprintf("(%s)", t.name), Err: lastErr}
}

// readLoop decodes frames from port until it fails or is closed.
func (t *Transport) readLoop(port io.ReadWriteCloser, done chan struct{}) {
	defer close(done)

	dec := slip.NewDecoder(t.config.MaxMessageSize)
	buf := make([]byte, 1024)

	for {
		n, err := port.Read(buf)
		if n > 0 {
			frames, derr := dec.Decode(buf[:n])
			if derr != nil {
				t.config.logError("dropping response frame", "error", derr)
				t.SetError(derr)
			}
			for _, f := range frames {
				if err := t.Deliver(f); err != nil {
					t.config.logError("unexpected response frame", "error", err)
					t.SetError(err)
				}
			}
		}
		if err != nil {
			if t.stopped(port) {
				return
			}
			t.config.logError("serial read failed", "port", t.name, "error", err)
			t.SetError(fmt.Errorf("serial read: %w", err))
			t.drop(port)
			return
		}
	}
}

// stopped reports whether port was closed by Close.
func (t *Transport) stopped(port io.ReadWriteCloser) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed || t.port != port
}

// drop closes a failed port so the next request reopens it.
func (t *Transport) drop(port io.ReadWriteCloser) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == port {
		t.port = nil
		_ = port.Close()
	}
}
