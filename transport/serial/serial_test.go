package serial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	goserial "go.bug.st/serial"

	"github.com/moffa90/go-nrfdfu/dfu"
	"github.com/moffa90/go-nrfdfu/dfusim"
	"github.com/moffa90/go-nrfdfu/nrfpkg"
	"github.com/moffa90/go-nrfdfu/protocol"
	"github.com/moffa90/go-nrfdfu/slip"
)

// pipeDevice connects a Transport to a simulated bootloader.
func pipeDevice(t *testing.T, dev *dfusim.Device, opts ...Option) *Transport {
	t.Helper()
	host, target := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = dev.Serve(target)
	}()

	tr := NewWithPort(host, opts...)
	t.Cleanup(func() {
		_ = tr.Close()
		_ = target.Close()
		<-done
	})
	return tr
}

// fakePort is a goserial.Port over a net.Conn. The embedded interface
// covers the methods the transport never calls.
type fakePort struct {
	goserial.Port
	conn        net.Conn
	dtr         bool
	readTimeout time.Duration
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.conn.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.conn.Write(b) }
func (p *fakePort) Close() error                { return p.conn.Close() }

func (p *fakePort) SetDTR(dtr bool) error {
	p.dtr = dtr
	return nil
}

func (p *fakePort) SetReadTimeout(d time.Duration) error {
	p.readTimeout = d
	return nil
}

func stubPorts(t *testing.T, list func() ([]string, error), open func(string, *goserial.Mode) (goserial.Port, error)) {
	t.Helper()
	oldList, oldOpen := getPortsList, openPort
	getPortsList, openPort = list, open
	t.Cleanup(func() {
		getPortsList, openPort = oldList, oldOpen
	})
}

func TestFindPort(t *testing.T) {
	tests := []struct {
		name      string
		port      string
		ports     []string
		listErr   error
		wantPort  string
		wantErr   error
		wantPolls int
	}{
		{name: "exact", port: "/dev/ttyACM0", ports: []string{"/dev/ttyS0", "/dev/ttyACM0"}, wantPort: "/dev/ttyACM0", wantPolls: 1},
		{name: "case insensitive", port: "com3", ports: []string{"COM1", "COM3"}, wantPort: "COM3", wantPolls: 1},
		{name: "no name", port: "", wantErr: protocol.ErrNoPortSpecified, wantPolls: 0},
		{name: "missing", port: "/dev/ttyUSB9", ports: []string{"/dev/ttyS0"}, wantErr: protocol.ErrPortNotFound, wantPolls: 3},
		{name: "list fails", port: "COM3", listErr: errors.New("enumeration failed"), wantErr: protocol.ErrPortNotFound, wantPolls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			polls := 0
			stubPorts(t, func() ([]string, error) {
				polls++
				return tt.ports, tt.listErr
			}, nil)

			tr := New(tt.port, WithPortRetries(3), WithPortRetryInterval(time.Millisecond))
			got, err := tr.findPort(context.Background())

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if tt.listErr != nil && !errors.Is(err, tt.listErr) {
					t.Errorf("error does not wrap the list failure: %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantPort {
				t.Errorf("port = %q, want %q", got, tt.wantPort)
			}
			if polls != tt.wantPolls {
				t.Errorf("polls = %d, want %d", polls, tt.wantPolls)
			}
		})
	}
}

func TestFindPortCanceled(t *testing.T) {
	stubPorts(t, func() ([]string, error) { return nil, nil }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := New("COM3", WithPortRetries(10), WithPortRetryInterval(time.Hour))
	if _, err := tr.findPort(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestTransportOpensNamedPort(t *testing.T) {
	host, target := net.Pipe()
	fp := &fakePort{conn: host}

	var gotName string
	var gotMode *goserial.Mode
	stubPorts(t,
		func() ([]string, error) { return []string{"/dev/ttyS0", "COM7"}, nil },
		func(name string, mode *goserial.Mode) (goserial.Port, error) {
			gotName, gotMode = name, mode
			return fp, nil
		},
	)

	dev := dfusim.NewDevice()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = dev.Serve(target)
	}()

	tr := New("com7", WithBaudRate(230400))
	v, err := tr.ProtocolVersion(context.Background())
	if err != nil {
		t.Fatalf("ProtocolVersion: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	_ = target.Close()
	<-done

	if v != 1 {
		t.Errorf("version = %d, want 1", v)
	}
	if gotName != "COM7" {
		t.Errorf("opened %q, want COM7", gotName)
	}
	if gotMode == nil || gotMode.BaudRate != 230400 || gotMode.DataBits != 8 ||
		gotMode.Parity != goserial.NoParity || gotMode.StopBits != goserial.OneStopBit {
		t.Errorf("mode = %+v", gotMode)
	}
	if !fp.dtr {
		t.Error("DTR was not raised")
	}
	if fp.readTimeout != readPollInterval {
		t.Errorf("read timeout = %s, want %s", fp.readTimeout, readPollInterval)
	}
}

func TestTransportOpenFails(t *testing.T) {
	openErr := errors.New("permission denied")
	stubPorts(t,
		func() ([]string, error) { return []string{"COM7"}, nil },
		func(string, *goserial.Mode) (goserial.Port, error) { return nil, openErr },
	)

	tr := New("COM7")
	err := tr.Open(context.Background())
	if !errors.Is(err, openErr) {
		t.Fatalf("error = %v, want %v", err, openErr)
	}
}

func TestTransportReady(t *testing.T) {
	dev := dfusim.NewDevice(dfusim.WithFirmwareImages(
		protocol.FirmwareImage{Type: protocol.ImageTypeSoftDevice, Version: 140, Address: 0x1000, Length: 0x25000},
		protocol.FirmwareImage{Type: protocol.ImageTypeApplication, Version: 2, Address: 0x26000, Length: 0x8000},
	))
	tr := pipeDevice(t, dev)
	ctx := context.Background()

	hw, err := tr.HardwareVersion(ctx)
	if err != nil {
		t.Fatalf("HardwareVersion: %v", err)
	}
	if hw.Part != 0x52832 {
		t.Errorf("part = 0x%X, want 0x52832", hw.Part)
	}

	images, err := tr.FirmwareVersions(ctx)
	if err != nil {
		t.Fatalf("FirmwareVersions: %v", err)
	}
	if len(images) != 2 || images[0].Type != protocol.ImageTypeSoftDevice || images[1].Version != 2 {
		t.Errorf("images = %+v", images)
	}

	want := []byte{
		protocol.OpSetPRN, protocol.OpGetMTU,
		protocol.OpHardwareVersion,
		protocol.OpFirmwareVersion, protocol.OpFirmwareVersion, protocol.OpFirmwareVersion,
	}
	if got := dev.Requests(); !bytes.Equal(got, want) {
		t.Errorf("requests = % X, want % X", got, want)
	}
	if dev.PRN() != DefaultPRN {
		t.Errorf("device PRN = %d, want %d", dev.PRN(), DefaultPRN)
	}
	if got := tr.TransferUnit(); got != protocol.TransferUnit(dfusim.DefaultMTU) {
		t.Errorf("transfer unit = %d", got)
	}
}

func TestTransportReadyErrors(t *testing.T) {
	tests := []struct {
		name    string
		dev     *dfusim.Device
		opts    []Option
		wantErr error
	}{
		{name: "mtu too small", dev: dfusim.NewDevice(dfusim.WithMTU(10)), wantErr: protocol.ErrUnexpectedResponseBytes},
		{name: "prn too high", dev: dfusim.NewDevice(), opts: []Option{WithPRN(0x10000)}, wantErr: protocol.ErrPRNTooHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := pipeDevice(t, tt.dev, tt.opts...)
			if err := tr.Ready(context.Background()); !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransportReadTimeout(t *testing.T) {
	host, target := net.Pipe()
	go func() { _, _ = io.Copy(io.Discard, target) }()
	defer target.Close()

	tr := NewWithPort(host, WithReadTimeout(50*time.Millisecond))
	defer tr.Close()

	if err := tr.Ready(context.Background()); !errors.Is(err, protocol.ErrReadTimeout) {
		t.Fatalf("error = %v, want ErrReadTimeout", err)
	}
}

func TestTransportStripsLeadingEnd(t *testing.T) {
	host, target := net.Pipe()
	defer target.Close()
	tr := NewWithPort(host)
	defer tr.Close()

	errc := make(chan error, 1)
	go func() { errc <- tr.WriteCommand(context.Background(), []byte{protocol.OpSelectObject, 0xC0}) }()

	_ = target.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	n, err := target.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if want := []byte{protocol.OpSelectObject, slip.ESC, slip.ESCEND, slip.END}; !bytes.Equal(buf[:n], want) {
		t.Errorf("wire bytes = % X, want % X", buf[:n], want)
	}
	if err := <-errc; err != nil {
		t.Errorf("WriteCommand: %v", err)
	}
}

func TestTransportReaderErrors(t *testing.T) {
	ok := slip.Encode(protocol.EncodeResponse(protocol.OpExecute, protocol.ResultSuccess, nil))

	tests := []struct {
		name    string
		opts    []Option
		stream  []byte
		wantErr error
	}{
		{
			name:    "unsolicited responses",
			stream:  append(append([]byte(nil), ok...), ok...),
			wantErr: protocol.ErrDuplicateMessage,
		},
		{
			name:    "oversized frame",
			opts:    []Option{WithMaxMessageSize(4)},
			stream:  slip.Encode(make([]byte, 10)),
			wantErr: protocol.ErrMessageTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, target := net.Pipe()
			defer target.Close()
			tr := NewWithPort(host, tt.opts...)
			defer tr.Close()

			if err := tr.Open(context.Background()); err != nil {
				t.Fatalf("Open: %v", err)
			}
			go func() { _, _ = target.Write(tt.stream) }()

			deadline := time.Now().Add(time.Second)
			for {
				if err := tr.TakeError(); err != nil {
					if !errors.Is(err, tt.wantErr) {
						t.Fatalf("error = %v, want %v", err, tt.wantErr)
					}
					return
				}
				if time.Now().After(deadline) {
					t.Fatalf("no error reported, want %v", tt.wantErr)
				}
				time.Sleep(5 * time.Millisecond)
			}
		})
	}
}

func TestTransportClose(t *testing.T) {
	tr := pipeDevice(t, dfusim.NewDevice())
	ctx := context.Background()

	if err := tr.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := tr.ProtocolVersion(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("request after Close = %v, want ErrClosed", err)
	}

	if err := New("COM3").Close(); err != nil {
		t.Errorf("Close of unopened transport: %v", err)
	}
}

func TestTransportRunsOperation(t *testing.T) {
	image := make([]byte, 5000)
	for i := range image {
		image[i] = byte(i * 31)
	}
	pkg := &nrfpkg.Package{Updates: []nrfpkg.Update{
		{Name: "application", InitPacket: bytes.Repeat([]byte{0xC0, 0xDB}, 70), FirmwareImage: image},
	}}

	sink := dfusim.NewSink()
	tr := pipeDevice(t, dfusim.NewDevice(dfusim.WithSink(sink)))

	if err := dfu.NewOperation(pkg, tr).Start(context.Background(), false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := sink.Data(protocol.ObjectCommand); !bytes.Equal(got, pkg.Updates[0].InitPacket) {
		t.Error("command object differs from init packet")
	}
	if got := sink.Data(protocol.ObjectData); !bytes.Equal(got, image) {
		t.Error("data object differs from image")
	}
	if got := sink.Executed(protocol.ObjectData); got != len(image) {
		t.Errorf("executed = %d, want %d", got, len(image))
	}
}

func TestListPorts(t *testing.T) {
	stubPorts(t, func() ([]string, error) { return []string{"COM1"}, nil }, nil)

	ports, err := ListPorts()
	if err != nil || len(ports) != 1 || ports[0] != "COM1" {
		t.Errorf("ListPorts = %v, %v", ports, err)
	}
}
