package dfu

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/moffa90/go-nrfdfu/dfusim"
	"github.com/moffa90/go-nrfdfu/nrfpkg"
	"github.com/moffa90/go-nrfdfu/protocol"
)

func testPackage() *nrfpkg.Package {
	return &nrfpkg.Package{Updates: []nrfpkg.Update{
		{Name: "softdevice_bootloader", InitPacket: []byte("init sd+bl"), FirmwareImage: bytes.Repeat([]byte{0x11}, 300)},
		{Name: "application", InitPacket: []byte("init app"), FirmwareImage: bytes.Repeat([]byte{0x22}, 77)},
	}}
}

func TestOperationSendsAllUpdates(t *testing.T) {
	sink := dfusim.NewSink(dfusim.WithMaxObjectSize(protocol.ObjectData, 128))
	pkg := testPackage()

	var progress []Progress
	op := NewOperation(pkg, sink, WithProgressCallback(func(p Progress) {
		progress = append(progress, p)
	}))

	if err := op.Start(context.Background(), true); err != nil {
		t.Fatalf("Start: %v", err)
	}

	last := pkg.Updates[1]
	if got := sink.Data(protocol.ObjectCommand); !bytes.Equal(got, last.InitPacket) {
		t.Errorf("command object = %q, want %q", got, last.InitPacket)
	}
	if got := sink.Data(protocol.ObjectData); !bytes.Equal(got, last.FirmwareImage) {
		t.Errorf("data object differs from the last firmware image")
	}

	restarts := 0
	for _, c := range sink.Calls() {
		if c.Op == protocol.OpCreateObject && c.Type == protocol.ObjectCommand && c.Size == protocol.RestartObjectSize {
			restarts++
		}
	}
	if restarts != len(pkg.Updates) {
		t.Errorf("restarts = %d, want %d", restarts, len(pkg.Updates))
	}

	seen := map[int]string{}
	for _, p := range progress {
		if p.UpdateCount != len(pkg.Updates) {
			t.Fatalf("progress UpdateCount = %d, want %d", p.UpdateCount, len(pkg.Updates))
		}
		seen[p.UpdateIndex] = p.UpdateName
	}
	if seen[0] != "softdevice_bootloader" || seen[1] != "application" || len(seen) != 2 {
		t.Errorf("progress updates = %v", seen)
	}
}

func TestOperationResumes(t *testing.T) {
	u := nrfpkg.Update{Name: "application", InitPacket: []byte("init app"), FirmwareImage: bytes.Repeat([]byte{0x33}, 300)}

	sink := dfusim.NewSink()
	sink.Preload(protocol.ObjectCommand, u.InitPacket, len(u.InitPacket))
	sink.Preload(protocol.ObjectData, u.FirmwareImage[:100], 0)

	op := NewOperation(&nrfpkg.Package{Updates: []nrfpkg.Update{u}}, sink)
	if err := op.Start(context.Background(), false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := sink.Count(protocol.OpWrite); got != 1 {
		t.Errorf("writes = %d, want 1", got)
	}
	calls := sink.Calls()
	for _, c := range calls {
		if c.Op == protocol.OpWrite && !bytes.Equal(c.Data, u.FirmwareImage[100:]) {
			t.Errorf("resumed write sent %d bytes, want the last 200", len(c.Data))
		}
	}
	if got := sink.Data(protocol.ObjectData); !bytes.Equal(got, u.FirmwareImage) {
		t.Errorf("data object differs from firmware image")
	}
}

// failingTransport fails data object creation of one size.
type failingTransport struct {
	*dfusim.Sink
	size uint32
	err  error
}

func (f failingTransport) CreateObject(ctx context.Context, typ protocol.ObjectType, size uint32) error {
	if typ == protocol.ObjectData && size == f.size {
		return f.err
	}
	return f.Sink.CreateObject(ctx, typ, size)
}

func TestOperationReportsFailedUpdate(t *testing.T) {
	boom := errors.New("link lost")
	tr := failingTransport{Sink: dfusim.NewSink(), size: 77, err: boom}

	op := NewOperation(testPackage(), tr)
	err := op.Start(context.Background(), true)

	var ue *UpdateError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UpdateError", err)
	}
	if ue.Index != 1 || ue.Name != "application" {
		t.Errorf("UpdateError = index %d name %q, want 1 application", ue.Index, ue.Name)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error does not wrap the transport failure: %v", err)
	}
	if !strings.HasPrefix(err.Error(), "update 1 (application) failed: ") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestOperationStartsOnce(t *testing.T) {
	sink := dfusim.NewSink()
	op := NewOperation(testPackage(), sink)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = op.Start(ctx, true)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Start %d: %v", i, err)
		}
	}

	n := len(sink.Calls())
	if err := op.Start(ctx, true); err != nil {
		t.Errorf("Start after completion: %v", err)
	}
	if got := len(sink.Calls()); got != n {
		t.Errorf("calls after second Start = %d, want %d", got, n)
	}
}

func TestUpdateErrorWithoutName(t *testing.T) {
	err := &UpdateError{Index: 2, Err: protocol.ErrReadTimeout}
	if got := err.Error(); !strings.HasPrefix(got, "update 2 failed:") {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, protocol.ErrReadTimeout) {
		t.Error("UpdateError does not unwrap")
	}
}
