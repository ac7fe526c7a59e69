// Command nrfdfu sends a DFU package to an nRF5 serial bootloader.
//
// Usage:
//
//	nrfdfu -port /dev/ttyACM0 app_dfu_package.zip
//	nrfdfu -port COM3 -info
//	nrfdfu -list-ports
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anacrolix/tagflag"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/moffa90/go-nrfdfu/dfu"
	"github.com/moffa90/go-nrfdfu/logging"
	"github.com/moffa90/go-nrfdfu/nrfpkg"
	"github.com/moffa90/go-nrfdfu/transport/serial"
)

var flags = struct {
	Port      string        `help:"serial port of the bootloader, e.g. /dev/ttyACM0 or COM3"`
	Prn       int           `help:"packet receipt notification interval, 0 disables it"`
	Baud      int           `help:"baud rate"`
	Timeout   time.Duration `help:"how long to wait for each response"`
	Force     bool          `help:"discard an interrupted transfer instead of resuming it"`
	Yes       bool          `help:"start without waiting for Enter"`
	Info      bool          `help:"print bootloader and installed firmware versions"`
	ListPorts bool          `help:"list serial ports and exit"`
	Verbose   bool          `help:"log protocol details"`
	tagflag.StartPos
	Package string `arity:"?" help:"DFU package (.zip)"`
}{
	Prn:     serial.DefaultPRN,
	Baud:    serial.DefaultBaudRate,
	Timeout: dfu.DefaultReadTimeout,
}

func main() {
	if err := mainErr(); err != nil {
		var ue *dfu.UpdateError
		if errors.As(err, &ue) {
			fmt.Fprintf(os.Stderr, "nrfdfu: update %d of the package failed\n", ue.Index+1)
		}
		fmt.Fprintf(os.Stderr, "nrfdfu: %v\n", err)
		os.Exit(1)
	}
}

func mainErr() error {
	tagflag.Parse(&flags)

	if flags.ListPorts {
		ports, err := serial.ListPorts()
		if err != nil {
			return fmt.Errorf("list ports: %w", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	if flags.Package == "" && !flags.Info {
		return errors.New("no DFU package given")
	}

	logger, err := newLogger(flags.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logging.NewZap(logger)

	var pkg *nrfpkg.Package
	if flags.Package != "" {
		pkg, err = nrfpkg.Parse(flags.Package)
		if err != nil {
			return fmt.Errorf("read %s: %w", flags.Package, err)
		}
		for i, u := range pkg.Updates {
			fmt.Printf("update %d: %s (%d byte init packet, %d byte image)\n",
				i+1, u.Name, len(u.InitPacket), len(u.FirmwareImage))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := serial.New(flags.Port,
		serial.WithBaudRate(flags.Baud),
		serial.WithPRN(flags.Prn),
		serial.WithReadTimeout(flags.Timeout),
		serial.WithLogger(log),
	)
	defer func() { _ = port.Close() }()

	if err := port.Open(ctx); err != nil {
		return err
	}

	if flags.Info {
		if err := printInfo(ctx, port); err != nil {
			return err
		}
	}
	if pkg == nil {
		return nil
	}

	if !flags.Yes && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Press Enter to start")
		if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
			return err
		}
	}

	bar := progressbar.NewOptions(pkg.TotalBytes(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Updating"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)
	tracker := newTracker(pkg, bar)

	op := dfu.NewOperation(pkg, port,
		dfu.WithLogger(log),
		dfu.WithProgressCallback(tracker.update),
	)

	start := time.Now()
	if err := run(ctx, op, port, flags.Force); err != nil {
		return err
	}
	fmt.Printf("Update completed in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// run starts op and closes port when ctx is canceled, so a blocked
// write returns.
func run(ctx context.Context, op *dfu.Operation, port io.Closer, force bool) error {
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		return op.Start(gctx, force)
	})
	g.Go(func() error {
		select {
		case <-done:
			return nil
		case <-gctx.Done():
			_ = port.Close()
			return gctx.Err()
		}
	})
	return g.Wait()
}

func printInfo(ctx context.Context, port *serial.Transport) error {
	version, err := port.ProtocolVersion(ctx)
	if err != nil {
		return fmt.Errorf("protocol version: %w", err)
	}
	hw, err := port.HardwareVersion(ctx)
	if err != nil {
		return fmt.Errorf("hardware version: %w", err)
	}
	images, err := port.FirmwareVersions(ctx)
	if err != nil {
		return fmt.Errorf("firmware versions: %w", err)
	}

	fmt.Printf("Protocol version: %d\n", version)
	fmt.Printf("Hardware: part 0x%X, variant 0x%08X\n", hw.Part, hw.Variant)
	fmt.Printf("Memory: %d KiB ROM, %d KiB RAM, %d byte pages\n",
		hw.Memory.ROMSize/1024, hw.Memory.RAMSize/1024, hw.Memory.ROMPageSize)
	for i, img := range images {
		fmt.Printf("Image %d: %s version %d at 0x%08X, %d bytes\n",
			i, img.Type, img.Version, img.Address, img.Length)
	}
	return nil
}
