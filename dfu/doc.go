// Package dfu sends Nordic Secure DFU packages to a device.
//
// # Overview
//
// A package is a list of updates, each an init packet (the command
// object) followed by a firmware image (the data object). Both objects
// are sent the same way:
//   - Select the object to learn the device's chunk size and what it
//     already holds
//   - Resume from that state when the held bytes match, or start over
//   - For each chunk: create, write, checksum, execute
//   - Resend a chunk whose checksum or offset does not match, up to
//     MaxRetries times
//
// # Layers
//
// Transfer implements the per-object state machine over a Transport.
// Operation runs a Transfer for every update of an nrfpkg.Package.
// Exchange adapts a framed byte link (see transport/serial) into a
// Transport, pairing requests with responses and checking packet
// receipt notifications. dfusim provides in-memory transports for tests.
//
// # Basic Usage
//
//	pkg, err := nrfpkg.Parse("app_dfu_package.zip")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	port := serial.New("/dev/ttyACM0")
//	defer port.Close()
//
//	op := dfu.NewOperation(pkg, port)
//	if err := op.Start(context.Background(), false); err != nil {
//	    log.Fatal(err)
//	}
//
// # Progress Tracking
//
//	op := dfu.NewOperation(pkg, port,
//	    dfu.WithProgressCallback(func(p dfu.Progress) {
//	        fmt.Printf("[%s] %s %.1f%%\n", p.UpdateName, p.ObjectType, p.Percentage)
//	    }),
//	)
//
// # Resuming
//
// An interrupted update continues where it stopped when the same package
// is sent again. If the device holds bytes that do not match the
// payload, the transfer fails with protocol.ErrPreDFUInterrupted; pass
// forceful to Operation.Start to discard the device state first.
//
// # Error Handling
//
// Operation failures are *UpdateError values naming the update. The
// underlying cause is a *protocol.Error (match with errors.Is against
// the protocol.Err* sentinels) or a transport I/O error.
//
//	var ue *dfu.UpdateError
//	if errors.As(err, &ue) {
//	    log.Printf("%s failed", ue.Name)
//	}
//	if errors.Is(err, protocol.ErrTooManyWriteFailures) {
//	    // the link is too noisy
//	}
package dfu
