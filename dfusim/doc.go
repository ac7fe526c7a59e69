// Package dfusim provides simulated DFU targets for tests and demos.
//
// Sink is an in-memory object store that implements dfu.Transport, so a
// dfu.Transfer can run against it without any wire protocol. Device wraps
// a Sink and speaks the serial protocol over any io.ReadWriter:
//
//	host, target := net.Pipe()
//	dev := dfusim.NewDevice()
//	go dev.Serve(target)
//
//	t := serial.NewWithPort(host)
//	defer t.Close()
//
// Both support fault injection (CorruptChecksums, FailNext) and
// preloading state left by an interrupted transfer (Preload).
package dfusim
