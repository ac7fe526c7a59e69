// Package serial implements a DFU transport over a serial port.
//
// Requests and responses are SLIP framed. On first use the transport
// opens the port (waiting for it to enumerate), raises DTR, and
// negotiates the packet receipt notification interval and the MTU.
//
//	port := serial.New("/dev/ttyACM0")
//	defer port.Close()
//
//	op := dfu.NewOperation(pkg, port)
//	err := op.Start(ctx, false)
//
// Ports are opened with go.bug.st/serial at 8N1.
package serial
