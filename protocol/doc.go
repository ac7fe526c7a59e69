// Package protocol implements the wire format of the Nordic Secure DFU
// serial protocol used by nRF5 bootloaders.
//
// This package is pure: it builds request frames, parses response frames
// and defines the error taxonomy. It does no I/O. Framing on the wire
// (SLIP) is handled by package slip, and the transfer logic by package dfu.
//
// # Protocol Overview
//
// Every request starts with an opcode byte followed by little-endian fields:
//
//	Request:  [OPCODE][FIELDS...]
//	Response: [0x60][OPCODE][RESULT][PAYLOAD...]
//
// RESULT 0x01 means success. Other values are device errors; 0x0B means
// the next byte carries an extended error code.
//
// # Command Builders
//
//	cmd, err := protocol.BuildCreateObjectCmd(protocol.ObjectData, 4096)
//	cmd, err := protocol.BuildSetPRNCmd(16)
//	cmd := protocol.BuildCalcChecksumCmd()
//
// # Response Parsers
//
//	pkt, err := protocol.ParseResponse(frame)
//	data, err := pkt.Assert(protocol.OpSelectObject, protocol.SelectResponseSize)
//	status, err := protocol.ParseSelectResponse(data)
//
// # Error Handling
//
// All failures are *protocol.Error values with a closed set of codes.
// Use errors.Is with the exported sentinels, or CodeOf:
//
//	if errors.Is(err, protocol.ErrReadTimeout) {
//	    // device did not answer in time
//	}
//	if protocol.IsExtendedError(err) {
//	    code, _ := protocol.CodeOf(err)
//	    log.Printf("device rejected the update: %v (0x%04X)", err, uint16(code))
//	}
//
// # Checksums
//
// Object contents are verified with IEEE CRC32. UpdateCRC32 continues a
// checksum from a previous value, so a transfer can resume mid-stream.
package protocol
