package protocol

import (
	"encoding/binary"
	"fmt"
)

// BuildCreateObjectCmd builds a Create Object request.
//
// Frame format:
//
//	[0x01][TYPE(1)][SIZE(4)]
func BuildCreateObjectCmd(typ ObjectType, size uint32) ([]byte, error) {
	if !typ.Valid() {
		return nil, errorf(CodeInvalidPayloadType, "got 0x%02X", byte(typ))
	}
	cmd := make([]byte, 6)
	cmd[0] = OpCreateObject
	cmd[1] = byte(typ)
	binary.LittleEndian.PutUint32(cmd[2:], size)
	return cmd, nil
}

// BuildSetPRNCmd builds a Set PRN request. A prn of 0 disables
// packet receipt notifications.
//
// Frame format:
//
//	[0x02][PRN(2)]
func BuildSetPRNCmd(prn int) ([]byte, error) {
	if prn < 0 || prn > MaxPRN {
		return nil, errorf(CodePRNTooHigh, "got %d", prn)
	}
	cmd := make([]byte, 3)
	cmd[0] = OpSetPRN
	binary.LittleEndian.PutUint16(cmd[1:], uint16(prn))
	return cmd, nil
}

// BuildCalcChecksumCmd builds a Calculate Checksum request.
func BuildCalcChecksumCmd() []byte {
	return []byte{OpCalcChecksum}
}

// BuildExecuteCmd builds an Execute request.
func BuildExecuteCmd() []byte {
	return []byte{OpExecute}
}

// BuildSelectObjectCmd builds a Select Object request.
//
// Frame format:
//
//	[0x06][TYPE(1)]
func BuildSelectObjectCmd(typ ObjectType) ([]byte, error) {
	if !typ.Valid() {
		return nil, errorf(CodeInvalidPayloadType, "got 0x%02X", byte(typ))
	}
	return []byte{OpSelectObject, byte(typ)}, nil
}

// BuildGetMTUCmd builds a Get MTU request.
func BuildGetMTUCmd() []byte {
	return []byte{OpGetMTU}
}

// BuildWriteCmd builds a Write request carrying data.
//
// Frame format:
//
//	[0x08][DATA...]
func BuildWriteCmd(data []byte) []byte {
	cmd := make([]byte, 1+len(data))
	cmd[0] = OpWrite
	copy(cmd[1:], data)
	return cmd
}

// BuildHardwareVersionCmd builds a Get Hardware Version request.
func BuildHardwareVersionCmd() []byte {
	return []byte{OpHardwareVersion}
}

// BuildFirmwareVersionCmd builds a Get Firmware Version request for image slot index.
func BuildFirmwareVersionCmd(index uint8) []byte {
	return []byte{OpFirmwareVersion, index}
}

// BuildAbortCmd builds an Abort request.
func BuildAbortCmd() []byte {
	return []byte{OpAbort}
}

// BuildProtocolVersionCmd builds a Get Protocol Version request.
func BuildProtocolVersionCmd() []byte {
	return []byte{OpProtocolVersion}
}

// OpcodeName returns a short name for op, used in logs.
func OpcodeName(op byte) string {
	switch op {
	case OpProtocolVersion:
		return "protocol-version"
	case OpCreateObject:
		return "create"
	case OpSetPRN:
		return "set-prn"
	case OpCalcChecksum:
		return "checksum"
	case OpExecute:
		return "execute"
	case OpSelectObject:
		return "select"
	case OpGetMTU:
		return "get-mtu"
	case OpWrite:
		return "write"
	case OpHardwareVersion:
		return "hardware-version"
	case OpFirmwareVersion:
		return "firmware-version"
	case OpAbort:
		return "abort"
	default:
		return fmt.Sprintf("op(0x%02X)", op)
	}
}
