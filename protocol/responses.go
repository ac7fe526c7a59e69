package protocol

import "encoding/binary"

// ParseResponse decodes one unframed response.
//
// Response format:
//
//	[0x60][OPCODE][RESULT][PAYLOAD...]
//
// A RESULT other than ResultSuccess is returned as an *Error: a known
// result code maps to ResponseCode(result); ResultExtendedError consumes
// the next byte as an extended code; anything else is reported as an
// unsupported opcode carrying the raw value.
func ParseResponse(frame []byte) (Packet, error) {
	if len(frame) == 0 {
		return Packet{}, errorf(CodeMalformedResponse, "got an empty frame")
	}
	if frame[0] != ResponseMarker {
		return Packet{}, errorf(CodeMalformedResponse, "got 0x%02X", frame[0])
	}
	if len(frame) < 3 {
		return Packet{}, errorf(CodeMalformedResponse, "frame too short: got %d bytes, minimum is 3", len(frame))
	}

	opcode, result := frame[1], frame[2]
	if result == ResultSuccess {
		return Packet{Opcode: opcode, Payload: frame[3:]}, nil
	}

	if _, ok := responseMessages[result]; ok && result != ResultExtendedError {
		return Packet{}, &Error{Code: ResponseCode(result), Detail: "(" + OpcodeName(opcode) + ")"}
	}

	if result == ResultExtendedError {
		if len(frame) < 4 {
			return Packet{}, errorf(CodeResponseExtended, "(%s) without an extended code", OpcodeName(opcode))
		}
		ext := frame[3]
		if _, ok := extendedMessages[ext]; ok {
			return Packet{}, &Error{Code: ExtendedCode(ext), Detail: "(" + OpcodeName(opcode) + ")"}
		}
		return Packet{}, errorf(CodeResponseExtended, "0x0B 0x%02X (%s)", ext, OpcodeName(opcode))
	}

	return Packet{}, errorf(CodeResponseNotSupported, "0x%02X (%s)", result, OpcodeName(opcode))
}

// Assert checks that p answers opcode and carries exactly n payload bytes,
// and returns the payload.
func (p Packet) Assert(opcode byte, n int) ([]byte, error) {
	if n > 0 && len(p.Payload) == 0 {
		return nil, errorf(CodeEmptyResponse, "(%s, want %d bytes)", OpcodeName(opcode), n)
	}
	if p.Opcode != opcode {
		return nil, errorf(CodeUnexpectedOpcode, "got %s, expected %s", OpcodeName(p.Opcode), OpcodeName(opcode))
	}
	if len(p.Payload) != n {
		return nil, errorf(CodeUnexpectedResponseBytes, "(%s) got %d bytes, expected %d", OpcodeName(opcode), len(p.Payload), n)
	}
	return p.Payload, nil
}

// ParseSelectResponse parses a Select Object payload.
//
// Data format (12 bytes):
//
//	[MAX_SIZE(4)][OFFSET(4)][CRC32(4)]
func ParseSelectResponse(data []byte) (ObjectStatus, error) {
	if len(data) != SelectResponseSize {
		return ObjectStatus{}, errorf(CodeUnexpectedResponseBytes, "(select) got %d bytes, expected %d", len(data), SelectResponseSize)
	}
	return ObjectStatus{
		MaxSize: binary.LittleEndian.Uint32(data[0:4]),
		Offset:  binary.LittleEndian.Uint32(data[4:8]),
		CRC:     binary.LittleEndian.Uint32(data[8:12]),
	}, nil
}

// ParseChecksumResponse parses a Calculate Checksum payload.
//
// Data format (8 bytes):
//
//	[OFFSET(4)][CRC32(4)]
func ParseChecksumResponse(data []byte) (Checksum, error) {
	if len(data) != ChecksumResponseSize {
		return Checksum{}, errorf(CodeUnexpectedResponseBytes, "(checksum) got %d bytes, expected %d", len(data), ChecksumResponseSize)
	}
	return Checksum{
		Offset: binary.LittleEndian.Uint32(data[0:4]),
		CRC:    binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}

// ParseMTUResponse parses a Get MTU payload and returns the raw MTU.
func ParseMTUResponse(data []byte) (uint16, error) {
	if len(data) != MTUResponseSize {
		return 0, errorf(CodeUnexpectedResponseBytes, "(get-mtu) got %d bytes, expected %d", len(data), MTUResponseSize)
	}
	return binary.LittleEndian.Uint16(data), nil
}

// TransferUnit converts a raw MTU into the largest write payload.
//
// Every byte may be SLIP escaped into two, and the write opcode takes
// one more, so the MTU is halved and reduced by 2. The result is rounded
// down to a multiple of 4 for flash word alignment.
func TransferUnit(mtu uint16) int {
	unit := int(mtu)/2 - 2
	unit -= unit % 4
	if unit < 0 {
		return 0
	}
	return unit
}

// ParseProtocolVersionResponse parses a Get Protocol Version payload.
func ParseProtocolVersionResponse(data []byte) (uint8, error) {
	if len(data) != ProtocolVersionResponseSize {
		return 0, errorf(CodeUnexpectedResponseBytes, "(protocol-version) got %d bytes, expected %d", len(data), ProtocolVersionResponseSize)
	}
	return data[0], nil
}

// ParseHardwareVersionResponse parses a Get Hardware Version payload.
//
// Data format (20 bytes):
//
//	[PART(4)][VARIANT(4)][ROM_SIZE(4)][RAM_SIZE(4)][ROM_PAGE_SIZE(4)]
func ParseHardwareVersionResponse(data []byte) (HardwareVersion, error) {
	if len(data) != HardwareVersionResponseSize {
		return HardwareVersion{}, errorf(CodeUnexpectedResponseBytes, "(hardware-version) got %d bytes, expected %d", len(data), HardwareVersionResponseSize)
	}
	return HardwareVersion{
		Part:    binary.LittleEndian.Uint32(data[0:4]),
		Variant: binary.LittleEndian.Uint32(data[4:8]),
		Memory: MemoryConfig{
			ROMSize:     binary.LittleEndian.Uint32(data[8:12]),
			RAMSize:     binary.LittleEndian.Uint32(data[12:16]),
			ROMPageSize: binary.LittleEndian.Uint32(data[16:20]),
		},
	}, nil
}

// ParseFirmwareVersionResponse parses a Get Firmware Version payload.
// It returns nil when the slot holds no image.
//
// Data format (13 bytes):
//
//	[TYPE(1)][VERSION(4)][ADDR(4)][LEN(4)]
func ParseFirmwareVersionResponse(data []byte) (*FirmwareImage, error) {
	if len(data) != FirmwareVersionResponseSize {
		return nil, errorf(CodeUnexpectedResponseBytes, "(firmware-version) got %d bytes, expected %d", len(data), FirmwareVersionResponseSize)
	}
	switch data[0] {
	case ImageTypeNone:
		return nil, nil
	case ImageTypeSoftDevice, ImageTypeApplication, ImageTypeBootloader:
	default:
		return nil, errorf(CodeResponseUnsupported, "(firmware-version) image type 0x%02X", data[0])
	}
	return &FirmwareImage{
		Type:    ImageType(data[0]),
		Version: binary.LittleEndian.Uint32(data[1:5]),
		Address: binary.LittleEndian.Uint32(data[5:9]),
		Length:  binary.LittleEndian.Uint32(data[9:13]),
	}, nil
}

// EncodeResponse builds a response frame. It is the device side of
// ParseResponse and is used by simulators.
func EncodeResponse(opcode, result byte, payload []byte) []byte {
	frame := make([]byte, 3, 3+len(payload))
	frame[0], frame[1], frame[2] = ResponseMarker, opcode, result
	return append(frame, payload...)
}
