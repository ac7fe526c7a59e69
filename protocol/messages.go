package protocol

// Catalog text for library codes. Logic never matches on these strings.
var messages = map[ErrorCode]string{
	CodePreDFUInterrupted:       "a previous DFU process was interrupted and cannot be continued; restart the update without resuming.",
	CodeUnexpectedBytes:         "unexpected bytes to be sent.",
	CodeCRCMismatch:             "CRC mismatches.",
	CodeTooManyWriteFailures:    "too many write failures.",
	CodePRNTooHigh:              "DFU protocol cannot use a PRN higher than 0xFFFF.",
	CodeReadConflict:            "DFU transport tried to read while another read was still waiting.",
	CodeReadTimeout:             "timeout while reading from DFU transport.",
	CodeDuplicateMessage:        "DFU transport received two messages at once.",
	CodeMalformedResponse:       "response from DFU target did not start with 0x60.",
	CodeEmptyResponse:           "tried to assert an empty parsed response.",
	CodeUnexpectedOpcode:        "unexpected opcode in response.",
	CodeUnexpectedResponseBytes: "unexpected bytes in response.",
	CodeMustHavePayload:         "must create/select a payload type first.",
	CodeMismatchedCRC32:         "invoked with a mismatched CRC32 checksum.",
	CodeMoreBytesThanChunk:      "tried to push more bytes to a chunk than the chunk size.",
	CodeInvalidPayloadType:      "tried to select invalid payload type; valid types are 0x01 and 0x02.",
	CodeUnknownFirmwareType:     "unknown firmware image type.",
	CodePortNotFound:            "unable to find port.",
	CodeNoPortSpecified:         "no serial port name specified.",
	CodeMessageTooLarge:         "framed message exceeds the maximum size.",
}

// Catalog text for device result codes, keyed by the result byte.
var responseMessages = map[byte]string{
	ResultInvalid:               "missing or malformed opcode.",
	ResultOpCodeNotSupported:    "opcode unknown or not supported.",
	ResultInvalidParameter:      "a parameter for the opcode was missing.",
	ResultInsufficientResources: "not enough memory for the data object.",
	ResultInvalidObject:         "the data object didn't match firmware/hardware, or missing crypto signature, or malformed protocol buffer, or command parse failed.",
	ResultUnsupportedType:       "unsupported object type for create/read operation.",
	ResultOperationNotPermitted: "cannot allow this operation in the current DFU state.",
	ResultOperationFailed:       "operation failed.",
	ResultExtendedError:         "extended error.",
}

// Catalog text for device extended error codes, keyed by the extended byte.
var extendedMessages = map[byte]string{
	0x00: "an error happened, but its extended error code hasn't been set.",
	0x01: "an error happened, but its extended error code is incorrect.",
	0x02: "the format of the command was incorrect.",
	0x03: "command successfully parsed, but it is not supported or unknown.",
	0x04: "the init command is invalid: it has an invalid update type or is missing required fields for the update type.",
	0x05: "the firmware version is too low.",
	0x06: "the hardware version of the device does not match the required hardware version for the update.",
	0x07: "the array of supported SoftDevices for the update does not contain the FWID of the current SoftDevice.",
	0x08: "the init packet does not contain a signature, and this bootloader requires DFU updates to be signed.",
	0x09: "the hash type that is specified by the init packet is not supported by the DFU bootloader.",
	0x0A: "the hash of the firmware image cannot be calculated.",
	0x0B: "the type of the signature is unknown or not supported by the DFU bootloader.",
	0x0C: "the hash of the received firmware image does not match the hash in the init packet.",
	0x0D: "the available space on the device is insufficient to hold the firmware.",
	0x0E: "the requested firmware to update was already present on the system.",
}
