package protocol

// Opcodes of the Nordic Secure DFU serial protocol.
const (
	// OpProtocolVersion requests the bootloader protocol version
	OpProtocolVersion = 0x00

	// OpCreateObject creates a command or data object of a given size
	OpCreateObject = 0x01

	// OpSetPRN sets the packet receipt notification interval
	OpSetPRN = 0x02

	// OpCalcChecksum requests the offset and CRC32 of the selected object type
	OpCalcChecksum = 0x03

	// OpExecute executes (commits) the current object
	OpExecute = 0x04

	// OpSelectObject selects an object type and reports its transfer state
	OpSelectObject = 0x06

	// OpGetMTU requests the maximum transmission unit of the link
	OpGetMTU = 0x07

	// OpWrite writes raw object data. The device does not answer writes
	// except through packet receipt notifications.
	OpWrite = 0x08

	// OpHardwareVersion requests the hardware version and memory layout
	OpHardwareVersion = 0x0A

	// OpFirmwareVersion requests information about one firmware image slot
	OpFirmwareVersion = 0x0B

	// OpAbort leaves DFU mode
	OpAbort = 0x0C
)

// ResponseMarker is the first byte of every response frame.
const ResponseMarker = 0x60

// Result codes carried in byte 2 of a response frame.
const (
	// ResultInvalid means the opcode was missing or malformed
	ResultInvalid = 0x00

	// ResultSuccess means the request was executed
	ResultSuccess = 0x01

	// ResultOpCodeNotSupported means the opcode is unknown
	ResultOpCodeNotSupported = 0x02

	// ResultInvalidParameter means a parameter was missing
	ResultInvalidParameter = 0x03

	// ResultInsufficientResources means the object does not fit in memory
	ResultInsufficientResources = 0x04

	// ResultInvalidObject means the object failed validation
	ResultInvalidObject = 0x05

	// ResultUnsupportedType means the object type is not supported
	ResultUnsupportedType = 0x07

	// ResultOperationNotPermitted means the request is not allowed in the current DFU state
	ResultOperationNotPermitted = 0x08

	// ResultOperationFailed means the request failed
	ResultOperationFailed = 0x0A

	// ResultExtendedError means byte 3 carries an extended error code
	ResultExtendedError = 0x0B
)

// Firmware image types reported by OpFirmwareVersion.
const (
	ImageTypeSoftDevice  = 0x00
	ImageTypeApplication = 0x01
	ImageTypeBootloader  = 0x02
	ImageTypeNone        = 0xFF
)

// Response payload sizes.
const (
	// SelectResponseSize is MAX_SIZE(4) + OFFSET(4) + CRC32(4)
	SelectResponseSize = 12

	// ChecksumResponseSize is OFFSET(4) + CRC32(4)
	ChecksumResponseSize = 8

	// MTUResponseSize is MTU(2)
	MTUResponseSize = 2

	// ProtocolVersionResponseSize is VERSION(1)
	ProtocolVersionResponseSize = 1

	// HardwareVersionResponseSize is PART(4) VARIANT(4) ROM(4) RAM(4) ROM_PAGE(4)
	HardwareVersionResponseSize = 20

	// FirmwareVersionResponseSize is TYPE(1) VERSION(4) ADDR(4) LEN(4)
	FirmwareVersionResponseSize = 13
)

// MaxPRN is the largest packet receipt notification interval the wire format can carry.
const MaxPRN = 0xFFFF

// RestartObjectSize is the size of the command object created to discard resumable state.
const RestartObjectSize = 0x10
