package protocol

import "fmt"

// ObjectType selects the on-device object a transfer targets.
type ObjectType byte

const (
	// ObjectCommand is the init packet
	ObjectCommand ObjectType = 0x01

	// ObjectData is the firmware image
	ObjectData ObjectType = 0x02
)

// Valid reports whether t is a command or data object.
func (t ObjectType) Valid() bool {
	return t == ObjectCommand || t == ObjectData
}

func (t ObjectType) String() string {
	switch t {
	case ObjectCommand:
		return "command"
	case ObjectData:
		return "data"
	default:
		return fmt.Sprintf("type(0x%02X)", byte(t))
	}
}

// Packet is one decoded response with its result code already consumed.
type Packet struct {
	// Opcode is the echoed request opcode
	Opcode byte

	// Payload is what follows the result code
	Payload []byte
}

// ObjectStatus is the transfer state reported by the select command.
type ObjectStatus struct {
	// MaxSize is the largest object the device accepts (usually a flash page)
	MaxSize uint32

	// Offset is the number of bytes accepted for the selected type
	Offset uint32

	// CRC is the CRC32 of the first Offset bytes
	CRC uint32
}

// Checksum is the (offset, CRC32) pair returned by the checksum command
// and by packet receipt notifications.
type Checksum struct {
	Offset uint32
	CRC    uint32
}

// MemoryConfig describes the device memory layout.
type MemoryConfig struct {
	ROMSize     uint32
	RAMSize     uint32
	ROMPageSize uint32
}

// HardwareVersion is returned by the hardware version command.
type HardwareVersion struct {
	Part    uint32
	Variant uint32
	Memory  MemoryConfig
}

// ImageType identifies a firmware image slot.
type ImageType byte

func (t ImageType) String() string {
	switch t {
	case ImageTypeSoftDevice:
		return "softdevice"
	case ImageTypeApplication:
		return "application"
	case ImageTypeBootloader:
		return "bootloader"
	default:
		return fmt.Sprintf("image(0x%02X)", byte(t))
	}
}

// FirmwareImage is one image slot reported by the firmware version command.
type FirmwareImage struct {
	Type    ImageType
	Version uint32
	Address uint32
	Length  uint32
}
