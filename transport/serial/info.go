package serial

import (
	"context"

	"github.com/moffa90/go-nrfdfu/protocol"
)

// ProtocolVersion returns the bootloader's DFU protocol version.
func (t *Transport) ProtocolVersion(ctx context.Context) (uint8, error) {
	data, err := t.query(ctx, protocol.BuildProtocolVersionCmd(), protocol.OpProtocolVersion, protocol.ProtocolVersionResponseSize)
	if err != nil {
		return 0, err
	}
	return protocol.ParseProtocolVersionResponse(data)
}

// HardwareVersion returns the chip part, variant and memory layout.
func (t *Transport) HardwareVersion(ctx context.Context) (protocol.HardwareVersion, error) {
	data, err := t.query(ctx, protocol.BuildHardwareVersionCmd(), protocol.OpHardwareVersion, protocol.HardwareVersionResponseSize)
	if err != nil {
		return protocol.HardwareVersion{}, err
	}
	return protocol.ParseHardwareVersionResponse(data)
}

// FirmwareVersion returns the image in slot index, or nil if the slot is empty.
func (t *Transport) FirmwareVersion(ctx context.Context, index uint8) (*protocol.FirmwareImage, error) {
	data, err := t.query(ctx, protocol.BuildFirmwareVersionCmd(index), protocol.OpFirmwareVersion, protocol.FirmwareVersionResponseSize)
	if err != nil {
		return nil, err
	}
	return protocol.ParseFirmwareVersionResponse(data)
}

// FirmwareVersions returns every installed image, in slot order.
func (t *Transport) FirmwareVersions(ctx context.Context) ([]protocol.FirmwareImage, error) {
	var images []protocol.FirmwareImage
	for i := 0; i <= 0xFF; i++ {
		img, err := t.FirmwareVersion(ctx, uint8(i))
		if err != nil {
			return images, err
		}
		if img == nil {
			break
		}
		images = append(images, *img)
	}
	return images, nil
}

func (t *Transport) query(ctx context.Context, cmd []byte, opcode byte, n int) ([]byte, error) {
	if err := t.Ready(ctx); err != nil {
		return nil, err
	}
	return t.Request(ctx, cmd, opcode, n)
}
