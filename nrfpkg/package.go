package nrfpkg

// Package is a parsed DFU zip package.
type Package struct {
	// Updates are sent in order
	Updates []Update
}

// Update is one init packet and firmware image pair.
type Update struct {
	// Name is the manifest entry: application, bootloader, softdevice
	// or softdevice_bootloader
	Name string

	// InitPacket is the contents of the entry's dat_file
	InitPacket []byte

	// FirmwareImage is the contents of the entry's bin_file
	FirmwareImage []byte
}

// TotalBytes returns the number of payload bytes over all updates.
func (p *Package) TotalBytes() int {
	n := 0
	for _, u := range p.Updates {
		n += len(u.InitPacket) + len(u.FirmwareImage)
	}
	return n
}

// manifestFile is the layout of manifest.json.
type manifestFile struct {
	Manifest struct {
		Application          *manifestEntry `json:"application"`
		Bootloader           *manifestEntry `json:"bootloader"`
		Softdevice           *manifestEntry `json:"softdevice"`
		SoftdeviceBootloader *manifestEntry `json:"softdevice_bootloader"`
	} `json:"manifest"`
}

type manifestEntry struct {
	BinFile string `json:"bin_file"`
	DatFile string `json:"dat_file"`
}
