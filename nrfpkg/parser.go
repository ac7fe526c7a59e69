package nrfpkg

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ManifestName is the manifest's path inside the archive.
const ManifestName = "manifest.json"

// ErrNoUpdates is returned for a manifest without any entries.
var ErrNoUpdates = errors.New("manifest lists no updates")

// Parse parses the DFU package at path.
//
// Example:
//
//	pkg, err := nrfpkg.Parse("app_dfu_package.zip")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, u := range pkg.Updates {
//	    fmt.Printf("%s: %d byte image\n", u.Name, len(u.FirmwareImage))
//	}
func Parse(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return ParseReaderAt(f, info.Size())
}

// ParseBytes parses a DFU package held in memory.
func ParseBytes(data []byte) (*Package, error) {
	return ParseReaderAt(bytes.NewReader(data), int64(len(data)))
}

// ParseReaderAt parses a DFU package of size bytes read from r.
func ParseReaderAt(r io.ReaderAt, size int64) (*Package, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	raw, err := readEntry(zr, ManifestName)
	if err != nil {
		return nil, err
	}

	var m manifestFile
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestName, err)
	}

	entries := []struct {
		name  string
		entry *manifestEntry
	}{
		{"application", m.Manifest.Application},
		{"bootloader", m.Manifest.Bootloader},
		{"softdevice", m.Manifest.Softdevice},
		{"softdevice_bootloader", m.Manifest.SoftdeviceBootloader},
	}

	pkg := &Package{}
	for _, e := range entries {
		if e.entry == nil {
			continue
		}
		u, err := readUpdate(zr, e.name, e.entry)
		if err != nil {
			return nil, err
		}
		pkg.Updates = append(pkg.Updates, u)
	}

	if len(pkg.Updates) == 0 {
		return nil, ErrNoUpdates
	}
	return pkg, nil
}

func readUpdate(zr *zip.Reader, name string, e *manifestEntry) (Update, error) {
	if e.DatFile == "" || e.BinFile == "" {
		return Update{}, fmt.Errorf("%s: manifest entry needs both dat_file and bin_file", name)
	}

	dat, err := readEntry(zr, e.DatFile)
	if err != nil {
		return Update{}, fmt.Errorf("%s: %w", name, err)
	}
	bin, err := readEntry(zr, e.BinFile)
	if err != nil {
		return Update{}, fmt.Errorf("%s: %w", name, err)
	}

	return Update{Name: name, InitPacket: dat, FirmwareImage: bin}, nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}
