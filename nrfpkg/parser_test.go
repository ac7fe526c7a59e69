package nrfpkg

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		name      string
		files     map[string]string
		wantNames []string
		wantErr   bool
		errMsg    string
	}{
		{
			name: "application only",
			files: map[string]string{
				"manifest.json": `{"manifest":{"application":{"bin_file":"app.bin","dat_file":"app.dat"}}}`,
				"app.bin":       "BINARY",
				"app.dat":       "INIT",
			},
			wantNames: []string{"application"},
		},
		{
			name: "all entries keep manifest order",
			files: map[string]string{
				"manifest.json": `{"manifest":{
					"softdevice_bootloader":{"bin_file":"sdbl.bin","dat_file":"sdbl.dat"},
					"softdevice":{"bin_file":"sd.bin","dat_file":"sd.dat"},
					"bootloader":{"bin_file":"bl.bin","dat_file":"bl.dat"},
					"application":{"bin_file":"app.bin","dat_file":"app.dat"}}}`,
				"sdbl.bin": "1", "sdbl.dat": "1",
				"sd.bin": "2", "sd.dat": "2",
				"bl.bin": "3", "bl.dat": "3",
				"app.bin": "4", "app.dat": "4",
			},
			wantNames: []string{"application", "bootloader", "softdevice", "softdevice_bootloader"},
		},
		{
			name:    "missing manifest",
			files:   map[string]string{"app.bin": "x"},
			wantErr: true,
			errMsg:  "manifest.json",
		},
		{
			name:    "invalid json",
			files:   map[string]string{"manifest.json": "{"},
			wantErr: true,
			errMsg:  "failed to parse manifest.json",
		},
		{
			name: "missing bin file",
			files: map[string]string{
				"manifest.json": `{"manifest":{"bootloader":{"bin_file":"bl.bin","dat_file":"bl.dat"}}}`,
				"bl.dat":        "INIT",
			},
			wantErr: true,
			errMsg:  "bootloader: failed to open bl.bin",
		},
		{
			name: "entry without dat file",
			files: map[string]string{
				"manifest.json": `{"manifest":{"application":{"bin_file":"app.bin"}}}`,
				"app.bin":       "BINARY",
			},
			wantErr: true,
			errMsg:  "needs both dat_file and bin_file",
		},
		{
			name:    "no entries",
			files:   map[string]string{"manifest.json": `{"manifest":{}}`},
			wantErr: true,
			errMsg:  "no updates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := ParseBytes(buildZip(t, tt.files))

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %v, want substring %q", err, tt.errMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(pkg.Updates) != len(tt.wantNames) {
				t.Fatalf("got %d updates, want %d", len(pkg.Updates), len(tt.wantNames))
			}
			for i, name := range tt.wantNames {
				if pkg.Updates[i].Name != name {
					t.Errorf("update %d = %s, want %s", i, pkg.Updates[i].Name, name)
				}
			}
		})
	}
}

func TestParseBytesContents(t *testing.T) {
	pkg, err := ParseBytes(buildZip(t, map[string]string{
		"manifest.json": `{"manifest":{"application":{"bin_file":"app.bin","dat_file":"app.dat"}}}`,
		"app.bin":       "BINARY",
		"app.dat":       "INIT",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u := pkg.Updates[0]
	if string(u.InitPacket) != "INIT" || string(u.FirmwareImage) != "BINARY" {
		t.Errorf("update = %q/%q, want INIT/BINARY", u.InitPacket, u.FirmwareImage)
	}
	if got := pkg.TotalBytes(); got != 10 {
		t.Errorf("TotalBytes() = %d, want 10", got)
	}
}

func TestParse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkg.zip")
	data := buildZip(t, map[string]string{
		"manifest.json": `{"manifest":{"softdevice":{"bin_file":"sd.bin","dat_file":"sd.dat"}}}`,
		"sd.bin":        "SD",
		"sd.dat":        "DAT",
	})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write package: %v", err)
	}

	pkg, err := Parse(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pkg.Updates) != 1 || pkg.Updates[0].Name != "softdevice" {
		t.Errorf("updates = %+v", pkg.Updates)
	}

	if _, err := Parse(filepath.Join(t.TempDir(), "missing.zip")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseBytesNotZip(t *testing.T) {
	if _, err := ParseBytes([]byte("not a zip")); err == nil {
		t.Error("expected error for non-zip data")
	}
	_, err := ParseBytes(buildZip(t, map[string]string{"manifest.json": `{"manifest":{}}`}))
	if !errors.Is(err, ErrNoUpdates) {
		t.Errorf("error = %v, want ErrNoUpdates", err)
	}
}
