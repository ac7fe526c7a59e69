// Package nrfpkg reads DFU zip packages as produced by nrfutil.
//
// # Package Format
//
// A package is a zip archive with a manifest.json at its root:
//
//	{
//	  "manifest": {
//	    "application": {
//	      "bin_file": "app.bin",
//	      "dat_file": "app.dat"
//	    }
//	  }
//	}
//
// The manifest may name up to four entries: application, bootloader,
// softdevice and softdevice_bootloader. Each entry points at an init
// packet (dat_file) and a firmware image (bin_file) inside the archive.
// Present entries become Updates in that order.
//
// The contents of the files are not validated.
package nrfpkg
