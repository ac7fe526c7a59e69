package main

import (
	"github.com/schollz/progressbar/v3"

	"github.com/moffa90/go-nrfdfu/dfu"
	"github.com/moffa90/go-nrfdfu/nrfpkg"
	"github.com/moffa90/go-nrfdfu/protocol"
)

// tracker maps per-payload progress onto one bar over the whole package.
type tracker struct {
	pkg *nrfpkg.Package
	bar *progressbar.ProgressBar

	// offsets[i] is the package byte offset of update i
	offsets []int
}

func newTracker(pkg *nrfpkg.Package, bar *progressbar.ProgressBar) *tracker {
	t := &tracker{pkg: pkg, bar: bar, offsets: make([]int, len(pkg.Updates))}
	n := 0
	for i, u := range pkg.Updates {
		t.offsets[i] = n
		n += len(u.InitPacket) + len(u.FirmwareImage)
	}
	return t
}

// position returns how many package bytes p accounts for.
func (t *tracker) position(p dfu.Progress) int {
	if p.UpdateIndex < 0 || p.UpdateIndex >= len(t.offsets) {
		return 0
	}
	pos := t.offsets[p.UpdateIndex] + p.BytesSent
	if p.ObjectType == protocol.ObjectData {
		pos += len(t.pkg.Updates[p.UpdateIndex].InitPacket)
	}
	return pos
}

func (t *tracker) update(p dfu.Progress) {
	_ = t.bar.Set(t.position(p))
}
