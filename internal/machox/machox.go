// Package machox provides helpers for opening Mach-O binaries, walking their segment/section layout and extracting the executable code region.
package machox

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"fmt"
	"os"
)

// Kind is the container format of a binary image.
type Kind int

const (
	KindUnknown Kind = iota
	KindMachO        // single-architecture Mach-O, 32 or 64 bit
	KindFat          // multi-architecture Mach-O
	KindELF
	KindPE
)

func (k Kind) String() string {
	switch k {
	case KindMachO:
		return "mach-o"
	case KindFat:
		return "fat (multi-architecture)"
	case KindELF:
		return "elf"
	case KindPE:
		return "pe"
	}
	return "unknown"
}

var (
	elfMagic = []byte{0x7f, 'E', 'L', 'F'}
	peMagic  = []byte{'M', 'Z'}
)

// fatMagic64 is the 64-bit offset variant of the universal header.
const fatMagic64 = 0xcafebabf

// Classify inspects the magic prefix of data and reports its container kind.
func Classify(data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, elfMagic):
		return KindELF
	case bytes.HasPrefix(data, peMagic):
		return KindPE
	case len(data) < 4:
		return KindUnknown
	}

	be := binary.BigEndian.Uint32(data)
	le := binary.LittleEndian.Uint32(data)
	switch {
	case be == macho.MagicFat || be == fatMagic64:
		return KindFat
	case be == macho.Magic32 || be == macho.Magic64,
		le == macho.Magic32 || le == macho.Magic64:
		return KindMachO
	}
	return KindUnknown
}

// Image is a parsed single-architecture Mach-O file.
type Image struct {
	Path string
	Raw  []byte // file contents as parsed
	Kind Kind
	File *macho.File
	CPU  macho.Cpu

	segs []Segment
}

// Parser turns raw file bytes into an Image.
type Parser interface {
	Parse(data []byte) (*Image, error)
}

// MachOParser is the Parser backed by debug/macho.
type MachOParser struct{}

// Parse classifies data and, for a thin Mach-O, indexes its segments.
// Every other kind fails with ErrUnsupportedContainer before any
// segment is looked at.
func (MachOParser) Parse(data []byte) (*Image, error) {
	kind := Classify(data)
	if kind != KindMachO {
		return nil, fmt.Errorf("%w: %s container not implemented", ErrUnsupportedContainer, kind)
	}

	f, err := macho.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse mach-o: %w", err)
	}

	im := &Image{Raw: data, Kind: kind, File: f, CPU: f.Cpu}
	if err := im.loadSegments(); err != nil {
		return nil, err
	}
	return im, nil
}

// Parse uses MachOParser.
func Parse(data []byte) (*Image, error) {
	return MachOParser{}.Parse(data)
}

// Open reads the file at path and parses it.
func Open(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileRead, err)
	}
	im, err := Parse(data)
	if err != nil {
		return nil, err
	}
	im.Path = path
	return im, nil
}

// Segments returns the segments in load command order.
func (im *Image) Segments() []Segment {
	return im.segs
}

// Segment returns the first segment whose raw name equals name.
func (im *Image) Segment(name FixedName) (*Segment, error) {
	for i := range im.segs {
		if im.segs[i].Name.Equal(name) {
			return &im.segs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSegmentNotFound, name)
}

// Is64 reports whether the image uses the 64-bit header layout.
func (im *Image) Is64() bool {
	return im.File.Magic == macho.Magic64
}
