// Package machotest builds small synthetic Mach-O images for tests.
package machotest

import (
	"debug/macho"
	"encoding/binary"
)

// Name zero pads s to a 16 byte segname/sectname field.
func Name(s string) [16]byte {
	var n [16]byte
	copy(n[:], s)
	return n
}

type Section struct {
	Name [16]byte
	Addr uint64
	Data []byte
}

type Segment struct {
	Name     [16]byte
	Addr     uint64
	Sections []Section
}

// Symbol is an nlist entry. Sect is the 1-based section ordinal.
type Symbol struct {
	Name  string
	Sect  uint8
	Value uint64
}

// Builder lays out a thin little-endian Mach-O file: header, load commands,
// section contents, then the symbol and string tables.
type Builder struct {
	CPU      macho.Cpu
	Is32     bool
	Segments []Segment
	Symbols  []Symbol
}

// Text returns a 64-bit arm64 image with a single __TEXT,__text section.
func Text(code []byte, addr uint64) []byte {
	b := &Builder{
		CPU: macho.CpuArm64,
		Segments: []Segment{{
			Name:     Name("__TEXT"),
			Addr:     addr,
			Sections: []Section{{Name: Name("__text"), Addr: addr, Data: code}},
		}},
	}
	return b.Build()
}

// Fat wraps a thin image in a universal header with one slice.
func Fat(thin []byte) []byte {
	const off = 0x1000
	out := make([]byte, 0, off+len(thin))
	be := binary.BigEndian
	out = be.AppendUint32(out, macho.MagicFat)
	out = be.AppendUint32(out, 1)
	out = be.AppendUint32(out, uint32(macho.CpuArm64))
	out = be.AppendUint32(out, 0)
	out = be.AppendUint32(out, off)
	out = be.AppendUint32(out, uint32(len(thin)))
	out = be.AppendUint32(out, 12)
	out = append(out, make([]byte, off-len(out))...)
	return append(out, thin...)
}

func (b *Builder) sizes() (hdr, seg, sect, nlist int) {
	if b.Is32 {
		return 28, 56, 68, 12
	}
	return 32, 72, 80, 16
}

// Build serializes the image.
func (b *Builder) Build() []byte {
	le := binary.LittleEndian
	hdrSize, segSize, sectSize, nlistSize := b.sizes()

	ncmds := len(b.Segments)
	cmdsz := 0
	for _, sg := range b.Segments {
		cmdsz += segSize + sectSize*len(sg.Sections)
	}
	if len(b.Symbols) > 0 {
		ncmds++
		cmdsz += 24
	}

	// Section contents follow the load commands.
	off := hdrSize + cmdsz
	offsets := make([][]int, len(b.Segments))
	for i, sg := range b.Segments {
		for _, sc := range sg.Sections {
			offsets[i] = append(offsets[i], off)
			off += len(sc.Data)
		}
	}
	symoff := off
	stroff := symoff + nlistSize*len(b.Symbols)
	strtab := []byte{0}
	strx := make([]uint32, len(b.Symbols))
	for i, s := range b.Symbols {
		strx[i] = uint32(len(strtab))
		strtab = append(strtab, s.Name...)
		strtab = append(strtab, 0)
	}

	var out []byte
	magic := uint32(macho.Magic64)
	if b.Is32 {
		magic = macho.Magic32
	}
	out = le.AppendUint32(out, magic)
	out = le.AppendUint32(out, uint32(b.CPU))
	out = le.AppendUint32(out, 0)
	out = le.AppendUint32(out, uint32(macho.TypeExec))
	out = le.AppendUint32(out, uint32(ncmds))
	out = le.AppendUint32(out, uint32(cmdsz))
	out = le.AppendUint32(out, 0)
	if !b.Is32 {
		out = le.AppendUint32(out, 0)
	}

	word := func(v uint64) {
		if b.Is32 {
			out = le.AppendUint32(out, uint32(v))
		} else {
			out = le.AppendUint64(out, v)
		}
	}

	for i, sg := range b.Segments {
		var fileoff, filesz uint64
		if len(sg.Sections) > 0 {
			fileoff = uint64(offsets[i][0])
		}
		for _, sc := range sg.Sections {
			filesz += uint64(len(sc.Data))
		}
		cmd := macho.LoadCmdSegment64
		if b.Is32 {
			cmd = macho.LoadCmdSegment
		}
		out = le.AppendUint32(out, uint32(cmd))
		out = le.AppendUint32(out, uint32(segSize+sectSize*len(sg.Sections)))
		out = append(out, sg.Name[:]...)
		word(sg.Addr)
		word(filesz)
		word(fileoff)
		word(filesz)
		out = le.AppendUint32(out, 5)
		out = le.AppendUint32(out, 5)
		out = le.AppendUint32(out, uint32(len(sg.Sections)))
		out = le.AppendUint32(out, 0)

		for j, sc := range sg.Sections {
			out = append(out, sc.Name[:]...)
			out = append(out, sg.Name[:]...)
			word(sc.Addr)
			word(uint64(len(sc.Data)))
			out = le.AppendUint32(out, uint32(offsets[i][j]))
			out = le.AppendUint32(out, 2)
			out = le.AppendUint32(out, 0)
			out = le.AppendUint32(out, 0)
			out = le.AppendUint32(out, 0x80000400)
			out = le.AppendUint32(out, 0)
			out = le.AppendUint32(out, 0)
			if !b.Is32 {
				out = le.AppendUint32(out, 0)
			}
		}
	}

	if len(b.Symbols) > 0 {
		out = le.AppendUint32(out, uint32(macho.LoadCmdSymtab))
		out = le.AppendUint32(out, 24)
		out = le.AppendUint32(out, uint32(symoff))
		out = le.AppendUint32(out, uint32(len(b.Symbols)))
		out = le.AppendUint32(out, uint32(stroff))
		out = le.AppendUint32(out, uint32(len(strtab)))
	}

	for _, sg := range b.Segments {
		for _, sc := range sg.Sections {
			out = append(out, sc.Data...)
		}
	}

	for i, s := range b.Symbols {
		out = le.AppendUint32(out, strx[i])
		out = append(out, 0x0f, s.Sect) // N_SECT|N_EXT
		out = le.AppendUint16(out, 0)
		word(s.Value)
	}
	return append(out, strtab...)
}
