package machox

import (
	"debug/macho"
	"fmt"
)

// Sizes of segment_command(_64) and section(_64) records.
const (
	segCmdSize32  = 56
	segCmdSize64  = 72
	sectionSize32 = 68
	sectionSize64 = 80
)

// Segment is one LC_SEGMENT or LC_SEGMENT_64 command with its sections.
type Segment struct {
	Name     FixedName
	Addr     uint64
	Offset   uint64
	Filesz   uint64
	Sections []Section
}

// Section is one section record of a Segment.
type Section struct {
	Name    FixedName
	SegName FixedName
	Addr    uint64
	Size    uint64
	Offset  uint32

	// index is the 1-based ordinal across all sections, as used by nlist n_sect.
	index int
	sect  *macho.Section
}

// Data returns the raw bytes of the section.
func (s *Section) Data() ([]byte, error) {
	if s.Size == 0 || s.sect == nil {
		return []byte{}, nil
	}
	data, err := s.sect.Data()
	if err != nil {
		return nil, fmt.Errorf("read section %s: %w", s.Name, err)
	}
	return data, nil
}

// Section returns the first section of the segment whose raw name equals name.
func (sg *Segment) Section(name FixedName) (*Section, error) {
	for i := range sg.Sections {
		if sg.Sections[i].Name.Equal(name) {
			return &sg.Sections[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s,%s", ErrSectionNotFound, sg.Name, name)
}

// loadSegments walks the segment load commands. debug/macho trims names at
// the first NUL, so the raw fixed-width names are read back out of the
// command bytes.
func (im *Image) loadSegments() error {
	f := im.File
	hdr, secsz := segCmdSize32, sectionSize32
	if im.Is64() {
		hdr, secsz = segCmdSize64, sectionSize64
	}

	next := 0
	for _, l := range f.Loads {
		s, ok := l.(*macho.Segment)
		if !ok {
			continue
		}
		raw := s.Raw()
		if len(raw) < hdr || len(raw) < hdr+int(s.Nsect)*secsz {
			return fmt.Errorf("%w: segment %q truncated", ErrMalformed, s.Name)
		}

		seg := Segment{
			Addr:   s.Addr,
			Offset: s.Offset,
			Filesz: s.Filesz,
		}
		copy(seg.Name[:], raw[8:8+NameLen])

		for i := 0; i < int(s.Nsect); i++ {
			if next >= len(f.Sections) {
				return fmt.Errorf("%w: section index %d out of range", ErrMalformed, next)
			}
			ms := f.Sections[next]
			next++

			rec := raw[hdr+i*secsz:]
			sec := Section{
				Addr:   ms.Addr,
				Size:   ms.Size,
				Offset: ms.Offset,
				index:  next,
				sect:   ms,
			}
			copy(sec.Name[:], rec[0:NameLen])
			copy(sec.SegName[:], rec[NameLen:2*NameLen])
			seg.Sections = append(seg.Sections, sec)
		}
		im.segs = append(im.segs, seg)
	}
	return nil
}
