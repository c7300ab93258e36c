package machox

import (
	"debug/macho"
	"fmt"
)

// CodeRegion is the executable bytes of one section and the address they load at.
// Code is a copy and does not alias the Image buffer.
type CodeRegion struct {
	Code    []byte
	Addr    uint64
	CPU     macho.Cpu
	Segment FixedName
	Section FixedName
	Symbols []Symbol
}

// Locate resolves the section sect inside segment seg. The first segment
// named seg is used; if it has no section named sect the lookup fails even
// when a later segment with the same name would have one.
func (im *Image) Locate(seg, sect FixedName) (*CodeRegion, error) {
	sg, err := im.Segment(seg)
	if err != nil {
		return nil, err
	}
	sc, err := sg.Section(sect)
	if err != nil {
		return nil, err
	}
	data, err := sc.Data()
	if err != nil {
		return nil, err
	}

	code := make([]byte, len(data))
	copy(code, data)
	return &CodeRegion{
		Code:    code,
		Addr:    sc.Addr,
		CPU:     im.CPU,
		Segment: sg.Name,
		Section: sc.Name,
		Symbols: im.Symbols(sc),
	}, nil
}

// CodeRegion locates __TEXT,__text.
func (im *Image) CodeRegion() (*CodeRegion, error) {
	r, err := im.Locate(SegmentText, SectionText)
	if err != nil {
		return nil, fmt.Errorf("locate code region: %w", err)
	}
	return r, nil
}
