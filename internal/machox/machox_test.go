package machox_test

import (
	"bytes"
	"debug/macho"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"machdis/internal/machox"
	"machdis/internal/machox/machotest"
)

var nop = []byte{0x1f, 0x20, 0x03, 0xd5}

func TestClassify(t *testing.T) {
	thin := machotest.Text(nop, 0x1000)

	tests := []struct {
		name string
		data []byte
		want machox.Kind
	}{
		{name: "thin 64", data: thin, want: machox.KindMachO},
		{name: "thin 32", data: (&machotest.Builder{CPU: macho.CpuArm, Is32: true}).Build(), want: machox.KindMachO},
		{name: "big endian 64", data: []byte{0xfe, 0xed, 0xfa, 0xcf, 0, 0, 0, 0}, want: machox.KindMachO},
		{name: "fat", data: machotest.Fat(thin), want: machox.KindFat},
		{name: "fat 64", data: []byte{0xca, 0xfe, 0xba, 0xbf, 0, 0, 0, 0}, want: machox.KindFat},
		{name: "elf", data: []byte("\x7fELF\x02\x01\x01"), want: machox.KindELF},
		{name: "pe", data: []byte("MZ\x90\x00"), want: machox.KindPE},
		{name: "short", data: []byte{0xcf, 0xfa}, want: machox.KindUnknown},
		{name: "empty", data: nil, want: machox.KindUnknown},
		{name: "text", data: []byte("hello world"), want: machox.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := machox.Classify(tt.data); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseUnsupported(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "fat", data: machotest.Fat(machotest.Text(nop, 0x1000))},
		{name: "elf", data: []byte("\x7fELF\x02\x01\x01\x00")},
		{name: "garbage", data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im, err := machox.Parse(tt.data)
			if !errors.Is(err, machox.ErrUnsupportedContainer) {
				t.Fatalf("Parse() error = %v, want ErrUnsupportedContainer", err)
			}
			if im != nil {
				t.Errorf("Parse() returned an image for an unsupported container")
			}
		})
	}
}

func TestCodeRegion(t *testing.T) {
	code := []byte{
		0xfd, 0x7b, 0xbf, 0xa9, // stp x29, x30, [sp,#-16]!
		0x1f, 0x20, 0x03, 0xd5, // nop
		0xc0, 0x03, 0x5f, 0xd6, // ret
	}

	tests := []struct {
		name string
		b    *machotest.Builder
		addr uint64
		code []byte
	}{
		{
			name: "single text section",
			b: &machotest.Builder{CPU: macho.CpuArm64, Segments: []machotest.Segment{
				{Name: machotest.Name("__TEXT"), Addr: 0x100000000, Sections: []machotest.Section{
					{Name: machotest.Name("__text"), Addr: 0x100000f00, Data: code},
				}},
			}},
			addr: 0x100000f00,
			code: code,
		},
		{
			name: "text after other segments and sections",
			b: &machotest.Builder{CPU: macho.CpuArm64, Segments: []machotest.Segment{
				{Name: machotest.Name("__PAGEZERO")},
				{Name: machotest.Name("__DATA"), Addr: 0x2000, Sections: []machotest.Section{
					{Name: machotest.Name("__text"), Addr: 0x2000, Data: []byte{0xaa, 0xbb, 0xcc, 0xdd}},
				}},
				{Name: machotest.Name("__TEXT"), Addr: 0x4000, Sections: []machotest.Section{
					{Name: machotest.Name("__stubs"), Addr: 0x4000, Data: []byte{0, 0, 0, 0}},
					{Name: machotest.Name("__text"), Addr: 0x4004, Data: code},
				}},
			}},
			addr: 0x4004,
			code: code,
		},
		{
			name: "duplicate sections use file order",
			b: &machotest.Builder{CPU: macho.CpuArm64, Segments: []machotest.Segment{
				{Name: machotest.Name("__TEXT"), Addr: 0x1000, Sections: []machotest.Section{
					{Name: machotest.Name("__text"), Addr: 0x1000, Data: code[:4]},
					{Name: machotest.Name("__text"), Addr: 0x1004, Data: code[4:]},
				}},
			}},
			addr: 0x1000,
			code: code[:4],
		},
		{
			name: "empty section",
			b: &machotest.Builder{CPU: macho.CpuArm64, Segments: []machotest.Segment{
				{Name: machotest.Name("__TEXT"), Addr: 0x1000, Sections: []machotest.Section{
					{Name: machotest.Name("__text"), Addr: 0x1000},
				}},
			}},
			addr: 0x1000,
			code: []byte{},
		},
		{
			name: "32-bit image",
			b: &machotest.Builder{CPU: macho.CpuArm, Is32: true, Segments: []machotest.Segment{
				{Name: machotest.Name("__TEXT"), Addr: 0x1000, Sections: []machotest.Section{
					{Name: machotest.Name("__text"), Addr: 0x1010, Data: code},
				}},
			}},
			addr: 0x1010,
			code: code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.b.Build()
			im, err := machox.Parse(data)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			r, err := im.CodeRegion()
			if err != nil {
				t.Fatalf("CodeRegion() error = %v", err)
			}
			if r.Addr != tt.addr {
				t.Errorf("Addr = %#x, want %#x", r.Addr, tt.addr)
			}
			if r.Code == nil || !bytes.Equal(r.Code, tt.code) {
				t.Errorf("Code = %x, want %x", r.Code, tt.code)
			}
			if r.CPU != tt.b.CPU {
				t.Errorf("CPU = %v, want %v", r.CPU, tt.b.CPU)
			}

			// The region must not alias the input buffer.
			for i := range data {
				data[i] = 0
			}
			if !bytes.Equal(r.Code, tt.code) {
				t.Errorf("Code changed after clearing the source buffer")
			}
		})
	}
}

func TestCodeRegionNotFound(t *testing.T) {
	padded := machotest.Name("__text")
	padded[12] = 'x'

	tests := []struct {
		name     string
		segments []machotest.Segment
		want     error
	}{
		{
			name:     "no segments",
			segments: nil,
			want:     machox.ErrSegmentNotFound,
		},
		{
			name: "no text segment",
			segments: []machotest.Segment{
				{Name: machotest.Name("__DATA"), Sections: []machotest.Section{{Name: machotest.Name("__text")}}},
			},
			want: machox.ErrSegmentNotFound,
		},
		{
			name: "case differs",
			segments: []machotest.Segment{
				{Name: machotest.Name("__text"), Sections: []machotest.Section{{Name: machotest.Name("__text")}}},
			},
			want: machox.ErrSegmentNotFound,
		},
		{
			name: "no text section",
			segments: []machotest.Segment{
				{Name: machotest.Name("__TEXT"), Sections: []machotest.Section{{Name: machotest.Name("__cstring")}}},
			},
			want: machox.ErrSectionNotFound,
		},
		{
			name: "trailing bytes after padding",
			segments: []machotest.Segment{
				{Name: machotest.Name("__TEXT"), Sections: []machotest.Section{{Name: padded, Data: nop}}},
			},
			want: machox.ErrSectionNotFound,
		},
		{
			name: "prefix only",
			segments: []machotest.Segment{
				{Name: machotest.Name("__TEXT"), Sections: []machotest.Section{{Name: machotest.Name("__tex"), Data: nop}}},
			},
			want: machox.ErrSectionNotFound,
		},
		{
			name: "section only in later duplicate segment",
			segments: []machotest.Segment{
				{Name: machotest.Name("__TEXT")},
				{Name: machotest.Name("__TEXT"), Sections: []machotest.Section{{Name: machotest.Name("__text"), Data: nop}}},
			},
			want: machox.ErrSectionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &machotest.Builder{CPU: macho.CpuArm64, Segments: tt.segments}
			im, err := machox.Parse(b.Build())
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			r, err := im.CodeRegion()
			if !errors.Is(err, tt.want) {
				t.Fatalf("CodeRegion() error = %v, want %v", err, tt.want)
			}
			if r != nil {
				t.Errorf("CodeRegion() returned a region on error")
			}
		})
	}
}

func TestSegmentsRawNames(t *testing.T) {
	odd := machotest.Name("__text")
	odd[15] = 0xff

	b := &machotest.Builder{CPU: macho.CpuArm64, Segments: []machotest.Segment{
		{Name: machotest.Name("__TEXT"), Sections: []machotest.Section{
			{Name: odd, Data: nop},
		}},
	}}
	im, err := machox.Parse(b.Build())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	segs := im.Segments()
	if len(segs) != 1 || len(segs[0].Sections) != 1 {
		t.Fatalf("unexpected layout: %+v", segs)
	}
	sec := segs[0].Sections[0]
	if sec.Name != machox.FixedName(odd) {
		t.Errorf("raw section name = %q, want %q", sec.Name[:], odd[:])
	}
	if !sec.SegName.Equal(machox.SegmentText) {
		t.Errorf("raw segment name = %q", sec.SegName[:])
	}
	// debug/macho trims at the first NUL and would report "__text".
	if im.File.Sections[0].Name != "__text" {
		t.Errorf("debug/macho name = %q", im.File.Sections[0].Name)
	}
}

func TestSymbols(t *testing.T) {
	b := &machotest.Builder{
		CPU: macho.CpuArm64,
		Segments: []machotest.Segment{
			{Name: machotest.Name("__TEXT"), Addr: 0x1000, Sections: []machotest.Section{
				{Name: machotest.Name("__stubs"), Addr: 0x1000, Data: nop},
				{Name: machotest.Name("__text"), Addr: 0x1004, Data: bytes.Repeat(nop, 3)},
			}},
		},
		Symbols: []machotest.Symbol{
			{Name: "_helper", Sect: 2, Value: 0x100c},
			{Name: "_main", Sect: 2, Value: 0x1004},
			{Name: "__ZN3foo3barEv", Sect: 2, Value: 0x1008},
			{Name: "_stub", Sect: 1, Value: 0x1000},
		},
	}
	im, err := machox.Parse(b.Build())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	r, err := im.CodeRegion()
	if err != nil {
		t.Fatalf("CodeRegion() error = %v", err)
	}

	want := []machox.Symbol{
		{Name: "_main", Raw: "_main", Addr: 0x1004},
		{Name: "foo::bar()", Raw: "__ZN3foo3barEv", Addr: 0x1008},
		{Name: "_helper", Raw: "_helper", Addr: 0x100c},
	}
	if len(r.Symbols) != len(want) {
		t.Fatalf("Symbols = %+v, want %+v", r.Symbols, want)
	}
	for i := range want {
		if r.Symbols[i] != want[i] {
			t.Errorf("Symbols[%d] = %+v, want %+v", i, r.Symbols[i], want[i])
		}
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := machox.Open(filepath.Join(dir, "does-not-exist"))
		if !errors.Is(err, machox.ErrFileRead) {
			t.Fatalf("Open() error = %v, want ErrFileRead", err)
		}
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Open() error = %v, want wrapped os.ErrNotExist", err)
		}
	})

	t.Run("thin image", func(t *testing.T) {
		path := filepath.Join(dir, "a.out")
		if err := os.WriteFile(path, machotest.Text(nop, 0x1000), 0o644); err != nil {
			t.Fatal(err)
		}
		im, err := machox.Open(path)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if im.Path != path || im.Kind != machox.KindMachO {
			t.Errorf("Open() = path %q kind %v", im.Path, im.Kind)
		}
	})
}
