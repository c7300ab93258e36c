// Package disasm defines a common instruction representation used
// across architecture-specific disassemblers.
package disasm

import (
	"debug/macho"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDecoderInit means no decoder exists for the requested arch/mode.
	ErrDecoderInit = errors.New("decoder init")
	// ErrUndecodable marks bytes the decoder cannot interpret.
	ErrUndecodable = errors.New("undecodable bytes")
)

type Arch int

const (
	ArchARM64 Arch = iota + 1
	ArchX86
)

func (a Arch) String() string {
	switch a {
	case ArchARM64:
		return "arm64"
	case ArchX86:
		return "x86"
	}
	return fmt.Sprintf("Arch(%d)", int(a))
}

type Mode int

const (
	ModeARM Mode = iota + 1
	Mode64
)

func (m Mode) String() string {
	switch m {
	case ModeARM:
		return "arm"
	case Mode64:
		return "64"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// RegID is a decoder specific register number. Zero is never a register.
type RegID uint16

// GroupID is a semantic instruction group. Zero is never a group.
type GroupID uint8

const (
	GroupJump GroupID = iota + 1
	GroupCall
	GroupRet
	GroupInt
	GroupPrivilege
	GroupBranchRelative
)

var groupNames = map[GroupID]string{
	GroupJump:           "jump",
	GroupCall:           "call",
	GroupRet:            "return",
	GroupInt:            "int",
	GroupPrivilege:      "privilege",
	GroupBranchRelative: "branch_relative",
}

// Inst is one decoded instruction with its register effects and groups.
// The detail fields are empty when the decoder was built without detail.
type Inst struct {
	Addr      uint64 // virtual address of instruction
	ID        uint32 // architecture opcode number
	Mnemonic  string // lowercase
	OpStr     string
	Bytes     []byte
	RegsRead  []RegID
	RegsWrite []RegID
	Groups    []GroupID
	Operands  []Operand
}

// String renders "0x<addr>: <mnemonic> <operands>".
func (i Inst) String() string {
	if i.OpStr == "" {
		return fmt.Sprintf("%#x: %s", i.Addr, i.Mnemonic)
	}
	return fmt.Sprintf("%#x: %s %s", i.Addr, i.Mnemonic, i.OpStr)
}

// Decoder decodes one instruction at a time and names the registers and
// groups it reports. Implementations keep no state between Decode calls.
type Decoder interface {
	Arch() Arch
	Mode() Mode
	// Decode decodes the instruction at the start of code, which is loaded
	// at addr. It returns an error wrapping ErrUndecodable when the bytes
	// are not a valid instruction or are truncated.
	Decode(code []byte, addr uint64) (Inst, error)
	RegName(id RegID) (string, bool)
	GroupName(id GroupID) (string, bool)
}

// New returns a decoder for arch and mode. With detail off, decoded
// instructions carry no register, group or operand information.
func New(arch Arch, mode Mode, detail bool) (Decoder, error) {
	switch {
	case arch == ArchARM64 && mode == ModeARM:
		return &arm64Decoder{detail: detail}, nil
	case arch == ArchX86 && mode == Mode64:
		return &x86Decoder{detail: detail}, nil
	}
	return nil, fmt.Errorf("%w: no decoder for %s/%s", ErrDecoderInit, arch, mode)
}

// ForCPU maps a Mach-O CPU type to the decoder configuration for it.
func ForCPU(cpu macho.Cpu) (Arch, Mode, error) {
	switch cpu {
	case macho.CpuArm64:
		return ArchARM64, ModeARM, nil
	case macho.CpuAmd64:
		return ArchX86, Mode64, nil
	}
	return 0, 0, fmt.Errorf("%w: unsupported cpu %v", ErrDecoderInit, cpu)
}

// ParseArch accepts the names used by MACHDIS_ARCH.
func ParseArch(s string) (Arch, Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arm64", "aarch64":
		return ArchARM64, ModeARM, nil
	case "amd64", "x86_64", "x86-64":
		return ArchX86, Mode64, nil
	}
	return 0, 0, fmt.Errorf("%w: unknown arch %q", ErrDecoderInit, s)
}

// Sweep decodes a code region one instruction at a time in address
// order. It stops for good at the end of the region or at the first bytes
// the decoder cannot interpret.
type Sweep struct {
	d    Decoder
	code []byte
	addr uint64
	off  int
	stop error
}

// NewSweep starts a sweep over code loaded at addr.
func NewSweep(d Decoder, code []byte, addr uint64) *Sweep {
	return &Sweep{d: d, code: code, addr: addr}
}

// Next returns the next instruction, or false once the sweep has ended.
func (s *Sweep) Next() (Inst, bool) {
	if s.code == nil || s.off >= len(s.code) {
		s.code = nil
		return Inst{}, false
	}
	inst, err := s.d.Decode(s.code[s.off:], s.addr+uint64(s.off))
	if err == nil && len(inst.Bytes) == 0 {
		err = fmt.Errorf("%w at %#x: zero length", ErrUndecodable, s.addr+uint64(s.off))
	}
	if err != nil {
		s.stop = err
		s.code = nil
		return Inst{}, false
	}
	s.off += len(inst.Bytes)
	return inst, true
}

// Offset is the number of bytes consumed so far.
func (s *Sweep) Offset() int {
	return s.off
}

// Stopped returns the decode error that ended the sweep early, or nil when
// it ran to the end of the region.
func (s *Sweep) Stopped() error {
	return s.stop
}

func groupName(id GroupID) (string, bool) {
	name, ok := groupNames[id]
	return name, ok
}

// appendUnique appends ids not already present, keeping first-seen order.
func appendUnique(list []RegID, ids ...RegID) []RegID {
next:
	for _, id := range ids {
		if id == 0 {
			continue
		}
		for _, have := range list {
			if have == id {
				continue next
			}
		}
		list = append(list, id)
	}
	return list
}
