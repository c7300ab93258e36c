package disasm

import (
	"fmt"
	"strconv"
	"strings"
)

type OpType uint8

const (
	OpInvalid OpType = iota
	OpReg
	OpImm
	OpMem
	OpFP
	OpCond
	OpSys
	OpOther
)

var opTypeNames = [...]string{
	OpInvalid: "Invalid",
	OpReg:     "Reg",
	OpImm:     "Imm",
	OpMem:     "Mem",
	OpFP:      "Fp",
	OpCond:    "Cond",
	OpSys:     "Sys",
	OpOther:   "Other",
}

func (t OpType) String() string {
	if int(t) < len(opTypeNames) {
		return opTypeNames[t]
	}
	return fmt.Sprintf("OpType(%d)", int(t))
}

// Access is a bit set of how an operand is used.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "Read"
	case AccessWrite:
		return "Write"
	case AccessRead | AccessWrite:
		return "ReadWrite"
	}
	return "None"
}

type MemRef struct {
	Base  RegID
	Index RegID
	Disp  int64
}

// Operand is one decoded operand. Which value field is meaningful depends on Type.
type Operand struct {
	Type   OpType
	Reg    RegID
	Imm    int64
	Mem    MemRef
	Access Access
	Text   string // operand as printed by the decoder
}

// String is the raw structured form, with ids left numeric.
func (o Operand) String() string {
	var val string
	switch o.Type {
	case OpReg:
		val = fmt.Sprintf("Reg(RegId(%d))", o.Reg)
	case OpImm:
		val = fmt.Sprintf("Imm(%d)", o.Imm)
	case OpMem:
		val = fmt.Sprintf("Mem(MemRef { base: RegId(%d), index: RegId(%d), disp: %d })", o.Mem.Base, o.Mem.Index, o.Mem.Disp)
	default:
		val = fmt.Sprintf("%s(%q)", o.Type, o.Text)
	}
	return fmt.Sprintf("Operand { op_type: %s, access: %s, text: %q }", val, o.Access, o.Text)
}

// parseImmText pulls the first "#<n>" or bare number out of an operand string.
func parseImmText(s string) (int64, bool) {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[i+1:]
	}
	end := strings.IndexAny(s, ",]! ")
	if end >= 0 {
		s = s[:end]
	}
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, true
	}
	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		return int64(v), true
	}
	return 0, false
}
