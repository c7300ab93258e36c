package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

const (
	x86RFLAGS = RegID(x86asm.TR7) + 1
	x86RSP    = RegID(x86asm.RSP)
)

var x86RegNames = map[RegID]string{}

func init() {
	for r := x86asm.AL; r <= x86asm.TR7; r++ {
		x86RegNames[RegID(r)] = strings.ToLower(r.String())
	}
	x86RegNames[x86RFLAGS] = "rflags"
}

type x86Decoder struct {
	detail bool
}

func (d *x86Decoder) Arch() Arch { return ArchX86 }
func (d *x86Decoder) Mode() Mode { return Mode64 }

func (d *x86Decoder) RegName(id RegID) (string, bool) {
	name, ok := x86RegNames[id]
	return name, ok
}

func (d *x86Decoder) GroupName(id GroupID) (string, bool) {
	return groupName(id)
}

// Decode decodes one variable length instruction in 64-bit mode.
func (d *x86Decoder) Decode(code []byte, addr uint64) (Inst, error) {
	if len(code) == 0 {
		return Inst{}, fmt.Errorf("%w at %#x: empty", ErrUndecodable, addr)
	}
	raw, err := x86asm.Decode(code, 64)
	if err != nil {
		return Inst{}, fmt.Errorf("%w at %#x: %v", ErrUndecodable, addr, err)
	}
	// A lone prefix or truncated opcode decodes without error as Op 0.
	if raw.Len == 0 || raw.Op == 0 {
		return Inst{}, fmt.Errorf("%w at %#x: incomplete instruction % x", ErrUndecodable, addr, code[:max(raw.Len, 1)])
	}

	text := x86asm.IntelSyntax(raw, addr, nil)
	mnem, ops, _ := strings.Cut(text, " ")
	inst := Inst{
		Addr:     addr,
		ID:       uint32(raw.Op),
		Mnemonic: strings.ToLower(mnem),
		OpStr:    strings.TrimSpace(ops),
		Bytes:    append([]byte(nil), code[:raw.Len]...),
	}
	if d.detail {
		x86Detail(&inst, raw, addr)
	}
	return inst, nil
}

var (
	// Destination is written without being read.
	x86PureWrite = map[x86asm.Op]bool{
		x86asm.MOV: true, x86asm.MOVZX: true, x86asm.MOVSX: true, x86asm.MOVSXD: true,
		x86asm.LEA: true, x86asm.POP: true, x86asm.MOVAPS: true, x86asm.MOVUPS: true,
		x86asm.MOVD: true, x86asm.MOVQ: true, x86asm.MOVSD_XMM: true, x86asm.MOVSS: true,
	}
	x86ReadOnly = map[x86asm.Op]bool{
		x86asm.CMP: true, x86asm.TEST: true, x86asm.PUSH: true, x86asm.CALL: true,
		x86asm.JMP: true, x86asm.BT: true, x86asm.UCOMISD: true, x86asm.UCOMISS: true,
		x86asm.COMISD: true, x86asm.COMISS: true,
	}
	x86WritesFlags = map[x86asm.Op]bool{
		x86asm.ADD: true, x86asm.ADC: true, x86asm.SUB: true, x86asm.SBB: true,
		x86asm.AND: true, x86asm.OR: true, x86asm.XOR: true, x86asm.CMP: true,
		x86asm.TEST: true, x86asm.INC: true, x86asm.DEC: true, x86asm.NEG: true,
		x86asm.SHL: true, x86asm.SHR: true, x86asm.SAR: true, x86asm.ROL: true,
		x86asm.ROR: true, x86asm.IMUL: true, x86asm.MUL: true, x86asm.BT: true,
		x86asm.UCOMISD: true, x86asm.UCOMISS: true, x86asm.COMISD: true, x86asm.COMISS: true,
	}
)

// x86Conditional reports opcodes that consume flags: jcc, setcc, cmovcc, adc, sbb.
func x86Conditional(op x86asm.Op) bool {
	name := op.String()
	switch {
	case op == x86asm.JMP || op == x86asm.JCXZ || op == x86asm.JECXZ || op == x86asm.JRCXZ:
		return false
	case strings.HasPrefix(name, "J"), strings.HasPrefix(name, "SET"), strings.HasPrefix(name, "CMOV"):
		return true
	}
	return op == x86asm.ADC || op == x86asm.SBB
}

func x86Operand(a x86asm.Arg, inst x86asm.Inst, addr uint64) Operand {
	op := Operand{Text: strings.ToLower(a.String())}
	switch a := a.(type) {
	case x86asm.Reg:
		op.Type, op.Reg = OpReg, RegID(a)
	case x86asm.Mem:
		op.Type = OpMem
		op.Mem = MemRef{Base: RegID(a.Base), Index: RegID(a.Index), Disp: a.Disp}
	case x86asm.Imm:
		op.Type, op.Imm = OpImm, int64(a)
	case x86asm.Rel:
		target := addr + uint64(inst.Len) + uint64(int64(a))
		op.Type, op.Imm = OpImm, int64(target)
		op.Text = fmt.Sprintf("%#x", target)
	default:
		op.Type = OpOther
	}
	return op
}

// x86Detail derives register effects from the Intel-order operand list:
// the first operand is the destination unless the opcode only reads.
func x86Detail(out *Inst, inst x86asm.Inst, addr uint64) {
	var ops []Operand
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		ops = append(ops, x86Operand(a, inst, addr))
	}

	for i := range ops {
		o := &ops[i]
		switch {
		case o.Type == OpMem:
			o.Access = AccessRead
			if i == 0 && !x86ReadOnly[inst.Op] {
				o.Access |= AccessWrite
			}
		case o.Type != OpReg:
		case i > 0 || x86ReadOnly[inst.Op]:
			o.Access = AccessRead
		case x86PureWrite[inst.Op] || strings.HasPrefix(inst.Op.String(), "SET"):
			o.Access = AccessWrite
		default:
			o.Access = AccessRead | AccessWrite
		}
	}

	var read, write []RegID
	for _, o := range ops {
		switch o.Type {
		case OpReg:
			if o.Access&AccessRead != 0 {
				read = appendUnique(read, o.Reg)
			}
			if o.Access&AccessWrite != 0 {
				write = appendUnique(write, o.Reg)
			}
		case OpMem:
			// The memory operand's own write goes to memory, not a register.
			read = appendUnique(read, o.Mem.Base, o.Mem.Index)
		}
	}

	switch inst.Op {
	case x86asm.PUSH, x86asm.POP, x86asm.CALL, x86asm.RET:
		read = appendUnique(read, x86RSP)
		write = appendUnique(write, x86RSP)
	}
	if x86Conditional(inst.Op) {
		read = appendUnique(read, x86RFLAGS)
	}
	if x86WritesFlags[inst.Op] {
		write = appendUnique(write, x86RFLAGS)
	}

	out.Operands = ops
	out.RegsRead = read
	out.RegsWrite = write
	out.Groups = x86Groups(inst)
}

func x86Groups(inst x86asm.Inst) []GroupID {
	var rel bool
	if _, ok := inst.Args[0].(x86asm.Rel); ok {
		rel = true
	}
	var g []GroupID
	switch {
	case inst.Op == x86asm.CALL:
		g = append(g, GroupCall)
	case inst.Op == x86asm.RET, inst.Op == x86asm.IRETQ:
		g = append(g, GroupRet)
	case inst.Op == x86asm.JMP, strings.HasPrefix(inst.Op.String(), "J"), inst.Op == x86asm.LOOP:
		g = append(g, GroupJump)
	case inst.Op == x86asm.INT, inst.Op == x86asm.SYSCALL, inst.Op == x86asm.INTO, inst.Op == x86asm.ICEBP:
		g = append(g, GroupInt)
	case inst.Op == x86asm.HLT, inst.Op == x86asm.CLI, inst.Op == x86asm.STI,
		inst.Op == x86asm.IN, inst.Op == x86asm.OUT:
		g = append(g, GroupPrivilege)
	}
	if rel {
		g = append(g, GroupBranchRelative)
	}
	return g
}
