package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

// arm64asm numbers registers from W0 = 0 and shares encodings between
// SP/XZR and WSP/WZR. RegIDs shift everything up by one so that zero is
// free, then add the stack pointers and the flags register on top.
const (
	arm64SP   = RegID(arm64asm.V31) + 2
	arm64WSP  = RegID(arm64asm.V31) + 3
	arm64NZCV = RegID(arm64asm.V31) + 4
	arm64X30  = RegID(arm64asm.X30) + 1
)

var (
	arm64RegNames  = map[RegID]string{}
	arm64RegByName = map[string]RegID{}
)

func init() {
	for r := arm64asm.W0; r <= arm64asm.V31; r++ {
		id := RegID(r) + 1
		name := strings.ToLower(r.String())
		arm64RegNames[id] = name
		arm64RegByName[name] = id
	}
	for id, name := range map[RegID]string{arm64SP: "sp", arm64WSP: "wsp", arm64NZCV: "nzcv"} {
		arm64RegNames[id] = name
		arm64RegByName[name] = id
	}
}

type arm64Decoder struct {
	detail bool
}

func (d *arm64Decoder) Arch() Arch { return ArchARM64 }
func (d *arm64Decoder) Mode() Mode { return ModeARM }

func (d *arm64Decoder) RegName(id RegID) (string, bool) {
	name, ok := arm64RegNames[id]
	return name, ok
}

func (d *arm64Decoder) GroupName(id GroupID) (string, bool) {
	return groupName(id)
}

// Decode decodes the fixed four byte instruction at the start of code.
func (d *arm64Decoder) Decode(code []byte, addr uint64) (Inst, error) {
	if len(code) < 4 {
		return Inst{}, fmt.Errorf("%w at %#x: %d trailing bytes", ErrUndecodable, addr, len(code))
	}
	raw, err := arm64asm.Decode(code[:4])
	if err != nil {
		return Inst{}, fmt.Errorf("%w at %#x: %v", ErrUndecodable, addr, err)
	}

	mnem, ops, _ := strings.Cut(arm64Text(raw, addr), " ")
	inst := Inst{
		Addr:     addr,
		ID:       uint32(raw.Op),
		Mnemonic: mnem,
		OpStr:    strings.TrimSpace(ops),
		Bytes:    append([]byte(nil), code[:4]...),
	}
	if d.detail {
		arm64Detail(&inst, raw, addr)
	}
	return inst, nil
}

// arm64Text is the GNU syntax with PC-relative operands rewritten as
// absolute addresses.
func arm64Text(inst arm64asm.Inst, addr uint64) string {
	text := strings.TrimSpace(arm64asm.GNUSyntax(inst))
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		if rel, ok := a.(arm64asm.PCRel); ok {
			target := arm64Target(inst, addr, rel)
			text = strings.Replace(text, strings.ToLower(rel.String()), fmt.Sprintf("#%#x", target), 1)
		}
	}
	return text
}

func arm64Target(inst arm64asm.Inst, addr uint64, rel arm64asm.PCRel) uint64 {
	if inst.Op == arm64asm.ADRP {
		return addr&^0xfff + uint64(rel)
	}
	return addr + uint64(rel)
}

func arm64SPReg(r arm64asm.RegSP) RegID {
	switch arm64asm.Reg(r) {
	case arm64asm.SP:
		return arm64SP
	case arm64asm.WSP:
		return arm64WSP
	}
	return RegID(r) + 1
}

// arm64RegFromText resolves the leading register of an operand such as
// "x1, lsl #2" or "{v0.16b, v1.16b}".
func arm64RegFromText(s string) RegID {
	s = strings.TrimLeft(s, "{[ ")
	if end := strings.IndexAny(s, ".,[]} "); end >= 0 {
		s = s[:end]
	}
	return arm64RegByName[s]
}

func arm64Operand(a arm64asm.Arg, inst arm64asm.Inst, addr uint64) Operand {
	op := Operand{Text: strings.ToLower(a.String())}
	switch a := a.(type) {
	case arm64asm.Reg:
		op.Type, op.Reg = OpReg, RegID(a)+1
	case arm64asm.RegSP:
		op.Type, op.Reg = OpReg, arm64SPReg(a)
	case arm64asm.RegExtshiftAmount, arm64asm.RegisterWithArrangement, arm64asm.RegisterWithArrangementAndIndex:
		op.Type, op.Reg = OpReg, arm64RegFromText(op.Text)
	case arm64asm.MemImmediate:
		op.Type = OpMem
		op.Mem.Base = arm64SPReg(a.Base)
		if a.Mode == arm64asm.AddrPostReg {
			if i := strings.LastIndex(op.Text, ", "); i >= 0 {
				op.Mem.Index = arm64RegFromText(op.Text[i+2:])
			}
		} else {
			op.Mem.Disp, _ = parseImmText(op.Text)
		}
	case arm64asm.MemExtend:
		op.Type = OpMem
		op.Mem.Base = arm64SPReg(a.Base)
		op.Mem.Index = RegID(a.Index) + 1
	case arm64asm.PCRel:
		target := arm64Target(inst, addr, a)
		op.Type, op.Imm = OpImm, int64(target)
		op.Text = fmt.Sprintf("#%#x", target)
	case arm64asm.Imm:
		op.Type, op.Imm = OpImm, int64(a.Imm)
	case arm64asm.Imm64:
		op.Type, op.Imm = OpImm, int64(a.Imm)
	case arm64asm.ImmShift, arm64asm.Imm_hint, arm64asm.Imm_clrex, arm64asm.Imm_dcps:
		op.Type = OpImm
		op.Imm, _ = parseImmText(op.Text)
	case arm64asm.Imm_fp:
		op.Type = OpFP
	case arm64asm.Cond:
		op.Type = OpCond
	case arm64asm.Imm_c, arm64asm.Imm_option, arm64asm.Imm_prfop, arm64asm.Pstatefield, arm64asm.Systemreg:
		op.Type = OpSys
	default:
		op.Type = OpOther
	}
	return op
}

var (
	arm64WritesFlags = opSet(
		arm64asm.ADDS, arm64asm.SUBS, arm64asm.ANDS, arm64asm.BICS, arm64asm.ADCS, arm64asm.SBCS,
		arm64asm.NEGS, arm64asm.NGCS, arm64asm.CMP, arm64asm.CMN, arm64asm.TST,
		arm64asm.CCMP, arm64asm.CCMN, arm64asm.FCMP, arm64asm.FCMPE, arm64asm.FCCMP, arm64asm.FCCMPE,
	)
	arm64ReadsFlags = opSet(
		arm64asm.CSEL, arm64asm.CSET, arm64asm.CSETM, arm64asm.CSINC, arm64asm.CSINV, arm64asm.CSNEG,
		arm64asm.CINC, arm64asm.CINV, arm64asm.CNEG, arm64asm.FCSEL, arm64asm.ADC, arm64asm.ADCS,
		arm64asm.SBC, arm64asm.SBCS, arm64asm.NGC, arm64asm.NGCS,
		arm64asm.CCMP, arm64asm.CCMN, arm64asm.FCCMP, arm64asm.FCCMPE,
	)
	// All operands are sources.
	arm64ReadOnly = opSet(
		arm64asm.CMP, arm64asm.CMN, arm64asm.TST, arm64asm.CCMP, arm64asm.CCMN,
		arm64asm.FCMP, arm64asm.FCMPE, arm64asm.FCCMP, arm64asm.FCCMPE, arm64asm.MSR,
		arm64asm.B, arm64asm.BR, arm64asm.BL, arm64asm.BLR, arm64asm.RET,
		arm64asm.CBZ, arm64asm.CBNZ, arm64asm.TBZ, arm64asm.TBNZ,
		arm64asm.PRFM, arm64asm.PRFUM, arm64asm.DC, arm64asm.IC, arm64asm.AT, arm64asm.TLBI, arm64asm.SYS,
	)
	// The destination keeps some of its old bits.
	arm64PartialWrite = opSet(
		arm64asm.MOVK, arm64asm.BFM, arm64asm.BFI, arm64asm.BFXIL, arm64asm.INS,
		arm64asm.FMLA, arm64asm.FMLS, arm64asm.MLA, arm64asm.MLS,
	)
)

func opSet(ops ...arm64asm.Op) map[arm64asm.Op]bool {
	m := make(map[arm64asm.Op]bool, len(ops))
	for _, op := range ops {
		m[op] = true
	}
	return m
}

func isExclusiveStore(name string) bool {
	for _, p := range []string{"stxr", "stlxr", "stxp", "stlxp"} {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// arm64Detail fills operands, register effects and groups. arm64asm
// reports none of these, so they are derived from the operand list and
// the opcode family.
func arm64Detail(out *Inst, inst arm64asm.Inst, addr uint64) {
	var ops []Operand
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		ops = append(ops, arm64Operand(a, inst, addr))
	}

	name := strings.ToLower(inst.Op.String())
	firstDst := true
	seenMem := false
	for i := range ops {
		o := &ops[i]
		if o.Type == OpMem {
			seenMem = true
			o.Access = AccessRead
			if m, ok := inst.Args[i].(arm64asm.MemImmediate); ok && m.Mode != arm64asm.AddrOffset {
				o.Access |= AccessWrite
			}
			continue
		}
		if o.Type != OpReg {
			continue
		}
		switch {
		case arm64ReadOnly[inst.Op]:
			o.Access = AccessRead
		case isExclusiveStore(name):
			if i == 0 {
				o.Access = AccessWrite
			} else {
				o.Access = AccessRead
			}
		case strings.HasPrefix(name, "st"):
			o.Access = AccessRead
		case strings.HasPrefix(name, "ld"):
			if seenMem {
				o.Access = AccessRead
			} else {
				o.Access = AccessWrite
			}
		case firstDst:
			o.Access = AccessWrite
			if arm64PartialWrite[inst.Op] {
				o.Access |= AccessRead
			}
			firstDst = false
		default:
			o.Access = AccessRead
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
			read = appendUnique(read, o.Mem.Base, o.Mem.Index)
			if o.Access&AccessWrite != 0 {
				write = appendUnique(write, o.Mem.Base)
			}
		}
	}

	_, condBranch := inst.Args[0].(arm64asm.Cond)
	if arm64ReadsFlags[inst.Op] || (inst.Op == arm64asm.B && condBranch) {
		read = appendUnique(read, arm64NZCV)
	}
	if arm64WritesFlags[inst.Op] {
		write = appendUnique(write, arm64NZCV)
	}
	if inst.Op == arm64asm.BL || inst.Op == arm64asm.BLR {
		write = appendUnique(write, arm64X30)
	}

	out.Operands = ops
	out.RegsRead = read
	out.RegsWrite = write
	out.Groups = arm64Groups(inst.Op)
}

func arm64Groups(op arm64asm.Op) []GroupID {
	switch op {
	case arm64asm.B, arm64asm.CBZ, arm64asm.CBNZ, arm64asm.TBZ, arm64asm.TBNZ:
		return []GroupID{GroupJump, GroupBranchRelative}
	case arm64asm.BR:
		return []GroupID{GroupJump}
	case arm64asm.BL:
		return []GroupID{GroupCall, GroupBranchRelative}
	case arm64asm.BLR:
		return []GroupID{GroupCall}
	case arm64asm.RET:
		return []GroupID{GroupRet}
	case arm64asm.ERET, arm64asm.DRPS:
		return []GroupID{GroupRet, GroupPrivilege}
	case arm64asm.SVC, arm64asm.BRK, arm64asm.HLT:
		return []GroupID{GroupInt}
	case arm64asm.HVC, arm64asm.SMC:
		return []GroupID{GroupInt, GroupPrivilege}
	}
	return nil
}
