package hook

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/arch/x86/x86asm"
)

const (
	jmpRel32Len = 5
	jmpAbs64Len = 14
	maxInstLen  = 15

	// slotSize is the fixed size of one trampoline.
	slotSize = 64
)

// fitsRel32 reports whether a rel32 operand ending at next can reach to.
// In 32-bit mode displacements wrap and always reach.
func fitsRel32(mode int, next, to uintptr) bool {
	if mode == 32 {
		return true
	}
	d := int64(to) - int64(next)
	return d >= math.MinInt32 && d <= math.MaxInt32
}

func rel32(next, to uintptr) uint32 {
	return uint32(uint64(to) - uint64(next))
}

// encodeJmp emits a jump placed at from to to.
func encodeJmp(mode int, from, to uintptr) []byte {
	if fitsRel32(mode, from+jmpRel32Len, to) {
		b := make([]byte, jmpRel32Len)
		b[0] = 0xE9
		binary.LittleEndian.PutUint32(b[1:], rel32(from+jmpRel32Len, to))
		return b
	}
	// jmp qword ptr [rip+0]; dq to
	b := make([]byte, jmpAbs64Len)
	b[0], b[1] = 0xFF, 0x25
	binary.LittleEndian.PutUint64(b[6:], uint64(to))
	return b
}

// patchLen is the number of bytes the jump at target occupies.
func patchLen(mode int, target, replacement uintptr) int {
	return len(encodeJmp(mode, target, replacement))
}

func isPadding(b []byte) bool {
	for _, c := range b {
		if c != 0xCC && c != 0x90 && c != 0x00 {
			return false
		}
	}
	return true
}

// relocation is a prologue copied into a trampoline.
type relocation struct {
	code    []byte // trampoline contents
	copyLen int    // bytes of the original consumed
}

// relocate copies whole instructions from code (read at target) into a
// trampoline at tramp until at least need bytes are covered, then appends
// a jump back to the first uncopied instruction.
func relocate(mode int, code []byte, target, tramp uintptr, need int) (relocation, error) {
	var (
		out      []byte
		pos      int
		terminal bool
		dests    []uintptr
	)

	for pos < need {
		if pos >= len(code) {
			return relocation{}, fmt.Errorf("%w: prologue truncated at +%d", ErrDecode, pos)
		}
		inst, err := x86asm.Decode(code[pos:], mode)
		if err != nil {
			return relocation{}, fmt.Errorf("%w at +%d: %v", ErrDecode, pos, err)
		}
		raw := code[pos : pos+inst.Len]
		src := target + uintptr(pos)
		dst := tramp + uintptr(len(out))
		next := pos + inst.Len

		switch {
		case inst.Op == x86asm.RET || inst.Op == x86asm.LRET || raw[0] == 0xCC:
			out = append(out, raw...)
			terminal = true

		case inst.PCRel == 0:
			out = append(out, raw...)

		case isRIPRelative(inst):
			disp := int64(int32(binary.LittleEndian.Uint32(raw[inst.PCRelOff:])))
			abs := int64(src) + int64(inst.Len) + disp
			moved := abs - (int64(dst) + int64(inst.Len))
			if moved < math.MinInt32 || moved > math.MaxInt32 {
				return relocation{}, fmt.Errorf("%w: %s at +%d", ErrRIPOutOfRange, inst.Op, pos)
			}
			cp := append([]byte(nil), raw...)
			binary.LittleEndian.PutUint32(cp[inst.PCRelOff:], uint32(int32(moved)))
			out = append(out, cp...)

		default:
			rel, ok := relArg(inst)
			if !ok || inst.PCRel == 2 {
				return relocation{}, fmt.Errorf("%w: %s at +%d", ErrUnsupportedInst, inst.Op, pos)
			}
			dest := uintptr(int64(src) + int64(inst.Len) + rel)
			dests = append(dests, dest)

			enc, isJmp, err := encodeBranch(mode, inst, dst, dest)
			if err != nil {
				return relocation{}, fmt.Errorf("%w at +%d", err, pos)
			}
			out = append(out, enc...)
			terminal = isJmp
		}

		pos = next
		if terminal {
			if pos < need {
				if len(code) < need || !isPadding(code[pos:need]) {
					return relocation{}, fmt.Errorf("%w: %d of %d bytes", ErrReturnInPatch, pos, need)
				}
				pos = need
			}
			break
		}
	}

	for _, d := range dests {
		if d >= target && d < target+uintptr(pos) {
			return relocation{}, fmt.Errorf("%w: %#x", ErrBranchIntoPatch, d)
		}
	}

	if !terminal {
		out = append(out, encodeJmp(mode, tramp+uintptr(len(out)), target+uintptr(pos))...)
	}
	if len(out) > slotSize {
		return relocation{}, fmt.Errorf("%w: %d bytes", ErrTrampolineTooBig, len(out))
	}
	return relocation{code: out, copyLen: pos}, nil
}

func isRIPRelative(inst x86asm.Inst) bool {
	for _, a := range inst.Args {
		if m, ok := a.(x86asm.Mem); ok && m.Base == x86asm.RIP {
			return true
		}
	}
	return false
}

func relArg(inst x86asm.Inst) (int64, bool) {
	for _, a := range inst.Args {
		if r, ok := a.(x86asm.Rel); ok {
			return int64(r), true
		}
	}
	return 0, false
}

// encodeBranch re-encodes a relative jmp, call or jcc placed at from so it
// still reaches dest. isJmp reports an unconditional jump.
func encodeBranch(mode int, inst x86asm.Inst, from, dest uintptr) (code []byte, isJmp bool, err error) {
	op0 := byte(inst.Opcode >> 24)
	op1 := byte(inst.Opcode >> 16)

	switch {
	case inst.Op == x86asm.JMP && (op0 == 0xEB || op0 == 0xE9):
		return encodeJmp(mode, from, dest), true, nil

	case inst.Op == x86asm.CALL && op0 == 0xE8:
		if fitsRel32(mode, from+5, dest) {
			b := make([]byte, 5)
			b[0] = 0xE8
			binary.LittleEndian.PutUint32(b[1:], rel32(from+5, dest))
			return b, false, nil
		}
		// call [rip+2]; jmp +8; dq dest
		b := []byte{0xFF, 0x15, 0x02, 0x00, 0x00, 0x00, 0xEB, 0x08, 0, 0, 0, 0, 0, 0, 0, 0}
		binary.LittleEndian.PutUint64(b[8:], uint64(dest))
		return b, false, nil
	}

	var cc byte
	switch {
	case op0 >= 0x70 && op0 <= 0x7F:
		cc = op0 - 0x70
	case op0 == 0x0F && op1 >= 0x80 && op1 <= 0x8F:
		cc = op1 - 0x80
	default:
		// jcxz, loop and friends only have rel8 forms.
		return nil, false, fmt.Errorf("%w: %s", ErrUnsupportedInst, inst.Op)
	}

	if fitsRel32(mode, from+6, dest) {
		b := make([]byte, 6)
		b[0], b[1] = 0x0F, 0x80|cc
		binary.LittleEndian.PutUint32(b[2:], rel32(from+6, dest))
		return b, false, nil
	}
	// j!cc +14; jmp [rip+0]; dq dest
	b := make([]byte, 2+jmpAbs64Len)
	b[0], b[1] = 0x70|(cc^1), jmpAbs64Len
	b[2], b[3] = 0xFF, 0x25
	binary.LittleEndian.PutUint64(b[8:], uint64(dest))
	return b, false, nil
}
