//go:build linux && amd64

package regs

import (
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"
)

const (
	ArgCount = 6

	// TrapWidth is the length of the syscall instruction (0f 05).
	TrapWidth = 2
)

var TrapInstruction = [TrapWidth]byte{0x0f, 0x05}

type Regs struct {
	raw unix.PtraceRegs
}

func FromRaw(raw unix.PtraceRegs) Regs { return Regs{raw: raw} }

func (r *Regs) Raw() *unix.PtraceRegs { return &r.raw }

// SyscallNumber reads orig_rax, which survives the kernel writing the
// return value into rax.
func (r *Regs) SyscallNumber() int { return int(int64(r.raw.Orig_rax)) }

// SetSyscallNumber writes both orig_rax and rax: the kernel dispatches on
// orig_rax at an entry stop and on rax when the trap site is replayed.
func (r *Regs) SetSyscallNumber(n int) {
	r.raw.Orig_rax = uint64(int64(n))
	r.raw.Rax = uint64(int64(n))
}

func (r *Regs) ReturnValue() Word     { return r.raw.Rax }
func (r *Regs) SetReturnValue(v Word) { r.raw.Rax = v }

func (r *Regs) InstructionPointer() Word     { return r.raw.Rip }
func (r *Regs) SetInstructionPointer(v Word) { r.raw.Rip = v }

func (r *Regs) Arguments() []Word {
	return []Word{r.raw.Rdi, r.raw.Rsi, r.raw.Rdx, r.raw.R10, r.raw.R8, r.raw.R9}
}

// SetArgument sets the 1-based argument slot idx.
func (r *Regs) SetArgument(idx int, v Word) error {
	switch idx {
	case 1:
		r.raw.Rdi = v
	case 2:
		r.raw.Rsi = v
	case 3:
		r.raw.Rdx = v
	case 4:
		r.raw.R10 = v
	case 5:
		r.raw.R8 = v
	case 6:
		r.raw.R9 = v
	default:
		return errors.WithDetails(ErrArgumentIndex, "index", idx, "max", ArgCount)
	}
	return nil
}

func (r *Regs) SetArguments(vals []Word) error {
	if len(vals) == 0 {
		return errors.WithStack(ErrNoArguments)
	}
	if len(vals) > ArgCount {
		return errors.WithDetails(ErrTooManyArguments, "count", len(vals), "max", ArgCount)
	}
	for i, v := range vals {
		if err := r.SetArgument(i+1, v); err != nil {
			return err
		}
	}
	return nil
}

// RewindTrapSite moves rip back over the syscall instruction so that
// resuming re-enters the same trap.
func (r *Regs) RewindTrapSite() {
	r.raw.Rip -= TrapWidth
}
