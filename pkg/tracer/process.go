package tracer

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/psarna/sysjack/pkg/regs"
)

const (
	ptraceOptions = unix.PTRACE_O_EXITKILL | unix.PTRACE_O_TRACESYSGOOD | unix.PTRACE_O_TRACEEXEC

	SIGTRAP_MASK = 0x80
)

// process is the set of ptrace primitives the control loop is written
// against.
type process interface {
	wait() (unix.WaitStatus, error)
	setOptions(opts int) error
	resumeSyscall(sig int) error
	getRegs() (regs.Regs, error)
	setRegs(r regs.Regs) error
	peekWord(addr uintptr) (regs.Word, error)
	pokeWord(addr uintptr, w regs.Word) error
	detach() error
}

type ptraceProcess struct {
	pid int
}

func (p ptraceProcess) wait() (unix.WaitStatus, error) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(p.pid, &ws, unix.WALL, nil)
		if err == unix.EINTR {
			continue
		}
		return ws, err
	}
}

func (p ptraceProcess) setOptions(opts int) error {
	return unix.PtraceSetOptions(p.pid, opts)
}

func (p ptraceProcess) resumeSyscall(sig int) error {
	return unix.PtraceSyscall(p.pid, sig)
}

func (p ptraceProcess) getRegs() (regs.Regs, error) {
	var raw unix.PtraceRegs
	if err := unix.PtraceGetRegs(p.pid, &raw); err != nil {
		return regs.Regs{}, err
	}
	return regs.FromRaw(raw), nil
}

func (p ptraceProcess) setRegs(r regs.Regs) error {
	return unix.PtraceSetRegs(p.pid, r.Raw())
}

func (p ptraceProcess) peekWord(addr uintptr) (regs.Word, error) {
	var buf [regs.WordSize]byte
	if _, err := unix.PtracePeekData(p.pid, addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}

func (p ptraceProcess) pokeWord(addr uintptr, w regs.Word) error {
	var buf [regs.WordSize]byte
	binary.NativeEndian.PutUint64(buf[:], w)
	_, err := unix.PtracePokeData(p.pid, addr, buf[:])
	return err
}

func (p ptraceProcess) detach() error {
	return unix.PtraceDetach(p.pid)
}
