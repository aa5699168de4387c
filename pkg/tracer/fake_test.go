//go:build linux && amd64

package tracer

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/psarna/sysjack/pkg/regs"
)

const (
	textBase = uintptr(0x401000)
	heapBase = regs.Word(0x600000)
)

type fakeState int

const (
	stateInitial fakeState = iota
	stateSignal
	stateEntry
	stateExit
	stateExited
	stateDetached
)

type fakeSyscall struct {
	nr   int
	args []regs.Word
}

// fakeProcess emulates a tracee running a fixed list of syscalls, one trap
// site per syscall, and the kernel side of ptrace syscall stops.
type fakeProcess struct {
	program []fakeSyscall
	pc      int

	// signals[i] is a stop reported before program syscall i.
	signals map[int]unix.WaitStatus
	// results overrides the emulated result of a syscall number.
	results  map[int]func(args []regs.Word) regs.Word
	brk      regs.Word
	brkStuck bool
	nextFd   regs.Word

	failSetRegs bool

	state   fakeState
	pending *unix.WaitStatus
	r       regs.Regs
	text    map[uintptr]regs.Word
	mem     map[uintptr]regs.Word

	options     int
	executed    []fakeSyscall
	observed    []regs.Word
	delivered   []unix.Signal
	injectSites []uintptr
	pokes       int
	faults      []string
	detached    bool
}

func newFakeProcess(program ...fakeSyscall) *fakeProcess {
	f := &fakeProcess{
		program: program,
		signals: make(map[int]unix.WaitStatus),
		results: make(map[int]func(args []regs.Word) regs.Word),
		brk:     heapBase,
		nextFd:  3,
		text:    make(map[uintptr]regs.Word),
		mem:     make(map[uintptr]regs.Word),
	}
	for i := range program {
		f.text[site(i)] = regs.Word(regs.TrapInstruction[0]) | regs.Word(regs.TrapInstruction[1])<<8
	}
	exec := stoppedStatus(unix.SIGTRAP, 0)
	f.pending = &exec
	return f
}

func site(i int) uintptr {
	return textBase + uintptr(i)*0x10
}

func stoppedStatus(sig unix.Signal, event int) unix.WaitStatus {
	return unix.WaitStatus(0x7f | uint32(sig)<<8 | uint32(event)<<16)
}

func exitedStatus(code int) unix.WaitStatus {
	return unix.WaitStatus(uint32(code) << 8)
}

func negErrno(e unix.Errno) regs.Word {
	return regs.Word(-int64(e))
}

func (f *fakeProcess) fault(format string, args ...interface{}) {
	f.faults = append(f.faults, fmt.Sprintf(format, args...))
}

func (f *fakeProcess) report(ws unix.WaitStatus) {
	f.pending = &ws
}

func (f *fakeProcess) isTrap(addr uintptr) bool {
	w, ok := f.text[addr]
	return ok && w&0xffff == 0x050f
}

func (f *fakeProcess) wait() (unix.WaitStatus, error) {
	if f.pending == nil {
		return 0, unix.ECHILD
	}
	ws := *f.pending
	f.pending = nil
	return ws, nil
}

func (f *fakeProcess) setOptions(opts int) error {
	f.options = opts
	return nil
}

func (f *fakeProcess) resumeSyscall(sig int) error {
	if sig != 0 {
		f.delivered = append(f.delivered, unix.Signal(sig))
	}
	switch f.state {
	case stateInitial, stateSignal:
		f.enterProgram()
	case stateEntry:
		f.execute()
	case stateExit:
		raw := f.r.Raw()
		rip := uintptr(raw.Rip)
		if f.isTrap(rip) {
			f.injectSites = append(f.injectSites, rip)
			raw.Orig_rax = raw.Rax
			raw.Rax = negErrno(unix.ENOSYS)
			raw.Rip += regs.TrapWidth
			f.state = stateEntry
			f.report(stoppedStatus(unix.SIGTRAP|SIGTRAP_MASK, 0))
			return nil
		}
		if rip != site(f.pc)+regs.TrapWidth {
			f.fault("returned to %#x, want %#x", rip, site(f.pc)+regs.TrapWidth)
		}
		f.observed = append(f.observed, raw.Rax)
		f.pc++
		f.enterProgram()
	default:
		return unix.ESRCH
	}
	return nil
}

func (f *fakeProcess) enterProgram() {
	if ws, ok := f.signals[f.pc]; ok {
		delete(f.signals, f.pc)
		f.state = stateSignal
		f.report(ws)
		return
	}
	if f.pc >= len(f.program) {
		f.state = stateExited
		f.report(exitedStatus(0))
		return
	}
	sc := f.program[f.pc]
	raw := f.r.Raw()
	*raw = unix.PtraceRegs{
		Orig_rax: uint64(int64(sc.nr)),
		Rax:      negErrno(unix.ENOSYS),
		Rip:      uint64(site(f.pc) + regs.TrapWidth),
		Rsp:      0x7ffd0000,
	}
	for i, a := range sc.args {
		if err := f.r.SetArgument(i+1, a); err != nil {
			panic(err)
		}
	}
	f.state = stateEntry
	f.report(stoppedStatus(unix.SIGTRAP|SIGTRAP_MASK, 0))
}

func (f *fakeProcess) execute() {
	raw := f.r.Raw()
	nr := f.r.SyscallNumber()
	args := f.r.Arguments()
	f.executed = append(f.executed, fakeSyscall{nr: nr, args: args})

	var ret regs.Word
	if fn, ok := f.results[nr]; ok {
		ret = fn(args)
	} else {
		switch nr {
		case regs.NoSyscall:
			ret = negErrno(unix.ENOSYS)
		case unix.SYS_BRK:
			if args[0] >= heapBase && !f.brkStuck {
				f.brk = args[0]
			}
			ret = f.brk
		case unix.SYS_SOCKET:
			ret = f.nextFd
			f.nextFd++
		case unix.SYS_GETPID:
			ret = 4242
		case unix.SYS_EXIT_GROUP:
			f.state = stateExited
			f.report(exitedStatus(int(args[0])))
			return
		}
	}
	raw.Rax = ret
	f.state = stateExit
	f.report(stoppedStatus(unix.SIGTRAP|SIGTRAP_MASK, 0))
}

func (f *fakeProcess) getRegs() (regs.Regs, error) {
	if f.state != stateEntry && f.state != stateExit {
		return regs.Regs{}, unix.ESRCH
	}
	return f.r, nil
}

func (f *fakeProcess) setRegs(r regs.Regs) error {
	if f.failSetRegs {
		return unix.ESRCH
	}
	if f.state != stateEntry && f.state != stateExit {
		return unix.ESRCH
	}
	f.r = r
	return nil
}

func (f *fakeProcess) peekWord(addr uintptr) (regs.Word, error) {
	if w, ok := f.mem[addr]; ok {
		return w, nil
	}
	if w, ok := f.text[addr]; ok {
		return w, nil
	}
	return 0, unix.EIO
}

func (f *fakeProcess) pokeWord(addr uintptr, w regs.Word) error {
	if regs.Word(addr) < heapBase || regs.Word(addr)+regs.WordSize > f.brk {
		return unix.EIO
	}
	f.pokes++
	f.mem[addr] = w
	return nil
}

func (f *fakeProcess) detach() error {
	if f.state == stateExit && !f.isTrap(uintptr(f.r.Raw().Rip)) {
		f.observed = append(f.observed, f.r.ReturnValue())
	}
	f.detached = true
	f.state = stateDetached
	return nil
}

func (f *fakeProcess) executedNumbers() []int {
	nrs := make([]int, 0, len(f.executed))
	for _, sc := range f.executed {
		nrs = append(nrs, sc.nr)
	}
	return nrs
}
