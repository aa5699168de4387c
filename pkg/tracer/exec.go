package tracer

import (
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"

	"github.com/psarna/sysjack/pkg/regs"
	"github.com/psarna/sysjack/pkg/script"
	"github.com/psarna/sysjack/pkg/sysno"
)

// brkQuery makes brk() report the current break without moving it.
const brkQuery = 0

// run executes s at the entry stop of syscall nr. It reports whether the
// tracee was detached.
func (t *Tracer) run(nr int, s *script.Script) (bool, error) {
	starter := s.Starter()
	entry := t.current

	fired, err := starter.Activation.Signal(entry.Arguments())
	if err != nil {
		return false, errors.WithDetails(err, "syscall", sysno.Name(nr))
	}
	logIntercept(t.tracee.pid, nr, fired, starter.Skip)
	if !fired {
		return t.resume()
	}

	skip := starter.Skip
	t.store.SetRegs(skip.RegsEnter, entry)
	var orig regs.Word
	if skip.Keep {
		exit, err := t.stepScript()
		if err != nil {
			return false, err
		}
		orig = exit.ReturnValue()
		t.store.SetRegs(skip.RegsExit, exit)
		t.store.SetValue(skip.Ret, orig)
	} else if err := t.cancel(); err != nil {
		return false, err
	}

	for _, in := range s.Instructions() {
		switch in := in.(type) {
		case script.Call:
			ret, err := t.call(in)
			if err != nil {
				return false, err
			}
			if regs.IsErrno(ret) {
				return t.fail(s, entry, orig, ret)
			}
		case script.Alloc:
			if err := t.alloc(in); err != nil {
				return false, err
			}
		case script.Ret:
			return t.ret(in.Val)
		}
	}
	return false, nil
}

// cancel turns the syscall at the current entry stop into a no-op and
// steps to its exit stop, which becomes the base for injection.
func (t *Tracer) cancel() error {
	r := t.current
	r.SetSyscallNumber(regs.NoSyscall)
	if err := t.setRegs(r); err != nil {
		return err
	}
	_, err := t.stepScript()
	return err
}

// inject replays the trap site of the current exit stop as syscall nr.
func (t *Tracer) inject(nr int, args []regs.Word) (regs.Regs, regs.Regs, error) {
	r := t.current
	r.RewindTrapSite()
	r.SetSyscallNumber(nr)
	if len(args) > 0 {
		if err := r.SetArguments(args); err != nil {
			return regs.Regs{}, regs.Regs{}, errors.WithDetails(err, "syscall", sysno.Name(nr))
		}
	}
	if err := t.setRegs(r); err != nil {
		return regs.Regs{}, regs.Regs{}, err
	}

	enter, err := t.stepScript()
	if err != nil {
		return regs.Regs{}, regs.Regs{}, err
	}
	exit, err := t.stepScript()
	if err != nil {
		return regs.Regs{}, regs.Regs{}, err
	}
	logInject(t.tracee.pid, nr, args, exit.ReturnValue())
	return enter, exit, nil
}

func (t *Tracer) call(c script.Call) (regs.Word, error) {
	args := make([]regs.Word, 0, len(c.Vals))
	for _, v := range c.Vals {
		w, err := v.Resolve(t.store)
		if err != nil {
			return 0, errors.WithDetails(err, "syscall", sysno.Name(c.Sysno))
		}
		args = append(args, w)
	}

	enter, exit, err := t.inject(c.Sysno, args)
	if err != nil {
		return 0, err
	}
	t.store.SetRegs(c.Ctrl.RegsEnter, enter)
	t.store.SetRegs(c.Ctrl.RegsExit, exit)
	t.store.SetValue(c.Ctrl.Ret, exit.ReturnValue())
	return exit.ReturnValue(), nil
}

func (t *Tracer) alloc(a script.Alloc) error {
	if len(a.Blob) == 0 {
		return errors.WithDetails(ErrZeroBlob, "name", a.Name)
	}

	_, exit, err := t.inject(unix.SYS_BRK, []regs.Word{brkQuery})
	if err != nil {
		return err
	}
	base := exit.ReturnValue()
	if regs.IsErrno(base) {
		return errors.WithDetails(ErrBrkFailed, "name", a.Name, "ret", base)
	}

	target := base + regs.Word(len(a.Blob))*regs.WordSize
	_, exit, err = t.inject(unix.SYS_BRK, []regs.Word{target})
	if err != nil {
		return err
	}
	if got := exit.ReturnValue(); got != target {
		return errors.WithDetails(ErrBrkMismatch, "name", a.Name, "expected", target, "got", got)
	}

	if err := writeWords(t.proc, uintptr(base), a.Blob); err != nil {
		return t.fatal("ptrace pokedata", err)
	}
	t.store.SetValue(a.Name, base)
	logAlloc(t.tracee.pid, a.Name, base, len(a.Blob))
	return nil
}

func (t *Tracer) ret(v script.Val) (bool, error) {
	w, err := v.Resolve(t.store)
	if err != nil {
		return false, err
	}
	r := t.current
	r.SetReturnValue(w)
	if err := t.setRegs(r); err != nil {
		return false, err
	}
	logBindings(t.tracee.pid, t.store)
	if t.mode == ResumeDetach {
		return true, t.detach()
	}
	return false, nil
}

// fail applies the script's FailControl after an injected call returned
// the errno ret. entry is the original syscall's entry snapshot and orig
// its result when it was kept.
func (t *Tracer) fail(s *script.Script, entry regs.Regs, orig, ret regs.Word) (bool, error) {
	debugf("injected call failed with %d, policy %s", int64(ret), s.FailControl())
	if s.FailControl() != script.FailFallback {
		return t.ret(script.Raw(ret))
	}

	if s.Starter().Skip.Keep {
		return t.ret(script.Raw(orig))
	}
	_, exit, err := t.inject(entry.SyscallNumber(), entry.Arguments())
	if err != nil {
		return false, err
	}
	return t.ret(script.Raw(exit.ReturnValue()))
}
