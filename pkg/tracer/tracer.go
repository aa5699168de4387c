package tracer

import (
	"runtime"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"

	"github.com/psarna/sysjack/pkg/regs"
	"github.com/psarna/sysjack/pkg/script"
	"github.com/psarna/sysjack/pkg/sysno"
)

// ResumeMode decides what handing a syscall back to the tracee means.
type ResumeMode int

const (
	// ResumeContinue lets the syscall run and keeps tracing.
	ResumeContinue ResumeMode = iota
	// ResumeDetach detaches from the tracee and ends the session.
	ResumeDetach
)

type Option func(*Tracer)

func WithResumeMode(m ResumeMode) Option {
	return func(t *Tracer) { t.mode = m }
}

type Tracer struct {
	tracee  *Tracee
	proc    process
	mode    ResumeMode
	hooks   map[int]*script.Script
	store   *Store
	current regs.Regs
}

func New(tracee *Tracee, opts ...Option) *Tracer {
	return newTracer(tracee, ptraceProcess{pid: tracee.pid}, opts...)
}

func newTracer(tracee *Tracee, proc process, opts ...Option) *Tracer {
	t := &Tracer{
		tracee: tracee,
		proc:   proc,
		hooks:  make(map[int]*script.Script),
		store:  NewStore(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Hook registers s for syscall nr. There is at most one script per syscall.
func (t *Tracer) Hook(nr int, s *script.Script) error {
	if s == nil {
		return errors.WithDetails(ErrNilScript, "syscall", sysno.Name(nr))
	}
	if _, ok := t.hooks[nr]; ok {
		return errors.WithDetails(ErrAlreadyHooked, "syscall", sysno.Name(nr))
	}
	t.hooks[nr] = s
	return nil
}

func (t *Tracer) Regs(name string) (regs.Regs, bool) { return t.store.Regs(name) }

func (t *Tracer) Value(name string) (regs.Word, bool) { return t.store.Value(name) }

// Sync drives the tracee until it exits or is detached. Errors that are
// not *FatalError leave the tracee stopped; it is killed when the tracer
// exits.
func (t *Tracer) Sync() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := t.handshake(); err != nil {
		return err
	}

	for {
		entry, err := t.step()
		if exited(err) {
			debugf("tracee %d exited", t.tracee.pid)
			return nil
		}
		if err != nil {
			return err
		}

		nr := entry.SyscallNumber()
		s, ok := t.hooks[nr]
		var detached bool
		if ok {
			detached, err = t.run(nr, s)
		} else {
			debugf("syscall entry: %s args=%#x", sysno.Name(nr), entry.Arguments())
			detached, err = t.resume()
		}
		if exited(err) {
			debugf("tracee %d exited", t.tracee.pid)
			return nil
		}
		if err != nil || detached {
			return err
		}
	}
}

func (t *Tracer) handshake() error {
	ws, err := t.proc.wait()
	if err != nil {
		return t.fatal("wait4", err)
	}
	if !ws.Stopped() {
		t.tracee.setExited(ws)
		return t.fatal("initial wait", errors.Errorf("tracee is not stopped: status %#x", uint32(ws)))
	}
	if err := t.proc.setOptions(ptraceOptions); err != nil {
		return t.fatal("ptrace setoptions", err)
	}
	return nil
}

// step resumes the tracee up to its next syscall stop and makes the
// snapshot taken there current. Signals met on the way are delivered.
func (t *Tracer) step() (regs.Regs, error) {
	sig := 0
	for {
		if err := t.proc.resumeSyscall(sig); err != nil {
			return regs.Regs{}, t.fatal("ptrace syscall", err)
		}
		ws, err := t.proc.wait()
		if err != nil {
			return regs.Regs{}, t.fatal("wait4", err)
		}

		switch {
		case ws.Exited() || ws.Signaled():
			t.tracee.setExited(ws)
			return regs.Regs{}, errors.WithDetails(errExited, "status", uint32(ws))
		case !ws.Stopped():
			sig = 0
		case ws.StopSignal() == unix.SIGTRAP|SIGTRAP_MASK:
			r, err := t.proc.getRegs()
			if err != nil {
				return regs.Regs{}, t.fatal("ptrace getregs", err)
			}
			t.current = r
			return r, nil
		case ws.StopSignal() == unix.SIGTRAP && int(ws>>16)&0xff != 0:
			// exec and other ptrace events
			sig = 0
		default:
			debugf("delivering %v to %d", ws.StopSignal(), t.tracee.pid)
			sig = int(ws.StopSignal())
		}
	}
}

func exited(err error) bool {
	return err != nil && !IsFatal(err) && errors.Is(err, errExited)
}

// stepScript is step inside a script, where the tracee vanishing breaks
// the protocol.
func (t *Tracer) stepScript() (regs.Regs, error) {
	r, err := t.step()
	if errors.Is(err, errExited) {
		return r, t.fatal("step", err)
	}
	return r, err
}

// resume hands the syscall at the current entry stop back to the tracee.
func (t *Tracer) resume() (bool, error) {
	if t.mode == ResumeDetach {
		return true, t.detach()
	}
	_, err := t.step()
	return false, err
}

func (t *Tracer) setRegs(r regs.Regs) error {
	if err := t.proc.setRegs(r); err != nil {
		return t.fatal("ptrace setregs", err)
	}
	t.current = r
	return nil
}

func (t *Tracer) detach() error {
	if err := t.proc.detach(); err != nil {
		return t.fatal("ptrace detach", err)
	}
	debugf("detached from %d", t.tracee.pid)
	return nil
}
