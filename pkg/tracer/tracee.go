package tracer

import (
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"
)

// Tracee is the process under trace.
type Tracee struct {
	pid    int
	exited bool
	status unix.WaitStatus
}

// NewTracee wraps a process that is already stopped at its first trap with
// tracing enabled.
func NewTracee(pid int) *Tracee {
	return &Tracee{pid: pid}
}

// Start launches path with tracing enabled in the child. The child stops at
// its first trap after exec. ptrace binds the tracee to the thread that
// forked it, so Start locks the calling goroutine to its OS thread and the
// Tracer must be synced from the same goroutine.
func Start(path string, args []string) (*Tracee, error) {
	runtime.LockOSThread()

	cmd := exec.Command(path, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Ptrace: true,
	}

	if err := cmd.Start(); err != nil {
		runtime.UnlockOSThread()
		return nil, errors.WithMessage(err, "failed to start command")
	}

	logStart(cmd.Process.Pid, cmd.Args)
	return NewTracee(cmd.Process.Pid), nil
}

func (t *Tracee) Pid() int { return t.pid }

// Wait waits for a detached tracee and returns its exit code. A tracee whose
// exit the Tracer already observed is not waited for again.
func (t *Tracee) Wait() (int, error) {
	if !t.exited {
		var ws unix.WaitStatus
		for {
			_, err := unix.Wait4(t.pid, &ws, unix.WALL, nil)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				return -1, errors.WithMessage(err, "wait4")
			}
			if ws.Exited() || ws.Signaled() {
				break
			}
		}
		t.setExited(ws)
	}
	if t.status.Signaled() {
		return 128 + int(t.status.Signal()), nil
	}
	return t.status.ExitStatus(), nil
}

func (t *Tracee) setExited(ws unix.WaitStatus) {
	t.exited = true
	t.status = ws
}
