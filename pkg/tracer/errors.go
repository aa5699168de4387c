package tracer

import (
	"fmt"

	"gitlab.com/tozd/go/errors"
)

var (
	ErrAlreadyHooked = errors.Base("syscall is already hooked")
	ErrNilScript     = errors.Base("nil script")
	ErrZeroBlob      = errors.Base("zero-sized blob")
	ErrBrkFailed     = errors.Base("brk() failed")
	ErrBrkMismatch   = errors.Base("brk() did not move to the requested boundary")

	errExited = errors.Base("tracee exited")
)

// FatalError is a failure of the ptrace/wait contract itself. The tracee
// state is unknown afterwards and the session cannot continue.
type FatalError struct {
	Op  string
	Pid int
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s (pid %d): %v", e.Op, e.Pid, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

func (t *Tracer) fatal(op string, err error) error {
	return &FatalError{Op: op, Pid: t.tracee.pid, Err: err}
}
