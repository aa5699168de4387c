package script

import (
	"gitlab.com/tozd/go/errors"

	"github.com/psarna/sysjack/pkg/regs"
)

const MaxArity = 4

var (
	ErrInvalidArity          = errors.Base("activation arity out of range")
	ErrInsufficientArguments = errors.Base("insufficient arguments")
)

// Activation decides whether a hooked syscall fires its script. It looks
// at the first Arity syscall arguments only.
type Activation struct {
	arity int
	fn    func(args []regs.Word) bool
}

func NewActivation(arity int, fn func(args []regs.Word) bool) (Activation, error) {
	if arity < 1 || arity > MaxArity {
		return Activation{}, errors.WithDetails(ErrInvalidArity, "arity", arity)
	}
	if fn == nil {
		return Activation{}, errors.New("nil activation predicate")
	}
	return Activation{arity: arity, fn: fn}, nil
}

func On1(fn func(a0 regs.Word) bool) Activation {
	return Activation{arity: 1, fn: func(a []regs.Word) bool { return fn(a[0]) }}
}

func On2(fn func(a0, a1 regs.Word) bool) Activation {
	return Activation{arity: 2, fn: func(a []regs.Word) bool { return fn(a[0], a[1]) }}
}

func On3(fn func(a0, a1, a2 regs.Word) bool) Activation {
	return Activation{arity: 3, fn: func(a []regs.Word) bool { return fn(a[0], a[1], a[2]) }}
}

func On4(fn func(a0, a1, a2, a3 regs.Word) bool) Activation {
	return Activation{arity: 4, fn: func(a []regs.Word) bool { return fn(a[0], a[1], a[2], a[3]) }}
}

// ArgEquals fires when the 1-based argument idx equals v.
func ArgEquals(idx int, v regs.Word) (Activation, error) {
	return NewActivation(idx, func(args []regs.Word) bool {
		return args[idx-1] == v
	})
}

func (a Activation) Arity() int { return a.arity }

func (a Activation) Signal(args []regs.Word) (bool, error) {
	if a.fn == nil {
		return false, errors.WithDetails(ErrInvalidArity, "arity", a.arity)
	}
	if len(args) < a.arity {
		return false, errors.WithDetails(ErrInsufficientArguments, "arity", a.arity, "got", len(args))
	}
	return a.fn(args[:a.arity:a.arity]), nil
}
