package script

import (
	"gitlab.com/tozd/go/errors"

	"github.com/psarna/sysjack/pkg/regs"
)

var (
	ErrNoStarter      = errors.Base("no script starter")
	ErrNoInstructions = errors.Base("no instruction")
	ErrNotTerminated  = errors.Base("the last instruction is not Ret")
)

// SkipControl says whether the trapped syscall runs before the script's
// instructions. Names bind the snapshots taken around it.
type SkipControl struct {
	Keep      bool
	RegsEnter string
	RegsExit  string
	Ret       string
}

// Skip cancels the original syscall; its entry registers are saved.
func Skip(regsEnter string) SkipControl {
	return SkipControl{RegsEnter: regsEnter}
}

// Keep lets the original syscall complete before the instructions run.
func Keep(regsEnter, regsExit, ret string) SkipControl {
	return SkipControl{Keep: true, RegsEnter: regsEnter, RegsExit: regsExit, Ret: ret}
}

type FailControl int

const (
	// FailDefault returns the value of the first failed injected syscall.
	FailDefault FailControl = iota
	// FailFallback falls back to the original syscall. It has no effect
	// when the original syscall fails.
	FailFallback
)

func (f FailControl) String() string {
	switch f {
	case FailDefault:
		return "default"
	case FailFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

type CallControl struct {
	RegsEnter string
	RegsExit  string
	Ret       string
}

type Starter struct {
	Activation Activation
	Skip       SkipControl
}

type Instruction interface {
	instruction()
}

// Call invokes Sysno in the tracee with the resolved Vals as arguments.
type Call struct {
	Ctrl  CallControl
	Sysno int
	Vals  []Val
}

// Alloc grows the tracee heap, copies Blob in and binds its base to Name.
type Alloc struct {
	Blob []regs.Word
	Name string
}

// Ret sets the tracee's return value and hands control back.
type Ret struct {
	Val Val
}

func (Call) instruction()  {}
func (Alloc) instruction() {}
func (Ret) instruction()   {}

type Script struct {
	starter Starter
	fail    FailControl
	intrs   []Instruction
}

func (s *Script) Starter() Starter { return s.starter }

func (s *Script) FailControl() FailControl { return s.fail }

func (s *Script) Instructions() []Instruction {
	return append([]Instruction(nil), s.intrs...)
}

func (s *Script) Len() int { return len(s.intrs) }

type Builder struct {
	starter *Starter
	fail    FailControl
	intrs   []Instruction
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Start(starter Starter, fail FailControl) *Builder {
	b.starter = &starter
	b.fail = fail
	return b
}

func (b *Builder) Call(ctrl CallControl, sysno int, vals ...Val) *Builder {
	b.intrs = append(b.intrs, Call{Ctrl: ctrl, Sysno: sysno, Vals: append([]Val(nil), vals...)})
	return b
}

func (b *Builder) Alloc(blob []regs.Word, name string) *Builder {
	b.intrs = append(b.intrs, Alloc{Blob: append([]regs.Word(nil), blob...), Name: name})
	return b
}

func (b *Builder) Ret(val Val) *Builder {
	b.intrs = append(b.intrs, Ret{Val: val})
	return b
}

func (b *Builder) Build() (*Script, error) {
	if b.starter == nil {
		return nil, errors.WithStack(ErrNoStarter)
	}
	if len(b.intrs) == 0 {
		return nil, errors.WithStack(ErrNoInstructions)
	}
	if _, ok := b.intrs[len(b.intrs)-1].(Ret); !ok {
		return nil, errors.WithDetails(ErrNotTerminated, "count", len(b.intrs))
	}
	for i, in := range b.intrs {
		if c, ok := in.(Call); ok && len(c.Vals) > regs.ArgCount {
			return nil, errors.WithDetails(regs.ErrTooManyArguments, "instruction", i, "count", len(c.Vals), "max", regs.ArgCount)
		}
	}
	return &Script{
		starter: *b.starter,
		fail:    b.fail,
		intrs:   append([]Instruction(nil), b.intrs...),
	}, nil
}
