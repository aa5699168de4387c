// Package config compiles YAML hook files into interception scripts.
package config

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"io"
	"os"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/psarna/sysjack/pkg/blob"
	"github.com/psarna/sysjack/pkg/regs"
	"github.com/psarna/sysjack/pkg/script"
	"github.com/psarna/sysjack/pkg/sysno"
)

//go:embed default.yaml
var defaultPolicy []byte

var (
	ErrArgIndex       = errors.Base("matcher argument index out of range")
	ErrMatcherKind    = errors.Base("matcher needs exactly one of equals and string")
	ErrNoPolicy       = errors.Base("hook needs skip or keep")
	ErrBothPolicies   = errors.Base("hook has both skip and keep")
	ErrFailPolicy     = errors.Base("unknown fail policy")
	ErrStepKind       = errors.Base("step needs exactly one of call, alloc and ret")
	ErrMalformedValue = errors.Base("malformed value")
	ErrAllocPayload   = errors.Base("alloc needs exactly one of sockaddr_un and hex")
)

// StringReader reads C strings out of the stopped tracee. *tracer.Tracer
// implements it.
type StringReader interface {
	ReadString(addr regs.Word) (string, error)
}

type File struct {
	Hooks []Hook `yaml:"hooks"`
}

type Hook struct {
	Syscall string    `yaml:"syscall"`
	When    []Matcher `yaml:"when"`
	Skip    *Names    `yaml:"skip"`
	Keep    *Names    `yaml:"keep"`
	Fail    string    `yaml:"fail"`
	Steps   []Step    `yaml:"steps"`
}

// Matcher compares the 1-based argument Arg with a number or, read as a
// pointer to a C string, with a string.
type Matcher struct {
	Arg    int     `yaml:"arg"`
	Equals *Value  `yaml:"equals"`
	String *string `yaml:"string"`
}

type Names struct {
	Enter string `yaml:"enter"`
	Exit  string `yaml:"exit"`
	Ret   string `yaml:"ret"`
}

type Step struct {
	Call string  `yaml:"call"`
	Args []Value `yaml:"args"`
	Save Names   `yaml:"save"`

	Alloc      string  `yaml:"alloc"`
	SockaddrUn *string `yaml:"sockaddr_un"`
	Hex        *string `yaml:"hex"`

	Ret *Value `yaml:"ret"`
}

// Value is an integer literal or a "$name" reference.
type Value struct {
	script.Val
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.WithDetails(ErrMalformedValue, "line", node.Line)
	}
	val, err := parseValue(node.Value)
	if err != nil {
		return errors.WithDetails(err, "line", node.Line)
	}
	v.Val = val
	return nil
}

func parseValue(s string) (script.Val, error) {
	s = strings.TrimSpace(s)
	if name, ok := strings.CutPrefix(s, "$"); ok {
		if name == "" {
			return script.Val{}, errors.WithDetails(ErrMalformedValue, "value", s)
		}
		return script.Var(name), nil
	}
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return script.Raw(regs.Word(n)), nil
	}
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return script.Val{}, errors.WithDetails(ErrMalformedValue, "value", s)
	}
	return script.Raw(n), nil
}

func Load(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.WithMessage(err, "failed to parse hook file")
	}
	return &f, nil
}

func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to open hook file")
	}
	defer fh.Close()
	f, err := Load(fh)
	if err != nil {
		return nil, errors.WithDetails(err, "path", path)
	}
	return f, nil
}

// Default is the built-in policy used when no hook file is given.
func Default() (*File, error) {
	return Load(bytes.NewReader(defaultPolicy))
}

type Compiled struct {
	Sysno  int
	Script *script.Script
}

// Scripts compiles every hook. String matchers read tracee memory through r
// when the activation is evaluated.
func (f *File) Scripts(r StringReader) ([]Compiled, error) {
	out := make([]Compiled, 0, len(f.Hooks))
	for i, h := range f.Hooks {
		c, err := h.compile(r)
		if err != nil {
			return nil, errors.WithDetails(err, "hook", i, "syscall", h.Syscall)
		}
		out = append(out, c)
	}
	return out, nil
}

func (h Hook) compile(r StringReader) (Compiled, error) {
	nr, err := sysno.Lookup(h.Syscall)
	if err != nil {
		return Compiled{}, err
	}
	act, err := activation(h.When, r)
	if err != nil {
		return Compiled{}, err
	}

	var skip script.SkipControl
	switch {
	case h.Skip != nil && h.Keep != nil:
		return Compiled{}, errors.WithStack(ErrBothPolicies)
	case h.Skip != nil:
		skip = script.Skip(h.Skip.Enter)
	case h.Keep != nil:
		skip = script.Keep(h.Keep.Enter, h.Keep.Exit, h.Keep.Ret)
	default:
		return Compiled{}, errors.WithStack(ErrNoPolicy)
	}

	var fail script.FailControl
	switch strings.ToLower(h.Fail) {
	case "", "default":
		fail = script.FailDefault
	case "fallback":
		fail = script.FailFallback
	default:
		return Compiled{}, errors.WithDetails(ErrFailPolicy, "fail", h.Fail)
	}

	b := script.NewBuilder().Start(script.Starter{Activation: act, Skip: skip}, fail)
	for i, st := range h.Steps {
		if err := st.add(b); err != nil {
			return Compiled{}, errors.WithDetails(err, "step", i)
		}
	}
	s, err := b.Build()
	if err != nil {
		return Compiled{}, err
	}
	return Compiled{Sysno: nr, Script: s}, nil
}

// activation fires when every matcher holds. With no matchers it fires on
// every call.
func activation(when []Matcher, r StringReader) (script.Activation, error) {
	arity := 1
	want := make([]regs.Word, len(when))
	for i, m := range when {
		if m.Arg < 1 || m.Arg > script.MaxArity {
			return script.Activation{}, errors.WithDetails(ErrArgIndex, "arg", m.Arg, "max", script.MaxArity)
		}
		if (m.Equals == nil) == (m.String == nil) {
			return script.Activation{}, errors.WithDetails(ErrMatcherKind, "arg", m.Arg)
		}
		if m.Equals != nil && m.Equals.IsVar() {
			return script.Activation{}, errors.WithDetails(ErrMalformedValue, "arg", m.Arg, "value", m.Equals.String())
		}
		if m.Equals != nil {
			want[i], _ = m.Equals.Resolve(nil)
		}
		if m.Arg > arity {
			arity = m.Arg
		}
	}
	return script.NewActivation(arity, func(args []regs.Word) bool {
		for i, m := range when {
			a := args[m.Arg-1]
			if m.Equals != nil {
				if a != want[i] {
					return false
				}
				continue
			}
			s, err := r.ReadString(a)
			if err != nil || s != *m.String {
				return false
			}
		}
		return true
	})
}

func (st Step) add(b *script.Builder) error {
	kinds := 0
	for _, set := range []bool{st.Call != "", st.Alloc != "", st.Ret != nil} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return errors.WithDetails(ErrStepKind, "kinds", kinds)
	}

	switch {
	case st.Call != "":
		nr, err := sysno.Lookup(st.Call)
		if err != nil {
			return err
		}
		vals := make([]script.Val, 0, len(st.Args))
		for _, a := range st.Args {
			vals = append(vals, a.Val)
		}
		b.Call(script.CallControl{RegsEnter: st.Save.Enter, RegsExit: st.Save.Exit, Ret: st.Save.Ret}, nr, vals...)
	case st.Alloc != "":
		words, err := st.payload()
		if err != nil {
			return errors.WithDetails(err, "alloc", st.Alloc)
		}
		b.Alloc(words, st.Alloc)
	default:
		b.Ret(st.Ret.Val)
	}
	return nil
}

func (st Step) payload() ([]regs.Word, error) {
	switch {
	case st.SockaddrUn != nil && st.Hex == nil:
		return blob.UnixSocket(*st.SockaddrUn), nil
	case st.Hex != nil && st.SockaddrUn == nil:
		b, err := hex.DecodeString(strings.TrimPrefix(*st.Hex, "0x"))
		if err != nil {
			return nil, errors.WithDetails(ErrMalformedValue, "hex", *st.Hex)
		}
		return blob.Words(b), nil
	default:
		return nil, errors.WithStack(ErrAllocPayload)
	}
}
