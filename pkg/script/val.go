package script

import (
	"fmt"

	"gitlab.com/tozd/go/errors"

	"github.com/psarna/sysjack/pkg/regs"
)

var ErrNameNotFound = errors.Base("name not found")

// Lookup is the read side of a named value store.
type Lookup interface {
	Value(name string) (regs.Word, bool)
}

// Val is either a raw register-sized constant or a reference to a name
// bound earlier in the session.
type Val struct {
	raw   regs.Word
	name  string
	isVar bool
}

func Raw(w regs.Word) Val { return Val{raw: w} }

func Var(name string) Val { return Val{name: name, isVar: true} }

func (v Val) IsVar() bool { return v.isVar }

func (v Val) Name() string { return v.name }

func (v Val) Resolve(l Lookup) (regs.Word, error) {
	if !v.IsVar() {
		return v.raw, nil
	}
	w, ok := l.Value(v.name)
	if !ok {
		return 0, errors.WithDetails(ErrNameNotFound, "name", v.name)
	}
	return w, nil
}

func (v Val) String() string {
	if v.IsVar() {
		return "$" + v.name
	}
	return fmt.Sprintf("%#x", v.raw)
}
