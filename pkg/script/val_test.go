package script

import (
	"testing"

	"gitlab.com/tozd/go/errors"

	"github.com/psarna/sysjack/pkg/regs"
)

type values map[string]regs.Word

func (v values) Value(name string) (regs.Word, bool) {
	w, ok := v[name]
	return w, ok
}

func TestResolve(t *testing.T) {
	store := values{"socket_ret": 3}

	got, err := Raw(0x10).Resolve(store)
	if err != nil || got != 0x10 {
		t.Errorf("Raw(0x10).Resolve() = %#x, %v", got, err)
	}

	got, err = Var("socket_ret").Resolve(store)
	if err != nil || got != 3 {
		t.Errorf("Var(socket_ret).Resolve() = %d, %v", got, err)
	}

	store["socket_ret"] = 5
	got, _ = Var("socket_ret").Resolve(store)
	if got != 5 {
		t.Errorf("Resolve() after rebinding = %d, want 5", got)
	}

	if _, err := Var("SocketRet").Resolve(store); !errors.Is(err, ErrNameNotFound) {
		t.Errorf("Resolve(unbound) error = %v, want ErrNameNotFound", err)
	}
	if _, err := Var("").Resolve(store); !errors.Is(err, ErrNameNotFound) {
		t.Errorf("Var(\"\").Resolve() error = %v, want ErrNameNotFound", err)
	}
	if !Var("").IsVar() || Raw(0).IsVar() {
		t.Error("IsVar does not follow the constructor")
	}
}

func TestValString(t *testing.T) {
	if s := Var("buf").String(); s != "$buf" {
		t.Errorf("String() = %q", s)
	}
	if s := Raw(16).String(); s != "0x10" {
		t.Errorf("String() = %q", s)
	}
}
