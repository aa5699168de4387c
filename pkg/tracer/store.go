package tracer

import (
	"sort"

	"github.com/psarna/sysjack/pkg/regs"
)

// Store holds the named register snapshots and scalar values of one trace
// session. Bindings are last-write-wins and are never removed.
type Store struct {
	regs   map[string]regs.Regs
	values map[string]regs.Word
}

func NewStore() *Store {
	return &Store{
		regs:   make(map[string]regs.Regs),
		values: make(map[string]regs.Word),
	}
}

func (s *Store) SetRegs(name string, r regs.Regs) {
	s.regs[name] = r
}

func (s *Store) Regs(name string) (regs.Regs, bool) {
	r, ok := s.regs[name]
	return r, ok
}

func (s *Store) SetValue(name string, v regs.Word) {
	s.values[name] = v
}

func (s *Store) Value(name string) (regs.Word, bool) {
	v, ok := s.values[name]
	return v, ok
}

func (s *Store) ValueNames() []string {
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
