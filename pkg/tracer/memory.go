package tracer

import (
	"bytes"
	"encoding/binary"

	"gitlab.com/tozd/go/errors"

	"github.com/psarna/sysjack/pkg/regs"
)

const maxStringLen = 4096

// readString reads a NUL terminated string one word at a time.
func readString(p process, addr uintptr, maxLen int) (string, error) {
	if addr == 0 {
		return "", nil
	}
	var buf []byte
	var word [regs.WordSize]byte
	for len(buf) < maxLen {
		w, err := p.peekWord(addr + uintptr(len(buf)))
		if err != nil {
			return "", err
		}
		binary.NativeEndian.PutUint64(word[:], w)
		if i := bytes.IndexByte(word[:], 0); i >= 0 {
			buf = append(buf, word[:i]...)
			return string(buf), nil
		}
		buf = append(buf, word[:]...)
	}
	return string(buf[:maxLen]), nil
}

func writeWords(p process, addr uintptr, words []regs.Word) error {
	for i, w := range words {
		if err := p.pokeWord(addr+uintptr(i*regs.WordSize), w); err != nil {
			return err
		}
	}
	return nil
}

// ReadString reads a C string from tracee memory. It is meant for
// activations that inspect pointer arguments while the tracee is stopped.
func (t *Tracer) ReadString(addr regs.Word) (string, error) {
	s, err := readString(t.proc, uintptr(addr), maxStringLen)
	if err != nil {
		return "", errors.WithDetails(errors.WithMessage(err, "ptrace peekdata"), "addr", addr)
	}
	return s, nil
}
