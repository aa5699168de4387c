// Package regs is the architecture view over a raw ptrace register snapshot.
package regs

import (
	"gitlab.com/tozd/go/errors"
)

type Word = uint64
type SWord = int64

const (
	WordSize = 8

	// NoSyscall cancels a syscall when written at its entry stop.
	NoSyscall = -1

	// maxErrno is the lowest word the kernel uses for a negated errno.
	maxErrno = Word(0xfffffffffffff001)
)

var (
	ErrArgumentIndex    = errors.Base("argument index out of range")
	ErrNoArguments      = errors.Base("no arguments")
	ErrTooManyArguments = errors.Base("more arguments than argument slots")
)

func Align(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

func WordAlign(n int) int {
	return Align(n, WordSize)
}

// IsErrno reports whether a syscall return value is a negated errno.
func IsErrno(ret Word) bool {
	return ret >= maxErrno
}
