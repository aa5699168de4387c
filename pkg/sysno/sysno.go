// Package sysno maps syscall names to numbers for the running architecture.
package sysno

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/elastic/go-seccomp-bpf/arch"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"
)

var ErrUnknownSyscall = errors.Base("unknown syscall")

var info, errInfo = arch.GetInfo("")

// fallback covers the calls sysjack itself injects when the arch tables
// are unavailable.
var fallback = map[string]int{
	"read":    unix.SYS_READ,
	"write":   unix.SYS_WRITE,
	"close":   unix.SYS_CLOSE,
	"brk":     unix.SYS_BRK,
	"dup2":    unix.SYS_DUP2,
	"dup3":    unix.SYS_DUP3,
	"getpid":  unix.SYS_GETPID,
	"socket":  unix.SYS_SOCKET,
	"connect": unix.SYS_CONNECT,
	"openat":  unix.SYS_OPENAT,
	"execve":  unix.SYS_EXECVE,
}

func Name(n int) string {
	if errInfo == nil {
		if name, ok := info.SyscallNumbers[n]; ok {
			return name
		}
	}
	for name, v := range fallback {
		if v == n {
			return name
		}
	}
	return fmt.Sprintf("sys_%d", n)
}

// Lookup resolves a syscall name. Numeric strings are accepted as is.
func Lookup(name string) (int, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if n, err := strconv.Atoi(name); err == nil && n >= 0 {
		return n, nil
	}
	name = strings.TrimPrefix(name, "sys_")
	if errInfo == nil {
		if n, ok := info.SyscallNames[name]; ok {
			return n, nil
		}
	}
	if n, ok := fallback[name]; ok {
		return n, nil
	}
	return 0, errors.WithDetails(ErrUnknownSyscall, "name", name)
}
