//go:build linux && amd64

package sysno

import (
	"testing"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"openat", unix.SYS_OPENAT},
		{"OpenAt", unix.SYS_OPENAT},
		{"SYS_SOCKET", unix.SYS_SOCKET},
		{" connect ", unix.SYS_CONNECT},
		{"brk", unix.SYS_BRK},
		{"39", 39},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Lookup(tt.name)
			if err != nil {
				t.Fatalf("Lookup(%q) error = %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("Lookup(%q) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}

	if _, err := Lookup("no_such_call"); !errors.Is(err, ErrUnknownSyscall) {
		t.Errorf("Lookup(no_such_call) error = %v, want ErrUnknownSyscall", err)
	}
	if _, err := Lookup("-3"); !errors.Is(err, ErrUnknownSyscall) {
		t.Errorf("Lookup(-3) error = %v, want ErrUnknownSyscall", err)
	}
}

func TestName(t *testing.T) {
	if got := Name(unix.SYS_CONNECT); got != "connect" {
		t.Errorf("Name(SYS_CONNECT) = %q", got)
	}
	if got := Name(-1); got != "sys_-1" {
		t.Errorf("Name(-1) = %q", got)
	}
}
