// Package blob turns fixed-layout values into word sequences that can be
// staged in tracee memory with an Alloc instruction.
package blob

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/psarna/sysjack/pkg/regs"
)

const sunPathLen = 108

// SockaddrUnLen is the size of struct sockaddr_un.
const SockaddrUnLen = 2 + sunPathLen

// Words pads b with zeros to the word alignment and reinterprets it as
// native-endian machine words.
func Words(b []byte) []regs.Word {
	padded := make([]byte, regs.WordAlign(len(b)))
	copy(padded, b)
	words := make([]regs.Word, len(padded)/regs.WordSize)
	for i := range words {
		words[i] = binary.NativeEndian.Uint64(padded[i*regs.WordSize:])
	}
	return words
}

func Bytes(words []regs.Word) []byte {
	b := make([]byte, len(words)*regs.WordSize)
	for i, w := range words {
		binary.NativeEndian.PutUint64(b[i*regs.WordSize:], w)
	}
	return b
}

// SockaddrUn lays out a struct sockaddr_un. A path longer than 107 bytes is
// truncated so that sun_path stays NUL terminated.
func SockaddrUn(family uint16, path string) []byte {
	b := make([]byte, SockaddrUnLen)
	binary.NativeEndian.PutUint16(b, family)
	n := len(path)
	if n > sunPathLen-1 {
		n = sunPathLen - 1
	}
	copy(b[2:], path[:n])
	return b
}

func UnixSocket(path string) []regs.Word {
	return Words(SockaddrUn(unix.AF_UNIX, path))
}
