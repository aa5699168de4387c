package blob

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/psarna/sysjack/pkg/regs"
)

func TestWords(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		words int
	}{
		{name: "empty", size: 0, words: 0},
		{name: "one byte", size: 1, words: 1},
		{name: "one word", size: 8, words: 1},
		{name: "thirteen bytes", size: 13, words: 2},
		{name: "sixteen bytes", size: 16, words: 2},
		{name: "sockaddr_un", size: SockaddrUnLen, words: 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := bytes.Repeat([]byte{0xab}, tt.size)
			words := Words(in)
			if len(words) != tt.words {
				t.Fatalf("len(Words(%d bytes)) = %d, want %d", tt.size, len(words), tt.words)
			}
			out := Bytes(words)
			if !bytes.Equal(out[:tt.size], in) {
				t.Errorf("payload changed: %x", out[:tt.size])
			}
			for i, c := range out[tt.size:] {
				if c != 0 {
					t.Errorf("pad byte %d = %#x, want 0", i, c)
				}
			}
		})
	}
}

func TestSockaddrUn(t *testing.T) {
	b := SockaddrUn(unix.AF_UNIX, "/tmp/portalsock")
	if len(b) != SockaddrUnLen {
		t.Fatalf("len = %d, want %d", len(b), SockaddrUnLen)
	}
	if b[0] != unix.AF_UNIX || b[1] != 0 {
		t.Errorf("family bytes = %x", b[:2])
	}
	path := b[2:]
	if got := string(path[:bytes.IndexByte(path, 0)]); got != "/tmp/portalsock" {
		t.Errorf("sun_path = %q", got)
	}

	long := SockaddrUn(unix.AF_UNIX, strings.Repeat("x", 200))
	if long[len(long)-1] != 0 {
		t.Error("long path is not NUL terminated")
	}
	if long[len(long)-2] != 'x' {
		t.Error("long path was not filled up to the terminator")
	}
}

func TestUnixSocket(t *testing.T) {
	words := UnixSocket("/a")
	if len(words) != regs.WordAlign(SockaddrUnLen)/regs.WordSize {
		t.Fatalf("len = %d", len(words))
	}
	b := Bytes(words)
	if string(b[2:4]) != "/a" || b[4] != 0 {
		t.Errorf("payload = %x", b[:8])
	}
}
