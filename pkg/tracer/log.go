package tracer

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/djmitche/shquote"

	"github.com/psarna/sysjack/pkg/regs"
	"github.com/psarna/sysjack/pkg/script"
	"github.com/psarna/sysjack/pkg/sysno"
)

type logLevel int

const (
	logOff logLevel = iota
	logInterceptOnly
	logDebug
)

var (
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	level  = parseLogLevel(os.Getenv("SYSJACK_LOG_LEVEL"))
)

func parseLogLevel(s string) logLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none", "0":
		return logOff
	case "intercept", "info", "1":
		return logInterceptOnly
	case "debug", "verbose", "2":
		return logDebug
	default:
		return logOff
	}
}

// SetLogLevel overrides SYSJACK_LOG_LEVEL.
func SetLogLevel(s string) {
	level = parseLogLevel(s)
}

func debugf(format string, args ...interface{}) {
	if level < logDebug {
		return
	}
	logger.Debug(fmt.Sprintf(format, args...))
}

func logIntercept(pid int, nr int, fired bool, skip script.SkipControl) {
	if level < logInterceptOnly {
		return
	}
	policy := "skip"
	if skip.Keep {
		policy = "keep"
	}
	logger.Info(
		"intercept",
		"pid", pid,
		"syscall", sysno.Name(nr),
		"fired", fired,
		"policy", policy,
	)
}

func logInject(pid int, nr int, args []regs.Word, ret regs.Word) {
	if level < logInterceptOnly {
		return
	}
	logger.Info(
		"inject",
		"pid", pid,
		"syscall", sysno.Name(nr),
		"args", fmt.Sprintf("%#x", args),
		"ret", fmt.Sprintf("%#x", ret),
	)
}

func logAlloc(pid int, name string, base regs.Word, words int) {
	if level < logInterceptOnly {
		return
	}
	logger.Info(
		"alloc",
		"pid", pid,
		"name", name,
		"base", fmt.Sprintf("%#x", base),
		"bytes", words*regs.WordSize,
	)
}

func logStart(pid int, argv []string) {
	if level < logInterceptOnly {
		return
	}
	logger.Info("start", "pid", pid, "cmd", shquote.QuoteList(argv))
}

func logBindings(pid int, store *Store) {
	if level < logDebug {
		return
	}
	names := store.ValueNames()
	vals := make([]string, 0, len(names))
	for _, name := range names {
		v, _ := store.Value(name)
		vals = append(vals, fmt.Sprintf("%s=%#x", name, v))
	}
	logger.Debug("bindings", "pid", pid, "values", strings.Join(vals, " "))
}
