package main

import (
	"os"

	"github.com/orivej/e"
	"github.com/spf13/cobra"

	"github.com/psarna/sysjack/pkg/config"
	"github.com/psarna/sysjack/pkg/regs"
	"github.com/psarna/sysjack/pkg/tracer"
)

var (
	configPath string
	detach     bool
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sysjack [flags] -- program [args...]",
		Short: "Rewrite a program's syscalls by injecting syscalls into it",
		Long: `sysjack runs a program under ptrace. When a hooked syscall matches, the
original call is skipped or kept and a script of injected syscalls runs in
the program's own context before a chosen value is returned to it.

Without --config the built-in policy redirects opens of /tmp/writer_output
to a connection to the unix socket /tmp/portalsock.

Example:
  sysjack --config hooks.yaml --log-level intercept -- ./writer`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "YAML hook file (default: built-in policy)")
	rootCmd.Flags().BoolVar(&detach, "detach", false, "Detach from the program after the first syscall handed back to it")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "off, intercept or debug (overrides SYSJACK_LOG_LEVEL)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// lazyReader lets hooks be compiled before the tracer exists.
type lazyReader struct {
	t *tracer.Tracer
}

func (r *lazyReader) ReadString(addr regs.Word) (string, error) {
	return r.t.ReadString(addr)
}

func run(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("log-level") {
		tracer.SetLogLevel(logLevel)
	}

	policy, err := loadPolicy()
	if err != nil {
		return err
	}
	reader := &lazyReader{}
	hooks, err := policy.Scripts(reader)
	if err != nil {
		return err
	}

	path, err := lookProgram(args[0])
	if err != nil {
		return err
	}

	tracee, err := tracer.Start(path, args[1:])
	if err != nil {
		return err
	}

	var opts []tracer.Option
	if detach {
		opts = append(opts, tracer.WithResumeMode(tracer.ResumeDetach))
	}
	t := tracer.New(tracee, opts...)
	reader.t = t
	for _, h := range hooks {
		if err := t.Hook(h.Sysno, h.Script); err != nil {
			return err
		}
	}

	err = t.Sync()
	if tracer.IsFatal(err) {
		e.Exit(err)
	}
	if err != nil {
		return err
	}

	code, err := tracee.Wait()
	if err != nil {
		return err
	}
	os.Exit(code)
	return nil
}

func loadPolicy() (*config.File, error) {
	if configPath == "" {
		return config.Default()
	}
	return config.LoadFile(configPath)
}
