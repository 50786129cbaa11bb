package runtimeinv

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/mgutz/str"
	"github.com/sirupsen/logrus"
)

// Shell runs runtime binaries the way the teacher's OSCommand does:
// splitting a templated command string into argv and executing it with the
// caller's environment, but always under a context so callers can cancel
// an in-flight shell-out on deadline (spec §5 "Cancellation").
type Shell struct {
	Log     *logrus.Entry
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewShell builds a Shell using os/exec directly; tests substitute command.
func NewShell(log *logrus.Entry) *Shell {
	return &Shell{
		Log:     log,
		command: exec.CommandContext,
	}
}

// Run executes commandStr (e.g. "docker ps -a --format {{json .}}"),
// returning combined stdout. commandStr is split into argv with
// mgutz/str.ToArgv exactly like commands.OSCommand.ExecutableFromString.
func (s *Shell) Run(ctx context.Context, commandStr string) (string, error) {
	argv := str.ToArgv(commandStr)
	if len(argv) == 0 {
		return "", nil
	}

	cmd := s.command(ctx, argv[0], argv[1:]...)
	cmd.Env = os.Environ()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}

// LookPath reports whether name is resolvable on PATH, used by health
// probes for binary-availability checks.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
