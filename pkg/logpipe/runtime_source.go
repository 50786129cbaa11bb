package logpipe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/jesseduffield/kill"
	"github.com/sirupsen/logrus"
)

// RuntimeSource tails `<runtime> compose logs` for a project, splitting
// stdout/stderr concurrently, per §4.G "Container-runtime source".
type RuntimeSource struct {
	runtime string
	log     *logrus.Entry
}

// NewRuntimeSource builds a source that shells out to the given runtime
// binary ("docker"/"podman").
func NewRuntimeSource(runtime string, log *logrus.Entry) *RuntimeSource {
	return &RuntimeSource{runtime: runtime, log: log}
}

// Tail starts `logs --timestamps --no-color --tail <n>` for project/service
// and streams parsed entries to out until ctx is cancelled or the process
// exits. It mirrors the teacher's scanner-goroutine-over-subprocess-stdout
// pattern, generalized to two concurrent streams (stdout+stderr) and run
// under a cancellable context instead of a stop channel.
func (s *RuntimeSource) Tail(ctx context.Context, project, service string, tail int, out func(LogEntry), onEnd func(reason string)) error {
	args := []string{"compose", "-p", project, "logs", "--timestamps", "--no-color", "--follow"}
	if tail > 0 {
		args = append(args, "--tail", strconv.Itoa(tail))
	}
	if service != "" {
		args = append(args, service)
	}

	// Built with exec.Command (not CommandContext) so cancellation goes
	// through kill.Kill below rather than exec's default Process.Kill,
	// which wouldn't reach grandchildren compose/runtime forks.
	cmd := exec.Command(s.runtime, args...)
	kill.PrepareForChildren(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("runtime logs stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("runtime logs stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("runtime logs start: %w", err)
	}

	killed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = kill.Kill(cmd)
		case <-killed:
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go s.pump(stdout, StreamStdout, project, out, &wg)
	go s.pump(stderr, StreamStderr, project, out, &wg)
	wg.Wait()

	err = cmd.Wait()
	close(killed)
	switch {
	case ctx.Err() != nil:
		onEnd("eof")
	case err != nil:
		if exitErr, ok := err.(*exec.ExitError); ok {
			onEnd(fmt.Sprintf("exit:%d", exitErr.ExitCode()))
		} else {
			onEnd("exit:1")
		}
	default:
		onEnd("eof")
	}
	return nil
}

func (s *RuntimeSource) pump(r io.Reader, stream Stream, project string, out func(LogEntry), wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := stripansi.Strip(scanner.Text())
		ts, rest := SplitRuntimeLine(line)
		service, instance, payload := SplitServicePrefix(rest)

		entry := ParseLine(SourceContainerRuntime, payload)
		entry.Timestamp = ts
		entry.Stream = stream
		entry.Project = project
		entry.Service = service
		entry.Instance = instance
		entry.Raw = line

		out(entry)
	}
	if err := scanner.Err(); err != nil && s.log != nil {
		s.log.WithError(err).Debug("runtime log scan ended")
	}
}
