// Package health implements the stateless health predicates of spec §4.E.
package health

import (
	"context"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/hack-dance/hackd/pkg/runtimeinv"
)

// Status is one of {ok, warn, error} per §4.E.
type Status string

const (
	StatusOK    Status = "ok"
	StatusWarn  Status = "warn"
	StatusError Status = "error"
)

// Result is the outcome of a single probe.
type Result struct {
	Status     Status
	Message    string
	DurationMs int64
}

const (
	defaultTimeout = 1500 * time.Millisecond
	maxTimeout     = 5 * time.Second
)

func clampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	if d > maxTimeout {
		return maxTimeout
	}
	return d
}

// run wraps a probe body with timing and timeout-as-warn semantics: a probe
// whose context expires returns warn, never error, per §4.E.
func run(ctx context.Context, timeout time.Duration, body func(ctx context.Context) (Status, string)) Result {
	timeout = clampTimeout(timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)

	go func() {
		status, msg := body(ctx)
		done <- Result{Status: status, Message: msg}
	}()

	select {
	case res := <-done:
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	case <-ctx.Done():
		return Result{Status: StatusWarn, Message: "timed out", DurationMs: time.Since(start).Milliseconds()}
	}
}

// BinaryAvailable checks whether name is resolvable on PATH.
func BinaryAvailable(ctx context.Context, name string, timeout time.Duration) Result {
	return run(ctx, timeout, func(ctx context.Context) (Status, string) {
		if runtimeinv.LookPath(name) {
			return StatusOK, name + " found on PATH"
		}
		return StatusError, name + " not found on PATH"
	})
}

// RuntimeReachable checks that the container inventory can be listed
// without a RuntimeUnavailable diagnostic.
func RuntimeReachable(ctx context.Context, inspector *runtimeinv.Inspector, timeout time.Duration) Result {
	return run(ctx, timeout, func(ctx context.Context) (Status, string) {
		inv := inspector.List(ctx)
		if inv.Unavailable != nil {
			return StatusError, inv.Unavailable.Error()
		}
		return StatusOK, "runtime reachable"
	})
}

// TCPReachable dials hostPort and reports ok if the connection succeeds
// within the probe's deadline.
func TCPReachable(ctx context.Context, hostPort string, timeout time.Duration) Result {
	return run(ctx, timeout, func(ctx context.Context) (Status, string) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", hostPort)
		if err != nil {
			return StatusError, err.Error()
		}
		_ = conn.Close()
		return StatusOK, "reachable"
	})
}

// DNSResolves resolves host and reports ok iff wantAddr is among the
// resolved addresses (when wantAddr is non-empty), or any address resolves
// otherwise.
func DNSResolves(ctx context.Context, host, wantAddr string, timeout time.Duration) Result {
	return run(ctx, timeout, func(ctx context.Context) (Status, string) {
		var r net.Resolver
		addrs, err := r.LookupHost(ctx, host)
		if err != nil {
			return StatusError, err.Error()
		}
		if wantAddr == "" {
			return StatusOK, "resolved"
		}
		for _, a := range addrs {
			if a == wantAddr {
				return StatusOK, "resolved to " + wantAddr
			}
		}
		return StatusWarn, "resolved but not to " + wantAddr
	})
}

// FileExists checks for a well-known global file's presence.
func FileExists(ctx context.Context, path string, timeout time.Duration) Result {
	return run(ctx, timeout, func(ctx context.Context) (Status, string) {
		if _, err := os.Stat(path); err != nil {
			return StatusError, err.Error()
		}
		return StatusOK, "present"
	})
}

// NetworkExists checks whether a named network exists in the runtime and,
// if wantSubnet is non-empty, that the network's subnet matches.
func NetworkExists(ctx context.Context, exists func(ctx context.Context, name string) (subnet string, ok bool, err error), name, wantSubnet string, timeout time.Duration) Result {
	return run(ctx, timeout, func(ctx context.Context) (Status, string) {
		subnet, ok, err := exists(ctx, name)
		if err != nil {
			return StatusError, err.Error()
		}
		if !ok {
			return StatusError, "network " + name + " not found"
		}
		if wantSubnet != "" && subnet != wantSubnet {
			return StatusWarn, "subnet mismatch: want " + wantSubnet + " got " + subnet
		}
		return StatusOK, "network present"
	})
}

// Addr joins a host and port the way config stores them (host, int port)
// into the "host:port" form TCPReachable expects.
func Addr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
