// Package logpipe implements the Log Pipeline of spec §4.G: it tails one
// or more raw line sources, normalizes them into LogEntry events, and fans
// them out to readers over a bounded queue.
package logpipe

import "time"

// Source identifies where a LogEntry originated.
type Source string

const (
	SourceContainerRuntime Source = "container-runtime"
	SourceLogStore         Source = "log-store"
)

// Level is the normalized severity of a LogEntry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Stream distinguishes stdout/stderr for container-runtime sources.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// LogEntry is the canonical, transient (never persisted) unit the pipeline
// emits (§3 "LogEntry").
type LogEntry struct {
	Source    Source            `json:"source"`
	Timestamp time.Time         `json:"timestamp,omitempty"`
	Level     Level             `json:"level"`
	Service   string            `json:"service,omitempty"`
	Project   string            `json:"project,omitempty"`
	Instance  string            `json:"instance,omitempty"`
	Stream    Stream            `json:"stream,omitempty"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Raw       string            `json:"raw"`
}

// dedupKey is the (service, timestamp, message) identity used to avoid
// re-emitting an entry that appeared in both the replay window and the
// live stream (§4.G "Replay").
func (e LogEntry) dedupKey() string {
	return e.Service + "|" + e.Timestamp.Format(time.RFC3339Nano) + "|" + e.Message
}

// EventKind is the discriminator of the one-JSON-object-per-line event
// stream emitted to readers (§4.G "Event stream").
type EventKind string

const (
	EventStart EventKind = "start"
	EventLog   EventKind = "log"
	EventError EventKind = "error"
	EventEnd   EventKind = "end"
)

// Event is one line of the reader-facing stream.
type Event struct {
	Kind     EventKind `json:"kind"`
	Selector *Selector `json:"selector,omitempty"`
	Entry    *LogEntry `json:"entry,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

// Selector scopes a log request to a project/service and optional replay
// window (§4.G "Replay").
type Selector struct {
	Project string
	Service string
	Tail    int
	Since   time.Time
}
