package logpipe

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Pipeline wires a RuntimeSource and StoreSource into the reader-facing
// event stream described in §4.G: start, replay, live transition with
// dedup, and end.
type Pipeline struct {
	runtime *RuntimeSource
	store   *StoreSource
	log     *logrus.Entry
}

// NewPipeline builds a Pipeline. store may be nil if no log-store backend
// is configured, in which case replay requests yield no history.
func NewPipeline(runtime *RuntimeSource, store *StoreSource, log *logrus.Entry) *Pipeline {
	return &Pipeline{runtime: runtime, store: store, log: log}
}

// Serve drives one reader's subscription to completion: it emits `start`,
// replays any requested window, transitions to the live tail without
// duplicating entries seen in both, and emits `end` when ctx is cancelled
// or the live tail exits.
func (p *Pipeline) Serve(ctx context.Context, sel Selector, reader *Reader) {
	reader.Push(Event{Kind: EventStart, Selector: &sel})

	seen := make(map[string]struct{})

	if sel.Tail > 0 || !sel.Since.IsZero() {
		p.replay(ctx, sel, reader, seen)
	}

	endCh := make(chan string, 1)
	liveOut := func(e LogEntry) {
		key := e.dedupKey()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		reader.Push(Event{Kind: EventLog, Entry: &e})
	}

	go func() {
		if p.runtime == nil {
			endCh <- "eof"
			return
		}
		reason := "eof"
		if err := p.runtime.Tail(ctx, sel.Project, sel.Service, sel.Tail, liveOut, func(r string) { reason = r }); err != nil {
			reason = "exit:1"
			if p.log != nil {
				p.log.WithError(err).Debug("runtime tail ended with error")
			}
		}
		endCh <- reason
	}()

	select {
	case <-ctx.Done():
		reader.Push(Event{Kind: EventEnd, Reason: "eof"})
	case reason := <-endCh:
		reader.Push(Event{Kind: EventEnd, Reason: reason})
	}
}

// replay drains the requested history window synchronously from the store
// source before the live tail begins, per §4.G "Replay".
func (p *Pipeline) replay(ctx context.Context, sel Selector, reader *Reader, seen map[string]struct{}) {
	if p.store == nil {
		return
	}

	since := sel.Since
	if since.IsZero() && sel.Tail > 0 {
		since = time.Time{}
	}

	entries, err := p.store.Query(ctx, sel.Project, sel.Service, since, time.Now().UTC())
	if err != nil {
		reader.Push(Event{Kind: EventError, Reason: err.Error()})
		return
	}

	if sel.Tail > 0 && len(entries) > sel.Tail {
		entries = entries[len(entries)-sel.Tail:]
	}

	for _, e := range entries {
		key := e.dedupKey()
		seen[key] = struct{}{}
		entry := e
		reader.Push(Event{Kind: EventLog, Entry: &entry})
	}
}
