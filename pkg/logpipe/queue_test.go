package logpipe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderDrainReturnsPushedEvents(t *testing.T) {
	r := NewReader(4)
	r.Push(Event{Kind: EventStart})
	r.Push(Event{Kind: EventLog, Entry: &LogEntry{Message: "hi"}})

	events := r.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, EventStart, events[0].Kind)
	assert.Equal(t, EventLog, events[1].Kind)
}

func TestReaderDropsOldestLogWhenFull(t *testing.T) {
	r := NewReader(2)
	r.Push(Event{Kind: EventLog, Entry: &LogEntry{Message: "1"}})
	r.Push(Event{Kind: EventLog, Entry: &LogEntry{Message: "2"}})
	r.Push(Event{Kind: EventLog, Entry: &LogEntry{Message: "3"}})

	events := r.Drain()
	require.Len(t, events, 3)
	assert.Equal(t, "2", events[0].Entry.Message)
	assert.Equal(t, "3", events[1].Entry.Message)
	assert.Equal(t, EventError, events[2].Kind)
	assert.True(t, strings.HasPrefix(events[2].Reason, "dropped:"))
}

func TestReaderNeverDropsStartOrEnd(t *testing.T) {
	r := NewReader(1)
	r.Push(Event{Kind: EventStart})
	r.Push(Event{Kind: EventLog, Entry: &LogEntry{Message: "a"}})
	r.Push(Event{Kind: EventLog, Entry: &LogEntry{Message: "b"}})
	r.Push(Event{Kind: EventEnd, Reason: "eof"})

	events := r.Drain()
	assert.Equal(t, EventStart, events[0].Kind)
	assert.Equal(t, EventEnd, events[len(events)-1].Kind)
}

func TestReaderIgnoresPushAfterClose(t *testing.T) {
	r := NewReader(4)
	r.Close()
	r.Push(Event{Kind: EventLog, Entry: &LogEntry{Message: "ignored"}})
	assert.Empty(t, r.Drain())
}
