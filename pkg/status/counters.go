package status

import (
	"encoding/json"
	"os"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/hack-dance/hackd/pkg/apierrors"
)

// countersDoc is the on-disk shape of runtime-counters.json (spec §6).
type countersDoc struct {
	OK         bool       `json:"ok"`
	LastOkAt   *time.Time `json:"lastOkAt,omitempty"`
	ResetAt    *time.Time `json:"resetAt,omitempty"`
	ResetCount int        `json:"resetCount"`
}

// Counters tracks runtime-health transitions under its own lock, written
// through the same atomic-rename discipline as the registry/token stores
// (spec §4.F item 3, §5 "Shared resources").
type Counters struct {
	path string
	mu   deadlock.Mutex
	doc  countersDoc
}

// OpenCounters loads runtime-counters.json, defaulting to a fresh document
// when absent.
func OpenCounters(path string) (*Counters, error) {
	c := &Counters{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, apierrors.Wrap(apierrors.CodeInternal, err)
	}
	if len(data) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, &c.doc); err != nil {
		// corrupt sidecar: reset rather than fail the whole reconciler.
		c.doc = countersDoc{}
	}
	return c, nil
}

// Observe records a runtimeOk observation, incrementing resetCount and
// stamping resetAt whenever ok transitions false -> true, and stamping
// lastOkAt on every true observation, per §4.F item 3.
func (c *Counters) Observe(ok bool, at time.Time) RuntimeSection {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ok {
		if !c.doc.OK {
			c.doc.ResetCount++
			resetAt := at
			c.doc.ResetAt = &resetAt
		}
		lastOk := at
		c.doc.LastOkAt = &lastOk
	}
	c.doc.OK = ok

	_ = c.persistLocked()

	return RuntimeSection{
		OK:            ok,
		LastCheckedAt: at,
		LastOkAt:      c.doc.LastOkAt,
		ResetAt:       c.doc.ResetAt,
		ResetCount:    c.doc.ResetCount,
	}
}

func (c *Counters) persistLocked() error {
	if c.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(c.doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
